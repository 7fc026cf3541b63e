package domain

import "crypto/x509"

// Verdict is the outcome of one signature verification step.
type Verdict int

const (
	// VerdictVerified means the payload certificate was signed by the
	// pilot certificate's key.
	VerdictVerified Verdict = iota
	// VerdictSignatureMismatch means the signature check failed.
	VerdictSignatureMismatch
	// VerdictMissingKey means no usable public key in the pilot certificate.
	VerdictMissingKey
	// VerdictMissingInput means one of the certificates was absent.
	VerdictMissingInput
)

func (v Verdict) String() string {
	switch v {
	case VerdictVerified:
		return "verified"
	case VerdictSignatureMismatch:
		return "signature mismatch"
	case VerdictMissingKey:
		return "missing key"
	case VerdictMissingInput:
		return "missing input"
	}
	return "unknown"
}

// VerifyIssuedBy checks that payload's signature was produced by pilot's
// public key, under payload's declared signature algorithm. This is a single
// hop check, not path validation: proxy issuers are not CAs, so the usual
// chain constraints (basic constraints, key usage) deliberately do not
// apply, and the pilot chain's own trust to a root is assumed established
// upstream.
func VerifyIssuedBy(payload, pilot *x509.Certificate) Verdict {
	if payload == nil || pilot == nil {
		return VerdictMissingInput
	}
	if pilot.PublicKey == nil || pilot.PublicKeyAlgorithm == x509.UnknownPublicKeyAlgorithm {
		return VerdictMissingKey
	}
	if err := pilot.CheckSignature(payload.SignatureAlgorithm, payload.RawTBSCertificate, payload.Signature); err != nil {
		return VerdictSignatureMismatch
	}
	return VerdictVerified
}
