package domain

import (
	"crypto/x509"
	"encoding/asn1"
)

// Stable protocol OIDs, preserved verbatim.
const (
	// OIDRFCProxy identifies the RFC 3820 proxyCertInfo extension.
	OIDRFCProxy = "1.3.6.1.5.5.7.1.14"
	// OIDLimitedProxy is the policy language marking a limited proxy.
	OIDLimitedProxy = "1.3.6.1.4.1.3536.1.1.1.9"
)

var (
	oidProxyCertInfo = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 14}
	oidLimitedProxy  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 3536, 1, 1, 1, 9}
)

// proxyPolicy is the ProxyPolicy structure of RFC 3820 section 3.8.
type proxyPolicy struct {
	PolicyLanguage asn1.ObjectIdentifier
	Policy         []byte `asn1:"optional"`
}

// proxyCertInfo is the ProxyCertInfoExtension structure of RFC 3820.
type proxyCertInfo struct {
	PathLenConstraint int `asn1:"optional"`
	ProxyPolicy       proxyPolicy
}

// Classification is the per-certificate proxy compliance result.
type Classification struct {
	RFCProxy bool
	Limited  bool
}

// IsRFCProxy reports whether cert carries the RFC 3820 proxyCertInfo
// extension. All extensions are scanned, critical or not.
func IsRFCProxy(cert *x509.Certificate) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidProxyCertInfo) {
			return true
		}
	}
	return false
}

// IsLimited reports whether cert's proxyCertInfo extension declares the
// limited-proxy policy language. A certificate without the extension, with
// no policy language, or with extension content that does not decode yields
// false: classification degrades to "not limited" rather than failing the
// authorization flow. Callers treating "limited" as a security property
// should note that a decode failure is indistinguishable from "not limited".
func IsLimited(cert *x509.Certificate) bool {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidProxyCertInfo) {
			continue
		}
		var pci proxyCertInfo
		if rest, err := asn1.Unmarshal(ext.Value, &pci); err != nil || len(rest) != 0 {
			return false
		}
		if len(pci.ProxyPolicy.PolicyLanguage) == 0 {
			return false
		}
		return pci.ProxyPolicy.PolicyLanguage.Equal(oidLimitedProxy)
	}
	return false
}

// Classify computes both compliance checks for cert.
func Classify(cert *x509.Certificate) Classification {
	return Classification{
		RFCProxy: IsRFCProxy(cert),
		Limited:  IsLimited(cert),
	}
}
