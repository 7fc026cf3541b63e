// Package ports defines the interfaces to the host authorization framework.
package ports

import "crypto/x509"

// ArgumentSource is the host framework's keyed argument table for one
// authorization decision. Lookups report presence explicitly; an absent
// payload chain is recoverable (the PEM string is tried next), an absent
// FQAN table is simply zero attributes.
type ArgumentSource interface {
	// PayloadChain returns a pre-parsed payload certificate chain.
	PayloadChain() ([]*x509.Certificate, bool)
	// PayloadPEM returns the raw PEM text of the payload credential.
	PayloadPEM() (string, bool)
	// FQANCount returns the advertised number of FQANs.
	FQANCount() (int, bool)
	// FQANList returns the FQAN strings.
	FQANList() ([]string, bool)
}

// CredentialSink receives verified credential attributes for later policy
// evaluation. Consumers are expected to prefer these run-time values over
// the introspect-time arguments of the ArgumentSource.
type CredentialSink interface {
	// AddSubjectDN publishes the payload certificate's subject DN.
	AddSubjectDN(dn string) error
	// AddFQAN publishes one FQAN string.
	AddFQAN(fqan string) error
}
