// Package domain holds the proxy-certificate value logic: chain parsing,
// proxy classification, one-hop trust verification, and FQAN matching.
package domain

import (
	"crypto/x509"
	"encoding/pem"

	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/errors"
)

// Origin records who produced a payload chain. Borrowed chains come from the
// host framework and must never be mutated; parsed chains were decoded here.
// This replaces the process-wide "needs cleaning" flag of older
// implementations, so concurrent decisions cannot race on shared state.
type Origin int

const (
	// OriginParsed marks a chain decoded from PEM by this module.
	OriginParsed Origin = iota
	// OriginBorrowed marks a chain handed over by the host framework.
	OriginBorrowed
)

func (o Origin) String() string {
	if o == OriginBorrowed {
		return "borrowed"
	}
	return "parsed"
}

// Chain is an ordered, leaf-first, non-empty certificate chain. Position in
// the chain is significant: index 0 is the leaf, later entries are issuers
// in order of appearance in the PEM source.
type Chain struct {
	certs  []*x509.Certificate
	origin Origin
}

// NewChain wraps an existing certificate slice, typically one borrowed from
// the host framework. An empty or nil slice is rejected.
func NewChain(certs []*x509.Certificate, origin Origin) (*Chain, error) {
	if len(certs) == 0 {
		return nil, errors.New("NewChain", -1, errors.KindParse, "certificate chain is empty")
	}
	return &Chain{certs: certs, origin: origin}, nil
}

// ParseChain decodes concatenated PEM blocks into a chain, preserving source
// order. Blocks that do not contain a decodable certificate are skipped.
// Zero resulting certificates, or empty input, fail with a parse error.
// The chain owns its certificates; the input buffer may be reused afterward.
func ParseChain(pemData []byte) (*Chain, error) {
	const op = "ParseChain"
	if len(pemData) == 0 {
		return nil, errors.New(op, -1, errors.KindParse, "credential material is empty")
	}
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			// Non-certificate blocks (keys, garbage) are skipped, not fatal.
			continue
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New(op, -1, errors.KindParse, "no certificates found in credential material")
	}
	return &Chain{certs: certs, origin: OriginParsed}, nil
}

// Certificates returns the chain's certificates, leaf first. The returned
// slice is shared; callers must not modify it.
func (c *Chain) Certificates() []*x509.Certificate {
	return c.certs
}

// Leaf returns the first certificate of the chain.
func (c *Chain) Leaf() *x509.Certificate {
	return c.certs[0]
}

// Len returns the number of certificates in the chain.
func (c *Chain) Len() int {
	return len(c.certs)
}

// Origin reports whether the chain was parsed here or borrowed.
func (c *Chain) Origin() Origin {
	return c.origin
}
