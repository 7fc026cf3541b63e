// Package framework provides in-process implementations of the host
// framework boundary, used by the CLI and by tests.
package framework

import (
	"crypto/x509"
	"fmt"
	"sync"
)

// InMemorySource is an ArgumentSource backed by plain fields. The zero
// value reports every argument as absent.
type InMemorySource struct {
	Chain []*x509.Certificate
	PEM   string

	NFQANs   int
	HasNFQAN bool
	FQANs    []string
}

func (s *InMemorySource) PayloadChain() ([]*x509.Certificate, bool) {
	if len(s.Chain) == 0 {
		return nil, false
	}
	return s.Chain, true
}

func (s *InMemorySource) PayloadPEM() (string, bool) {
	if s.PEM == "" {
		return "", false
	}
	return s.PEM, true
}

func (s *InMemorySource) FQANCount() (int, bool) {
	return s.NFQANs, s.HasNFQAN
}

func (s *InMemorySource) FQANList() ([]string, bool) {
	if s.FQANs == nil {
		return nil, false
	}
	return s.FQANs, true
}

// RecordingSink is a CredentialSink that stores whatever is published.
// FailAfter, when non-negative, makes the FailAfter-th FQAN publication
// fail, for exercising abort-on-first-failure behavior.
type RecordingSink struct {
	mu        sync.Mutex
	SubjectDN string
	FQANs     []string
	FailAfter int
}

// NewRecordingSink returns a sink that accepts every publication.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{FailAfter: -1}
}

func (s *RecordingSink) AddSubjectDN(dn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SubjectDN = dn
	return nil
}

func (s *RecordingSink) AddFQAN(fqan string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAfter >= 0 && len(s.FQANs) >= s.FailAfter {
		return fmt.Errorf("credential store rejected FQAN %q", fqan)
	}
	s.FQANs = append(s.FQANs, fqan)
	return nil
}
