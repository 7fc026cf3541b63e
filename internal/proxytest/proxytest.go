// Package proxytest generates proxy-certificate fixtures for tests.
// Key sizes are deliberately small; never use these outside tests.
package proxytest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

var (
	oidProxyCertInfo = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 14}
	oidInheritAll    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 21, 1}
	oidLimitedProxy  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 3536, 1, 1, 1, 9}
)

type proxyPolicy struct {
	PolicyLanguage asn1.ObjectIdentifier
	Policy         []byte `asn1:"optional"`
}

type proxyCertInfo struct {
	PathLenConstraint int `asn1:"optional"`
	ProxyPolicy       proxyPolicy
}

// ProxyOpts shapes a generated proxy certificate.
type ProxyOpts struct {
	// RFC adds the proxyCertInfo extension.
	RFC bool
	// Limited selects the limited-proxy policy language; implies RFC.
	Limited bool
	// ExtraExtensions are appended verbatim.
	ExtraExtensions []pkix.Extension
}

// GenerateUserCert creates a self-signed end-entity certificate.
func GenerateUserCert(t *testing.T, commonName string) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	return generate(t, commonName, nil, nil, true, nil)
}

// GenerateProxy creates a certificate signed by parent, optionally carrying
// the RFC 3820 proxyCertInfo extension.
func GenerateProxy(t *testing.T, parent *x509.Certificate, parentKey *rsa.PrivateKey, commonName string, opts ProxyOpts) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	var exts []pkix.Extension
	if opts.RFC || opts.Limited {
		lang := oidInheritAll
		if opts.Limited {
			lang = oidLimitedProxy
		}
		value, err := asn1.Marshal(proxyCertInfo{ProxyPolicy: proxyPolicy{PolicyLanguage: lang}})
		if err != nil {
			t.Fatalf("marshalling proxyCertInfo: %v", err)
		}
		exts = append(exts, pkix.Extension{Id: oidProxyCertInfo, Critical: true, Value: value})
	}
	exts = append(exts, opts.ExtraExtensions...)
	return generate(t, commonName, parent, parentKey, false, exts)
}

// ChainPEM encodes certificates as concatenated PEM blocks in order.
func ChainPEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return out
}

func generate(t *testing.T, commonName string, parent *x509.Certificate, parentKey *rsa.PrivateKey, isCA bool, exts []pkix.Extension) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 120))
	if err != nil {
		t.Fatalf("generating serial: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: isCA,
		IsCA:                  isCA,
		ExtraExtensions:       exts,
	}
	signerCert := template
	signerKey := key
	if parent != nil {
		signerCert = parent
		signerKey = parentKey
	}
	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, key.Public(), signerKey)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	return key, cert
}
