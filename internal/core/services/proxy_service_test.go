package services

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/adapters/framework"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/domain"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/errors"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/proxytest"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/secfile"
)

type fixtures struct {
	userCert    *x509.Certificate
	pilotKey    *rsa.PrivateKey
	pilotCert   *x509.Certificate
	payloadCert *x509.Certificate
	payloadPEM  []byte
}

func makeFixtures(t *testing.T, payloadOpts proxytest.ProxyOpts) fixtures {
	t.Helper()
	userKey, userCert := proxytest.GenerateUserCert(t, "alice")
	pilotKey, pilotCert := proxytest.GenerateProxy(t, userCert, userKey, "alice pilot", proxytest.ProxyOpts{RFC: true})
	_, payloadCert := proxytest.GenerateProxy(t, pilotCert, pilotKey, "alice payload", payloadOpts)
	return fixtures{
		userCert:    userCert,
		pilotKey:    pilotKey,
		pilotCert:   pilotCert,
		payloadCert: payloadCert,
		payloadPEM:  proxytest.ChainPEM(payloadCert, pilotCert, userCert),
	}
}

// installPilotProxy writes the pilot chain to a safe file and points
// X509_USER_PROXY at it.
func installPilotProxy(t *testing.T, fx fixtures) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "x509up_test")
	pemData := proxytest.ChainPEM(fx.pilotCert, fx.userCert)
	require.NoError(t, os.WriteFile(path, pemData, 0o600))
	require.NoError(t, os.Chmod(path, 0o600))
	t.Setenv(EnvPilotProxy, path)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, source *framework.InMemorySource, sink *framework.RecordingSink) *ProxyService {
	t.Helper()
	svc, err := NewProxyService(source, sink, WithLogger(quietLogger()))
	require.NoError(t, err)
	return svc
}

func TestNewProxyServiceValidation(t *testing.T) {
	_, err := NewProxyService(nil, framework.NewRecordingSink())
	require.Error(t, err)
	assert.Equal(t, errors.KindInput, errors.KindOf(err))

	_, err = NewProxyService(&framework.InMemorySource{}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindInput, errors.KindOf(err))
}

func TestAuthorizeHappyPath(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})
	installPilotProxy(t, fx)

	fqans := []string{"/vo/Role=production", "/vo/analysis/Role=NULL"}
	source := &framework.InMemorySource{
		PEM:      string(fx.payloadPEM),
		NFQANs:   len(fqans),
		HasNFQAN: true,
		FQANs:    fqans,
	}
	sink := framework.NewRecordingSink()
	svc := newService(t, source, sink)

	err := svc.Authorize(context.Background(), AuthorizeRequest{
		LockPolicy:  secfile.LockRange,
		FQANPattern: "/vo/*",
	})
	require.NoError(t, err)
	assert.Equal(t, fx.payloadCert.Subject.String(), sink.SubjectDN)
	assert.Equal(t, fqans, sink.FQANs)
}

func TestAuthorizeBorrowedChainTakesPrecedence(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})
	installPilotProxy(t, fx)

	source := &framework.InMemorySource{
		Chain: []*x509.Certificate{fx.payloadCert, fx.pilotCert, fx.userCert},
		PEM:   "garbage that would fail to parse",
	}
	sink := framework.NewRecordingSink()
	svc := newService(t, source, sink)

	require.NoError(t, svc.Authorize(context.Background(), AuthorizeRequest{LockPolicy: secfile.LockNone}))
	assert.Equal(t, fx.payloadCert.Subject.String(), sink.SubjectDN)
}

func TestAuthorizeMissingPilotEnv(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})
	t.Setenv(EnvPilotProxy, "")

	svc := newService(t, &framework.InMemorySource{PEM: string(fx.payloadPEM)}, framework.NewRecordingSink())
	err := svc.Authorize(context.Background(), AuthorizeRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
	assert.Equal(t, -1, errors.CodeOf(err))
}

func TestAuthorizeForeignSigner(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})
	installPilotProxy(t, fx)

	// A payload issued by a different key than the pilot's.
	otherKey, otherCert := proxytest.GenerateUserCert(t, "mallory")
	_, foreignPayload := proxytest.GenerateProxy(t, otherCert, otherKey, "mallory payload", proxytest.ProxyOpts{RFC: true})

	source := &framework.InMemorySource{PEM: string(proxytest.ChainPEM(foreignPayload, otherCert))}
	svc := newService(t, source, framework.NewRecordingSink())

	err := svc.Authorize(context.Background(), AuthorizeRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.KindTrust, errors.KindOf(err))
	assert.Equal(t, -3, errors.CodeOf(err))
}

func TestAuthorizeNonRFCPayload(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{})
	installPilotProxy(t, fx)

	source := &framework.InMemorySource{PEM: string(fx.payloadPEM)}
	svc := newService(t, source, framework.NewRecordingSink())

	err := svc.Authorize(context.Background(), AuthorizeRequest{})
	require.Error(t, err)
	assert.Equal(t, -4, errors.CodeOf(err))
}

func TestAuthorizeLimitedPayloadRejected(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{Limited: true})
	installPilotProxy(t, fx)

	source := &framework.InMemorySource{PEM: string(fx.payloadPEM)}

	// Accepted when limited proxies are tolerated.
	svc := newService(t, source, framework.NewRecordingSink())
	require.NoError(t, svc.Authorize(context.Background(), AuthorizeRequest{}))

	// Denied when policy rejects them.
	svc = newService(t, source, framework.NewRecordingSink())
	err := svc.Authorize(context.Background(), AuthorizeRequest{RejectLimited: true})
	require.Error(t, err)
	assert.Equal(t, -4, errors.CodeOf(err))
	assert.Equal(t, errors.KindTrust, errors.KindOf(err))
}

func TestAuthorizeFQANPolicy(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})
	installPilotProxy(t, fx)

	source := &framework.InMemorySource{
		PEM:      string(fx.payloadPEM),
		NFQANs:   1,
		HasNFQAN: true,
		FQANs:    []string{"/other/Role=NULL"},
	}
	svc := newService(t, source, framework.NewRecordingSink())

	err := svc.Authorize(context.Background(), AuthorizeRequest{FQANPattern: "/vo/*"})
	require.Error(t, err)
	assert.Equal(t, -5, errors.CodeOf(err))
}

func TestAuthorizePublicationAbortsOnFirstFailure(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})
	installPilotProxy(t, fx)

	fqans := []string{"/vo/Role=a", "/vo/Role=b", "/vo/Role=c"}
	source := &framework.InMemorySource{
		PEM:      string(fx.payloadPEM),
		NFQANs:   len(fqans),
		HasNFQAN: true,
		FQANs:    fqans,
	}
	sink := framework.NewRecordingSink()
	sink.FailAfter = 1
	svc := newService(t, source, sink)

	err := svc.Authorize(context.Background(), AuthorizeRequest{})
	require.Error(t, err)
	assert.Equal(t, -6, errors.CodeOf(err))
	// The first FQAN went through; nothing after the failure did.
	assert.Equal(t, []string{"/vo/Role=a"}, sink.FQANs)
}

func TestPayloadProxyNeitherChainNorPEM(t *testing.T) {
	svc := newService(t, &framework.InMemorySource{}, framework.NewRecordingSink())
	_, err := svc.PayloadProxy(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindInput, errors.KindOf(err))
	assert.Equal(t, -1, errors.CodeOf(err))
}

func TestPayloadProxyOrigins(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})

	borrowed := newService(t, &framework.InMemorySource{
		Chain: []*x509.Certificate{fx.payloadCert},
	}, framework.NewRecordingSink())
	chain, err := borrowed.PayloadProxy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OriginBorrowed, chain.Origin())

	parsed := newService(t, &framework.InMemorySource{
		PEM: string(fx.payloadPEM),
	}, framework.NewRecordingSink())
	chain, err = parsed.PayloadProxy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OriginParsed, chain.Origin())
}

func TestFQANsAbsenceIsNonFatal(t *testing.T) {
	tests := []struct {
		name   string
		source *framework.InMemorySource
	}{
		{name: "no count at all", source: &framework.InMemorySource{}},
		{name: "zero count", source: &framework.InMemorySource{HasNFQAN: true, NFQANs: 0}},
		{name: "count without list", source: &framework.InMemorySource{HasNFQAN: true, NFQANs: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, tt.source, framework.NewRecordingSink())
			assert.Empty(t, svc.FQANs(context.Background()))
		})
	}
}

func TestPilotProxyUnsafePermissions(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})
	path := filepath.Join(t.TempDir(), "x509up_test")
	require.NoError(t, os.WriteFile(path, proxytest.ChainPEM(fx.pilotCert), 0o600))
	require.NoError(t, os.Chmod(path, 0o644))
	t.Setenv(EnvPilotProxy, path)

	svc := newService(t, &framework.InMemorySource{PEM: string(fx.payloadPEM)}, framework.NewRecordingSink())
	_, err := svc.PilotProxy(context.Background(), secfile.LockNone)
	require.Error(t, err)
	assert.Equal(t, errors.KindPermission, errors.KindOf(err))
}

func TestVerifySignatureCodes(t *testing.T) {
	fx := makeFixtures(t, proxytest.ProxyOpts{RFC: true})
	svc := newService(t, &framework.InMemorySource{}, framework.NewRecordingSink())

	require.NoError(t, svc.VerifySignature(fx.payloadCert, fx.pilotCert))

	err := svc.VerifySignature(nil, fx.pilotCert)
	require.Error(t, err)
	assert.Equal(t, -1, errors.CodeOf(err))
	assert.Equal(t, errors.KindInput, errors.KindOf(err))

	err = svc.VerifySignature(fx.payloadCert, fx.userCert)
	require.Error(t, err)
	assert.Equal(t, -3, errors.CodeOf(err))
	assert.Equal(t, errors.KindTrust, errors.KindOf(err))
}
