package services

import (
	"context"
	"crypto/x509"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/domain"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/errors"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/ports"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/secfile"
)

// EnvPilotProxy names the environment variable holding the pilot's proxy
// credential path. Its absence is fatal for the pilot-fetch operation.
const EnvPilotProxy = "X509_USER_PROXY"

// ProxyService proves that a payload proxy was issued by the pilot
// credential, classifies proxy compliance, matches FQANs against policy,
// and publishes the verified attributes to the host framework.
//
// One service instance handles one decision at a time; the underlying
// privilege drop is process-wide and not reentrant.
type ProxyService struct {
	args   ports.ArgumentSource
	sink   ports.CredentialSink
	reader *secfile.Reader
	logger *slog.Logger
}

// Option configures a ProxyService.
type Option func(*ProxyService)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *ProxyService) { s.logger = l }
}

// WithReader sets the credential file reader, allowing non-default retry
// and size policies.
func WithReader(r *secfile.Reader) Option {
	return func(s *ProxyService) { s.reader = r }
}

// NewProxyService creates a ProxyService over the host framework's argument
// table and credential sink.
func NewProxyService(args ports.ArgumentSource, sink ports.CredentialSink, opts ...Option) (*ProxyService, error) {
	if args == nil {
		return nil, errors.New("NewProxyService", -1, errors.KindInput, "argument source is nil")
	}
	if sink == nil {
		return nil, errors.New("NewProxyService", -1, errors.KindInput, "credential sink is nil")
	}
	s := &ProxyService{
		args:   args,
		sink:   sink,
		reader: secfile.NewReader(secfile.Options{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PilotProxy reads and parses the pilot proxy named by X509_USER_PROXY.
// Codes: -1 missing environment, -2 read failure, -3 parse failure.
func (s *ProxyService) PilotProxy(ctx context.Context, policy secfile.LockPolicy) (*domain.Chain, error) {
	const op = "PilotProxy"
	path := os.Getenv(EnvPilotProxy)
	if path == "" {
		return nil, errors.New(op, -1, errors.KindConfig, "environment variable X509_USER_PROXY unset")
	}
	pemData, err := s.reader.ReadSecureFile(path, policy)
	if err != nil {
		pilotReadCounter.WithLabelValues("error").Inc()
		return nil, errors.Wrap(op, -2, errors.KindOf(err), "cannot read pilot proxy", err)
	}
	pilotReadCounter.WithLabelValues("ok").Inc()
	chain, err := domain.ParseChain(pemData)
	if err != nil {
		return nil, errors.Wrap(op, -3, errors.KindParse, "cannot convert pilot proxy to chain", err)
	}
	s.logger.DebugContext(ctx, "pilot proxy loaded",
		"path", path,
		"chain_length", chain.Len(),
		"lock_policy", policy.String(),
	)
	return chain, nil
}

// PayloadProxy obtains the payload chain from the host framework: first a
// pre-parsed chain, then a raw PEM string. Neither present is fatal.
// Codes: -1 no chain or PEM string, -2 parse failure.
func (s *ProxyService) PayloadProxy(ctx context.Context) (*domain.Chain, error) {
	const op = "PayloadProxy"
	if certs, ok := s.args.PayloadChain(); ok {
		chain, err := domain.NewChain(certs, domain.OriginBorrowed)
		if err != nil {
			return nil, errors.Wrap(op, -2, errors.KindParse, "framework chain is unusable", err)
		}
		return chain, nil
	}
	s.logger.DebugContext(ctx, "no X.509 chain is set, trying pem string")
	pemText, ok := s.args.PayloadPEM()
	if !ok {
		return nil, errors.New(op, -1, errors.KindInput, "no chain or pem string is set")
	}
	chain, err := domain.ParseChain([]byte(pemText))
	if err != nil {
		return nil, errors.Wrap(op, -2, errors.KindParse, "cannot convert pem string to chain", err)
	}
	return chain, nil
}

// FQANs returns the framework-supplied FQAN list. Absent FQAN data is not
// an error: it yields zero attributes.
func (s *ProxyService) FQANs(ctx context.Context) domain.FQANs {
	n, ok := s.args.FQANCount()
	if !ok {
		s.logger.InfoContext(ctx, "no VOMS ACs found by the framework in the proxy chain")
		return nil
	}
	if n <= 0 {
		s.logger.InfoContext(ctx, "no VOMS FQANs present in the proxy chain")
		return nil
	}
	list, ok := s.args.FQANList()
	if !ok {
		s.logger.WarnContext(ctx, "FQAN count set but FQAN list missing", "count", n)
		return nil
	}
	if n < len(list) {
		list = list[:n]
	}
	return domain.FQANs(list)
}

// VerifySignature checks that payload was signed by pilot's key.
// Codes: -1 missing input, -2 missing key, -3 signature mismatch.
func (s *ProxyService) VerifySignature(payload, pilot *x509.Certificate) error {
	const op = "VerifySignature"
	verdict := domain.VerifyIssuedBy(payload, pilot)
	verificationCounter.WithLabelValues(verdict.String()).Inc()
	switch verdict {
	case domain.VerdictVerified:
		return nil
	case domain.VerdictMissingInput:
		return errors.New(op, -1, errors.KindInput, "pilot or payload proxy is unset")
	case domain.VerdictMissingKey:
		return errors.New(op, -2, errors.KindTrust, "cannot get public key from pilot cert")
	default:
		return errors.New(op, -3, errors.KindTrust, "payload cert is not signed by pilot cert")
	}
}

// MatchFQAN reports whether any FQAN matches the glob pattern.
// Code: -1 malformed pattern.
func (s *ProxyService) MatchFQAN(fqans domain.FQANs, pattern string) (bool, error) {
	ok, err := fqans.Match(pattern)
	if err != nil {
		return false, errors.Wrap("MatchFQAN", -1, errors.KindInput, "unusable FQAN pattern", err)
	}
	return ok, nil
}

// PublishSubjectDN publishes the payload certificate's subject DN to the
// credential sink. Codes: -1 missing certificate, -2 sink failure.
func (s *ProxyService) PublishSubjectDN(ctx context.Context, payload *x509.Certificate) error {
	const op = "PublishSubjectDN"
	if payload == nil {
		return errors.New(op, -1, errors.KindInput, "payload certificate is unset")
	}
	dn := payload.Subject.String()
	if err := s.sink.AddSubjectDN(dn); err != nil {
		publicationFailuresCounter.Inc()
		return errors.Wrap(op, -2, errors.KindIO, "failed to add DN to credential data", err)
	}
	s.logger.DebugContext(ctx, "added DN to credential data", "dn", dn)
	return nil
}

// PublishFQANs publishes each FQAN in order. The first failure aborts the
// remaining publications. Code: -1 sink failure.
func (s *ProxyService) PublishFQANs(ctx context.Context, fqans domain.FQANs) error {
	const op = "PublishFQANs"
	for _, fqan := range fqans {
		if err := s.sink.AddFQAN(fqan); err != nil {
			publicationFailuresCounter.Inc()
			return errors.Wrap(op, -1, errors.KindIO, "failed to add FQAN to credential data", err)
		}
	}
	s.logger.DebugContext(ctx, "added FQANs to credential data", "count", len(fqans))
	return nil
}

// AuthorizeRequest carries the per-decision policy knobs.
type AuthorizeRequest struct {
	// LockPolicy guards the pilot proxy file read.
	LockPolicy secfile.LockPolicy
	// FQANPattern, when non-empty, requires at least one FQAN to match.
	FQANPattern string
	// RejectLimited denies payloads carrying the limited-proxy policy.
	RejectLimited bool
}

// Authorize runs the full decision pipeline: pilot fetch, payload fetch,
// one-hop signature verification, proxy classification, FQAN policy match,
// then DN and FQAN publication. The first failure wins.
//
// Codes: -1 pilot fetch, -2 payload fetch, -3 signature verification,
// -4 classification, -5 FQAN policy, -6 publication.
func (s *ProxyService) Authorize(ctx context.Context, req AuthorizeRequest) error {
	const op = "Authorize"
	log := s.logger.With("decision_id", uuid.NewString())

	deny := func(code int, kind errors.Kind, msg string, err error) error {
		decisionsCounter.WithLabelValues("denied").Inc()
		if err != nil {
			log.WarnContext(ctx, msg, "error", err)
			return errors.Wrap(op, code, kind, msg, err)
		}
		log.WarnContext(ctx, msg)
		return errors.New(op, code, kind, msg)
	}

	pilot, err := s.PilotProxy(ctx, req.LockPolicy)
	if err != nil {
		return deny(-1, errors.KindOf(err), "cannot obtain pilot proxy", err)
	}
	payload, err := s.PayloadProxy(ctx)
	if err != nil {
		return deny(-2, errors.KindOf(err), "cannot obtain payload proxy", err)
	}
	log.DebugContext(ctx, "proxies obtained",
		"pilot_chain_length", pilot.Len(),
		"payload_chain_length", payload.Len(),
		"payload_origin", payload.Origin().String(),
	)

	if err := s.VerifySignature(payload.Leaf(), pilot.Leaf()); err != nil {
		return deny(-3, errors.KindOf(err), "payload proxy not issued by pilot", err)
	}

	class := domain.Classify(payload.Leaf())
	log.DebugContext(ctx, "payload proxy classified",
		"rfc_proxy", class.RFCProxy,
		"limited", class.Limited,
	)
	if !class.RFCProxy {
		return deny(-4, errors.KindTrust, "payload proxy is not an RFC proxy", nil)
	}
	if req.RejectLimited && class.Limited {
		return deny(-4, errors.KindTrust, "payload proxy carries the limited-proxy policy", nil)
	}

	fqans := s.FQANs(ctx)
	if req.FQANPattern != "" {
		matched, err := s.MatchFQAN(fqans, req.FQANPattern)
		if err != nil {
			return deny(-5, errors.KindInput, "unusable FQAN pattern", err)
		}
		if !matched {
			return deny(-5, errors.KindTrust, "no FQAN matches required pattern", nil)
		}
	}

	if err := s.PublishSubjectDN(ctx, payload.Leaf()); err != nil {
		return deny(-6, errors.KindOf(err), "cannot publish payload subject DN", err)
	}
	if err := s.PublishFQANs(ctx, fqans); err != nil {
		return deny(-6, errors.KindOf(err), "cannot publish FQANs", err)
	}

	decisionsCounter.WithLabelValues("authorized").Inc()
	log.InfoContext(ctx, "payload authorized",
		"subject", payload.Leaf().Subject.String(),
		"fqans", len(fqans),
	)
	return nil
}
