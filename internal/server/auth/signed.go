package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// SignedConfig configures SignedTokenValidator.
type SignedConfig struct {
	// Issuer is required; tokens must carry it as "iss".
	Issuer string
	// JWKSURL defaults to <Issuer>/.well-known/jwks.json.
	JWKSURL string
	// TenantClaim defaults to DefaultTenantClaim.
	TenantClaim string
	// DefaultTenantDB binds principals whose token lacks the tenant claim.
	DefaultTenantDB string
	// FetchTimeout bounds one key set download. Defaults to 5s.
	FetchTimeout time.Duration
	// RefreshInterval schedules background key set refreshes. Defaults to 1h.
	RefreshInterval time.Duration
	// MinRefreshInterval spaces refreshes caused by tokens with an unknown
	// kid. Defaults to 1m.
	MinRefreshInterval time.Duration
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

type signedState struct {
	keys   *keySet
	parser *jwt.Parser
	claim  string
	err    error
}

// SignedTokenValidator verifies RS256 tokens against the issuer's published
// key set. It initializes lazily on first use; a configuration error is
// remembered and returned on every call.
type SignedTokenValidator struct {
	cfg    SignedConfig
	client *http.Client

	mu    sync.Mutex
	state atomic.Pointer[signedState]
}

var _ TokenValidator = (*SignedTokenValidator)(nil)

// NewSignedTokenValidator creates the validator. A nil client means
// http.DefaultClient; the client is never modified.
func NewSignedTokenValidator(cfg SignedConfig, client *http.Client) *SignedTokenValidator {
	return &SignedTokenValidator{cfg: cfg, client: client}
}

// EnsureInitialized builds the key set and parser exactly once.
func (v *SignedTokenValidator) EnsureInitialized() error {
	if s := v.state.Load(); s != nil {
		return s.err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if s := v.state.Load(); s != nil {
		return s.err
	}

	s := v.build()
	v.state.Store(s)
	return s.err
}

func (v *SignedTokenValidator) build() *signedState {
	issuer := strings.TrimRight(strings.TrimSpace(v.cfg.Issuer), "/")
	if issuer == "" {
		return &signedState{err: common.New(common.KindInitialization, "token issuer is not configured")}
	}

	url := v.cfg.JWKSURL
	if url == "" {
		url = issuer + "/.well-known/jwks.json"
	}

	opts := keySetOptions{
		URL:                url,
		Client:             v.client,
		FetchTimeout:       v.cfg.FetchTimeout,
		RefreshInterval:    v.cfg.RefreshInterval,
		MinRefreshInterval: v.cfg.MinRefreshInterval,
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Hour
	}
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = time.Minute
	}

	claim := v.cfg.TenantClaim
	if claim == "" {
		claim = DefaultTenantClaim
	}

	keys, err := newKeySet(opts)
	if err != nil {
		return &signedState{err: common.Wrap(common.KindInitialization, "signing key set URL is invalid", err)}
	}

	return &signedState{
		keys:  keys,
		claim: claim,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(v.cfg.Leeway),
		),
	}
}

// Validate verifies the credential and returns its principal.
func (v *SignedTokenValidator) Validate(ctx context.Context, credential string) (*Principal, error) {
	if err := v.EnsureInitialized(); err != nil {
		return nil, err
	}
	s := v.state.Load()

	claims := jwt.MapClaims{}
	_, err := s.parser.ParseWithClaims(credential, claims, s.keys.Keyfunc(ctx))
	if err != nil {
		return nil, classifyParseError(err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, common.New(common.KindMalformedCredential, "token has no subject")
	}

	return &Principal{
		ID:            sub,
		TenantBinding: tenantBinding(claims[s.claim], v.cfg.DefaultTenantDB),
		Claims:        claims,
	}, nil
}

// Close stops background key set refreshes. The validator keeps verifying
// with the keys it already holds.
func (v *SignedTokenValidator) Close() {
	if s := v.state.Load(); s != nil && s.keys != nil {
		s.keys.Close()
	}
}

func classifyParseError(err error) error {
	var ce *common.Error
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return common.ErrMalformedCredential
	default:
		return common.ErrSignatureInvalid
	}
}
