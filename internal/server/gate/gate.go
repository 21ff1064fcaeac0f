// Package gate authenticates requests before they reach a handler.
//
// Handlers receive an explicit RequestContext. The gate never mutates the
// one it is given: Protect passes a copy carrying the verified Principal.
package gate

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/logging"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/auth"
)

// Headers holds request headers. Lookups through Get ignore case.
type Headers map[string]string

// Get returns the value of name, matching keys case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Request is the transport-independent view of an inbound request.
type Request struct {
	Method     string
	Path       string
	Headers    Headers
	Query      map[string]string
	PathParams map[string]string
	Body       []byte
}

// RequestContext is what handlers receive. Principal is nil until the
// request passes Protect.
type RequestContext struct {
	Request   Request
	Principal *auth.Principal
}

// WithPrincipal returns a copy of rc carrying p.
func (rc *RequestContext) WithPrincipal(p *auth.Principal) *RequestContext {
	out := *rc
	out.Principal = p
	return &out
}

// Response is a handler result. Body is encoded by the transport.
type Response struct {
	Status int
	Body   any
}

type Handler func(ctx context.Context, rc *RequestContext) (*Response, error)

type Middleware func(Handler) Handler

// Chain applies mw so that the first one is outermost.
func Chain(h Handler, mw ...Middleware) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// Recorder observes authentication outcomes. It may be nil.
type Recorder interface {
	AuthFailure(kind common.Kind)
	AuthSuccess()
}

// Gate guards handlers with a TokenValidator.
type Gate struct {
	validator auth.TokenValidator
	logger    logging.Logger
	recorder  Recorder
}

func New(v auth.TokenValidator, l logging.Logger, r Recorder) *Gate {
	if l == nil {
		l = logging.Nop{}
	}
	return &Gate{validator: v, logger: l.With("module", "gate"), recorder: r}
}

// BearerToken extracts the credential from an "Authorization: Bearer <t>"
// header. The scheme is matched case-insensitively.
func BearerToken(h Headers) (string, error) {
	v, ok := h.Get(common.AuthorizationHeaderName)
	if !ok || strings.TrimSpace(v) == "" {
		return "", common.ErrMissingCredential
	}

	scheme, token, found := strings.Cut(strings.TrimSpace(v), " ")
	if !found || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", common.ErrMalformedCredential
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", common.ErrMalformedCredential
	}
	return token, nil
}

// Authenticate resolves the principal for headers without invoking a handler.
func (g *Gate) Authenticate(ctx context.Context, h Headers) (*auth.Principal, error) {
	token, err := BearerToken(h)
	if err == nil {
		var p *auth.Principal
		if p, err = g.validator.Validate(ctx, token); err == nil {
			if g.recorder != nil {
				g.recorder.AuthSuccess()
			}
			return p, nil
		}
	}

	kind := common.KindOf(err)
	if g.recorder != nil {
		g.recorder.AuthFailure(kind)
	}
	g.logger.Warn(ctx, "request rejected", "kind", kind.String(), "error", err)
	return nil, err
}

// Protect admits a request only with a valid credential. Validator errors
// are returned unchanged and next is not called.
func (g *Gate) Protect(next Handler) Handler {
	return func(ctx context.Context, rc *RequestContext) (*Response, error) {
		p, err := g.Authenticate(ctx, rc.Request.Headers)
		if err != nil {
			return nil, err
		}
		return next(auth.ContextWithPrincipal(ctx, p), rc.WithPrincipal(p))
	}
}

// RequireTenant admits an authenticated request only when its principal is
// bound to a tenant database. An explicit tenant header must name that
// same database.
func RequireTenant(next Handler) Handler {
	return func(ctx context.Context, rc *RequestContext) (*Response, error) {
		if !rc.Principal.HasTenant() {
			return nil, common.New(common.KindForbidden, "no tenant bound to this account")
		}
		if want, ok := rc.Request.Headers.Get(common.TenantHeaderName); ok && want != "" && want != rc.Principal.TenantBinding {
			return nil, common.New(common.KindForbidden, "tenant does not match the account binding")
		}
		return next(ctx, rc)
	}
}
