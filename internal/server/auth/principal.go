// Package auth verifies bearer credentials and resolves them to a Principal.
//
// Two strategies implement TokenValidator: SignedTokenValidator checks RS256
// tokens against the issuer's published key set, OpaqueTokenValidator
// compares the credential with the token currently stored for the user.
package auth

import (
	"context"
)

// DefaultTenantClaim is the signed-token claim carrying the tenant binding.
const DefaultTenantClaim = "custom:tenant_db"

// Principal is the verified caller of one request.
type Principal struct {
	ID            string
	TenantBinding string
	Claims        map[string]any
}

// HasTenant reports whether the principal is bound to a tenant database.
func (p *Principal) HasTenant() bool {
	return p != nil && p.TenantBinding != ""
}

// TokenValidator turns a raw credential into a Principal. Failures are
// *common.Error values of an authentication kind, KindInitialization or
// KindKeySetUnavailable.
type TokenValidator interface {
	Validate(ctx context.Context, credential string) (*Principal, error)
}

type ctxKey struct{}

// ContextWithPrincipal attaches p to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the principal attached by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

func tenantBinding(claim any, fallback string) string {
	if s, ok := claim.(string); ok && s != "" {
		return s
	}
	return fallback
}
