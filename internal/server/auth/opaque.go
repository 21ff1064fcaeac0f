package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/models"
)

// UserLookup is the part of the users repository the opaque strategy needs.
// Both methods return common.ErrorNotFound for an unknown user.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByToken(ctx context.Context, token string) (*models.User, error)
}

// OpaqueTokenValidator accepts a credential only if it equals the token
// currently stored for its user, so issuing a new token revokes the old one.
type OpaqueTokenValidator struct {
	users           UserLookup
	defaultTenantDB string
}

var _ TokenValidator = (*OpaqueTokenValidator)(nil)

func NewOpaqueTokenValidator(users UserLookup, defaultTenantDB string) *OpaqueTokenValidator {
	return &OpaqueTokenValidator{users: users, defaultTenantDB: defaultTenantDB}
}

// Validate resolves the user from the credential's unverified "sub" claim,
// or by the credential itself when it is not a decodable token.
func (v *OpaqueTokenValidator) Validate(ctx context.Context, credential string) (*Principal, error) {
	var (
		user *models.User
		err  error
	)
	if sub := UnverifiedSubject(credential); sub != "" {
		user, err = v.users.GetByID(ctx, sub)
	} else {
		user, err = v.users.GetByToken(ctx, credential)
	}
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, common.Wrap(common.KindUnexpected, "user lookup failed", err)
	}

	if user.CurrentToken == "" ||
		subtle.ConstantTimeCompare([]byte(user.CurrentToken), []byte(credential)) != 1 {
		return nil, common.ErrTokenMismatch
	}

	return &Principal{
		ID:            user.ID,
		TenantBinding: tenantBinding(user.TenantDB, v.defaultTenantDB),
		Claims:        map[string]any{"sub": user.ID, "email": user.Email},
	}, nil
}
