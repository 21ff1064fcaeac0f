// Package services contains server-side business logic. This file implements
// SessionService, which enrolls users and issues their opaque session token.
// A user has exactly one current token; issuing a new one revokes the
// previous one.
package services

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/dbx"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/models"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/repositories/repomanager"
)

// SessionService rotates and revokes stored session tokens.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	secret      []byte
	ttl         time.Duration
}

// NewSessionService constructs a SessionService. Tokens are signed with
// secret and expire after ttl.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, secret []byte, ttl time.Duration) *SessionService {
	return &SessionService{db: db, repomanager: m, secret: secret, ttl: ttl}
}

// Enroll creates a user and issues its first token in one transaction.
func (s *SessionService) Enroll(ctx context.Context, email string) (*models.User, string, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, "", common.New(common.KindValidation, "email is not a valid address")
	}

	var (
		user  *models.User
		token string
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		u, err := repo.Create(ctx, &models.User{Email: email})
		if err != nil {
			return err
		}
		t, err := auth.GenerateToken(u.ID, s.secret, s.ttl)
		if err != nil {
			return err
		}
		if err := repo.SetCurrentToken(ctx, u.ID, t); err != nil {
			return err
		}
		user, token = u, t
		return nil
	})
	if err != nil {
		var ce *common.Error
		if errors.As(err, &ce) {
			return nil, "", err
		}
		return nil, "", common.Wrap(common.KindUnexpected, "enrollment failed", err)
	}
	user.CurrentToken = token
	return user, token, nil
}

// BindTenant records tenantDB as the tenant database of userID, so the
// opaque validator scopes the user's later requests to it.
func (s *SessionService) BindTenant(ctx context.Context, userID, tenantDB string) error {
	err := s.repomanager.Users(s.db).SetTenantDB(ctx, userID, tenantDB)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorNotFound):
		return common.ErrUserNotFound
	default:
		return common.Wrap(common.KindUnexpected, "tenant binding failed", err)
	}
}

// Rotate mints a new token for userID and stores it as the only accepted
// one. The previous token fails validation from then on.
func (s *SessionService) Rotate(ctx context.Context, userID string) (string, error) {
	token, err := auth.GenerateToken(userID, s.secret, s.ttl)
	if err != nil {
		return "", common.Wrap(common.KindUnexpected, "token issuance failed", err)
	}

	if err := s.store(ctx, userID, token); err != nil {
		return "", err
	}
	return token, nil
}

// Revoke clears the current token of userID.
func (s *SessionService) Revoke(ctx context.Context, userID string) error {
	return s.store(ctx, userID, "")
}

func (s *SessionService) store(ctx context.Context, userID, token string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Users(tx).SetCurrentToken(ctx, userID, token)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorNotFound):
		return common.ErrUserNotFound
	default:
		return common.Wrap(common.KindUnexpected, "session update failed", err)
	}
}
