package users

import (
	"context"

	"github.com/dmitrijs2005/tenantkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByToken(ctx context.Context, token string) (*models.User, error)
	SetCurrentToken(ctx context.Context, id, token string) error
	SetTenantDB(ctx context.Context, id, tenantDB string) error
}
