package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/dbx"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const codeUniqueViolation = "23505"

// ErrEmailTaken is returned by Create when the email is already enrolled.
var ErrEmailTaken = common.New(common.KindValidation, "email is already enrolled")

type PostgresRepository struct {
	db dbx.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (email, tenant_db)
         VALUES ($1, NULLIF($2, ''))
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.TenantDB).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, email, current_token, tenant_db, created_at, updated_at FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.User, error) {
	query :=
		`SELECT id, email, current_token, tenant_db, created_at, updated_at FROM users
		 WHERE current_token = $1
		 `
	return r.getOne(ctx, query, token)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		user     models.User
		token    sql.NullString
		tenantDB sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Email, &token, &tenantDB, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.CurrentToken = token.String
	user.TenantDB = tenantDB.String
	return &user, nil
}

// SetCurrentToken replaces the user's session token. An empty token revokes
// the session.
func (r *PostgresRepository) SetCurrentToken(ctx context.Context, id, token string) error {
	query :=
		`UPDATE users SET current_token = NULLIF($2, ''), updated_at = now()
		 WHERE id = $1
		 `
	return r.updateOne(ctx, query, id, token)
}

// SetTenantDB binds the user to a tenant database. An empty name clears
// the binding.
func (r *PostgresRepository) SetTenantDB(ctx context.Context, id, tenantDB string) error {
	query :=
		`UPDATE users SET tenant_db = NULLIF($2, ''), updated_at = now()
		 WHERE id = $1
		 `
	return r.updateOne(ctx, query, id, tenantDB)
}

func (r *PostgresRepository) updateOne(ctx context.Context, query, id, value string) error {
	res, err := r.db.ExecContext(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
