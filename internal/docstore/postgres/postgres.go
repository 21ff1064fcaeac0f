// Package postgres implements docstore.Store on PostgreSQL.
//
// A database maps to a schema and a collection to a table
// (id text primary key, doc jsonb, created_at, updated_at). Filters use
// JSONB containment and "$set" uses JSONB concatenation. Secondary indexes
// are expression indexes over doc->>'key'.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tenantkeeper/internal/dbx"
	"github.com/dmitrijs2005/tenantkeeper/internal/docstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation   = "23505"
	codeDuplicateSchema   = "42P06"
	codeDuplicateTable    = "42P07"
	codeUndefinedTable    = "42P01"
	codeInvalidSchemaName = "3F000"
	codeTooManyConns      = "53300"
	codeAdminShutdown     = "57P01"
	codeCannotConnectNow  = "57P03"
)

type Store struct {
	db dbx.DBTX

	// collections already created by this process
	known sync.Map
}

var _ docstore.Store = (*Store)(nil)

func New(db dbx.DBTX) *Store {
	return &Store{db: db}
}

func table(db, coll string) string {
	return pgx.Identifier{db, coll}.Sanitize()
}

func (s *Store) CreateCollection(ctx context.Context, db, coll string) error {
	if err := docstore.CheckNames(db, coll); err != nil {
		return err
	}
	if _, ok := s.known.Load(db + "." + coll); ok {
		return nil
	}

	schema := pgx.Identifier{db}.Sanitize()
	if _, err := s.db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+schema); err != nil && !createRace(err) {
		return classify(err, db, coll)
	}

	query := `CREATE TABLE IF NOT EXISTS ` + table(db, coll) + ` (
		id text PRIMARY KEY,
		doc jsonb NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`
	if _, err := s.db.ExecContext(ctx, query); err != nil && !createRace(err) {
		return classify(err, db, coll)
	}

	s.known.Store(db+"."+coll, struct{}{})
	return nil
}

func (s *Store) CreateIndex(ctx context.Context, db, coll string, idx docstore.IndexModel) error {
	if len(idx.Keys) == 0 {
		return fmt.Errorf("docstore: index on %s.%s has no keys", db, coll)
	}
	if err := docstore.CheckNames(idx.Keys...); err != nil {
		return err
	}
	if err := s.CreateCollection(ctx, db, coll); err != nil {
		return err
	}

	exprs := make([]string, len(idx.Keys))
	for i, k := range idx.Keys {
		exprs[i] = fmt.Sprintf("(doc->>'%s')", k)
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX IF NOT EXISTS ")
	b.WriteString(pgx.Identifier{idx.IndexName(coll)}.Sanitize())
	b.WriteString(" ON ")
	b.WriteString(table(db, coll))
	b.WriteString(" (")
	b.WriteString(strings.Join(exprs, ", "))
	b.WriteString(")")
	if idx.Sparse {
		fmt.Fprintf(&b, " WHERE doc ? '%s'", idx.Keys[0])
	}

	if _, err := s.db.ExecContext(ctx, b.String()); err != nil && !createRace(err) {
		return classify(err, db, coll)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, db, coll string, filter docstore.Filter) (docstore.Document, error) {
	if err := docstore.CheckNames(db, coll); err != nil {
		return nil, err
	}
	f, err := marshal(filter)
	if err != nil {
		return nil, err
	}

	query := `SELECT doc FROM ` + table(db, coll) + `
		WHERE doc @> $1::jsonb
		ORDER BY created_at, id
		LIMIT 1`

	var raw []byte
	err = s.db.QueryRowContext(ctx, query, f).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || missingRelation(err) {
			return nil, docstore.ErrNotFound
		}
		return nil, classify(err, db, coll)
	}

	return unmarshal(raw)
}

func (s *Store) Find(ctx context.Context, db, coll string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := docstore.CheckNames(db, coll); err != nil {
		return nil, err
	}
	f, err := marshal(filter)
	if err != nil {
		return nil, err
	}

	query := `SELECT doc FROM ` + table(db, coll) + `
		WHERE doc @> $1::jsonb
		ORDER BY created_at, id`

	out := []docstore.Document{}

	rows, err := s.db.QueryContext(ctx, query, f)
	if err != nil {
		if missingRelation(err) {
			return out, nil
		}
		return nil, classify(err, db, coll)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, classify(err, db, coll)
		}
		d, err := unmarshal(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, db, coll)
	}

	return out, nil
}

func (s *Store) InsertOne(ctx context.Context, db, coll string, doc docstore.Document) (string, error) {
	if err := s.CreateCollection(ctx, db, coll); err != nil {
		return "", err
	}

	d := make(docstore.Document, len(doc)+1)
	for k, v := range doc {
		d[k] = v
	}
	if d.ID() == "" {
		d[docstore.IDField] = uuid.NewString()
	}

	if err := s.insert(ctx, db, coll, d); err != nil {
		return "", err
	}
	return d.ID(), nil
}

func (s *Store) insert(ctx context.Context, db, coll string, d docstore.Document) error {
	body, err := marshal(d)
	if err != nil {
		return err
	}

	query := `INSERT INTO ` + table(db, coll) + ` (id, doc) VALUES ($1, $2::jsonb)`
	if _, err := s.db.ExecContext(ctx, query, d.ID(), body); err != nil {
		return classify(err, db, coll)
	}
	return nil
}

// UpdateOne merges upd.Set into the first document matching filter. With
// Upsert and no match it inserts a new document; a concurrent insert of
// the same unique key then surfaces as *docstore.DuplicateKeyError, which
// callers retry as an update.
func (s *Store) UpdateOne(ctx context.Context, db, coll string, filter docstore.Filter, upd docstore.Update, opts ...docstore.UpdateOption) (*docstore.UpdateResult, error) {
	o := docstore.ApplyUpdateOptions(opts...)

	if err := s.CreateCollection(ctx, db, coll); err != nil {
		return nil, err
	}

	f, err := marshal(filter)
	if err != nil {
		return nil, err
	}
	set, err := marshal(upd.Set)
	if err != nil {
		return nil, err
	}

	t := table(db, coll)
	query := `UPDATE ` + t + `
		SET doc = doc || $2::jsonb, updated_at = now()
		WHERE id = (SELECT id FROM ` + t + ` WHERE doc @> $1::jsonb ORDER BY created_at, id LIMIT 1)
		RETURNING id`

	var id string
	err = s.db.QueryRowContext(ctx, query, f, set).Scan(&id)
	switch {
	case err == nil:
		return &docstore.UpdateResult{Matched: 1, Modified: 1}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, classify(err, db, coll)
	case !o.Upsert:
		return &docstore.UpdateResult{}, nil
	}

	d := docstore.UpsertDocument(filter, upd)
	if d.ID() == "" {
		d[docstore.IDField] = uuid.NewString()
	}
	if err := s.insert(ctx, db, coll, d); err != nil {
		return nil, err
	}
	return &docstore.UpdateResult{UpsertedID: d.ID()}, nil
}

func marshal[M ~map[string]any](m M) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("docstore: encode: %w", err)
	}
	return string(b), nil
}

func unmarshal(raw []byte) (docstore.Document, error) {
	var d docstore.Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("docstore: decode: %w", err)
	}
	return d, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// createRace reports errors raised when two sessions run the same
// CREATE ... IF NOT EXISTS at once; the object exists either way. Those
// surface as duplicate objects or as unique violations on the system
// catalogs, never on a user index.
func createRace(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeDuplicateSchema, codeDuplicateTable:
		return true
	case codeUniqueViolation:
		return strings.HasPrefix(pgErr.ConstraintName, "pg_")
	}
	return false
}

func missingRelation(err error) bool {
	switch pgCode(err) {
	case codeUndefinedTable, codeInvalidSchemaName:
		return true
	}
	return false
}

// classify maps driver errors onto docstore errors.
func classify(err error, db, coll string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return &docstore.DuplicateKeyError{Database: db, Collection: coll, Index: pgErr.ConstraintName}
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == codeTooManyConns,
			pgErr.Code == codeAdminShutdown,
			pgErr.Code == codeCannotConnectNow:
			return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
		}
		return fmt.Errorf("docstore: %s.%s: %w", db, coll, err)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err):
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}

	return fmt.Errorf("docstore: %s.%s: %w", db, coll, err)
}
