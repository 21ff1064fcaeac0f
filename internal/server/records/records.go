// Package records is the generic CRUD collaborator over a tenant's
// collections. Records are never removed; deletion sets "deleted".
package records

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/docstore"
	"github.com/dmitrijs2005/tenantkeeper/internal/logging"
	"github.com/google/uuid"
)

// Fields maintained by the service. Values supplied for them on create are
// overwritten.
const (
	FieldDeleted   = "deleted"
	FieldStatus    = "status"
	FieldGlobalKey = "global_key"
	FieldCreatedAt = "created_at"
	FieldCreatedBy = "created_by"
	FieldUpdatedAt = "updated_at"
	FieldUpdatedBy = "updated_by"
)

type Service struct {
	store  docstore.Store
	logger logging.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(store docstore.Store, l logging.Logger) *Service {
	if l == nil {
		l = logging.Nop{}
	}
	return &Service{
		store:  store,
		logger: l.With("module", "records"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// List returns every live record of table.
func (s *Service) List(ctx context.Context, tenantDB, table string) ([]docstore.Document, error) {
	if err := checkTable(tenantDB, table); err != nil {
		return nil, err
	}
	docs, err := s.store.Find(ctx, tenantDB, table, docstore.Filter{FieldDeleted: false})
	if err != nil {
		return nil, storeError(err)
	}
	return docs, nil
}

// Get returns a live record by id.
func (s *Service) Get(ctx context.Context, tenantDB, table, id string) (docstore.Document, error) {
	if err := checkTable(tenantDB, table); err != nil {
		return nil, err
	}
	doc, err := s.store.FindOne(ctx, tenantDB, table, docstore.Filter{docstore.IDField: id, FieldDeleted: false})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, common.Newf(common.KindNotFound, "record %s not found in %s", id, table)
		}
		return nil, storeError(err)
	}
	return doc, nil
}

// Create stores body as a new record authored by userID.
func (s *Service) Create(ctx context.Context, tenantDB, table, userID string, body map[string]any) (docstore.Document, error) {
	if err := checkTable(tenantDB, table); err != nil {
		return nil, err
	}

	id := s.newID()
	now := s.now().Unix()

	doc := make(docstore.Document, len(body)+8)
	for k, v := range body {
		doc[k] = v
	}
	delete(doc, "table_name")
	doc[docstore.IDField] = id
	doc[FieldGlobalKey] = table + "_" + id
	doc[FieldCreatedAt] = now
	doc[FieldCreatedBy] = userID
	doc[FieldUpdatedAt] = now
	doc[FieldUpdatedBy] = userID
	doc[FieldDeleted] = false
	doc[FieldStatus] = true

	if _, err := s.store.InsertOne(ctx, tenantDB, table, doc); err != nil {
		if docstore.IsDuplicateKey(err, "") {
			return nil, common.Wrap(common.KindValidation, "record conflicts with an existing one", err)
		}
		return nil, storeError(err)
	}

	s.logger.Info(ctx, "record created", "tenant_db", tenantDB, "table", table, "id", id)
	return doc, nil
}

// Delete marks a live record as deleted. Deleting it again is rejected.
func (s *Service) Delete(ctx context.Context, tenantDB, table, userID, id string) error {
	if err := checkTable(tenantDB, table); err != nil {
		return err
	}

	existing, err := s.store.FindOne(ctx, tenantDB, table, docstore.Filter{docstore.IDField: id})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return common.Newf(common.KindNotFound, "record %s not found in %s", id, table)
		}
		return storeError(err)
	}
	if deleted, _ := existing[FieldDeleted].(bool); deleted {
		return common.Newf(common.KindValidation, "record %s in %s is already deleted", id, table)
	}

	res, err := s.store.UpdateOne(ctx, tenantDB, table, docstore.Filter{docstore.IDField: id}, docstore.Update{
		Set: map[string]any{
			FieldDeleted:   true,
			FieldUpdatedAt: s.now().Unix(),
			FieldUpdatedBy: userID,
		},
	})
	if err != nil {
		return storeError(err)
	}
	if res.Matched == 0 {
		return common.Newf(common.KindNotFound, "record %s not found in %s", id, table)
	}

	s.logger.Info(ctx, "record deleted", "tenant_db", tenantDB, "table", table, "id", id)
	return nil
}

func checkTable(tenantDB, table string) error {
	if tenantDB == "" {
		return common.ErrForbidden
	}
	if !docstore.ValidName(table) {
		return common.Newf(common.KindValidation, "invalid table name %q", table)
	}
	return nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, docstore.ErrUnavailable):
		return common.Wrap(common.KindStorageUnavailable, "storage unavailable", err)
	case errors.Is(err, docstore.ErrInvalidName):
		return common.Wrap(common.KindValidation, "invalid name", err)
	default:
		return common.Wrap(common.KindUnexpected, "storage error", err)
	}
}
