package tenants

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/docstore"
	"github.com/dmitrijs2005/tenantkeeper/internal/logging"
	"github.com/google/uuid"
)

const (
	// RegistryCollection holds one Entry per tax identifier.
	RegistryCollection = "tenants"

	IndexTaxIDDigits = "tenants_tax_id_digits_uq"
	IndexTenantDB    = "tenants_tenant_db_uq"
)

// Registry is the master record mapping a tax identifier to its tenant
// database.
type Registry struct {
	store  docstore.Store
	db     string
	logger logging.Logger
	newID  func() string
}

func NewRegistry(store docstore.Store, masterDB string, l logging.Logger) *Registry {
	if l == nil {
		l = logging.Nop{}
	}
	return &Registry{
		store:  store,
		db:     masterDB,
		logger: l.With("module", "registry"),
		newID:  uuid.NewString,
	}
}

// EnsureIndexes creates the registry collection and its unique indexes.
func (r *Registry) EnsureIndexes(ctx context.Context) error {
	if err := r.store.CreateCollection(ctx, r.db, RegistryCollection); err != nil {
		return storageError("create registry", err)
	}
	for _, idx := range []docstore.IndexModel{
		{Name: IndexTaxIDDigits, Keys: []string{"tax_id_digits"}, Unique: true},
		{Name: IndexTenantDB, Keys: []string{"tenant_db"}, Unique: true},
	} {
		if err := r.store.CreateIndex(ctx, r.db, RegistryCollection, idx); err != nil {
			return storageError("create registry index", err)
		}
	}
	return nil
}

// Upsert records e under e.TaxIDDigits. A new entry gets a fresh id and
// creation time; an existing one keeps both and has its mutable fields
// overwritten. The stored entry is returned.
func (r *Registry) Upsert(ctx context.Context, e Entry) (*Entry, error) {
	now := e.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
		e.UpdatedAt = now
	}

	upd := docstore.Update{
		Set: e.mutable(),
		SetOnInsert: map[string]any{
			docstore.IDField: r.newID(),
			"created_at":     now,
			"deleted":        false,
		},
	}

	res, err := upsertByKey(ctx, r.store, r.db, RegistryCollection, "tax_id_digits", e.TaxIDDigits, upd, IndexTaxIDDigits)
	if err != nil {
		if docstore.IsDuplicateKey(err, IndexTenantDB) {
			return nil, common.Wrap(common.KindDuplicateTenant,
				"tenant database name is already taken by another tenant", err)
		}
		return nil, storageError("registry upsert", err)
	}

	if res.UpsertedID != "" {
		r.logger.Info(ctx, "registry entry created", "id", res.UpsertedID, "tenant_db", e.TenantDB)
	} else {
		r.logger.Info(ctx, "registry entry updated", "tenant_db", e.TenantDB)
	}

	return r.Get(ctx, e.TaxIDDigits)
}

// Get returns the entry for a tax identifier.
func (r *Registry) Get(ctx context.Context, taxIDDigits string) (*Entry, error) {
	doc, err := r.store.FindOne(ctx, r.db, RegistryCollection, docstore.Filter{"tax_id_digits": taxIDDigits})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, common.Newf(common.KindNotFound, "no tenant registered for %s", taxIDDigits)
		}
		return nil, storageError("registry read", err)
	}

	var e Entry
	if err := docstore.Decode(doc, &e); err != nil {
		return nil, common.Wrap(common.KindUnexpected, "registry entry is corrupt", err)
	}
	return &e, nil
}
