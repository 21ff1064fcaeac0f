package records

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantDB = "tn_u1_acme"

func newService(t *testing.T) (*Service, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	s := NewService(store, nil)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s, store
}

func TestCreate_AddsMetadata(t *testing.T) {
	s, store := newService(t)

	doc, err := s.Create(context.Background(), tenantDB, "patients", "u1", map[string]any{
		"name":       "Ana",
		"table_name": "patients",
		"deleted":    true,
		"_id":        "forged",
	})
	require.NoError(t, err)

	assert.Equal(t, "id-1", doc.ID())
	assert.Equal(t, "patients_id-1", doc[FieldGlobalKey])
	assert.Equal(t, "u1", doc[FieldCreatedBy])
	assert.Equal(t, "u1", doc[FieldUpdatedBy])
	assert.Equal(t, int64(1700000000), doc[FieldCreatedAt])
	assert.Equal(t, false, doc[FieldDeleted])
	assert.Equal(t, true, doc[FieldStatus])
	assert.NotContains(t, doc, "table_name")

	stored, err := store.FindOne(context.Background(), tenantDB, "patients", docstore.Filter{"_id": "id-1"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored["name"])
}

func TestListAndGet_SkipDeleted(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, tenantDB, "services", "u1", map[string]any{"code": "A"})
	require.NoError(t, err)
	_, err = s.Create(ctx, tenantDB, "services", "u1", map[string]any{"code": "B"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, tenantDB, "services", "u2", "id-1"))

	docs, err := s.List(ctx, tenantDB, "services")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "B", docs[0]["code"])

	_, err = s.Get(ctx, tenantDB, "services", "id-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	doc, err := s.Get(ctx, tenantDB, "services", "id-2")
	require.NoError(t, err)
	assert.Equal(t, "B", doc["code"])
}

func TestList_EmptyTable(t *testing.T) {
	s, _ := newService(t)
	docs, err := s.List(context.Background(), tenantDB, "appointments")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDelete(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, tenantDB, "patients", "u1", map[string]any{"name": "Ana"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, tenantDB, "patients", "u2", "id-1"))

	doc, err := store.FindOne(ctx, tenantDB, "patients", docstore.Filter{"_id": "id-1"})
	require.NoError(t, err)
	assert.Equal(t, true, doc[FieldDeleted])
	assert.Equal(t, "u2", doc[FieldUpdatedBy])
	assert.Equal(t, "u1", doc[FieldCreatedBy])

	err = s.Delete(ctx, tenantDB, "patients", "u2", "id-1")
	assert.ErrorIs(t, err, common.ErrValidation)

	err = s.Delete(ctx, tenantDB, "patients", "u2", "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRejectsBadTarget(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.List(ctx, "", "patients")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = s.List(ctx, tenantDB, "pat;ients")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.Create(ctx, tenantDB, "", "u1", nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}

type downStore struct{ docstore.Store }

func (downStore) Find(context.Context, string, string, docstore.Filter) ([]docstore.Document, error) {
	return nil, fmt.Errorf("%w: timeout", docstore.ErrUnavailable)
}

func (downStore) InsertOne(context.Context, string, string, docstore.Document) (string, error) {
	return "", errors.New("boom")
}

func TestStoreFailures(t *testing.T) {
	s := NewService(downStore{}, nil)

	_, err := s.List(context.Background(), tenantDB, "patients")
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)

	_, err = s.Create(context.Background(), tenantDB, "patients", "u1", map[string]any{})
	assert.Equal(t, common.KindUnexpected, common.KindOf(err))
}
