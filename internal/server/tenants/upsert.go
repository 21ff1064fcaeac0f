package tenants

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/docstore"
)

// maxUpsertAttempts bounds the retry of an upsert that lost an insert race
// on its own key.
const maxUpsertAttempts = 3

// upsertByKey atomically creates or updates the single document whose
// field key equals value. Losing a concurrent insert on keyIndex means the
// document now exists, so the upsert is retried and lands as an update.
// Duplicates on any other index are returned unchanged.
func upsertByKey(ctx context.Context, store docstore.Store, db, coll, key string, value any,
	upd docstore.Update, keyIndex string) (*docstore.UpdateResult, error) {

	var lastErr error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		res, err := store.UpdateOne(ctx, db, coll, docstore.Filter{key: value}, upd, docstore.Upsert())
		if err == nil {
			return res, nil
		}
		if !docstore.IsDuplicateKey(err, keyIndex) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// storageError classifies a docstore failure raised while provisioning.
func storageError(msg string, err error) error {
	var ce *common.Error
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, docstore.ErrUnavailable):
		return common.Wrap(common.KindStorageUnavailable, "storage unavailable", err)
	default:
		return common.Wrap(common.KindProvisioningFailed, msg, err)
	}
}
