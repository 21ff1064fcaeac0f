// Package docstore is the document storage collaborator used by the tenant
// registry, the provisioner and the records API.
//
// A store holds named databases, each holding named collections of JSON
// documents. Every document carries a string "_id". Filters are top-level
// equality matches. Updates merge "$set" fields into the matched document
// and, when upserting, seed a new one from the filter, "$setOnInsert" and
// "$set" fields.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// IDField is the document identity field.
const IDField = "_id"

var (
	// ErrNotFound is returned by FindOne when nothing matches.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrUnavailable wraps every failure to reach the backing storage.
	ErrUnavailable = errors.New("docstore: storage unavailable")
	// ErrInvalidName rejects database, collection or field names outside
	// [A-Za-z0-9_-].
	ErrInvalidName = errors.New("docstore: invalid name")
)

// Document is a JSON object.
type Document map[string]any

// ID returns the document identity, or "" when unset.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Filter matches documents whose top-level fields equal every given value.
type Filter map[string]any

// Update describes field assignments.
type Update struct {
	// Set is merged into matched documents and into upserted ones.
	Set map[string]any
	// SetOnInsert is applied only when an upsert creates the document.
	SetOnInsert map[string]any
}

// UpdateResult reports what UpdateOne did.
type UpdateResult struct {
	Matched    int64
	Modified   int64
	UpsertedID string
}

// UpdateOptions tunes UpdateOne.
type UpdateOptions struct {
	Upsert bool
}

type UpdateOption func(*UpdateOptions)

// Upsert makes UpdateOne insert a document when the filter matches nothing.
func Upsert() UpdateOption {
	return func(o *UpdateOptions) { o.Upsert = true }
}

// ApplyUpdateOptions folds opts into an UpdateOptions value.
func ApplyUpdateOptions(opts ...UpdateOption) UpdateOptions {
	var o UpdateOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// IndexModel declares a secondary index over top-level fields.
type IndexModel struct {
	Name   string
	Keys   []string
	Unique bool
	// Sparse skips documents lacking the first key.
	Sparse bool
}

// IndexName returns Name, or "<coll>_<keys>_uq|idx" when Name is empty.
func (m IndexModel) IndexName(coll string) string {
	if m.Name != "" {
		return m.Name
	}
	suffix := "idx"
	if m.Unique {
		suffix = "uq"
	}
	return coll + "_" + strings.Join(m.Keys, "_") + "_" + suffix
}

// DuplicateKeyError reports a unique index violation.
type DuplicateKeyError struct {
	Database   string
	Collection string
	Index      string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("docstore: duplicate key on %s.%s index %q", e.Database, e.Collection, e.Index)
}

// IsDuplicateKey reports whether err is a DuplicateKeyError on the named
// index. An empty index matches any duplicate key error.
func IsDuplicateKey(err error, index string) bool {
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		return false
	}
	return index == "" || dup.Index == index
}

// Store is implemented by the Postgres and in-memory backends.
type Store interface {
	// CreateCollection creates db and coll when absent. It is idempotent
	// and safe under concurrent callers.
	CreateCollection(ctx context.Context, db, coll string) error
	// CreateIndex creates the index when absent.
	CreateIndex(ctx context.Context, db, coll string, idx IndexModel) error
	FindOne(ctx context.Context, db, coll string, filter Filter) (Document, error)
	Find(ctx context.Context, db, coll string, filter Filter) ([]Document, error)
	// InsertOne stores doc, assigning an "_id" when missing, and returns it.
	InsertOne(ctx context.Context, db, coll string, doc Document) (string, error)
	UpdateOne(ctx context.Context, db, coll string, filter Filter, upd Update, opts ...UpdateOption) (*UpdateResult, error)
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether s may be used as a database, collection or
// field name.
func ValidName(s string) bool {
	return nameRe.MatchString(s)
}

// CheckNames validates every name, returning ErrInvalidName for the first
// offender.
func CheckNames(names ...string) error {
	for _, n := range names {
		if !ValidName(n) {
			return fmt.Errorf("%w: %q", ErrInvalidName, n)
		}
	}
	return nil
}

// UpsertDocument builds the document an upsert inserts: filter fields, then
// SetOnInsert, then Set.
func UpsertDocument(filter Filter, upd Update) Document {
	doc := make(Document, len(filter)+len(upd.SetOnInsert)+len(upd.Set))
	for k, v := range filter {
		doc[k] = v
	}
	for k, v := range upd.SetOnInsert {
		doc[k] = v
	}
	for k, v := range upd.Set {
		doc[k] = v
	}
	return doc
}

// Decode converts doc into v through its JSON representation.
func Decode(doc Document, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Encode converts v into a Document through its JSON representation.
func Encode(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
