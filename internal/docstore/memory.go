package docstore

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

type memCollection struct {
	docs    []Document
	indexes map[string]IndexModel
}

// MemoryStore is an in-process Store. Values are normalized through JSON on
// the way in, so numbers compare as float64 exactly as they would after a
// round trip through the Postgres backend. A document with any indexed key
// missing or null is not constrained by a unique index.
type MemoryStore struct {
	mu  sync.Mutex
	dbs map[string]map[string]*memCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dbs: make(map[string]map[string]*memCollection)}
}

// collection returns db.coll, creating it when create is set. Callers hold mu.
func (s *MemoryStore) collection(db, coll string, create bool) *memCollection {
	colls, ok := s.dbs[db]
	if !ok {
		if !create {
			return nil
		}
		colls = make(map[string]*memCollection)
		s.dbs[db] = colls
	}
	c, ok := colls[coll]
	if !ok && create {
		c = &memCollection{indexes: make(map[string]IndexModel)}
		colls[coll] = c
	}
	return c
}

func (s *MemoryStore) CreateCollection(ctx context.Context, db, coll string) error {
	if err := CheckNames(db, coll); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(db, coll, true)
	return nil
}

func (s *MemoryStore) CreateIndex(ctx context.Context, db, coll string, idx IndexModel) error {
	if err := CheckNames(append([]string{db, coll}, idx.Keys...)...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(db, coll, true)
	name := idx.IndexName(coll)
	if _, ok := c.indexes[name]; ok {
		return nil
	}

	if idx.Unique {
		seen := make(map[string]struct{}, len(c.docs))
		for _, d := range c.docs {
			key, ok := indexKey(d, idx.Keys)
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				return &DuplicateKeyError{Database: db, Collection: coll, Index: name}
			}
			seen[key] = struct{}{}
		}
	}

	idx.Name = name
	c.indexes[name] = idx
	return nil
}

func (s *MemoryStore) FindOne(ctx context.Context, db, coll string, filter Filter) (Document, error) {
	f, err := normalizeMap(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(db, coll, false)
	if c == nil {
		return nil, ErrNotFound
	}
	for _, d := range c.docs {
		if matches(d, f) {
			return cloneDoc(d), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Find(ctx context.Context, db, coll string, filter Filter) ([]Document, error) {
	f, err := normalizeMap(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Document{}
	c := s.collection(db, coll, false)
	if c == nil {
		return out, nil
	}
	for _, d := range c.docs {
		if matches(d, f) {
			out = append(out, cloneDoc(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertOne(ctx context.Context, db, coll string, doc Document) (string, error) {
	if err := CheckNames(db, coll); err != nil {
		return "", err
	}
	d, err := normalizeMap(doc)
	if err != nil {
		return "", err
	}
	if d.ID() == "" {
		d[IDField] = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(db, coll, true)
	if err := c.checkUnique(db, coll, d, -1); err != nil {
		return "", err
	}
	c.docs = append(c.docs, d)
	return d.ID(), nil
}

func (s *MemoryStore) UpdateOne(ctx context.Context, db, coll string, filter Filter, upd Update, opts ...UpdateOption) (*UpdateResult, error) {
	if err := CheckNames(db, coll); err != nil {
		return nil, err
	}
	o := ApplyUpdateOptions(opts...)

	f, err := normalizeMap(filter)
	if err != nil {
		return nil, err
	}
	set, err := normalizeMap(upd.Set)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(db, coll, true)
	for i, d := range c.docs {
		if !matches(d, f) {
			continue
		}

		next := cloneDoc(d)
		for k, v := range set {
			next[k] = v
		}
		if err := c.checkUnique(db, coll, next, i); err != nil {
			return nil, err
		}

		res := &UpdateResult{Matched: 1}
		if !reflect.DeepEqual(d, next) {
			c.docs[i] = next
			res.Modified = 1
		}
		return res, nil
	}

	if !o.Upsert {
		return &UpdateResult{}, nil
	}

	d, err := normalizeMap(UpsertDocument(filter, upd))
	if err != nil {
		return nil, err
	}
	if d.ID() == "" {
		d[IDField] = uuid.NewString()
	}
	if err := c.checkUnique(db, coll, d, -1); err != nil {
		return nil, err
	}
	c.docs = append(c.docs, d)
	return &UpdateResult{UpsertedID: d.ID()}, nil
}

// checkUnique verifies that d, stored at position self (-1 for a new
// document), violates neither the identity nor any unique index.
func (c *memCollection) checkUnique(db, coll string, d Document, self int) error {
	for i, other := range c.docs {
		if i == self {
			continue
		}
		if other.ID() == d.ID() {
			return &DuplicateKeyError{Database: db, Collection: coll, Index: coll + "_pkey"}
		}
		for name, idx := range c.indexes {
			if !idx.Unique {
				continue
			}
			a, ok := indexKey(d, idx.Keys)
			if !ok {
				continue
			}
			if b, ok := indexKey(other, idx.Keys); ok && a == b {
				return &DuplicateKeyError{Database: db, Collection: coll, Index: name}
			}
		}
	}
	return nil
}

func indexKey(d Document, keys []string) (string, bool) {
	vals := make([]any, len(keys))
	for i, k := range keys {
		v, ok := d[k]
		if !ok || v == nil {
			return "", false
		}
		vals[i] = v
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func matches(d Document, f map[string]any) bool {
	for k, want := range f {
		got, ok := d[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func normalizeMap[M ~map[string]any](m M) (Document, error) {
	if m == nil {
		return Document{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func cloneDoc(d Document) Document {
	out, _ := normalizeMap(d)
	return out
}
