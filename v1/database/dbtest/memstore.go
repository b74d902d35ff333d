package dbtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// MemStore is an in-memory document store.
type MemStore struct {
	mu          sync.Mutex
	collections map[string][]database.Document
	log         []string
	inject      Injector
}

var _ database.DocumentStore = (*MemStore)(nil)

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{collections: map[string][]database.Document{}}
}

// Inject installs a failure injector; nil removes it.
func (s *MemStore) Inject(fn Injector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inject = fn
}

// Log returns the operations executed so far, one line per call.
func (s *MemStore) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// ResetLog forgets the executed operations.
func (s *MemStore) ResetLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}

// Documents returns a copy of the documents of collection.
func (s *MemStore) Documents(collection string) []database.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]database.Document, 0, len(s.collections[collection]))
	for _, d := range s.collections[collection] {
		out = append(out, deepCopy(d).(database.Document))
	}
	return out
}

func (s *MemStore) begin(op Op, collection string, detail interface{}) error {
	encoded, err := json.Marshal(detail)
	if err != nil {
		encoded = []byte(fmt.Sprint(detail))
	}
	s.log = append(s.log, fmt.Sprintf("%s %s %s", op, collection, encoded))
	if s.inject != nil {
		return s.inject(op, collection)
	}
	return nil
}

func deepCopy(v interface{}) interface{} {
	if m, ok := database.AsMap(v); ok {
		out := make(database.Document, len(m))
		for k, item := range m {
			out[k] = deepCopy(item)
		}
		return out
	}
	if list, ok := database.AsSlice(v); ok {
		out := make([]interface{}, len(list))
		for i, item := range list {
			out[i] = deepCopy(item)
		}
		return out
	}
	return v
}

func (s *MemStore) matching(collection string, filter map[string]interface{}) ([]int, error) {
	var idx []int
	for i, doc := range s.collections[collection] {
		ok, err := database.MatchDocument(filter, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

func first(doc database.Document, path string) interface{} {
	values := database.Lookup(doc, path)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

func project(doc database.Document, fields []string) database.Document {
	if len(fields) == 0 {
		return doc
	}
	out := database.Document{"_id": doc["_id"]}
	for _, f := range fields {
		top, _, _ := strings.Cut(f, ".")
		if v, ok := doc[top]; ok {
			out[top] = v
		}
	}
	return out
}

func (s *MemStore) Find(_ context.Context, collection string, filter map[string]interface{}, opts database.FindOptions) ([]database.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpSelect, collection, filter); err != nil {
		return nil, err
	}
	idx, err := s.matching(collection, filter)
	if err != nil {
		return nil, err
	}
	docs := make([]database.Document, 0, len(idx))
	for _, i := range idx {
		docs = append(docs, s.collections[collection][i])
	}
	if len(opts.Sort) > 0 {
		sort.SliceStable(docs, func(i, j int) bool {
			for _, key := range opts.Sort {
				cmp := compareNullsFirst(first(docs[i], key.Field), first(docs[j], key.Field))
				if cmp == 0 {
					continue
				}
				if key.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(docs)) {
			return nil, nil
		}
		docs = docs[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < int64(len(docs)) {
		docs = docs[:opts.Limit]
	}
	out := make([]database.Document, len(docs))
	for i, d := range docs {
		out[i] = project(deepCopy(d).(database.Document), opts.Projection)
	}
	return out, nil
}

func (s *MemStore) Insert(_ context.Context, collection string, doc database.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpInsert, collection, doc["_id"]); err != nil {
		return err
	}
	for _, existing := range s.collections[collection] {
		if database.Equal(existing["_id"], doc["_id"]) {
			return fmt.Errorf("%w: _id=%v", database.ErrDuplicateKey, doc["_id"])
		}
	}
	s.collections[collection] = append(s.collections[collection], deepCopy(doc).(database.Document))
	return nil
}

func (s *MemStore) Replace(_ context.Context, collection string, filter map[string]interface{}, doc database.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpUpdate, collection, filter); err != nil {
		return 0, err
	}
	idx, err := s.matching(collection, filter)
	if err != nil || len(idx) == 0 {
		return 0, err
	}
	s.collections[collection][idx[0]] = deepCopy(doc).(database.Document)
	return 1, nil
}

func (s *MemStore) Increment(_ context.Context, collection string, filter map[string]interface{}, field string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpUpdate, collection, filter); err != nil {
		return 0, err
	}
	idx, err := s.matching(collection, filter)
	if err != nil {
		return 0, err
	}
	for _, i := range idx {
		doc := s.collections[collection][i]
		switch n := doc[field].(type) {
		case int64:
			doc[field] = n + 1
		case int:
			doc[field] = int64(n) + 1
		case float64:
			doc[field] = n + 1
		case nil:
			doc[field] = int64(1)
		}
	}
	return int64(len(idx)), nil
}

func (s *MemStore) Remove(_ context.Context, collection string, filter map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpDelete, collection, filter); err != nil {
		return 0, err
	}
	idx, err := s.matching(collection, filter)
	if err != nil {
		return 0, err
	}
	drop := map[int]bool{}
	for _, i := range idx {
		drop[i] = true
	}
	var kept []database.Document
	for i, doc := range s.collections[collection] {
		if !drop[i] {
			kept = append(kept, doc)
		}
	}
	s.collections[collection] = kept
	return int64(len(idx)), nil
}

func (s *MemStore) Count(_ context.Context, collection string, filter map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpCount, collection, filter); err != nil {
		return 0, err
	}
	idx, err := s.matching(collection, filter)
	return int64(len(idx)), err
}

func (s *MemStore) Distinct(_ context.Context, collection, field string, filter map[string]interface{}) ([]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpSelect, collection, filter); err != nil {
		return nil, err
	}
	idx, err := s.matching(collection, filter)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	for _, i := range idx {
		for _, v := range database.Lookup(s.collections[collection][i], field) {
			seen := false
			for _, existing := range out {
				if database.Equal(existing, v) {
					seen = true
					break
				}
			}
			if !seen {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (s *MemStore) DropCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(OpDDL, collection, nil); err != nil {
		return err
	}
	delete(s.collections, collection)
	return nil
}
