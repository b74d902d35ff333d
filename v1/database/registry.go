package database

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultAlias is the alias of collections without an alias prefix.
const DefaultAlias = "__default__"

// Backend types.
const (
	TypePostgres = "postgres"
	TypeMariaDB  = "mariadb"
	TypeMongo    = "mongo"
)

// Handle is one registered database.
type Handle struct {
	Alias string
	Type  string

	// SQL is set for relational backends.
	SQL Client
	// Docs is set for document backends.
	Docs DocumentStore

	// Close releases the connection; may be nil.
	Close func() error
}

// IsDocumentStore reports whether the handle is a document backend.
func (h *Handle) IsDocumentStore() bool {
	return h.Type == TypeMongo
}

// Registry routes database aliases to backends.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: map[string]*Handle{}}
}

// Set registers a handle under its alias, DefaultAlias when empty.
func (r *Registry) Set(h Handle) {
	if h.Alias == "" {
		h.Alias = DefaultAlias
	}
	if h.Type == "" {
		h.Type = TypeMongo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.Alias] = &h
}

// Get returns the handle registered under alias.
func (r *Registry) Get(alias string) (*Handle, error) {
	if alias == "" {
		alias = DefaultAlias
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.handles) == 0 {
		return nil, ErrNoDatabase
	}
	h, ok := r.handles[alias]
	if !ok {
		return nil, fmt.Errorf("%w: DB Alias %s not set with corresponding setDB(db, type, alias)", ErrUnknownAlias, alias)
	}
	return h, nil
}

// ForCollection returns the handle serving a collection or table name.
func (r *Registry) ForCollection(collection string) (*Handle, error) {
	return r.Get(Alias(collection))
}

// IsDocumentStore reports whether collection is served by a document backend.
func (r *Registry) IsDocumentStore(collection string) bool {
	h, err := r.ForCollection(collection)
	return err == nil && h.IsDocumentStore()
}

// IsRelational reports whether collection is served by a relational backend.
func (r *Registry) IsRelational(collection string) bool {
	h, err := r.ForCollection(collection)
	return err == nil && !h.IsDocumentStore()
}

// Handles returns every handle ordered by alias.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Close closes every handle and returns the first error.
func (r *Registry) Close() error {
	var first error
	for _, h := range r.Handles() {
		if h.Close == nil {
			continue
		}
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Dealias strips the alias prefix and any ":" suffix from a collection name,
// returning the physical name.
func Dealias(name string) string {
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Alias returns the alias prefix of a collection name, DefaultAlias when it
// has none.
func Alias(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i]
	}
	return DefaultAlias
}
