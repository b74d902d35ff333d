package model

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownTemplate is returned when a name does not resolve to a registered template.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrDuplicateTemplate is returned when two templates share a name.
	ErrDuplicateTemplate = errors.New("duplicate template")
)

// Registry is the dictionary of templates and their schema entries.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	order     []*Template
	schema    map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: map[string]*Template{},
		schema:    map[string]*Entry{},
	}
}

// Register adds templates and all of their subtypes.
func (r *Registry) Register(templates ...*Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, root := range templates {
		for _, t := range root.Descendants() {
			if existing, ok := r.templates[t.Name]; ok {
				if existing == t {
					continue
				}
				return fmt.Errorf("%w: %s", ErrDuplicateTemplate, t.Name)
			}
			r.templates[t.Name] = t
			r.order = append(r.order, t)
		}
	}
	return nil
}

// SetSchema adds or replaces schema entries by template name.
func (r *Registry) SetSchema(entries map[string]*Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, entry := range entries {
		r.schema[name] = entry
	}
}

// Lookup returns the template registered under name.
func (r *Registry) Lookup(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[name]
	return t, ok
}

// Templates returns all templates in registration order.
func (r *Registry) Templates() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Template, len(r.order))
	copy(out, r.order)
	return out
}

// ByCollection returns the top-level document template of a collection.
func (r *Registry) ByCollection(collection string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.order {
		if t.Schema != nil && t.Schema.DocumentOf == collection {
			return t, true
		}
	}
	return nil, false
}

// Prepare attaches schema entries, derives table and collection names and
// resolves every property's target and Kind.
func (r *Registry) Prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.order {
		if t.Parent == nil {
			r.prepareSchema(t)
		}
	}
	for _, t := range r.order {
		if t.subsetOf == "" {
			continue
		}
		target, ok := r.templates[t.subsetOf]
		if !ok {
			return fmt.Errorf("%w: %s is a subset of %s", ErrUnknownTemplate, t.Name, t.subsetOf)
		}
		t.subset = target
		t.Schema = mergeEntry(t.Schema, target.Schema)
		t.Table = target.Table
		t.Collection = target.Collection
	}
	for _, t := range r.order {
		t.all = nil
		t.all = t.collect()
		t.byName = make(map[string]*Property, len(t.all))
		for _, p := range t.all {
			t.byName[p.Name] = p
		}
	}
	for _, t := range r.order {
		for _, p := range t.all {
			if err := r.resolve(t, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) prepareSchema(t *Template) {
	entry := r.schema[t.Name]
	if t.Parent != nil {
		entry = mergeEntry(entry, t.Parent.Schema)
	}
	t.Schema = entry

	switch {
	case entry != nil && entry.DocumentOf != "":
		t.Collection = entry.DocumentOf
	case entry != nil && entry.SubDocumentOf != "":
		t.Collection = entry.SubDocumentOf
	case t.Parent != nil:
		t.Collection = t.Parent.Collection
	}
	switch {
	case entry != nil && entry.Table != "":
		t.Table = entry.Table
	case t.Parent != nil && t.Parent.Table != "":
		t.Table = t.Parent.Table
	default:
		t.Table = t.Collection
	}

	for _, c := range t.Children {
		r.prepareSchema(c)
	}
}

// mergeEntry fills the gaps of own from inherited. A missing own entry shares
// the inherited one.
func mergeEntry(own, inherited *Entry) *Entry {
	if own == nil {
		return inherited
	}
	if inherited == nil || own == inherited {
		return own
	}
	merged := *own
	if merged.Table == "" {
		merged.Table = inherited.Table
	}
	if merged.DocumentOf == "" && merged.SubDocumentOf == "" {
		merged.DocumentOf = inherited.DocumentOf
		merged.SubDocumentOf = inherited.SubDocumentOf
	}
	merged.Parents = map[string]*ParentRef{}
	for k, v := range inherited.Parents {
		merged.Parents[k] = v
	}
	for k, v := range own.Parents {
		merged.Parents[k] = v
	}
	merged.Children = map[string]*ChildRef{}
	for k, v := range inherited.Children {
		merged.Children[k] = v
	}
	for k, v := range own.Children {
		merged.Children[k] = v
	}
	return &merged
}

func (r *Registry) resolve(owner *Template, p *Property) error {
	switch p.Type {
	case TypeString, TypeNumber:
		p.Kind = KindScalar
		return nil
	case TypeDate:
		p.Kind = KindDate
		return nil
	case TypeBoolean:
		p.Kind = KindBoolean
		return nil
	case TypeObject, TypeArray:
		p.Kind = KindJSON
		return nil
	}

	target, ok := r.templates[p.Of]
	if !ok {
		return fmt.Errorf("%w: %s.%s refers to %q", ErrUnknownTemplate, owner.Name, p.Name, p.Of)
	}
	p.Target = target
	p.CrossDocument = isCrossDocRef(owner, p)
	switch {
	case p.Type == TypeRef:
		p.Kind = KindOneToOne
	case p.CrossDocument:
		p.Kind = KindOneToManyReferenced
	default:
		p.Kind = KindOneToManyEmbedded
	}
	return nil
}

func isCrossDocRef(owner *Template, p *Property) bool {
	target := p.Target
	if owner.HasTable() && target.HasTable() {
		return true
	}
	if target.Collection != "" && target.Collection != owner.Collection {
		return true
	}
	if target.Schema != nil && target.Schema.DocumentOf != "" {
		return true
	}
	if ref := owner.ParentRef(p.Name); ref != nil && ref.CrossDocument {
		return true
	}
	if ref := owner.ChildRef(p.Name); ref != nil && ref.CrossDocument {
		return true
	}
	return false
}
