package model

// Template is a schema-described type of persistable object. Subtypes created
// with Extend inherit all properties and share the root's table or collection,
// rows being discriminated by the _template column.
type Template struct {
	Name     string
	Parent   *Template
	Children []*Template

	Schema     *Entry
	Table      string
	Collection string

	subsetOf string
	subset   *Template

	own    []*Property
	all    []*Property
	byName map[string]*Property
}

// NewTemplate declares a root template.
func NewTemplate(name string) *Template {
	return &Template{Name: name}
}

// Extend declares a subtype of t.
func (t *Template) Extend(name string) *Template {
	child := &Template{Name: name, Parent: t}
	t.Children = append(t.Children, child)
	return child
}

// SubsetOf makes t a view over another template's table and relationships.
func (t *Template) SubsetOf(name string) *Template {
	t.subsetOf = name
	return t
}

// Subset returns the template t is a subset of, if any.
func (t *Template) Subset() *Template {
	return t.subset
}

// Prop declares a scalar, date, boolean or JSON property.
func (t *Template) Prop(name string, typ Type, opts ...PropOption) *Template {
	return t.add(&Property{Name: name, Type: typ}, opts)
}

// Ref declares a one-to-one relationship to template of.
func (t *Template) Ref(name, of string, opts ...PropOption) *Template {
	return t.add(&Property{Name: name, Type: TypeRef, Of: of}, opts)
}

// RefArray declares a one-to-many relationship to template of.
func (t *Template) RefArray(name, of string, opts ...PropOption) *Template {
	return t.add(&Property{Name: name, Type: TypeRefArray, Of: of}, opts)
}

func (t *Template) add(p *Property, opts []PropOption) *Template {
	for _, opt := range opts {
		opt(p)
	}
	for i, existing := range t.own {
		if existing.Name == p.Name {
			t.own[i] = p
			return t
		}
	}
	t.own = append(t.own, p)
	return t
}

// Properties returns the declared properties including inherited ones, in
// declaration order.
func (t *Template) Properties() []*Property {
	if t.all != nil {
		return t.all
	}
	return t.collect()
}

func (t *Template) collect() []*Property {
	var props []*Property
	index := map[string]int{}
	if t.Parent != nil {
		for _, p := range t.Parent.collect() {
			index[p.Name] = len(props)
			props = append(props, p)
		}
	}
	for _, p := range t.own {
		if i, ok := index[p.Name]; ok {
			props[i] = p
			continue
		}
		index[p.Name] = len(props)
		props = append(props, p)
	}
	return props
}

// Property returns the named property.
func (t *Template) Property(name string) (*Property, bool) {
	if t.byName == nil {
		for _, p := range t.Properties() {
			if p.Name == name {
				return p, true
			}
		}
		return nil, false
	}
	p, ok := t.byName[name]
	return p, ok
}

// Root climbs the inheritance chain.
func (t *Template) Root() *Template {
	root := t
	for root.Parent != nil {
		root = root.Parent
	}
	return root
}

// Descendants returns t followed by all of its subtypes, depth first.
func (t *Template) Descendants() []*Template {
	out := []*Template{t}
	for _, c := range t.Children {
		out = append(out, c.Descendants()...)
	}
	return out
}

// PropertiesRecursive returns the union of the properties of t and all of its
// subtypes; the first declaration of a name wins.
func (t *Template) PropertiesRecursive() []*Property {
	seen := map[string]bool{}
	var out []*Property
	for _, d := range t.Descendants() {
		for _, p := range d.Properties() {
			if seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			out = append(out, p)
		}
	}
	return out
}

// IsA reports whether t is other or one of its subtypes.
func (t *Template) IsA(other *Template) bool {
	for c := t; c != nil; c = c.Parent {
		if c == other {
			return true
		}
	}
	return false
}

// ParentRef returns the schema's one-to-one mapping for prop.
func (t *Template) ParentRef(prop string) *ParentRef {
	if t.Schema == nil || t.Schema.Parents == nil {
		return nil
	}
	return t.Schema.Parents[prop]
}

// ChildRef returns the schema's one-to-many mapping for prop.
func (t *Template) ChildRef(prop string) *ChildRef {
	if t.Schema == nil || t.Schema.Children == nil {
		return nil
	}
	return t.Schema.Children[prop]
}

// HasTable reports whether the template is stored in a relational table.
func (t *Template) HasTable() bool {
	return t.Schema != nil && t.Schema.Table != ""
}
