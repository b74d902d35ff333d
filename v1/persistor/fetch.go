package persistor

import (
	"context"
	"fmt"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// FetchOptions controls one fetch.
type FetchOptions struct {
	// Fetch names the relationships to load eagerly, recursively.
	Fetch model.Cascade

	Sort   model.Sort
	Limit  int
	Offset int

	// Projection restricts the scalar columns read per template name.
	// Relationship keys and columns starting with "_" are always read.
	Projection map[string][]string

	// EnableChangeTracking records the loaded values of every object so a
	// later commit can report what changed.
	EnableChangeTracking bool
}

func (o FetchOptions) queryOptions() model.QueryOptions {
	return model.QueryOptions{Sort: o.Sort, Limit: o.Limit, Offset: o.Offset}
}

// fetchRun is the state of one fetch call: its identity map and the queue
// of follow-up queries. It never outlives the call.
type fetchRun struct {
	p          *Persistor
	queue      *workQueue
	idMap      map[string]*model.Object
	tracking   bool
	projection map[string][]string
}

func (p *Persistor) newFetchRun(opts FetchOptions) *fetchRun {
	return &fetchRun{
		p:          p,
		queue:      newWorkQueue(p.cfg.concurrency()),
		idMap:      map[string]*model.Object{},
		tracking:   opts.EnableChangeTracking,
		projection: opts.Projection,
	}
}

// storageName is the aliased table or collection name that routes a
// template to its database.
func storageName(t *model.Template) string {
	if t.Table != "" {
		return t.Table
	}
	return t.Collection
}

// fetch queues the query of tmpl on whichever backend stores it. deliver
// receives the materialized objects in result order once the rows are in;
// their own relationships may still be pending on the queue.
func (r *fetchRun) fetch(tmpl *model.Template, q Query, opts model.QueryOptions, cascade model.Cascade, established *model.Object, deliver func([]*model.Object) error) error {
	name := storageName(tmpl)
	if name == "" {
		return fmt.Errorf("%w: %s is missing a schema entry", ErrConfiguration, tmpl.Name)
	}
	h, err := r.p.dbs.ForCollection(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	q = restrictToTemplate(tmpl, q)
	if h.IsDocumentStore() {
		return r.fetchMongo(h, tmpl, q, opts, cascade, established, deliver)
	}
	return r.fetchKnex(h, tmpl, q, opts, cascade, established, deliver)
}

// restrictToTemplate limits a filter query on a subtype to the rows or
// documents of that subtype and its own subtypes.
func restrictToTemplate(tmpl *model.Template, q Query) Query {
	if q.Chain != nil || tmpl.Subset() != nil || tmpl.Parent == nil {
		return q
	}
	if _, ok := q.Filter["_template"]; ok {
		return q
	}
	var names []interface{}
	for _, t := range tmpl.Descendants() {
		names = append(names, t.Name)
	}
	filter := q.Filter.Clone()
	filter["_template"] = model.Filter{"$in": names}
	return Query{Filter: filter}
}

// run queues the top level query and drains the queue.
func (r *fetchRun) run(ctx context.Context, tmpl *model.Template, q Query, opts model.QueryOptions, cascade model.Cascade, established *model.Object) ([]*model.Object, error) {
	var out []*model.Object
	err := r.fetch(tmpl, q, opts, cascade, established, func(objs []*model.Object) error {
		out = objs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.queue.drain(ctx); err != nil {
		return nil, err
	}
	if r.p.collector != nil {
		r.p.collector.ObserveIdentityMap(tmpl.Name, len(r.idMap))
	}
	return out, nil
}

// remember registers obj in the identity map unless a cached copy already
// satisfies cascade, in which case the cached copy is returned with true.
func (r *fetchRun) remember(id string, tmpl *model.Template, cascade model.Cascade, established *model.Object) (*model.Object, bool) {
	obj := established
	if obj == nil {
		if cached, ok := r.idMap[id]; ok {
			if allRequiredChildrenAvailable(cached, cascade) {
				return cached, true
			}
			obj = cached
		}
	}
	if obj == nil {
		obj = model.LoadedObject(tmpl, id)
	}
	r.idMap[id] = obj
	return obj, false
}

func (r *fetchRun) trackChanges(t *model.Template) bool {
	return r.tracking || (t.Schema != nil && t.Schema.EnableChangeTracking)
}

func (r *fetchRun) projected(t *model.Template, prop *model.Property) bool {
	list, ok := r.projection[t.Name]
	if !ok || len(prop.Name) > 0 && prop.Name[0] == '_' {
		return true
	}
	for _, name := range list {
		if name == prop.Name {
			return true
		}
	}
	return false
}

// fetchOneToMany loads the children of a referenced one-to-many property.
// Sibling properties that share the foreign key and differ only by their
// filter value are loaded with one query and split by that value.
func (r *fetchRun) fetchOneToMany(obj *model.Object, owner *model.Template, prop *model.Property, cascade model.Cascade) error {
	ref := owner.ChildRef(prop.Name)
	if ref == nil {
		return fmt.Errorf("%w: %s.%s is missing a children schema entry", ErrConfiguration, owner.Name, prop.Name)
	}
	if ref.Filter != nil && (ref.Filter.Property == "" || ref.Filter.Value == nil) {
		return fmt.Errorf("%w: Incorrect filter properties on %s in %s", ErrConfiguration, prop.Name, owner.Name)
	}

	cf := cascade.Get(prop.Name)
	state := obj.Persistor(prop.Name)
	if !fetchRequested(prop, ref.Fetch, cf) || state.IsFetching || state.IsFetched {
		if !obj.Has(prop.Name) {
			obj.Set(prop.Name, []*model.Object(nil))
		}
		return nil
	}

	members := []*model.Property{prop}
	filter := model.Filter{ref.ID: obj.ID}
	if ref.Filter != nil {
		siblings := alternateProps(owner, prop, ref)
		leader := siblings[0]
		if leader != prop && fetchRequested(leader, owner.ChildRef(leader.Name).Fetch, cascade.Get(leader.Name)) {
			return nil
		}
		if leader == prop {
			members = members[:0]
			for _, s := range siblings {
				if spec := cascade.Get(s.Name); spec != nil && spec.Disabled {
					continue
				}
				members = append(members, s)
			}
		}
		values := make([]interface{}, 0, len(members))
		for _, m := range members {
			values = append(values, owner.ChildRef(m.Name).Filter.Value)
		}
		if len(values) == 1 {
			filter[ref.Filter.Property] = values[0]
		} else {
			filter[ref.Filter.Property] = model.Filter{"$in": values}
		}
	}

	opts := model.QueryOptions{}
	if prop.QueryOptions != nil {
		opts = *prop.QueryOptions
	}
	if len(opts.Sort) == 0 {
		opts.Sort = model.Sort{model.Asc("_id")}
	}
	filter, nested := processCascade(filter, &opts, cf, ref.Fetch, prop.Fetch)

	for _, m := range members {
		obj.Persistor(m.Name).IsFetching = true
	}
	start := opts.Offset
	return r.fetch(prop.Target, Query{Filter: filter}, opts, nested, nil, func(children []*model.Object) error {
		for _, m := range members {
			list := children
			if ref.Filter != nil {
				value := owner.ChildRef(m.Name).Filter.Value
				list = nil
				for _, child := range children {
					if database.Equal(child.Get(ref.Filter.Property), value) {
						list = append(list, child)
					}
				}
			}
			obj.Set(m.Name, list)
			obj.SetPersistor(m.Name, model.PropState{IsFetched: true, Start: start, Next: start + len(list)})
		}
		return nil
	})
}

// alternateProps returns, in declaration order, the one-to-many properties
// of owner that share ref's foreign key, filter property and target table.
func alternateProps(owner *model.Template, prop *model.Property, ref *model.ChildRef) []*model.Property {
	var out []*model.Property
	for _, other := range owner.Properties() {
		if other.Type != model.TypeRefArray || other.Target == nil {
			continue
		}
		oref := owner.ChildRef(other.Name)
		if oref == nil || oref.ID != ref.ID || oref.Filter == nil || oref.Filter.Property != ref.Filter.Property {
			continue
		}
		if storageName(other.Target) != storageName(prop.Target) {
			continue
		}
		out = append(out, other)
	}
	return out
}

// fetchOneToOne resolves a one-to-one property from its foreign id: from the
// identity map, from joined columns or with a query of its own.
func (r *fetchRun) fetchOneToOne(obj *model.Object, owner *model.Template, prop *model.Property, foreignID string, cascade model.Cascade, joined func(nested model.Cascade, done func([]*model.Object) error) (bool, error)) error {
	ref := owner.ParentRef(prop.Name)
	if foreignID == "" {
		obj.Set(prop.Name, nil)
		obj.SetPersistor(prop.Name, model.PropState{IsFetched: true})
		return nil
	}

	cf := cascade.Get(prop.Name)
	var schemaSpec *model.Fetch
	if ref != nil {
		schemaSpec = ref.Fetch
	}
	opts := model.QueryOptions{}
	filter, nested := processCascade(model.Filter{"_id": foreignID}, &opts, cf, schemaSpec, prop.Fetch)

	if cached, ok := r.idMap[foreignID]; ok && allRequiredChildrenAvailable(cached, nested) {
		obj.Set(prop.Name, cached)
		obj.SetPersistor(prop.Name, model.PropState{IsFetched: true, ID: foreignID})
		return nil
	}

	state := obj.Persistor(prop.Name)
	if !fetchRequested(prop, schemaSpec, cf) {
		if state.IsFetched && state.ID == foreignID && obj.Ref(prop.Name) != nil {
			return nil
		}
		obj.Set(prop.Name, nil)
		obj.SetPersistor(prop.Name, model.PropState{ID: foreignID})
		return nil
	}

	state.IsFetching = true
	state.ID = foreignID
	done := func([]*model.Object) error {
		obj.Set(prop.Name, r.idMap[foreignID])
		obj.SetPersistor(prop.Name, model.PropState{IsFetched: true, ID: foreignID})
		return nil
	}
	if joined != nil {
		handled, err := joined(nested, done)
		if err != nil || handled {
			return err
		}
	}
	return r.fetch(prop.Target, Query{Filter: filter}, opts, nested, nil, done)
}
