package persistor

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// maxSubDocumentDepth bounds the schema walk of createSubDocQuery.
const maxSubDocumentDepth = 8

// isDocumentTemplate reports whether objects of t are top level documents
// of their collection.
func isDocumentTemplate(t *model.Template) bool {
	return t.Schema != nil && t.Schema.DocumentOf != ""
}

// fetchMongo queues a find on the collection of tmpl. Templates stored
// inside other documents are found through their top level documents, see
// createSubDocQuery.
func (r *fetchRun) fetchMongo(h *database.Handle, tmpl *model.Template, q Query, opts model.QueryOptions, cascade model.Cascade, established *model.Object, deliver func([]*model.Object) error) error {
	if q.Chain != nil {
		return fmt.Errorf("%w: query callbacks need a relational database, %s is stored in %s",
			database.ErrUnsupported, tmpl.Name, tmpl.Collection)
	}
	if h.Docs == nil {
		return fmt.Errorf("%w: no document store for %s", ErrConfiguration, tmpl.Collection)
	}
	collection := database.Dealias(tmpl.Collection)
	filter := map[string]interface{}(q.Filter)
	if filter == nil {
		filter = map[string]interface{}{}
	}

	find := database.FindOptions{Skip: int64(opts.Offset), Limit: int64(opts.Limit)}
	for _, s := range opts.Sort {
		find.Sort = append(find.Sort, database.SortKey{Field: s.Field, Desc: s.Desc})
	}
	if len(find.Sort) == 0 {
		find.Sort = []database.SortKey{{Field: "_id"}}
	}

	top := tmpl
	var paths []string
	if !isDocumentTemplate(tmpl) {
		root, ok := r.p.registry.ByCollection(tmpl.Collection)
		if !ok {
			return fmt.Errorf("%w: no top level document template for %s in %s", ErrConfiguration, tmpl.Name, tmpl.Collection)
		}
		var err error
		paths, filter, err = createSubDocQuery(root, tmpl, q.Filter)
		if err != nil {
			return err
		}
		top = root
		// paging applies to the extracted sub-documents
		find = database.FindOptions{Sort: []database.SortKey{{Field: "_id"}}}
	} else if list, ok := r.projection[tmpl.Name]; ok {
		find.Projection = mongoProjection(tmpl, list)
	}

	key, err := toJSON([]interface{}{h.Alias, collection, filter, find})
	if err != nil {
		return fmt.Errorf("%w: %w", database.ErrInvalidData, err)
	}
	r.p.debug("mongo", "read", map[string]interface{}{"template": tmpl.Name, "collection": collection, "query": key})

	store := h.Docs
	r.queue.push(request{
		io: func(ctx context.Context) (interface{}, error) {
			docs, err, _ := r.p.selects.Do("mongo "+key, func() (interface{}, error) {
				return store.Find(ctx, collection, filter, find)
			})
			return docs, err
		},
		apply: func(_ context.Context, res interface{}) error {
			docs, _ := res.([]database.Document)
			if paths == nil {
				objs := make([]*model.Object, 0, len(docs))
				for _, doc := range docs {
					obj, err := r.fromDocument(doc, tmpl, cascade, established, 0)
					if err != nil {
						return err
					}
					if obj != nil {
						objs = append(objs, obj)
					}
				}
				return deliver(objs)
			}
			objs, err := r.extractSubDocuments(docs, top, tmpl, paths, q.Filter, cascade)
			if err != nil {
				return err
			}
			return deliver(page(objs, opts))
		},
	})
	return nil
}

// mongoProjection lists the fields read for a projected fetch: the fixed
// fields, every relationship and the requested scalars.
func mongoProjection(tmpl *model.Template, list []string) []string {
	fields := []string{"_id", "_template", "__version__"}
	for _, prop := range tmpl.Root().PropertiesRecursive() {
		switch {
		case prop.Kind == model.KindOneToOne && prop.CrossDocument:
			if ref := parentRefIn(tmpl.Root(), prop.Name); ref != nil && ref.ID != "" {
				fields = append(fields, ref.ID)
			}
		case prop.Kind.IsRelationship():
			fields = append(fields, prop.Name)
		}
	}
	return append(fields, list...)
}

func page(objs []*model.Object, opts model.QueryOptions) []*model.Object {
	if opts.Offset > 0 {
		if opts.Offset >= len(objs) {
			return nil
		}
		objs = objs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(objs) {
		objs = objs[:opts.Limit]
	}
	return objs
}

// subDocumentPaths lists the dotted paths under which objects of target may
// be embedded in documents of top. Paths never cross into other documents.
func subDocumentPaths(top, target *model.Template) []string {
	var out []string
	var walk func(t *model.Template, prefix string, depth int, visiting map[*model.Template]bool)
	walk = func(t *model.Template, prefix string, depth int, visiting map[*model.Template]bool) {
		if depth > maxSubDocumentDepth || visiting[t] {
			return
		}
		visiting[t] = true
		defer delete(visiting, t)
		for _, prop := range t.PropertiesRecursive() {
			if !prop.Persisted() || prop.Target == nil || prop.CrossDocument {
				continue
			}
			if prop.Kind != model.KindOneToOne && prop.Kind != model.KindOneToManyEmbedded {
				continue
			}
			path := prop.Name
			if prefix != "" {
				path = prefix + "." + prop.Name
			}
			if target.IsA(prop.Target) || prop.Target.IsA(target) {
				out = append(out, path)
			}
			walk(prop.Target, path, depth+1, visiting)
		}
	}
	walk(top, "", 0, map[*model.Template]bool{})
	return out
}

// createSubDocQuery turns a filter on sub-documents of target into a
// filter on the top level documents of top: an $or over every path target
// can be embedded under, each with the filter keys prefixed by the path.
func createSubDocQuery(top, target *model.Template, filter model.Filter) ([]string, map[string]interface{}, error) {
	paths := subDocumentPaths(top, target)
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("%w: %s cannot be reached from %s", ErrConfiguration, target.Name, top.Name)
	}
	alternatives := make([]interface{}, 0, len(paths))
	for _, path := range paths {
		prefixed, err := prefixFilter(path, filter)
		if err != nil {
			return nil, nil, err
		}
		if len(prefixed) == 0 {
			prefixed = map[string]interface{}{path + "._id": map[string]interface{}{"$exists": true}}
		}
		alternatives = append(alternatives, prefixed)
	}
	return paths, map[string]interface{}{"$or": alternatives}, nil
}

func prefixFilter(path string, filter map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(filter))
	for key, value := range filter {
		switch {
		case key == "$and" || key == "$or":
			subs, ok := database.AsSlice(value)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects an array, got %v", ErrUnsupportedOperator, key, value)
			}
			list := make([]interface{}, 0, len(subs))
			for _, sub := range subs {
				m, ok := database.AsMap(sub)
				if !ok {
					return nil, fmt.Errorf("%w: %s expects filters, got %v", ErrUnsupportedOperator, key, sub)
				}
				prefixed, err := prefixFilter(path, m)
				if err != nil {
					return nil, err
				}
				list = append(list, prefixed)
			}
			out[key] = list
		case strings.HasPrefix(key, "$"):
			return nil, fmt.Errorf("%w: %s with value %v", ErrUnsupportedOperator, key, value)
		default:
			out[path+"."+key] = value
		}
	}
	return out, nil
}

// extractSubDocuments materializes the top level documents and returns the
// embedded objects of target matching filter, in document order.
func (r *fetchRun) extractSubDocuments(docs []database.Document, top, target *model.Template, paths []string, filter model.Filter, cascade model.Cascade) ([]*model.Object, error) {
	seen := map[string]bool{}
	var out []*model.Object
	for _, doc := range docs {
		if _, err := r.fromDocument(doc, top, nil, nil, 0); err != nil {
			return nil, err
		}
		for _, path := range paths {
			for _, candidate := range database.Lookup(doc, path) {
				sub, ok := database.AsMap(candidate)
				if !ok {
					continue
				}
				matched, err := database.MatchDocument(filter, sub)
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrUnsupportedOperator, err)
				}
				id := asString(sub["_id"])
				if !matched || id == "" || seen[id] {
					continue
				}
				obj, ok := r.idMap[id]
				if !ok || !obj.Template().IsA(target) && !target.IsA(obj.Template()) {
					continue
				}
				seen[id] = true
				if err := r.completeCascade(obj, cascade); err != nil {
					return nil, err
				}
				out = append(out, obj)
			}
		}
	}
	return out, nil
}

// completeCascade queues the referenced relationships of an already
// materialized obj that cascade asks for.
func (r *fetchRun) completeCascade(obj *model.Object, cascade model.Cascade) error {
	tmpl := obj.Template()
	for _, name := range sortedKeys(cascadeKeys(cascade)) {
		if !cascade[name].Requested() {
			continue
		}
		prop, ok := tmpl.Property(name)
		if !ok || !prop.Persisted() {
			continue
		}
		switch {
		case prop.Kind == model.KindOneToManyReferenced:
			if err := r.fetchOneToMany(obj, tmpl, prop, cascade); err != nil {
				return err
			}
		case prop.Kind == model.KindOneToOne && (prop.CrossDocument || prop.Target.HasTable()):
			if err := r.fetchOneToOne(obj, tmpl, prop, obj.Persistor(name).ID, cascade, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func cascadeKeys(c model.Cascade) map[string]interface{} {
	out := make(map[string]interface{}, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// nestedCascade is the cascade applied to the objects embedded under prop.
func nestedCascade(cascade model.Cascade, prop string) model.Cascade {
	if f := cascade.Get(prop); f != nil && !f.Disabled {
		return f.Cascade
	}
	return nil
}

// fromDocument materializes the object stored in doc. version is the
// version of the enclosing top level document, 0 for top level documents
// themselves. A document holding nothing but an _id refers to an object
// seen earlier in the same graph.
func (r *fetchRun) fromDocument(doc map[string]interface{}, tmpl *model.Template, cascade model.Cascade, established *model.Object, version int64) (*model.Object, error) {
	id := asString(doc["_id"])
	if id == "" {
		return nil, nil
	}
	if established != nil && established.ID != id {
		return nil, nil
	}
	if _, ok := doc["_template"]; !ok && len(doc) == 1 {
		if obj, ok := r.idMap[id]; ok {
			return obj, nil
		}
		obj := model.LoadedObject(tmpl, id)
		r.idMap[id] = obj
		return obj, nil
	}

	actual := tmpl
	if name := asString(doc["_template"]); name != "" && name != tmpl.Name {
		t, ok := r.p.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s document %s", model.ErrUnknownTemplate, name, tmpl.Name, id)
		}
		actual = t
	}

	obj, cached := r.remember(id, actual, cascade, established)
	if cached {
		return obj, nil
	}
	if version == 0 {
		version = asInt64(doc["__version__"])
	}
	obj.Version = version
	track := r.trackChanges(actual)

	for _, prop := range actual.Properties() {
		if !prop.Persisted() {
			continue
		}
		raw, present := doc[prop.Name]

		switch prop.Kind {
		case model.KindOneToOne:
			if prop.CrossDocument {
				ref := actual.ParentRef(prop.Name)
				if ref == nil || ref.ID == "" {
					return nil, fmt.Errorf("%w: %s.%s is missing a parents schema entry", ErrConfiguration, actual.Name, prop.Name)
				}
				foreignID := asString(doc[ref.ID])
				if track {
					obj.SetOriginal(prop.Name, foreignID)
				}
				if err := r.fetchOneToOne(obj, actual, prop, foreignID, cascade, nil); err != nil {
					return nil, err
				}
				continue
			}
			if !present {
				continue
			}
			var child *model.Object
			if sub, ok := database.AsMap(raw); ok {
				var err error
				if child, err = r.fromDocument(sub, prop.Target, nestedCascade(cascade, prop.Name), nil, version); err != nil {
					return nil, err
				}
			}
			obj.Set(prop.Name, child)
			state := model.PropState{IsFetched: true}
			if child != nil {
				state.ID = child.ID
			}
			obj.SetPersistor(prop.Name, state)
			if track {
				obj.SetOriginal(prop.Name, originalValue(child))
			}

		case model.KindOneToManyReferenced:
			if err := r.fetchOneToMany(obj, actual, prop, cascade); err != nil {
				return nil, err
			}

		case model.KindOneToManyEmbedded:
			if !present {
				continue
			}
			items, _ := database.AsSlice(raw)
			list := make([]*model.Object, 0, len(items))
			for _, item := range items {
				sub, ok := database.AsMap(item)
				if !ok {
					continue
				}
				child, err := r.fromDocument(sub, prop.Target, nestedCascade(cascade, prop.Name), nil, version)
				if err != nil {
					return nil, err
				}
				if child != nil {
					list = append(list, child)
				}
			}
			obj.Set(prop.Name, list)
			obj.SetPersistor(prop.Name, model.PropState{IsFetched: true, Next: len(list)})
			if track {
				obj.SetOriginal(prop.Name, originalValue(list))
			}

		default:
			if !present || !r.projected(actual, prop) {
				continue
			}
			value := documentValue(prop, raw)
			obj.Set(prop.Name, value)
			if track {
				obj.SetOriginal(prop.Name, originalValue(value))
			}
		}
	}
	return obj, nil
}

// documentValue converts a stored scalar to the property's in-memory type.
func documentValue(prop *model.Property, raw interface{}) interface{} {
	if raw == nil {
		return nil
	}
	switch prop.Kind {
	case model.KindDate:
		if t, ok := asTime(raw); ok {
			return t
		}
		return nil
	case model.KindBoolean:
		b, _ := asBool(raw)
		return b
	case model.KindScalar:
		if prop.Type == model.TypeNumber {
			if f, ok := asFloat(raw); ok {
				return f
			}
			return nil
		}
		return asString(raw)
	}
	return raw
}
