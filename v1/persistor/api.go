package persistor

import (
	"context"
	"fmt"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// FetchByID loads the object of tmpl with the given id. It returns nil
// without error when there is none.
func (p *Persistor) FetchByID(ctx context.Context, tmpl *model.Template, id string, opts FetchOptions) (*model.Object, error) {
	objs, err := p.fetchByQuery(ctx, tmpl, ByID(id), opts, "getFromPersistWithId")
	if err != nil || len(objs) == 0 {
		return nil, err
	}
	return objs[0], nil
}

// FetchByQuery loads the objects of tmpl matching q together with the
// relationships opts.Fetch and the schema ask for.
func (p *Persistor) FetchByQuery(ctx context.Context, tmpl *model.Template, q Query, opts FetchOptions) ([]*model.Object, error) {
	return p.fetchByQuery(ctx, tmpl, q, opts, "getFromPersistWithQuery")
}

func (p *Persistor) fetchByQuery(ctx context.Context, tmpl *model.Template, q Query, opts FetchOptions, activity string) (objs []*model.Object, err error) {
	ctx, end := p.operation(ctx, "fetch", tmpl.Name)
	defer func() { end(err, len(objs)) }()

	data := map[string]interface{}{"template": tmpl.Name, "query": q.Filter}
	if err := p.ensureTables(ctx, []*model.Template{tmpl}); err != nil {
		return nil, p.logFailure("api", activity, err, data)
	}
	r := p.newFetchRun(opts)
	objs, err = r.run(ctx, tmpl, q, opts.queryOptions(), opts.Fetch, nil)
	if err != nil {
		return nil, p.logFailure("api", activity, err, data)
	}
	p.debug("api", activity, map[string]interface{}{"template": tmpl.Name, "count": len(objs)})
	return objs, nil
}

// CountByQuery counts the objects of tmpl matching q.
func (p *Persistor) CountByQuery(ctx context.Context, tmpl *model.Template, q Query) (n int64, err error) {
	ctx, end := p.operation(ctx, "count", tmpl.Name)
	defer func() { end(err, int(n)) }()

	data := map[string]interface{}{"template": tmpl.Name, "query": q.Filter}
	h, err := p.handleFor(tmpl)
	if err != nil {
		return 0, p.logFailure("api", "countFromPersistWithQuery", err, data)
	}
	q = restrictToTemplate(tmpl, q)

	if h.IsDocumentStore() {
		if q.Chain != nil || !isDocumentTemplate(tmpl) {
			err = fmt.Errorf("%w: counting %s needs a filter on top level documents", database.ErrUnsupported, tmpl.Name)
			return 0, p.logFailure("api", "countFromPersistWithQuery", err, data)
		}
		filter := map[string]interface{}(q.Filter)
		if filter == nil {
			filter = map[string]interface{}{}
		}
		n, err = h.Docs.Count(ctx, database.Dealias(tmpl.Collection), filter)
		return n, p.logFailure("api", "countFromPersistWithQuery", err, data)
	}

	if err := p.ensureTables(ctx, []*model.Template{tmpl}); err != nil {
		return 0, p.logFailure("api", "countFromPersistWithQuery", err, data)
	}
	table := tableName(tmpl)
	where, err := q.condition(table)
	if err != nil {
		return 0, p.logFailure("api", "countFromPersistWithQuery", err, data)
	}
	n, err = h.SQL.Count(ctx, database.Criteria{Table: table, Where: where})
	return n, p.logFailure("api", "countFromPersistWithQuery", err, data)
}

// DistinctByQuery returns the distinct values of field over the documents
// of tmpl matching q. Only document stores support it.
func (p *Persistor) DistinctByQuery(ctx context.Context, tmpl *model.Template, field string, q Query) (values []interface{}, err error) {
	ctx, end := p.operation(ctx, "distinct", tmpl.Name)
	defer func() { end(err, len(values)) }()

	data := map[string]interface{}{"template": tmpl.Name, "field": field, "query": q.Filter}
	h, err := p.handleFor(tmpl)
	if err != nil {
		return nil, p.logFailure("api", "distinctFromPersistWithQuery", err, data)
	}
	if !h.IsDocumentStore() || q.Chain != nil || !isDocumentTemplate(tmpl) {
		err = fmt.Errorf("%w: distinct values of %s need a document store", database.ErrUnsupported, tmpl.Name)
		return nil, p.logFailure("api", "distinctFromPersistWithQuery", err, data)
	}
	filter := map[string]interface{}(restrictToTemplate(tmpl, q).Filter)
	if filter == nil {
		filter = map[string]interface{}{}
	}
	values, err = h.Docs.Distinct(ctx, database.Dealias(tmpl.Collection), field, filter)
	if err != nil {
		return nil, p.logFailure("api", "distinctFromPersistWithQuery", err, data)
	}
	return values, nil
}

// DeleteByQuery deletes the objects of tmpl matching q. Without a
// transaction the rows go at once and their number is returned; with one
// the deletion is queued for its commit and 0 is returned.
func (p *Persistor) DeleteByQuery(ctx context.Context, tmpl *model.Template, q Query, txn *Transaction) (int64, error) {
	if txn != nil {
		txn.deleteQueries = append(txn.deleteQueries, deleteQuery{tmpl: tmpl, query: q})
		return 0, nil
	}
	data := map[string]interface{}{"template": tmpl.Name, "query": q.Filter}
	if err := p.ensureTables(ctx, []*model.Template{tmpl}); err != nil {
		return 0, p.logFailure("api", "deleteFromPersistWithQuery", err, data)
	}
	n, err := p.deleteByQueryNow(ctx, tmpl, q, nil)
	if err != nil {
		return 0, p.logFailure("api", "deleteFromPersistWithQuery", err, data)
	}
	return n, nil
}

// DeleteByID deletes the object of tmpl with the given id.
func (p *Persistor) DeleteByID(ctx context.Context, tmpl *model.Template, id string, txn *Transaction) (int64, error) {
	return p.DeleteByQuery(ctx, tmpl, ByID(id), txn)
}

func (p *Persistor) deleteByQueryNow(ctx context.Context, tmpl *model.Template, q Query, txn *Transaction) (n int64, err error) {
	ctx, end := p.operation(ctx, "delete", tmpl.Name)
	defer func() { end(err, int(n)) }()

	h, err := p.handleFor(tmpl)
	if err != nil {
		return 0, err
	}
	if h.IsDocumentStore() {
		return p.deleteMongoQuery(ctx, h, tmpl, q)
	}
	return p.deleteKnexQuery(ctx, tmpl, q, txn)
}

// FetchProperty loads one relationship of obj. fetch may narrow the query
// and cascade further; nil loads the relationship with its defaults. The
// relationship is reloaded even when it was fetched before.
func (p *Persistor) FetchProperty(ctx context.Context, obj *model.Object, prop string, fetch *model.Fetch) (err error) {
	tmpl := obj.Template()
	ctx, end := p.operation(ctx, "fetchProperty", tmpl.Name+"."+prop)
	defer func() { end(err, 0) }()

	data := map[string]interface{}{"template": tmpl.Name, "id": obj.ID, "property": prop}
	property, ok := tmpl.Property(prop)
	if !ok || !property.Kind.IsRelationship() {
		err = fmt.Errorf("%w: %s.%s is not a relationship", ErrConfiguration, tmpl.Name, prop)
		return p.logFailure("api", "fetchProperty", err, data)
	}
	if fetch == nil || fetch.Disabled {
		fetch = model.FetchAll()
	}
	if err := p.ensureTables(ctx, []*model.Template{property.Target}); err != nil {
		return p.logFailure("api", "fetchProperty", err, data)
	}

	state := obj.Persistor(prop)
	obj.SetPersistor(prop, model.PropState{ID: state.ID})

	r := p.newFetchRun(FetchOptions{})
	r.idMap[obj.ID] = obj
	if err := r.completeCascade(obj, model.Cascade{prop: fetch}); err != nil {
		return p.logFailure("api", "fetchProperty", err, data)
	}
	if err := r.queue.drain(ctx); err != nil {
		return p.logFailure("api", "fetchProperty", err, data)
	}
	return nil
}

// Save writes obj. With a transaction obj is only enlisted and written by
// its commit; without one it is written at once, together with whatever
// saving it dirties, outside a native transaction.
func (p *Persistor) Save(ctx context.Context, obj *model.Object, txn *Transaction) error {
	if txn != nil {
		p.SetDirty(obj, txn)
		return nil
	}
	internal := NewTransaction()
	p.SetDirty(obj, internal)
	data := map[string]interface{}{"template": obj.Template().Name, "id": obj.ID}
	if err := p.ensureTables(ctx, transactionTemplates(internal)); err != nil {
		return p.logFailure("api", "persistSave", err, data)
	}
	if err := p.saveAll(ctx, internal); err != nil {
		return p.logFailure("api", "persistSave", err, data)
	}
	return nil
}

// Touch bumps the version of obj without writing anything else, at once or
// when txn commits.
func (p *Persistor) Touch(ctx context.Context, obj *model.Object, txn *Transaction) error {
	if obj == nil || obj.Template().Schema == nil {
		return nil
	}
	if txn != nil {
		txn.touched.add(obj)
		return nil
	}
	if err := p.persistTouch(ctx, obj, nil); err != nil {
		return p.logFailure("api", "persistTouch", err, map[string]interface{}{"template": obj.Template().Name, "id": obj.ID})
	}
	return nil
}

// Delete removes obj, at once or when txn commits.
func (p *Persistor) Delete(ctx context.Context, obj *model.Object, txn *Transaction) error {
	if txn != nil {
		p.SetAsDeleted(obj, txn)
		return nil
	}
	if obj == nil || obj.Template().Schema == nil {
		return nil
	}
	if err := p.persistDelete(ctx, obj, nil); err != nil {
		return p.logFailure("api", "persistDelete", err, map[string]interface{}{"template": obj.Template().Name, "id": obj.ID})
	}
	obj.SetDeletedFlag(true)
	return nil
}

// Refresh reloads obj in place. Relationships that were loaded are loaded
// again. Objects embedded in a document refresh the whole document.
func (p *Persistor) Refresh(ctx context.Context, obj *model.Object) (err error) {
	target := obj
	if h, herr := p.handleFor(obj.Template()); herr == nil && h.IsDocumentStore() && !isDocumentTemplate(obj.Template()) {
		if target = getTopObject(obj); target == nil {
			err = fmt.Errorf("%w: Attempt to refresh %s which has no top level document", ErrOrphanDocument, obj.Template().Name)
			return p.logFailure("api", "refresh", err, map[string]interface{}{"template": obj.Template().Name, "id": obj.ID})
		}
	}
	tmpl := target.Template()
	ctx, end := p.operation(ctx, "refresh", tmpl.Name)
	defer func() { end(err, 1) }()

	data := map[string]interface{}{"template": tmpl.Name, "id": target.ID}
	cascade := model.Cascade{}
	for _, prop := range tmpl.Properties() {
		if !prop.Kind.IsRelationship() || !target.HasPersistor(prop.Name) {
			continue
		}
		state := target.Persistor(prop.Name)
		if state.IsFetched && (prop.Kind == model.KindOneToManyReferenced || prop.CrossDocument || prop.Target.HasTable()) {
			cascade[prop.Name] = model.FetchAll()
			target.SetPersistor(prop.Name, model.PropState{ID: state.ID})
		}
	}

	r := p.newFetchRun(FetchOptions{})
	objs, err := r.run(ctx, tmpl, ByID(target.ID), model.QueryOptions{}, cascade, target)
	if err != nil {
		return p.logFailure("api", "refresh", err, data)
	}
	if len(objs) == 0 {
		err = fmt.Errorf("%w: %s %s", database.ErrRecordNotFound, tmpl.Name, target.ID)
		return p.logFailure("api", "refresh", err, data)
	}
	return nil
}

// IsStale reports whether the stored version of obj differs from the one
// in memory. A deleted object is stale.
func (p *Persistor) IsStale(ctx context.Context, obj *model.Object) (bool, error) {
	target := obj
	if !obj.Template().HasTable() && !isDocumentTemplate(obj.Template()) {
		if target = getTopObject(obj); target == nil {
			target = obj
		}
	}
	tmpl := target.Template()
	data := map[string]interface{}{"template": tmpl.Name, "id": target.ID}
	h, err := p.handleFor(tmpl)
	if err != nil {
		return false, p.logFailure("api", "isStale", err, data)
	}

	var stored interface{}
	if h.IsDocumentStore() {
		docs, err := h.Docs.Find(ctx, database.Dealias(tmpl.Collection), map[string]interface{}{"_id": target.ID},
			database.FindOptions{Limit: 1, Projection: []string{"__version__"}})
		if err != nil {
			return false, p.logFailure("api", "isStale", err, data)
		}
		if len(docs) == 0 {
			return true, nil
		}
		stored = docs[0]["__version__"]
	} else {
		table := tableName(tmpl)
		rows, err := h.SQL.Select(ctx, &database.SelectStatement{
			Criteria: database.Criteria{Table: table, Where: database.Eq(database.Col(table, "_id"), target.ID), Limit: 1},
			Columns:  []database.SelectColumn{{Table: table, Column: "__version__"}},
		})
		if err != nil {
			return false, p.logFailure("api", "isStale", err, data)
		}
		if len(rows) == 0 {
			return true, nil
		}
		stored = rows[0]["__version__"]
	}
	return asInt64(stored) != target.Version, nil
}

// GetTableName returns the physical table or collection of tmpl.
func (p *Persistor) GetTableName(tmpl *model.Template) string {
	return database.Dealias(storageName(tmpl))
}

// GetParentKey returns the foreign key column of the one-to-one property
// prop of tmpl, or "" when the schema does not map it.
func (p *Persistor) GetParentKey(tmpl *model.Template, prop string) string {
	if ref := parentRefIn(tmpl.Root(), prop); ref != nil {
		return ref.ID
	}
	return ""
}

// GetChildKey returns the children's foreign key column of the one-to-many
// property prop of tmpl, or "" when the schema does not map it.
func (p *Persistor) GetChildKey(tmpl *model.Template, prop string) string {
	if ref := childRefIn(tmpl.Root(), prop); ref != nil {
		return ref.ID
	}
	return ""
}

// ensureTables synchronizes, once per process, the tables of templates and
// of every relational template reachable from them through relationships.
func (p *Persistor) ensureTables(ctx context.Context, templates []*model.Template) error {
	if p.cfg.NoLazySync {
		return nil
	}
	seen := map[*model.Template]bool{}
	queue := append([]*model.Template(nil), templates...)
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if t == nil || seen[t] {
			continue
		}
		seen[t] = true
		for _, prop := range t.PropertiesRecursive() {
			if prop.Target != nil {
				queue = append(queue, prop.Target)
			}
		}
		if t.Subset() != nil || t.Schema == nil || notPersistent.MatchString(t.Schema.DocumentOf) {
			continue
		}
		root := t.Root()
		if !root.HasTable() || !p.dbs.IsRelational(root.Table) || p.isSynced(root.Name) {
			continue
		}
		if err := p.SynchronizeTable(ctx, root, nil, false); err != nil {
			return err
		}
	}
	return nil
}

// transactionTemplates lists the templates of the objects enlisted in txn.
func transactionTemplates(txn *Transaction) []*model.Template {
	var out []*model.Template
	for _, set := range []*objectSet{txn.dirty, txn.deleted, txn.touched} {
		for _, obj := range set.list() {
			out = append(out, obj.Template())
		}
	}
	for _, dq := range txn.deleteQueries {
		out = append(out, dq.tmpl)
	}
	return out
}
