package persistor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// columnSeparator joins a table prefix and a column name in select aliases.
const columnSeparator = "___"

// fetchKnex queues a SELECT over the table of tmpl, left joining the tables
// of eligible one-to-one relationships.
func (r *fetchRun) fetchKnex(h *database.Handle, tmpl *model.Template, q Query, opts model.QueryOptions, cascade model.Cascade, established *model.Object, deliver func([]*model.Object) error) error {
	table := tableName(tmpl)
	where, err := q.condition(table)
	if err != nil {
		return err
	}
	joins, aliases, err := knexJoins(tmpl, table, cascade)
	if err != nil {
		return err
	}

	stmt := &database.SelectStatement{
		Criteria: database.Criteria{Table: table, Where: where, Limit: opts.Limit, Offset: opts.Offset},
		Joins:    joins,
	}
	for _, s := range opts.Sort {
		stmt.OrderBy = append(stmt.OrderBy, database.Order{Column: database.Col(table, s.Field), Desc: s.Desc})
	}
	stmt.Columns = r.knexColumns(tmpl, table, table)
	for _, prop := range tmpl.Properties() {
		if alias, ok := aliases[prop.Name]; ok {
			stmt.Columns = append(stmt.Columns, r.knexColumns(prop.Target, alias, alias)...)
		}
	}

	client := h.SQL
	key := h.Alias + " " + stmt.Key()
	r.p.debug("query", "select", map[string]interface{}{"template": tmpl.Name, "where": where.String()})

	r.queue.push(request{
		io: func(ctx context.Context) (interface{}, error) {
			rows, err, _ := r.p.selects.Do(key, func() (interface{}, error) {
				return client.Select(ctx, stmt)
			})
			return rows, err
		},
		apply: func(_ context.Context, res interface{}) error {
			rows, _ := res.([]database.Row)
			objs := make([]*model.Object, 0, len(rows))
			for _, row := range rows {
				obj, err := r.fromRow(row, tmpl, table, cascade, aliases, established)
				if err != nil {
					return err
				}
				if obj != nil {
					objs = append(objs, obj)
				}
			}
			return deliver(objs)
		},
	})
	return nil
}

// knexJoins picks the one-to-one relationships of tmpl that are loaded with
// a left outer join rather than a query of their own.
func knexJoins(tmpl *model.Template, table string, cascade model.Cascade) ([]database.Join, map[string]string, error) {
	var joins []database.Join
	aliases := map[string]string{}
	for _, prop := range tmpl.Properties() {
		if prop.Kind != model.KindOneToOne || !prop.Persisted() || !prop.Target.HasTable() {
			continue
		}
		if database.Alias(prop.Target.Table) != database.Alias(tmpl.Table) {
			continue
		}
		ref := tmpl.ParentRef(prop.Name)
		if ref == nil || ref.ID == "" {
			return nil, nil, fmt.Errorf("%w: %s.%s is missing a parents schema entry", ErrConfiguration, tmpl.Name, prop.Name)
		}
		cf := cascade.Get(prop.Name)
		wanted := (prop.FetchRequested() && !prop.NoJoin) || cf.Requested() || (ref.FetchRequested() && !ref.NoJoin)
		if !wanted || (cf != nil && (cf.Disabled || cf.NoJoin)) {
			continue
		}
		alias := tableName(prop.Target) + strconv.Itoa(len(joins)+1)
		joins = append(joins, database.Join{
			Table:        tableName(prop.Target),
			Alias:        alias,
			Column:       "_id",
			ParentTable:  table,
			ParentColumn: ref.ID,
		})
		aliases[prop.Name] = alias
	}
	return joins, aliases, nil
}

// knexColumns selects every column of tmpl's table as <prefix>___<column>.
func (r *fetchRun) knexColumns(tmpl *model.Template, tableRef, prefix string) []database.SelectColumn {
	seen := map[string]bool{}
	var cols []database.SelectColumn
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		cols = append(cols, database.SelectColumn{Table: tableRef, Column: name, As: prefix + columnSeparator + name})
	}
	add("_id")
	add("_template")
	add("__version__")

	store := storageTemplate(tmpl)
	for _, prop := range store.PropertiesRecursive() {
		if !prop.Persisted() {
			continue
		}
		switch rowKind(prop) {
		case model.KindOneToManyReferenced:
		case model.KindOneToOne:
			if ref := parentRefIn(store, prop.Name); ref != nil && ref.ID != "" {
				add(ref.ID)
			}
		default:
			if r.projected(tmpl, prop) {
				add(prop.Name)
			}
		}
	}
	return cols
}

// parentRefIn finds the parents entry of prop anywhere in the hierarchy of
// root.
func parentRefIn(root *model.Template, prop string) *model.ParentRef {
	for _, t := range root.Descendants() {
		if ref := t.ParentRef(prop); ref != nil {
			return ref
		}
	}
	return nil
}

// childRefIn finds the children entry of prop anywhere in the hierarchy of
// root.
func childRefIn(root *model.Template, prop string) *model.ChildRef {
	for _, t := range root.Descendants() {
		if ref := t.ChildRef(prop); ref != nil {
			return ref
		}
	}
	return nil
}

// fromRow materializes the object held by the prefix___ columns of row.
// Relationships are resolved through the work queue.
func (r *fetchRun) fromRow(row database.Row, tmpl *model.Template, prefix string, cascade model.Cascade, joins map[string]string, established *model.Object) (*model.Object, error) {
	column := func(name string) (interface{}, bool) {
		v, ok := row[prefix+columnSeparator+name]
		return v, ok
	}

	rawID, _ := column("_id")
	id := asString(rawID)
	if id == "" {
		return nil, nil
	}
	if established != nil && established.ID != id {
		return nil, nil
	}

	actual := tmpl
	if tmpl.Subset() == nil {
		rawTemplate, _ := column("_template")
		name := asString(rawTemplate)
		switch {
		case name == "" && established == nil:
			return nil, fmt.Errorf("%w: Missing _template on %s row %s", ErrMissingTemplate, tmpl.Name, id)
		case name == "":
			actual = established.Template()
		default:
			t, ok := r.p.registry.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s on %s row %s", model.ErrUnknownTemplate, name, tmpl.Name, id)
			}
			actual = t
		}
	}

	obj, cached := r.remember(id, actual, cascade, established)
	if cached {
		return obj, nil
	}
	rawVersion, _ := column("__version__")
	obj.Version = asInt64(rawVersion)
	track := r.trackChanges(actual)

	for _, prop := range actual.Properties() {
		if !prop.Persisted() {
			continue
		}
		switch rowKind(prop) {
		case model.KindOneToManyReferenced:
			if err := r.fetchOneToMany(obj, actual, prop, cascade); err != nil {
				return nil, err
			}

		case model.KindOneToOne:
			ref := actual.ParentRef(prop.Name)
			if ref == nil || ref.ID == "" {
				return nil, fmt.Errorf("%w: %s.%s is missing a parents schema entry", ErrConfiguration, actual.Name, prop.Name)
			}
			raw, present := column(ref.ID)
			foreignID := asString(raw)
			if !present {
				foreignID = obj.Persistor(prop.Name).ID
			}
			if track {
				obj.SetOriginal(prop.Name, foreignID)
			}
			var joined func(model.Cascade, func([]*model.Object) error) (bool, error)
			if alias, ok := joins[prop.Name]; ok {
				target := prop.Target
				joined = func(nested model.Cascade, done func([]*model.Object) error) (bool, error) {
					if row[alias+columnSeparator+"_id"] == nil {
						return true, done(nil)
					}
					r.queue.push(request{apply: func(context.Context, interface{}) error {
						if _, err := r.fromRow(row, target, alias, nested, nil, nil); err != nil {
							return err
						}
						return done(nil)
					}})
					return true, nil
				}
			}
			if err := r.fetchOneToOne(obj, actual, prop, foreignID, cascade, joined); err != nil {
				return nil, err
			}

		default:
			raw, present := column(prop.Name)
			if !present {
				continue
			}
			value, err := r.columnValue(prop, raw)
			if err != nil {
				r.p.debug("query", "parseColumn", map[string]interface{}{"template": actual.Name, "property": prop.Name, "error": err.Error()})
			}
			obj.Set(prop.Name, value)
			if track {
				obj.SetOriginal(prop.Name, originalValue(value))
			}
		}
	}
	return obj, nil
}

// columnValue converts a column value to the property's in-memory type.
// JSON columns that fail to parse read as nil.
func (r *fetchRun) columnValue(prop *model.Property, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	switch prop.Type {
	case model.TypeDate:
		if t, ok := asTime(raw); ok {
			return t, nil
		}
		return nil, fmt.Errorf("invalid date %v", raw)
	case model.TypeNumber:
		if f, ok := asFloat(raw); ok {
			return f, nil
		}
		return nil, fmt.Errorf("invalid number %v", raw)
	case model.TypeBoolean:
		b, _ := asBool(raw)
		return b, nil
	case model.TypeString:
		return asString(raw), nil
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(asString(raw)), &decoded); err != nil {
		return nil, err
	}
	switch prop.Type {
	case model.TypeRef:
		return r.p.objectFromEmbedded(prop.Target, decoded), nil
	case model.TypeRefArray:
		docs, _ := database.AsSlice(decoded)
		out := make([]*model.Object, 0, len(docs))
		for _, doc := range docs {
			if obj := r.p.objectFromEmbedded(prop.Target, doc); obj != nil {
				out = append(out, obj)
			}
		}
		return out, nil
	}
	return decoded, nil
}
