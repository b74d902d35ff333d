package persistor

import (
	"context"
	"fmt"
	"sort"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

const maskedValue = "****"

// rowKind is how prop is stored in a row. Relationships to templates
// without a table of their own live in a JSON column.
func rowKind(prop *model.Property) model.Kind {
	if prop.Kind.IsRelationship() && (prop.Target == nil || !prop.Target.HasTable()) {
		return model.KindJSON
	}
	return prop.Kind
}

// saveKnex flattens obj into a row and inserts or updates it. References to
// objects of other tables become foreign keys, and the children of
// referenced one-to-many properties are pointed back at obj.
func (p *Persistor) saveKnex(ctx context.Context, obj *model.Object, txn *Transaction) error {
	tmpl := obj.Template()
	p.debug("update", "persistSaveKnex", map[string]interface{}{"template": tmpl.Name, "id": obj.ID, "version": obj.Version})

	isUpdate := obj.Version > 0
	if obj.ID == "" {
		obj.ID = newID()
	}
	pojo := database.Row{"_id": obj.ID}
	switch s := tmpl.Subset(); {
	case s == nil:
		pojo["_template"] = tmpl.Name
	case !isUpdate:
		pojo["_template"] = s.Name
	}

	dataSaved := map[string]interface{}{}
	var prune []func(ctx context.Context) error

	for _, prop := range tmpl.Properties() {
		if !prop.Persisted() {
			continue
		}
		value := obj.Get(prop.Name)

		switch rowKind(prop) {
		case model.KindOneToManyReferenced:
			if !obj.Has(prop.Name) {
				continue
			}
			ref := tmpl.ChildRef(prop.Name)
			if ref == nil {
				return fmt.Errorf("%w: Missing children entry for %s in %s", ErrConfiguration, prop.Name, tmpl.Name)
			}
			if ref.Filter != nil && (ref.Filter.Property == "" || ref.Filter.Value == nil) {
				return fmt.Errorf("%w: Incorrect filter properties on %s in %s", ErrConfiguration, prop.Name, tmpl.Name)
			}
			if err := p.linkChildren(obj, prop, ref, txn); err != nil {
				return err
			}
			state := obj.Persistor(prop.Name)
			if ref.PruneOrphans && state.IsFetched {
				prune = append(prune, func(ctx context.Context) error {
					return p.pruneOrphans(ctx, obj, prop, ref, txn)
				})
			}
			state.IsFetching = false
			// a new object holds all of its children
			if !isUpdate {
				state.IsFetched = true
			}

		case model.KindOneToOne:
			ref := tmpl.ParentRef(prop.Name)
			if ref == nil || ref.ID == "" {
				return fmt.Errorf("%w: %s.%s is missing a parents schema entry", ErrConfiguration, tmpl.Name, prop.Name)
			}
			target := obj.Ref(prop.Name)
			if target == nil && obj.HasPersistor(prop.Name) {
				// an unloaded reference keeps its foreign key
				if state := obj.Persistor(prop.Name); !state.IsFetched && state.ID != "" {
					pojo[ref.ID] = state.ID
					continue
				}
			}
			var fk interface{}
			state := model.PropState{IsFetched: true}
			if target != nil {
				if target.ID == "" {
					target.ID = newID()
					p.SetDirty(target, txn)
				}
				fk = target.ID
				state.ID = target.ID
			}
			pojo[ref.ID] = fk
			obj.SetPersistor(prop.Name, state)
			if fk == nil {
				dataSaved[ref.ID] = "null"
			} else {
				dataSaved[ref.ID] = fk
			}

		default:
			column, err := columnFromValue(prop, value)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", tmpl.Name, prop.Name, err)
			}
			pojo[prop.Name] = column
			if prop.LogChanges {
				if prop.SensitiveData {
					dataSaved[prop.Name] = maskedValue
				} else {
					dataSaved[prop.Name] = column
				}
			}
		}
	}

	p.debug("update", "dataLogging", map[string]interface{}{"template": tmpl.Name, "_id": obj.ID, "values": dataSaved})

	if err := p.saveKnexPojo(ctx, obj, pojo, isUpdate, txn); err != nil {
		return err
	}
	for _, fn := range prune {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// linkChildren makes every child of a one-to-many property point back at
// obj through the parents entry sharing the children foreign key, marking
// repaired children dirty.
func (p *Persistor) linkChildren(obj *model.Object, prop *model.Property, ref *model.ChildRef, txn *Transaction) error {
	tmpl := obj.Template()
	for ix, child := range obj.Refs(prop.Name) {
		if child == nil {
			p.debug("update", "persistSaveKnex", map[string]interface{}{"message": fmt.Sprintf("%s.%s[%d] is null", obj.ID, prop.Name, ix)})
			continue
		}
		schema := child.Template().Schema
		if schema == nil || len(schema.Parents) == 0 {
			return fmt.Errorf("%w: Missing parent entry in %s for %s", ErrConfiguration, child.Template().Name, tmpl.Name)
		}
		parents := make([]string, 0, len(schema.Parents))
		for name := range schema.Parents {
			parents = append(parents, name)
		}
		sort.Strings(parents)

		for _, parentProp := range parents {
			if schema.Parents[parentProp].ID != ref.ID {
				continue
			}
			linked := child.HasPersistor(parentProp)
			state := child.Persistor(parentProp)
			filterDrift := ref.Filter != nil && !database.Equal(child.Get(ref.Filter.Property), ref.Filter.Value)
			if !linked || state.ID == "" || state.ID != obj.ID || filterDrift {
				if ref.Filter != nil {
					child.Set(ref.Filter.Property, ref.Filter.Value)
				}
				if child.Ref(parentProp) != obj {
					child.Set(parentProp, obj)
				}
				p.SetDirty(child, txn)
			}
		}
		if child.ID == "" {
			child.ID = newID()
		}
	}
	return nil
}

// columnFromValue converts a scalar, date, boolean or JSON property to its
// column value. Objects without a table of their own are stored as JSON.
func columnFromValue(prop *model.Property, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch prop.Type {
	case model.TypeDate:
		if t, ok := asTime(value); ok && !t.IsZero() {
			return t, nil
		}
		return nil, nil
	case model.TypeBoolean:
		b, _ := asBool(value)
		return b, nil
	case model.TypeNumber:
		if f, ok := asFloat(value); ok {
			return f, nil
		}
		return nil, fmt.Errorf("%w: %v is not a number", database.ErrInvalidData, value)
	case model.TypeString:
		return asString(value), nil
	}

	switch v := value.(type) {
	case *model.Object:
		if v == nil {
			return nil, nil
		}
	case []*model.Object:
		if v == nil {
			return nil, nil
		}
	}
	encoded, err := toJSON(snapshotValue(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", database.ErrInvalidData, err)
	}
	return encoded, nil
}

// saveKnexPojo writes the row of obj. Updates are guarded by the version
// obj was loaded with; when no row matches, the version is restored and the
// transaction's conflict handler is called, or ErrUpdateConflict returned.
func (p *Persistor) saveKnexPojo(ctx context.Context, obj *model.Object, pojo database.Row, isUpdate bool, txn *Transaction) error {
	tmpl := obj.Template()
	client, err := p.sqlClient(tmpl, txn)
	if err != nil {
		return err
	}
	table := tableName(tmpl)

	original := obj.Version
	obj.Version = original + 1
	pojo["__version__"] = obj.Version

	kind := "insert"
	if isUpdate {
		kind = "update"
	}
	p.debug("update", "saveKnexPojo", map[string]interface{}{
		"txn": txn.ID, "type": kind, "template": tmpl.Name, "_id": obj.ID, "__version__": obj.Version,
	})

	if !isUpdate {
		if err := client.Insert(ctx, table, pojo); err != nil {
			obj.Version = original
			return err
		}
		return nil
	}

	where := database.And(
		database.Eq(database.Col(table, "__version__"), original),
		database.Eq(database.Col(table, "_id"), obj.ID),
	)
	updated, err := client.Update(ctx, table, pojo, where)
	if err != nil {
		obj.Version = original
		return err
	}
	if updated < 1 {
		return p.versionConflict(obj, original, txn)
	}
	return nil
}

// versionConflict handles an update that matched no stored version: the
// version of obj is restored and the transaction's conflict handler called,
// or ErrUpdateConflict returned when there is none.
func (p *Persistor) versionConflict(obj *model.Object, original int64, txn *Transaction) error {
	tmpl := obj.Template()
	p.debug("update", "updateConflict", map[string]interface{}{"txn": txn.ID, "_id": obj.ID, "__version__": original})
	obj.Version = original
	if txn.OnUpdateConflict != nil {
		txn.OnUpdateConflict(obj)
		txn.updateConflict = true
		p.conflict(tmpl.Name)
		return nil
	}
	return fmt.Errorf("%w: %s %s at version %d", ErrUpdateConflict, tmpl.Name, obj.ID, original)
}

// pruneOrphans deletes the children rows that still point at obj but are
// no longer part of the in-memory property.
func (p *Persistor) pruneOrphans(ctx context.Context, obj *model.Object, prop *model.Property, ref *model.ChildRef, txn *Transaction) error {
	client, err := p.sqlClient(prop.Target, txn)
	if err != nil {
		return err
	}
	table := tableName(prop.Target)

	var keep []interface{}
	for _, child := range obj.Refs(prop.Name) {
		if child != nil && child.ID != "" {
			keep = append(keep, child.ID)
		}
	}
	var conds []database.Condition
	if len(keep) > 0 {
		conds = append(conds, database.NotIn(database.Col(table, "_id"), keep))
	}
	conds = append(conds, database.Eq(database.Col(table, ref.ID), obj.ID))
	if ref.Filter != nil {
		conds = append(conds, database.Eq(database.Col(table, ref.Filter.Property), ref.Filter.Value))
	}

	n, err := client.Delete(ctx, database.Criteria{Table: table, Where: database.And(conds...)})
	if err != nil {
		return err
	}
	if n > 0 {
		p.debug("update", "knexPruneOrphans", map[string]interface{}{"count": n, "table": table, "id": obj.ID})
	}
	return nil
}

func (p *Persistor) deleteKnex(ctx context.Context, obj *model.Object, txn *Transaction) error {
	tmpl := obj.Template()
	client, err := p.sqlClient(tmpl, txn)
	if err != nil {
		return err
	}
	table := tableName(tmpl)
	p.debug("update", "deleteFromKnexId", map[string]interface{}{"template": tmpl.Name, "_id": obj.ID})
	_, err = client.Delete(ctx, database.Criteria{Table: table, Where: database.Eq(database.Col(table, "_id"), obj.ID)})
	return err
}

// touchKnex bumps the version of obj without writing anything else.
func (p *Persistor) touchKnex(ctx context.Context, obj *model.Object, txn *Transaction) error {
	tmpl := obj.Template()
	client, err := p.sqlClient(tmpl, txn)
	if err != nil {
		return err
	}
	table := tableName(tmpl)
	p.debug("update", "persistTouchKnex", map[string]interface{}{"template": tmpl.Name, "table": table})

	obj.Version++
	if _, err := client.Increment(ctx, table, "__version__", database.Eq(database.Col(table, "_id"), obj.ID)); err != nil {
		obj.Version--
		return err
	}
	return nil
}

func (p *Persistor) deleteKnexQuery(ctx context.Context, tmpl *model.Template, q Query, txn *Transaction) (int64, error) {
	client, err := p.sqlClient(tmpl, txn)
	if err != nil {
		return 0, err
	}
	table := tableName(tmpl)
	where, err := restrictToTemplate(tmpl, q).condition(table)
	if err != nil {
		return 0, err
	}
	p.debug("update", "deleteFromKnexQuery", map[string]interface{}{"template": tmpl.Name, "where": where.String()})
	return client.Delete(ctx, database.Criteria{Table: table, Where: where})
}
