package persistor

import (
	"context"
	"fmt"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// documentWriter flattens the object graph of one top level document.
type documentWriter struct {
	p   *Persistor
	txn *Transaction
	top *model.Object

	// seen holds the instance ids embedded so far; a second occurrence is
	// stored as a bare {_id} reference.
	seen     map[string]bool
	embedded []*model.Object
	logged   map[string]interface{}
}

// saveMongo saves the document obj belongs to. Objects that are not top
// level documents themselves are saved through the document found by
// climbing their one-to-one references.
func (p *Persistor) saveMongo(ctx context.Context, h *database.Handle, obj *model.Object, txn *Transaction) error {
	if isDocumentTemplate(obj.Template()) {
		return p.saveMongoDocument(ctx, h, obj, txn)
	}
	top := getTopObject(obj)
	if top == nil {
		return fmt.Errorf("%w: Attempt to save %s which has no top level document", ErrOrphanDocument, obj.Template().Name)
	}
	p.debug("mongo", "persistSave", map[string]interface{}{"template": obj.Template().Name, "top": top.Template().Name})
	top.SetDirtyFlag(true)
	return p.persistSave(ctx, top, txn)
}

// saveMongoDocument writes top with everything embedded in it. Inserts
// happen for documents never saved; updates replace the stored document
// only when it still carries the version top was loaded with.
func (p *Persistor) saveMongoDocument(ctx context.Context, h *database.Handle, top *model.Object, txn *Transaction) error {
	if h.Docs == nil {
		return fmt.Errorf("%w: no document store for %s", ErrConfiguration, top.Template().Collection)
	}
	if top.ID == "" {
		top.ID = newID()
	}
	w := &documentWriter{p: p, txn: txn, top: top, seen: map[string]bool{}, logged: map[string]interface{}{}}
	doc, err := w.document(top)
	if err != nil {
		return err
	}

	collection := database.Dealias(top.Template().Collection)
	original := top.Version
	top.Version = original + 1
	doc["__version__"] = top.Version

	p.debug("mongo", "savePojoToMongo", map[string]interface{}{
		"txn": txn.ID, "template": top.Template().Name, "collection": collection, "_id": top.ID, "__version__": top.Version,
	})
	p.debug("update", "dataLogging", map[string]interface{}{"template": top.Template().Name, "_id": top.ID, "values": w.logged})

	if original == 0 {
		if err := h.Docs.Insert(ctx, collection, doc); err != nil {
			top.Version = original
			return err
		}
	} else {
		matched, err := h.Docs.Replace(ctx, collection, map[string]interface{}{"_id": top.ID, "__version__": original}, doc)
		if err != nil {
			top.Version = original
			return err
		}
		if matched < 1 {
			return p.versionConflict(top, original, txn)
		}
	}

	for _, obj := range w.embedded {
		obj.Version = top.Version
		obj.SetDirtyFlag(false)
		txn.saved.add(obj)
	}
	return nil
}

// document builds the stored form of obj. Sub-documents get ids that name
// their top level document.
func (w *documentWriter) document(obj *model.Object) (database.Document, error) {
	if obj.ID == "" {
		obj.ID = subDocumentID(w.top.ID)
	}
	if w.seen[obj.InstanceID()] {
		return database.Document{"_id": obj.ID}, nil
	}
	w.seen[obj.InstanceID()] = true
	if obj != w.top {
		w.embedded = append(w.embedded, obj)
	}

	tmpl := obj.Template()
	doc := database.Document{"_id": obj.ID, "_template": tmpl.Name}
	for _, prop := range tmpl.Properties() {
		if !prop.Persisted() {
			continue
		}
		switch prop.Kind {
		case model.KindOneToOne:
			if prop.CrossDocument {
				if err := w.reference(doc, obj, prop); err != nil {
					return nil, err
				}
				continue
			}
			if !obj.Has(prop.Name) {
				continue
			}
			target := obj.Ref(prop.Name)
			if target == nil {
				doc[prop.Name] = nil
				continue
			}
			sub, err := w.document(target)
			if err != nil {
				return nil, err
			}
			doc[prop.Name] = sub
			obj.SetPersistor(prop.Name, model.PropState{IsFetched: true, ID: target.ID})

		case model.KindOneToManyReferenced:
			if !obj.Has(prop.Name) {
				continue
			}
			ref := tmpl.ChildRef(prop.Name)
			if ref == nil {
				return nil, fmt.Errorf("%w: Missing children entry for %s in %s", ErrConfiguration, prop.Name, tmpl.Name)
			}
			if err := w.p.linkChildren(obj, prop, ref, w.txn); err != nil {
				return nil, err
			}
			state := obj.Persistor(prop.Name)
			state.IsFetching = false
			if obj.Version == 0 {
				state.IsFetched = true
			}

		case model.KindOneToManyEmbedded:
			if !obj.Has(prop.Name) {
				continue
			}
			children := obj.Refs(prop.Name)
			list := make([]interface{}, 0, len(children))
			for _, child := range children {
				if child == nil {
					continue
				}
				sub, err := w.document(child)
				if err != nil {
					return nil, err
				}
				list = append(list, sub)
			}
			doc[prop.Name] = list

		default:
			if !obj.Has(prop.Name) {
				continue
			}
			value, err := storedValue(prop, obj.Get(prop.Name))
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", tmpl.Name, prop.Name, err)
			}
			doc[prop.Name] = value
			if prop.LogChanges {
				if prop.SensitiveData {
					w.logged[prop.Name] = maskedValue
				} else {
					w.logged[prop.Name] = value
				}
			}
		}
	}
	return doc, nil
}

// reference stores a one-to-one relationship to another document as the
// id of that document. A referenced object without an id gets one now and
// is enlisted so the commit saves it in a later pass.
func (w *documentWriter) reference(doc database.Document, obj *model.Object, prop *model.Property) error {
	tmpl := obj.Template()
	ref := tmpl.ParentRef(prop.Name)
	if ref == nil || ref.ID == "" {
		return fmt.Errorf("%w: %s.%s is missing a parents schema entry", ErrConfiguration, tmpl.Name, prop.Name)
	}
	target := obj.Ref(prop.Name)
	if target == nil && obj.HasPersistor(prop.Name) {
		if state := obj.Persistor(prop.Name); !state.IsFetched && state.ID != "" {
			doc[ref.ID] = state.ID
			return nil
		}
	}
	if target == nil {
		doc[ref.ID] = nil
		obj.SetPersistor(prop.Name, model.PropState{IsFetched: true})
		return nil
	}
	if target.ID == "" {
		if isDocumentTemplate(target.Template()) || target.Template().HasTable() {
			target.ID = newID()
		} else if top := getTopObject(target); top != nil && top.ID != "" {
			target.ID = subDocumentID(top.ID)
		} else {
			target.ID = newID()
		}
		w.p.SetDirty(target, w.txn)
	}
	doc[ref.ID] = target.ID
	obj.SetPersistor(prop.Name, model.PropState{IsFetched: true, ID: target.ID})
	return nil
}

// storedValue converts a scalar, date, boolean or JSON property to its
// document form. Dates are stored as epoch milliseconds.
func storedValue(prop *model.Property, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch prop.Kind {
	case model.KindDate:
		if t, ok := asTime(value); ok && !t.IsZero() {
			return t.UnixMilli(), nil
		}
		return nil, nil
	case model.KindBoolean:
		b, _ := asBool(value)
		return b, nil
	case model.KindScalar:
		if prop.Type == model.TypeNumber {
			if f, ok := asFloat(value); ok {
				return f, nil
			}
			return nil, fmt.Errorf("%w: %v is not a number", database.ErrInvalidData, value)
		}
		return asString(value), nil
	}
	return snapshotValue(value), nil
}

// deleteMongo removes a top level document. Embedded objects disappear by
// saving their document without them.
func (p *Persistor) deleteMongo(ctx context.Context, h *database.Handle, obj *model.Object) error {
	tmpl := obj.Template()
	if !isDocumentTemplate(tmpl) {
		return fmt.Errorf("%w: %s is embedded in another document, remove it there and save the document",
			database.ErrUnsupported, tmpl.Name)
	}
	collection := database.Dealias(tmpl.Collection)
	p.debug("mongo", "deleteFromPersistWithMongoId", map[string]interface{}{"template": tmpl.Name, "_id": obj.ID})
	_, err := h.Docs.Remove(ctx, collection, map[string]interface{}{"_id": obj.ID})
	return err
}

// touchMongo bumps the version of the document obj belongs to.
func (p *Persistor) touchMongo(ctx context.Context, h *database.Handle, obj *model.Object) error {
	top := obj
	if !isDocumentTemplate(obj.Template()) {
		if top = getTopObject(obj); top == nil {
			return fmt.Errorf("%w: Attempt to touch %s which has no top level document", ErrOrphanDocument, obj.Template().Name)
		}
	}
	collection := database.Dealias(top.Template().Collection)
	p.debug("mongo", "persistTouch", map[string]interface{}{"template": top.Template().Name, "_id": top.ID})
	if _, err := h.Docs.Increment(ctx, collection, map[string]interface{}{"_id": top.ID}, "__version__"); err != nil {
		return err
	}
	top.Version++
	if obj != top {
		obj.Version = top.Version
	}
	return nil
}

// deleteMongoQuery removes the top level documents of tmpl matching q.
func (p *Persistor) deleteMongoQuery(ctx context.Context, h *database.Handle, tmpl *model.Template, q Query) (int64, error) {
	if q.Chain != nil {
		return 0, fmt.Errorf("%w: query callbacks need a relational database, %s is stored in %s",
			database.ErrUnsupported, tmpl.Name, tmpl.Collection)
	}
	if !isDocumentTemplate(tmpl) {
		return 0, fmt.Errorf("%w: %s is embedded in other documents and cannot be deleted by query",
			database.ErrUnsupported, tmpl.Name)
	}
	collection := database.Dealias(tmpl.Collection)
	filter := map[string]interface{}(restrictToTemplate(tmpl, q).Filter)
	if filter == nil {
		filter = map[string]interface{}{}
	}
	p.debug("mongo", "deleteFromMongoQuery", map[string]interface{}{"template": tmpl.Name, "collection": collection})
	return h.Docs.Remove(ctx, collection, filter)
}
