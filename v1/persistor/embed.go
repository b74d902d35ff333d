package persistor

import (
	"time"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// embeddedDoc flattens an object without a table of its own into the JSON
// document stored in its owner's column.
func embeddedDoc(obj *model.Object, seen map[string]bool) map[string]interface{} {
	if obj == nil || seen[obj.InstanceID()] {
		return nil
	}
	seen[obj.InstanceID()] = true
	defer delete(seen, obj.InstanceID())

	doc := map[string]interface{}{"_template": obj.Template().Name}
	if obj.ID != "" {
		doc["_id"] = obj.ID
	}
	for _, prop := range obj.Template().Properties() {
		if !prop.Persisted() || !obj.Has(prop.Name) {
			continue
		}
		switch prop.Type {
		case model.TypeRef:
			if ref := obj.Ref(prop.Name); ref != nil {
				doc[prop.Name] = embeddedDoc(ref, seen)
			}
		case model.TypeRefArray:
			list := make([]interface{}, 0, len(obj.Refs(prop.Name)))
			for _, child := range obj.Refs(prop.Name) {
				if d := embeddedDoc(child, seen); d != nil {
					list = append(list, d)
				}
			}
			doc[prop.Name] = list
		case model.TypeDate:
			if t, ok := obj.Get(prop.Name).(time.Time); ok {
				doc[prop.Name] = t.UTC().Format(time.RFC3339Nano)
			}
		default:
			doc[prop.Name] = obj.Get(prop.Name)
		}
	}
	return doc
}

// objectFromEmbedded rebuilds an embedded object from its JSON document.
func (p *Persistor) objectFromEmbedded(tmpl *model.Template, v interface{}) *model.Object {
	doc, ok := database.AsMap(v)
	if !ok {
		return nil
	}
	actual := tmpl
	if name := asString(doc["_template"]); name != "" {
		if t, ok := p.registry.Lookup(name); ok {
			actual = t
		}
	}
	var obj *model.Object
	if id := asString(doc["_id"]); id != "" {
		obj = model.LoadedObject(actual, id)
	} else {
		obj = model.NewObject(actual)
	}
	for _, prop := range actual.Properties() {
		raw, present := doc[prop.Name]
		if !prop.Persisted() || !present {
			continue
		}
		switch prop.Type {
		case model.TypeRef:
			obj.Set(prop.Name, p.objectFromEmbedded(prop.Target, raw))
		case model.TypeRefArray:
			items, _ := database.AsSlice(raw)
			list := make([]*model.Object, 0, len(items))
			for _, item := range items {
				if child := p.objectFromEmbedded(prop.Target, item); child != nil {
					list = append(list, child)
				}
			}
			obj.Set(prop.Name, list)
		case model.TypeDate:
			if t, ok := asTime(raw); ok {
				obj.Set(prop.Name, t)
			} else {
				obj.Set(prop.Name, nil)
			}
		case model.TypeNumber:
			if f, ok := asFloat(raw); ok {
				obj.Set(prop.Name, f)
			} else {
				obj.Set(prop.Name, nil)
			}
		default:
			obj.Set(prop.Name, raw)
		}
	}
	return obj
}
