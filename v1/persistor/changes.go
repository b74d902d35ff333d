package persistor

import (
	"encoding/json"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// Change actions.
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ChangeTracking groups the changes of one commit by template name.
type ChangeTracking map[string][]ObjectChanges

// ObjectChanges describes what a commit did to one object.
type ObjectChanges struct {
	Table      string            `json:"table"`
	PrimaryKey string            `json:"primaryKey"`
	Action     string            `json:"action"`
	Properties []PropertyChanges `json:"properties"`
}

// PropertyChanges is one changed property. One-to-one relationships report
// the referenced ids and their foreign key column.
type PropertyChanges struct {
	Name          string      `json:"name"`
	OriginalValue interface{} `json:"originalValue"`
	NewValue      interface{} `json:"newValue"`
	ColumnName    string      `json:"columnName"`
}

// Len returns the number of object changes.
func (c ChangeTracking) Len() int {
	n := 0
	for _, list := range c {
		n += len(list)
	}
	return n
}

func changeTrackingEnabled(obj *model.Object) bool {
	s := obj.Template().Schema
	return s != nil && s.EnableChangeTracking
}

// generateChanges records the change of obj when the commit asked for
// notifications and its template enables change tracking. Updates and
// deletes compare every property with the value it was loaded with.
func generateChanges(obj *model.Object, action string, changes ChangeTracking, notify bool) {
	if !notify || !changeTrackingEnabled(obj) {
		return
	}
	tmpl := obj.Template()
	rec := ObjectChanges{
		Table:      tmpl.Table,
		PrimaryKey: obj.ID,
		Action:     action,
		Properties: []PropertyChanges{},
	}
	if action == ActionUpdate || action == ActionDelete {
		for _, prop := range tmpl.Properties() {
			if !prop.Persisted() || prop.Type == model.TypeRefArray {
				continue
			}
			if change, ok := propertyChange(obj, prop); ok {
				rec.Properties = append(rec.Properties, change)
			}
		}
	}
	changes[tmpl.Name] = append(changes[tmpl.Name], rec)
}

func propertyChange(obj *model.Object, prop *model.Property) (PropertyChanges, bool) {
	original, _ := obj.Original(prop.Name)

	if prop.Type == model.TypeRef && prop.Target != nil && (prop.Target.HasTable() || prop.CrossDocument) {
		if !obj.HasPersistor(prop.Name) {
			return PropertyChanges{}, false
		}
		current := obj.Persistor(prop.Name).ID
		if ref := obj.Ref(prop.Name); ref != nil {
			current = ref.ID
		}
		if asString(original) == current {
			return PropertyChanges{}, false
		}
		column := prop.Name
		if ref := obj.Template().ParentRef(prop.Name); ref != nil && ref.ID != "" {
			column = ref.ID
		}
		return PropertyChanges{Name: prop.Name, OriginalValue: original, NewValue: current, ColumnName: column}, true
	}

	current := obj.Get(prop.Name)
	var same bool
	switch prop.Kind {
	case model.KindDate, model.KindJSON, model.KindOneToOne, model.KindOneToManyEmbedded:
		a, errA := toJSON(snapshotValue(original))
		b, errB := toJSON(snapshotValue(current))
		same = errA == nil && errB == nil && a == b
	default:
		same = database.Equal(original, current) || (original == nil && current == nil)
	}
	if same {
		return PropertyChanges{}, false
	}
	return PropertyChanges{Name: prop.Name, OriginalValue: original, NewValue: current, ColumnName: prop.Name}, true
}

// snapshotValue maps embedded objects to their stored documents.
func snapshotValue(v interface{}) interface{} {
	switch t := v.(type) {
	case *model.Object:
		return embeddedDoc(t, map[string]bool{})
	case []*model.Object:
		out := make([]interface{}, 0, len(t))
		for _, o := range t {
			out = append(out, embeddedDoc(o, map[string]bool{}))
		}
		return out
	}
	return v
}

// originalValue copies a loaded value so later in-place edits of maps,
// slices and embedded objects do not leak into the change tracking baseline.
func originalValue(v interface{}) interface{} {
	v = snapshotValue(v)
	if _, ok := database.AsMap(v); !ok {
		if _, ok := database.AsSlice(v); !ok {
			return v
		}
	}
	encoded, err := toJSON(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal([]byte(encoded), &out); err != nil {
		return v
	}
	return out
}
