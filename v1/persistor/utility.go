package persistor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// newID returns a fresh primary key. Both backends use the hex form of a
// Mongo ObjectID so ids sort by creation time.
func newID() string {
	return primitive.NewObjectID().Hex()
}

// subDocumentID encodes the owning document in the id of an embedded object.
func subDocumentID(masterID string) string {
	return masterID + ":" + newID()
}

// tableName returns the physical table of a relational template.
func tableName(t *model.Template) string {
	return database.Dealias(t.Table)
}

// storageTemplate is the template whose hierarchy defines the columns of t's
// table.
func storageTemplate(t *model.Template) *model.Template {
	if s := t.Subset(); s != nil {
		return s.Root()
	}
	return t.Root()
}

// processCascade layers fetch specs on top of a relationship's query, in
// ascending priority: property declaration, schema entry, call site. Each
// setting is taken from the highest layer that sets it; for Query that is
// the whole map, which is then merged into the filter. filter is never
// modified.
func processCascade(filter model.Filter, opts *model.QueryOptions, call, schema, prop *model.Fetch) (model.Filter, model.Cascade) {
	var cascade model.Cascade
	var query model.Filter
	for _, spec := range []*model.Fetch{prop, schema, call} {
		if spec == nil || spec.Disabled {
			continue
		}
		if spec.Cascade != nil {
			cascade = spec.Cascade
		}
		if spec.Query != nil {
			query = spec.Query
		}
		if len(spec.Options.Sort) > 0 {
			opts.Sort = spec.Options.Sort
		}
		if spec.Options.Limit > 0 {
			opts.Limit = spec.Options.Limit
		}
		if spec.Options.Offset > 0 {
			opts.Offset = spec.Options.Offset
		}
	}
	out := filter.Clone()
	for k, v := range query {
		out[k] = v
	}
	return out, cascade
}

// allRequiredChildrenAvailable reports whether a cached object already
// carries every relationship the cascade asks for.
func allRequiredChildrenAvailable(obj *model.Object, cascade model.Cascade) bool {
	for prop, spec := range cascade {
		if !spec.Requested() {
			continue
		}
		if !obj.HasPersistor(prop) || !obj.Persistor(prop).IsFetched {
			return false
		}
	}
	return true
}

// fetchRequested combines the property, schema and call site specs of a
// relationship: any of them may ask for it, an explicit false at the call
// site vetoes it.
func fetchRequested(prop *model.Property, schemaSpec, call *model.Fetch) bool {
	if call != nil && call.Disabled {
		return false
	}
	return prop.FetchRequested() || schemaSpec.Requested() || call.Requested()
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case primitive.ObjectID:
		return t.Hex()
	}
	return fmt.Sprint(v)
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(t), 10, 64)
		return n
	}
	return 0
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case int64:
		return t != 0, true
	case int:
		return t != 0, true
	case []byte:
		return string(t) == "1" || string(t) == "true", true
	case string:
		return t == "1" || t == "true", true
	}
	return false, false
}

// asTime reads dates stored as timestamps, RFC 3339 strings or epoch
// milliseconds.
func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	if ms, ok := asFloat(v); ok && !math.IsNaN(ms) {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}

func toJSON(v interface{}) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// getTopObject climbs one-to-one references until it reaches an object of
// a top-level document template. It returns nil for orphans.
func getTopObject(obj *model.Object) *model.Object {
	seen := map[string]bool{}
	var climb func(o *model.Object) *model.Object
	climb = func(o *model.Object) *model.Object {
		if o == nil || seen[o.InstanceID()] {
			return nil
		}
		seen[o.InstanceID()] = true
		if s := o.Template().Schema; s != nil && s.DocumentOf != "" {
			return o
		}
		for _, prop := range o.Template().Properties() {
			if prop.Kind != model.KindOneToOne {
				continue
			}
			if top := climb(o.Ref(prop.Name)); top != nil {
				return top
			}
		}
		return nil
	}
	return climb(obj)
}

// enumerateDocumentObjects visits obj and every object reachable from it
// through relationships, once each.
func enumerateDocumentObjects(obj *model.Object, visit func(*model.Object)) {
	seen := map[string]bool{}
	var walk func(o *model.Object)
	walk = func(o *model.Object) {
		if o == nil || seen[o.InstanceID()] {
			return
		}
		seen[o.InstanceID()] = true
		visit(o)
		for _, prop := range o.Template().Properties() {
			if !prop.Persisted() {
				continue
			}
			switch prop.Type {
			case model.TypeRef:
				walk(o.Ref(prop.Name))
			case model.TypeRefArray:
				for _, child := range o.Refs(prop.Name) {
					walk(child)
				}
			}
		}
	}
	walk(obj)
}

// localLocker serialises schema synchronisation inside one process.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: map[string]chan struct{}{}}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
