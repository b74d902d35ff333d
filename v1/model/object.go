package model

import (
	"time"

	"github.com/google/uuid"
)

// PropState is the persistor shadow of one relationship property: it tracks
// whether the related objects were loaded and, for unloaded one-to-one
// relationships, the id they point at.
type PropState struct {
	IsFetched  bool
	IsFetching bool
	ID         string
	Start      int
	Next       int
}

// Object is an instance of a template.
type Object struct {
	template   *Template
	instanceID string

	// ID is the persistent identity (_id). Empty until first saved.
	ID string
	// Version is the optimistic lock counter (__version__). Zero until first saved.
	Version int64

	values    map[string]interface{}
	shadows   map[string]*PropState
	originals map[string]interface{}

	dirty     bool
	deleted   bool
	transient bool
}

// NewObject creates a fresh, unsaved instance.
func NewObject(t *Template) *Object {
	return &Object{
		template:   t,
		instanceID: t.Name + "-" + uuid.NewString(),
		values:     map[string]interface{}{},
		shadows:    map[string]*PropState{},
	}
}

// LoadedObject creates the instance for a row or document with the given id.
func LoadedObject(t *Template, id string) *Object {
	return &Object{
		template:   t,
		instanceID: "persist-" + t.Name + "-" + id,
		ID:         id,
		values:     map[string]interface{}{},
		shadows:    map[string]*PropState{},
	}
}

// Template returns the object's template.
func (o *Object) Template() *Template { return o.template }

// InstanceID identifies the object in memory; transactions key on it.
func (o *Object) InstanceID() string { return o.instanceID }

// Get returns the raw value of prop.
func (o *Object) Get(prop string) interface{} {
	return o.values[prop]
}

// Has reports whether prop was ever assigned.
func (o *Object) Has(prop string) bool {
	_, ok := o.values[prop]
	return ok
}

// Set assigns prop.
func (o *Object) Set(prop string, value interface{}) *Object {
	o.values[prop] = value
	return o
}

// String returns prop as a string, or "".
func (o *Object) String(prop string) string {
	s, _ := o.values[prop].(string)
	return s
}

// Number returns prop as a float64, or 0.
func (o *Object) Number(prop string) float64 {
	switch v := o.values[prop].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns prop as a bool.
func (o *Object) Bool(prop string) bool {
	b, _ := o.values[prop].(bool)
	return b
}

// Time returns prop as a time.Time.
func (o *Object) Time(prop string) time.Time {
	t, _ := o.values[prop].(time.Time)
	return t
}

// Ref returns the object referenced by a one-to-one property.
func (o *Object) Ref(prop string) *Object {
	r, _ := o.values[prop].(*Object)
	return r
}

// Refs returns the objects of a one-to-many property.
func (o *Object) Refs(prop string) []*Object {
	r, _ := o.values[prop].([]*Object)
	return r
}

// Append adds children to a one-to-many property.
func (o *Object) Append(prop string, children ...*Object) *Object {
	o.values[prop] = append(o.Refs(prop), children...)
	return o
}

// Persistor returns the shadow state of a relationship property, creating it
// on first use.
func (o *Object) Persistor(prop string) *PropState {
	s, ok := o.shadows[prop]
	if !ok {
		s = &PropState{}
		o.shadows[prop] = s
	}
	return s
}

// HasPersistor reports whether prop has shadow state.
func (o *Object) HasPersistor(prop string) bool {
	_, ok := o.shadows[prop]
	return ok
}

// SetPersistor replaces the shadow state of prop.
func (o *Object) SetPersistor(prop string, state PropState) {
	s := state
	o.shadows[prop] = &s
}

// SetOriginal records the loaded value of prop for change tracking.
func (o *Object) SetOriginal(prop string, value interface{}) {
	if o.originals == nil {
		o.originals = map[string]interface{}{}
	}
	o.originals[prop] = value
}

// Original returns the loaded value of prop, if tracked.
func (o *Object) Original(prop string) (interface{}, bool) {
	v, ok := o.originals[prop]
	return v, ok
}

// Tracking reports whether the object carries a change tracking baseline.
func (o *Object) Tracking() bool { return o.originals != nil }

// IsDirty reports whether the object awaits saving.
func (o *Object) IsDirty() bool { return o.dirty }

// SetDirtyFlag sets the dirty flag without enlisting the object anywhere.
func (o *Object) SetDirtyFlag(dirty bool) { o.dirty = dirty }

// IsDeleted reports whether the object was marked for deletion.
func (o *Object) IsDeleted() bool { return o.deleted }

// SetDeletedFlag sets the deleted flag.
func (o *Object) SetDeletedFlag(deleted bool) { o.deleted = deleted }

// IsTransient reports whether the object is excluded from saving.
func (o *Object) IsTransient() bool { return o.transient }

// SetTransient excludes the object from saving.
func (o *Object) SetTransient(transient bool) { o.transient = transient }
