package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Filter is a Mongo-style query document: field names map to values or to
// operator documents ($eq, $gt, $in, ...), and $and/$or combine sub-filters.
type Filter map[string]interface{}

// Clone returns a shallow copy of the filter so callers' filters are never
// mutated.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Sort is an ordered list of sort fields.
type Sort []SortField

// Asc sorts by field ascending.
func Asc(field string) SortField { return SortField{Field: field} }

// Desc sorts by field descending.
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// UnmarshalJSON reads the {"field": 1, "other": -1} notation, keeping key order.
func (s *Sort) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("sort must be an object, got %s", string(data))
	}
	var out Sort
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var dir float64
		if err := dec.Decode(&dir); err != nil {
			return fmt.Errorf("sort direction for %v: %w", keyTok, err)
		}
		out = append(out, SortField{Field: keyTok.(string), Desc: dir < 0})
	}
	*s = out
	return nil
}

// QueryOptions carries paging and ordering for a query.
type QueryOptions struct {
	Sort   Sort
	Limit  int
	Offset int
}

// Fetch describes whether and how a relationship is loaded. A nil *Fetch means
// "not specified"; Disabled mirrors an explicit false.
type Fetch struct {
	Disabled bool
	NoJoin   bool
	// Cascade applies to the properties of the fetched objects.
	Cascade Cascade
	// Query is merged into the relationship's query.
	Query   Filter
	Options QueryOptions
}

// Cascade maps property names to fetch specs.
type Cascade map[string]*Fetch

// FetchAll is the equivalent of `true` in a cascade spec.
func FetchAll() *Fetch { return &Fetch{} }

// NoFetch is the equivalent of `false` in a cascade spec.
func NoFetch() *Fetch { return &Fetch{Disabled: true} }

// Get returns the fetch settings for prop, or nil.
func (c Cascade) Get(prop string) *Fetch {
	if c == nil {
		return nil
	}
	return c[prop]
}

// Requested reports whether f asks for the relationship to be loaded.
func (f *Fetch) Requested() bool {
	return f != nil && !f.Disabled
}

type fetchJSON struct {
	Fetch  Cascade `json:"fetch"`
	Query  Filter  `json:"query"`
	Sort   Sort    `json:"sort"`
	Limit  int     `json:"limit"`
	Skip   int     `json:"skip"`
	Offset int     `json:"offset"`
	NoJoin bool    `json:"nojoin"`
}

// UnmarshalJSON accepts true, false or an object with fetch/query/sort/limit/
// offset/nojoin keys.
func (f *Fetch) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch string(trimmed) {
	case "true":
		*f = Fetch{}
		return nil
	case "false":
		*f = Fetch{Disabled: true}
		return nil
	}
	var raw fetchJSON
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("invalid fetch spec: %w", err)
	}
	offset := raw.Offset
	if offset == 0 {
		offset = raw.Skip
	}
	*f = Fetch{
		NoJoin:  raw.NoJoin,
		Cascade: raw.Fetch,
		Query:   raw.Query,
		Options: QueryOptions{Sort: raw.Sort, Limit: raw.Limit, Offset: offset},
	}
	return nil
}
