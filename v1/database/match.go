package database

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// AsMap returns v as a string-keyed map when it is one, whatever its named
// type.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// AsSlice returns v as a []interface{} when it is a slice or array other than
// []byte.
func AsSlice(v interface{}) ([]interface{}, bool) {
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// IsOperatorDocument reports whether m holds query operators ($gt, $in, ...).
func IsOperatorDocument(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// MatchDocument evaluates a Mongo-style filter against a document. Dotted
// paths descend into nested documents and arrays.
func MatchDocument(filter map[string]interface{}, doc map[string]interface{}) (bool, error) {
	for key, value := range filter {
		ok, err := matchKey(key, value, doc)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(key string, value interface{}, doc map[string]interface{}) (bool, error) {
	switch key {
	case "$and", "$or":
		subs, ok := AsSlice(value)
		if !ok {
			return false, fmt.Errorf("%s requires an array", key)
		}
		for _, sub := range subs {
			m, ok := AsMap(sub)
			if !ok {
				return false, fmt.Errorf("%s requires documents", key)
			}
			matched, err := MatchDocument(m, doc)
			if err != nil {
				return false, err
			}
			if key == "$or" && matched {
				return true, nil
			}
			if key == "$and" && !matched {
				return false, nil
			}
		}
		return key == "$and", nil
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("unsupported top level operator %s", key)
	}

	candidates := Lookup(doc, key)
	if ops, ok := AsMap(value); ok && IsOperatorDocument(ops) {
		for op, operand := range ops {
			if op == "$options" {
				continue
			}
			matched, err := matchOperator(op, operand, ops, candidates)
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	}
	return anyEqual(candidates, value), nil
}

func matchOperator(op string, operand interface{}, ops map[string]interface{}, candidates []interface{}) (bool, error) {
	switch op {
	case "$eq":
		return anyEqual(candidates, operand), nil
	case "$ne":
		return !anyEqual(candidates, operand), nil
	case "$in", "$nin":
		values, ok := AsSlice(operand)
		if !ok {
			return false, fmt.Errorf("%s requires an array", op)
		}
		found := false
		for _, v := range values {
			if anyEqual(candidates, v) {
				found = true
				break
			}
		}
		return found == (op == "$in"), nil
	case "$exists":
		want, _ := operand.(bool)
		return (len(candidates) > 0) == want, nil
	case "$gt", "$gte", "$lt", "$lte":
		for _, c := range candidates {
			cmp, ok := Compare3(c, operand)
			if !ok {
				continue
			}
			if (op == "$gt" && cmp > 0) || (op == "$gte" && cmp >= 0) ||
				(op == "$lt" && cmp < 0) || (op == "$lte" && cmp <= 0) {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		pattern := fmt.Sprint(operand)
		if opts, _ := ops["$options"].(string); strings.Contains(opts, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid $regex %q: %w", operand, err)
		}
		for _, c := range candidates {
			if s, ok := c.(string); ok && re.MatchString(s) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported operator %s", op)
}

// Lookup resolves a dotted path, expanding arrays along the way.
func Lookup(doc map[string]interface{}, path string) []interface{} {
	current := []interface{}{doc}
	for _, part := range strings.Split(path, ".") {
		var next []interface{}
		for _, c := range current {
			m, ok := AsMap(c)
			if !ok {
				continue
			}
			v, ok := m[part]
			if !ok {
				continue
			}
			if items, ok := AsSlice(v); ok {
				next = append(next, items...)
				continue
			}
			next = append(next, v)
		}
		current = next
	}
	return current
}

func anyEqual(candidates []interface{}, value interface{}) bool {
	if value == nil && len(candidates) == 0 {
		return true
	}
	for _, c := range candidates {
		if Equal(c, value) {
			return true
		}
	}
	return false
}

// Equal compares two stored values, treating all numeric types alike.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := Compare3(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// Compare3 orders two values of compatible types, returning -1, 0 or 1.
func Compare3(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch ta := a.(type) {
	case string:
		tb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(ta, tb), true
	case time.Time:
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	case bool:
		tb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ta == tb:
			return 0, true
		case !ta:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
