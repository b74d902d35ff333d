package persistor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// Query selects objects either with a Mongo-style filter or, for relational
// templates only, with a condition built directly against the table.
type Query struct {
	Filter model.Filter

	// Chain receives the physical table name and returns the WHERE clause.
	// It takes precedence over Filter.
	Chain func(table string) database.Condition
}

// ByID selects the object with the given id.
func ByID(id string) Query {
	return Query{Filter: model.Filter{"_id": id}}
}

// Where selects the objects matching filter.
func Where(filter model.Filter) Query {
	return Query{Filter: filter}
}

func (q Query) condition(table string) (database.Condition, error) {
	if q.Chain != nil {
		return q.Chain(table), nil
	}
	return compileFilter(table, q.Filter)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// compileFilter translates a Mongo-style filter into a WHERE clause over
// table. Keys are visited in sorted order so equal filters render equal SQL.
func compileFilter(table string, filter map[string]interface{}) (database.Condition, error) {
	var conds []database.Condition
	for _, key := range sortedKeys(filter) {
		value := filter[key]
		switch key {
		case "$and", "$or":
			subs, ok := database.AsSlice(value)
			if !ok {
				return database.Condition{}, fmt.Errorf("%w: %s expects an array, got %v", ErrUnsupportedOperator, key, value)
			}
			parts := make([]database.Condition, 0, len(subs))
			for _, sub := range subs {
				m, ok := database.AsMap(sub)
				if !ok {
					return database.Condition{}, fmt.Errorf("%w: %s expects filters, got %v", ErrUnsupportedOperator, key, sub)
				}
				c, err := compileFilter(table, m)
				if err != nil {
					return database.Condition{}, err
				}
				parts = append(parts, c)
			}
			if key == "$and" {
				conds = append(conds, database.And(parts...))
			} else {
				conds = append(conds, database.Or(parts...))
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return database.Condition{}, fmt.Errorf("%w: %s with value %v", ErrUnsupportedOperator, key, value)
		}
		c, err := compileField(database.Col(table, key), key, value)
		if err != nil {
			return database.Condition{}, err
		}
		conds = append(conds, c)
	}
	return database.And(conds...), nil
}

func compileField(col database.Column, key string, value interface{}) (database.Condition, error) {
	ops, ok := database.AsMap(value)
	if !ok || !database.IsOperatorDocument(ops) {
		if value == nil {
			return database.IsNull(col), nil
		}
		if re, ok := value.(*regexp.Regexp); ok {
			return database.Regex(col, re.String(), false), nil
		}
		return database.Eq(col, value), nil
	}

	var conds []database.Condition
	for _, op := range sortedKeys(ops) {
		operand := ops[op]
		switch op {
		case "$options":
			continue
		case "$eq":
			if operand == nil {
				conds = append(conds, database.IsNull(col))
			} else {
				conds = append(conds, database.Eq(col, operand))
			}
		case "$ne":
			if operand == nil {
				conds = append(conds, database.NotNull(col))
			} else {
				conds = append(conds, database.Compare(col, database.OpNe, operand))
			}
		case "$gt":
			conds = append(conds, database.Compare(col, database.OpGt, operand))
		case "$gte":
			conds = append(conds, database.Compare(col, database.OpGte, operand))
		case "$lt":
			conds = append(conds, database.Compare(col, database.OpLt, operand))
		case "$lte":
			conds = append(conds, database.Compare(col, database.OpLte, operand))
		case "$in", "$nin":
			values, ok := database.AsSlice(operand)
			if !ok {
				return database.Condition{}, fmt.Errorf("%w: %s on %s expects an array, got %v", ErrUnsupportedOperator, op, key, operand)
			}
			if op == "$in" {
				conds = append(conds, database.In(col, values))
			} else {
				conds = append(conds, database.NotIn(col, values))
			}
		case "$regex":
			pattern := asString(operand)
			if re, ok := operand.(*regexp.Regexp); ok {
				pattern = re.String()
			}
			options, _ := ops["$options"].(string)
			conds = append(conds, database.Regex(col, pattern, strings.Contains(options, "i")))
		default:
			return database.Condition{}, fmt.Errorf("%w: %s in %s with value %v", ErrUnsupportedOperator, op, key, value)
		}
	}
	return database.And(conds...), nil
}
