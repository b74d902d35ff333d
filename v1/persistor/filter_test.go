package persistor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter model.Filter
		want   string
	}{
		{
			name:   "empty filter matches everything",
			filter: model.Filter{},
			want:   "TRUE",
		},
		{
			name:   "plain values become equality",
			filter: model.Filter{"status": "open", "age": 3},
			want:   "customer.age = 3 AND customer.status = 'open'",
		},
		{
			name: "age range or status",
			filter: model.Filter{"$or": []interface{}{
				model.Filter{"age": model.Filter{"$gte": 18, "$lt": 65}},
				model.Filter{"status": model.Filter{"$in": []interface{}{"gold", "silver"}}},
			}},
			want: "(customer.age >= 18 AND customer.age < 65) OR customer.status IN ('gold', 'silver')",
		},
		{
			name: "age range and status alternatives",
			filter: model.Filter{
				"age": model.Filter{"$gte": 18, "$lt": 65},
				"$or": []interface{}{
					model.Filter{"status": "gold"},
					model.Filter{"status": "silver"},
				},
			},
			want: "(customer.status = 'gold' OR customer.status = 'silver') AND (customer.age >= 18 AND customer.age < 65)",
		},
		{
			name:   "null values",
			filter: model.Filter{"deleted": nil, "email": model.Filter{"$ne": nil}},
			want:   "customer.deleted IS NULL AND customer.email IS NOT NULL",
		},
		{
			name:   "case insensitive regex",
			filter: model.Filter{"name": model.Filter{"$regex": "^sm", "$options": "i"}},
			want:   "customer.name ~* '^sm'",
		},
		{
			name:   "not in",
			filter: model.Filter{"_id": model.Filter{"$nin": []string{"a", "b"}}},
			want:   "customer._id NOT IN ('a', 'b')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := compileFilter("customer", tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cond.String())
		})
	}
}

func TestCompileFilterDoesNotMutate(t *testing.T) {
	filter := model.Filter{"name": model.Filter{"$regex": "x", "$options": "i"}}
	_, err := compileFilter("customer", filter)
	require.NoError(t, err)
	assert.Equal(t, model.Filter{"$regex": "x", "$options": "i"}, filter["name"])
}

func TestCompileFilterUnsupportedOperator(t *testing.T) {
	_, err := compileFilter("customer", model.Filter{"age": model.Filter{"$exists": true}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedOperator)
	assert.Contains(t, err.Error(), "$exists")
	assert.Contains(t, err.Error(), "age")

	_, err = compileFilter("customer", model.Filter{"$where": "1"})
	assert.ErrorIs(t, err, ErrUnsupportedOperator)
}

func TestQueryChainTakesPrecedence(t *testing.T) {
	q := Query{
		Filter: model.Filter{"$bogus": 1},
		Chain: func(table string) database.Condition {
			return database.Eq(database.Col(table, "name"), "x")
		},
	}
	cond, err := q.condition("customer")
	require.NoError(t, err)
	assert.Equal(t, "customer.name = 'x'", cond.String())
}
