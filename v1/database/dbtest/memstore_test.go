package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.Insert(ctx, "people", database.Document{"_id": "1", "name": "Ann", "__version__": int64(1), "tags": []interface{}{"a", "b"}}))
	require.NoError(t, s.Insert(ctx, "people", database.Document{"_id": "2", "name": "Bob", "__version__": int64(1), "tags": []interface{}{"b"}}))
	assert.ErrorIs(t, s.Insert(ctx, "people", database.Document{"_id": "1"}), database.ErrDuplicateKey)

	docs, err := s.Find(ctx, "people", map[string]interface{}{"tags": "b"}, database.FindOptions{
		Sort: []database.SortKey{{Field: "name", Desc: true}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Bob", docs[0]["name"])

	docs[0]["name"] = "mutated"
	assert.Equal(t, "Bob", s.Documents("people")[1]["name"])

	matched, err := s.Replace(ctx, "people", map[string]interface{}{"_id": "1", "__version__": int64(2)}, database.Document{"_id": "1"})
	require.NoError(t, err)
	assert.Zero(t, matched)

	n, err := s.Increment(ctx, "people", map[string]interface{}{"_id": "1"}, "__version__")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(2), s.Documents("people")[0]["__version__"])

	values, err := s.Distinct(ctx, "people", "tags", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{"a", "b"}, values)

	docs, err = s.Find(ctx, "people", nil, database.FindOptions{Projection: []string{"name"}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, database.Document{"_id": "1", "name": "Ann"}, docs[0])

	removed, err := s.Remove(ctx, "people", map[string]interface{}{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := s.Count(ctx, "people", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.NotEmpty(t, s.Log())
}
