package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaDoc = `{
	// orders live in their own table
	"Order": {
		"table": "orders",
		"enableChangeTracking": true,
		"parents": {"customer": {"id": "customer_id", "fetch": true}},
		"children": {
			"items": {"id": "order_id", "fetch": {"fetch": {"product": true}, "sort": {"position": 1, "_id": -1}, "limit": 5}},
			"returns": {"id": "order_id", "filter": {"property": "kind", "value": "return"}, "fetch": false},
		},
		"indexes": [{"name": "placed", "def": {"columns": ["placed"], "type": "index"}}],
	},
}`

func TestParseSchema(t *testing.T) {
	entries, err := ParseSchema([]byte(schemaDoc))
	require.NoError(t, err)

	order := entries["Order"]
	require.NotNil(t, order)
	assert.Equal(t, "orders", order.Table)
	assert.True(t, order.EnableChangeTracking)

	customer := order.Parents["customer"]
	assert.Equal(t, "customer_id", customer.ID)
	assert.True(t, customer.FetchRequested())

	items := order.Children["items"]
	require.NotNil(t, items.Fetch)
	assert.True(t, items.Fetch.Cascade.Get("product").Requested())
	assert.Equal(t, Sort{Asc("position"), Desc("_id")}, items.Fetch.Options.Sort)
	assert.Equal(t, 5, items.Fetch.Options.Limit)

	returns := order.Children["returns"]
	assert.False(t, returns.FetchRequested())
	assert.True(t, returns.Fetch.Disabled)
	assert.Equal(t, "kind", returns.Filter.Property)
	assert.Equal(t, "return", returns.Filter.Value)

	require.Len(t, order.Indexes, 1)
	assert.Equal(t, IndexDef{Columns: []string{"placed"}, Type: IndexTypeIndex}, order.Indexes[0].Def)
}

func TestParseSchemaRejectsGarbage(t *testing.T) {
	_, err := ParseSchema([]byte(`{"Order": `))
	assert.Error(t, err)

	_, err = ParseSchema([]byte(`{"Order": null}`))
	assert.Error(t, err)
}

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.hujson")
	require.NoError(t, os.WriteFile(path, []byte(schemaDoc), 0o600))

	entries, err := LoadSchemaFile(path)
	require.NoError(t, err)
	assert.Contains(t, entries, "Order")

	_, err = LoadSchemaFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
