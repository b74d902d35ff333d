package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func TestExpression(t *testing.T) {
	c := NewGormClient(nil, testDialect{}, nil)
	age := Col("person", "age")
	status := Col("person", "status")
	ageCol := clause.Column{Table: "person", Name: "age"}
	statusCol := clause.Column{Table: "person", Name: "status"}

	tests := []struct {
		name string
		cond Condition
		want clause.Expression
	}{
		{
			name: "empty matches all",
			cond: Condition{},
			want: nil,
		},
		{
			name: "range and or",
			cond: And(
				And(Compare(age, OpGte, 18), Compare(age, OpLt, 65)),
				Or(Eq(status, "active"), Eq(status, "pending")),
			),
			want: clause.And(
				clause.And(clause.Gte{Column: ageCol, Value: 18}, clause.Lt{Column: ageCol, Value: 65}),
				clause.Or(clause.Eq{Column: statusCol, Value: "active"}, clause.Eq{Column: statusCol, Value: "pending"}),
			),
		},
		{
			name: "in list",
			cond: In(status, []interface{}{"a", "b"}),
			want: clause.IN{Column: statusCol, Values: []interface{}{"a", "b"}},
		},
		{
			name: "not in list",
			cond: NotIn(status, []interface{}{"a"}),
			want: clause.Not(clause.IN{Column: statusCol, Values: []interface{}{"a"}}),
		},
		{
			name: "empty in matches nothing",
			cond: In(status, nil),
			want: clause.Expr{SQL: "1 = 0"},
		},
		{
			name: "empty not in matches all",
			cond: NotIn(status, nil),
			want: clause.Expr{SQL: "1 = 1"},
		},
		{
			name: "case insensitive regex",
			cond: Regex(status, "^act", true),
			want: clause.Expr{SQL: "? ~* ?", Vars: []interface{}{statusCol, "^act"}},
		},
		{
			name: "null",
			cond: IsNull(status),
			want: clause.Eq{Column: statusCol, Value: nil},
		},
		{
			name: "not null",
			cond: NotNull(status),
			want: clause.Neq{Column: statusCol, Value: nil},
		},
		{
			name: "raw",
			cond: Raw("lower(name) = ?", "bob"),
			want: clause.Expr{SQL: "lower(name) = ?", Vars: []interface{}{"bob"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.expression(tt.cond))
		})
	}
}

func TestSelectStatementKey(t *testing.T) {
	stmt := func(id string) *SelectStatement {
		return &SelectStatement{Criteria: Criteria{Table: "orders", Where: Eq(Col("orders", "_id"), id)}}
	}
	assert.Equal(t, stmt("o1").Key(), stmt("o1").Key())
	assert.NotEqual(t, stmt("o1").Key(), stmt("o2").Key())
}

// sqlRecorder keeps every statement gorm traces.
type sqlRecorder struct {
	logger.Interface
	statements []string
}

func (r *sqlRecorder) LogMode(logger.LogLevel) logger.Interface { return r }

func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.statements = append(r.statements, sql)
}

func (r *sqlRecorder) last() string {
	if len(r.statements) == 0 {
		return ""
	}
	return r.statements[len(r.statements)-1]
}

// dryRunClient builds statements against the postgres dialect without a
// server.
func dryRunClient(t *testing.T) (*GormClient, *sqlRecorder) {
	t.Helper()
	rec := &sqlRecorder{Interface: logger.Discard}
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=app dbname=app sslmode=disable"}),
		&gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: rec})
	require.NoError(t, err)
	return NewGormClient(func() *gorm.DB { return db }, testDialect{}, nil), rec
}

func TestGormClientStatements(t *testing.T) {
	ctx := context.Background()
	c, rec := dryRunClient(t)
	byID := Eq(Col("orders", "_id"), "o1")

	t.Run("select", func(t *testing.T) {
		_, err := c.Select(ctx, &SelectStatement{
			Criteria: Criteria{
				Table:   "orders",
				Where:   byID,
				OrderBy: []Order{{Column: Col("orders", "placed")}, {Column: Col("orders", "_id"), Desc: true}},
				Limit:   10,
				Offset:  20,
			},
			Columns: []SelectColumn{
				{Table: "orders", Column: "_id", As: "orders____id"},
				{Table: "customer1", Column: "name", As: "customer1___name"},
			},
			Joins: []Join{{Table: "customer", Alias: "customer1", Column: "_id", ParentTable: "orders", ParentColumn: "customer_id"}},
		})
		require.NoError(t, err)

		sql := rec.last()
		assert.Contains(t, sql, `SELECT "orders"."_id" AS "orders____id"`)
		assert.Contains(t, sql, `"customer1"."name" AS "customer1___name"`)
		assert.Contains(t, sql, `FROM "orders" LEFT JOIN "customer" "customer1" ON "customer1"."_id" = "orders"."customer_id"`)
		assert.Contains(t, sql, `WHERE "orders"."_id" = 'o1'`)
		assert.Contains(t, sql, `ORDER BY "orders"."placed"`)
		assert.Contains(t, sql, `"orders"."_id" DESC`)
		assert.Contains(t, sql, `LIMIT 10 OFFSET 20`)
	})

	t.Run("count", func(t *testing.T) {
		_, err := c.Count(ctx, Criteria{Table: "orders", Where: In(Col("orders", "status"), []interface{}{"a", "b"}), Limit: 3})
		require.NoError(t, err)
		assert.Contains(t, rec.last(), `SELECT count(*) FROM "orders"`)
		assert.Contains(t, rec.last(), `"orders"."status" IN (`)
		assert.NotContains(t, rec.last(), "LIMIT")
	})

	t.Run("insert", func(t *testing.T) {
		require.NoError(t, c.Insert(ctx, "orders", Row{"_id": "o1", "__version__": 1}))
		assert.Contains(t, rec.last(), `INSERT INTO "orders"`)
		assert.Contains(t, rec.last(), `"__version__"`)
		assert.Contains(t, rec.last(), `'o1'`)
	})

	t.Run("update", func(t *testing.T) {
		_, err := c.Update(ctx, "orders", Row{"status": "closed"},
			And(Eq(Col("", "__version__"), 1), Eq(Col("", "_id"), "o1")))
		require.NoError(t, err)
		assert.Contains(t, rec.last(), `UPDATE "orders" SET "status"=`)
		assert.Contains(t, rec.last(), `'closed'`)
		assert.Contains(t, rec.last(), `"__version__" = 1`)
		assert.Contains(t, rec.last(), `"_id" = 'o1'`)
	})

	t.Run("increment", func(t *testing.T) {
		_, err := c.Increment(ctx, "orders", "__version__", Eq(Col("", "_id"), "o1"))
		require.NoError(t, err)
		assert.Contains(t, rec.last(), `UPDATE "orders" SET "__version__"=`)
		assert.Contains(t, rec.last(), `"__version__" + 1`)
	})

	t.Run("delete", func(t *testing.T) {
		_, err := c.Delete(ctx, Criteria{Table: "orders", Where: byID})
		require.NoError(t, err)
		assert.Contains(t, rec.last(), `DELETE FROM "orders" WHERE "orders"."_id" = 'o1'`)
	})

	t.Run("delete everything", func(t *testing.T) {
		_, err := c.Delete(ctx, Criteria{Table: "orders"})
		require.NoError(t, err)
		assert.Contains(t, rec.last(), `DELETE FROM "orders"`)
		assert.NotContains(t, rec.last(), "WHERE")
	})
}
