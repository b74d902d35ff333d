package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

func TestTranslateError(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}, want: database.ErrDeadlock},
		{name: "serialization", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40001"}), want: database.ErrDeadlock},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: database.ErrDuplicateKey},
		{name: "gorm duplicate", err: gorm.ErrDuplicatedKey, want: database.ErrDuplicateKey},
		{name: "not found", err: gorm.ErrRecordNotFound, want: database.ErrRecordNotFound},
		{name: "unknown", err: other, want: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TranslateError(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
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

func TestDialect(t *testing.T) {
	d := Dialect{}

	rec := &sqlRecorder{Interface: logger.Discard}
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=app dbname=app sslmode=disable"}),
		&gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: rec})
	require.NoError(t, err)
	client := database.NewGormClient(func() *gorm.DB { return db }, d, TranslateError)

	_, err = client.Select(context.Background(), &database.SelectStatement{
		Criteria: database.Criteria{
			Table: "employee",
			Where: database.Regex(database.Col("employee", "name"), "^a", true),
		},
	})
	require.NoError(t, err)
	require.Len(t, rec.statements, 1)
	assert.Contains(t, rec.statements[0], `FROM "employee" WHERE "employee"."name" ~* '^a'`)

	comment, ok := d.CommentSQL("employee", "role", "values: Manager, Clerk's")
	assert.True(t, ok)
	assert.Equal(t, `COMMENT ON COLUMN "employee"."role" IS 'values: Manager, Clerk''s'`, comment)

	assert.Equal(t, `CREATE TABLE "t" ("_id" varchar(255) PRIMARY KEY, "n" double precision, "at" timestamptz)`,
		database.RenderCreateTable(d, "t", []database.ColumnDef{
			{Name: "_id", Kind: database.ColumnKey},
			{Name: "n", Kind: database.ColumnDouble},
			{Name: "at", Kind: database.ColumnTimestamp},
		}))
	assert.Equal(t, `DROP INDEX IF EXISTS "idx_t_n"`, d.DropIndexSQL("t", database.IndexSpec{Name: "idx_t_n"}))
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Connection: Connection{Host: "db", Port: "5432", User: "u", Password: "p", DbName: "app"}}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=app sslmode=disable", cfg.DSN())
}
