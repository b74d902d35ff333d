package database

import (
	"context"
)

// Row is one result row keyed by column name (or select alias).
type Row = map[string]interface{}

// Document is one stored document.
type Document = map[string]interface{}

// Client is the relational capability.
type Client interface {
	// Select runs a SELECT and returns its rows keyed by the select aliases.
	Select(ctx context.Context, stmt *SelectStatement) ([]Row, error)

	// Count returns the number of rows matching criteria.
	Count(ctx context.Context, criteria Criteria) (int64, error)

	// Insert adds one row.
	Insert(ctx context.Context, table string, values Row) error

	// Update changes the rows matching where and returns how many were affected.
	Update(ctx context.Context, table string, values Row, where Condition) (int64, error)

	// Increment adds one to column on the rows matching where.
	Increment(ctx context.Context, table, column string, where Condition) (int64, error)

	// Delete removes the rows matching criteria and returns how many were removed.
	Delete(ctx context.Context, criteria Criteria) (int64, error)

	// Transaction runs fn inside a native transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Client) error) error

	// Schema returns the schema capability bound to the same connection.
	Schema() Migrator

	// Dialect returns the SQL dialect of the backend.
	Dialect() Dialect
}

// Migrator is the relational schema capability.
type Migrator interface {
	HasTable(ctx context.Context, table string) (bool, error)

	// Columns returns the existing columns of table keyed by name.
	Columns(ctx context.Context, table string) (map[string]ColumnInfo, error)

	CreateTable(ctx context.Context, table string, columns []ColumnDef) error
	AddColumns(ctx context.Context, table string, columns []ColumnDef) error
	DropTable(ctx context.Context, table string) error

	// CommentOnColumn documents a column. Backends without column comments
	// ignore the call.
	CommentOnColumn(ctx context.Context, table, column, comment string) error

	CreateIndex(ctx context.Context, table string, index IndexSpec) error
	DropIndex(ctx context.Context, table string, index IndexSpec) error
}

// ColumnKind is the portable column type.
type ColumnKind int

const (
	ColumnText ColumnKind = iota
	// ColumnKey is the string primary key column.
	ColumnKey
	ColumnString
	ColumnDouble
	ColumnTimestamp
	ColumnBoolean
	ColumnBigInt
	// ColumnIncrements is an auto-incrementing integer primary key.
	ColumnIncrements
)

// ColumnDef declares a column.
type ColumnDef struct {
	Name string
	Kind ColumnKind
}

// ColumnInfo describes an existing column.
type ColumnInfo struct {
	Name string
	// Type is the database type name as reported by the backend.
	Type    string
	Comment string
}

// IndexSpec declares an index.
type IndexSpec struct {
	Name    string
	Columns []string
	Unique  bool
}

// FindOptions pages and orders a document query.
type FindOptions struct {
	Sort  []SortKey
	Skip  int64
	Limit int64
	// Projection lists the fields to return; empty returns whole documents.
	Projection []string
}

// SortKey orders documents by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// DocumentStore is the document capability.
type DocumentStore interface {
	Find(ctx context.Context, collection string, filter map[string]interface{}, opts FindOptions) ([]Document, error)

	// Insert stores a new document.
	Insert(ctx context.Context, collection string, doc Document) error

	// Replace overwrites the first document matching filter and returns the
	// number of matched documents.
	Replace(ctx context.Context, collection string, filter map[string]interface{}, doc Document) (int64, error)

	// Increment adds one to field on the documents matching filter.
	Increment(ctx context.Context, collection string, filter map[string]interface{}, field string) (int64, error)

	// Remove deletes the documents matching filter.
	Remove(ctx context.Context, collection string, filter map[string]interface{}) (int64, error)

	Count(ctx context.Context, collection string, filter map[string]interface{}) (int64, error)

	Distinct(ctx context.Context, collection, field string, filter map[string]interface{}) ([]interface{}, error)

	// DropCollection removes a collection and its documents.
	DropCollection(ctx context.Context, collection string) error
}
