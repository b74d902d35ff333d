// Package database defines the backend capabilities the persistor drives and
// the pieces shared by every backend implementation.
//
// # Relational backends
//
// Client is the relational capability: SELECT statements with left-outer
// joins, counts, inserts, version-guarded updates, deletes and native
// transactions. Migrator covers the schema side (table existence, column
// introspection, additive DDL, comments and indexes).
//
// Statements are described as data (SelectStatement, Criteria, Condition).
// GormClient translates them into gorm clauses, so the same statement runs
// on PostgreSQL and MariaDB/MySQL, and dbtest.MemDB evaluates them in memory:
//
//	stmt := &database.SelectStatement{
//	    Criteria: database.Criteria{
//	        Table: "orders",
//	        Where: database.And(
//	            database.Compare(database.Col("orders", "age"), database.OpGte, 18),
//	            database.Compare(database.Col("orders", "age"), database.OpLt, 65),
//	        ),
//	    },
//	    Columns: []database.SelectColumn{{Table: "orders", Column: "_id", As: "orders____id"}},
//	}
//	rows, err := client.Select(ctx, stmt)
//
// GormClient implements Client and Migrator on top of *gorm.DB; the postgres
// and mariadb packages provide the connection and dialect. A Dialect only
// covers identifier quoting, the regex operator and DDL.
//
// # Document backends
//
// DocumentStore is the document capability: find/insert/replace/remove/count/
// distinct with Mongo-style filters. MatchDocument evaluates the same filters
// in memory.
//
// # Alias routing
//
// Registry maps database aliases to backends. A collection or table name may
// carry an alias prefix ("reports/orders"); Dealias and Alias split it.
package database
