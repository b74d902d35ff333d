// Package postgres connects the persistor to PostgreSQL.
//
// It wraps a gorm connection with health monitoring and automatic
// reconnection, and exposes it as a database.Client through Client().
// Queries and writes are built by gorm. Dialect supplies the rest: it quotes
// identifiers with lib/pq, matches regular expressions with ~ and ~*, and
// renders the DDL including COMMENT ON COLUMN.
//
// Basic Usage:
//
//	pg, err := postgres.NewPostgres(postgres.Config{
//		Connection: postgres.Connection{
//			Host:     "localhost",
//			Port:     "5432",
//			User:     "postgres",
//			Password: "password",
//			DbName:   "app",
//		},
//	})
//	if err != nil {
//		return err
//	}
//	dbs.Set(database.Handle{Alias: "__default__", Type: database.TypePostgres, SQL: pg.Client(), Close: pg.GracefulShutdown})
//
// Errors:
//
// TranslateError maps deadlocks (40P01, 40001) to database.ErrDeadlock and
// unique violations (23505) to database.ErrDuplicateKey. The persistor turns
// a deadlock during commit into an update conflict.
package postgres
