// Package dbtest provides in-memory relational and document backends that
// honour the database capability contracts. They evaluate conditions and
// filters the way the real engines do, log every statement they execute and
// allow failures to be injected, so the persistor can be exercised end to end
// without a running database.
package dbtest
