// Package mariadb connects the persistor to MariaDB and MySQL.
//
// It mirrors the postgres package: a monitored, self-healing gorm connection
// exposed as a database.Client. MySQL cannot attach a comment to an existing
// column without restating its definition, so column comments are skipped
// on this backend.
//
//	db, err := mariadb.NewMariaDB(mariadb.Config{
//		Connection: mariadb.Connection{
//			Host: "localhost", Port: "3306", User: "root", DbName: "app", ParseTime: true,
//		},
//	})
package mariadb
