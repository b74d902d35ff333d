package mariadb

import (
	"context"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// Logger is the subset of logger.Logger used for connection lifecycle events.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// MariaDB owns a MariaDB/MySQL connection and serves it as a
// database.Client. Reconnects swap the connection underneath the client.
type MariaDB struct {
	conn *database.Conn
}

// NewMariaDB connects with cfg.
func NewMariaDB(cfg Config) (*MariaDB, error) {
	conn, err := database.OpenConn("mariadb", func() (*gorm.DB, error) {
		return database.OpenGorm(mysql.Open(cfg.DSN()), database.Pool(cfg.ConnectionDetails))
	})
	if err != nil {
		return nil, err
	}
	return &MariaDB{conn: conn}, nil
}

// WithLogger attaches a logger for connection lifecycle events.
func (m *MariaDB) WithLogger(logger Logger) *MariaDB {
	if logger != nil {
		m.conn.SetLogger(logger)
	}
	return m
}

// DB returns the current connection.
func (m *MariaDB) DB() *gorm.DB {
	return m.conn.DB()
}

// Client returns the persistor client.
func (m *MariaDB) Client() database.Client {
	return database.NewGormClient(m.DB, Dialect{}, TranslateError)
}

// Start runs the connection health checks until GracefulShutdown.
func (m *MariaDB) Start(ctx context.Context) {
	m.conn.Start(ctx)
}

// GracefulShutdown stops the health checks and closes the pool.
func (m *MariaDB) GracefulShutdown() error {
	return m.conn.Close()
}
