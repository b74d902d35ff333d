package postgres

import (
	"context"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// Logger is the subset of logger.Logger used for connection lifecycle events.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Postgres owns a PostgreSQL connection and serves it to the persistor as a
// database.Client. Once started, the connection is health checked and
// redialed after failures.
type Postgres struct {
	conn *database.Conn
}

// NewPostgres connects with cfg. The pool follows cfg.ConnectionDetails.
func NewPostgres(cfg Config) (*Postgres, error) {
	conn, err := database.OpenConn("postgres", func() (*gorm.DB, error) {
		return database.OpenGorm(postgres.Open(cfg.DSN()), database.Pool(cfg.ConnectionDetails))
	})
	if err != nil {
		return nil, err
	}
	return &Postgres{conn: conn}, nil
}

// WithLogger attaches a logger for connection lifecycle events.
func (p *Postgres) WithLogger(logger Logger) *Postgres {
	if logger != nil {
		p.conn.SetLogger(logger)
	}
	return p
}

// DB returns the current connection.
func (p *Postgres) DB() *gorm.DB {
	return p.conn.DB()
}

// Client returns the persistor client. It resolves the connection on every
// statement, so reconnects are picked up transparently.
func (p *Postgres) Client() database.Client {
	return database.NewGormClient(p.DB, Dialect{}, TranslateError)
}

// Start health checks the connection in the background until
// GracefulShutdown.
func (p *Postgres) Start(ctx context.Context) {
	p.conn.Start(ctx)
}

// GracefulShutdown stops the health checks and closes the pool.
func (p *Postgres) GracefulShutdown() error {
	return p.conn.Close()
}
