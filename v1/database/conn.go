package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
)

// Pool limits of a gorm connection. Zero values fall back to 50 open,
// 25 idle and a one minute lifetime.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConnLogger receives connection lifecycle events.
type ConnLogger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

type nopConnLogger struct{}

func (nopConnLogger) Info(string, error, ...map[string]interface{})  {}
func (nopConnLogger) Error(string, error, ...map[string]interface{}) {}

const (
	healthInterval = 10 * time.Second
	healthTimeout  = 5 * time.Second
	redialDelay    = time.Second
)

// OpenGorm opens dialector with translated gorm errors and applies pool.
func OpenGorm(dialector gorm.Dialector, pool Pool) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 50
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 25
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = time.Minute
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return db, nil
}

// Conn keeps a gorm connection usable across server restarts.
//
// MonitorConnection pings the current connection periodically and hands
// failures to RetryConnection, which dials until it succeeds and swaps the
// new connection in. Readers obtain the connection through DB and are never
// blocked by a swap.
type Conn struct {
	name   string
	dial   func() (*gorm.DB, error)
	ping   func(context.Context, *gorm.DB) error
	logger ConnLogger

	interval time.Duration
	delay    time.Duration

	current  atomic.Pointer[gorm.DB]
	retry    chan failure
	shutdown chan struct{}
	loops    sync.WaitGroup

	closeRetryOnce    sync.Once
	closeShutdownOnce sync.Once
	closeOnce         sync.Once
	closeErr          error
}

// failure is a failed health check of db.
type failure struct {
	db  *gorm.DB
	err error
}

// OpenConn dials once and returns the connection. name only labels log
// entries, e.g. "postgres".
func OpenConn(name string, dial func() (*gorm.DB, error)) (*Conn, error) {
	db, err := dial()
	if err != nil {
		return nil, fmt.Errorf("error in connecting to %s: %w", name, err)
	}
	c := &Conn{
		name:     name,
		dial:     dial,
		ping:     pingDB,
		logger:   nopConnLogger{},
		interval: healthInterval,
		delay:    redialDelay,
		retry:    make(chan failure, 1),
		shutdown: make(chan struct{}),
	}
	c.current.Store(db)
	return c, nil
}

// SetLogger replaces the logger; nil is ignored.
func (c *Conn) SetLogger(logger ConnLogger) {
	if logger != nil {
		c.logger = logger
	}
}

// DB returns the current connection.
func (c *Conn) DB() *gorm.DB {
	return c.current.Load()
}

// Start runs MonitorConnection and RetryConnection in the background until
// Stop is called or ctx ends.
func (c *Conn) Start(ctx context.Context) {
	c.loops.Add(2)
	go func() {
		defer c.loops.Done()
		c.MonitorConnection(ctx)
	}()
	go func() {
		defer c.loops.Done()
		c.RetryConnection(ctx)
	}()
}

// RetryConnection redials after every failure reported by MonitorConnection.
// Failures of a connection that was already replaced are ignored.
func (c *Conn) RetryConnection(ctx context.Context) {
	for {
		select {
		case <-c.shutdown:
			c.logger.Info("Stopping RetryConnection loop due to shutdown signal", nil, c.fields())
			return
		case <-ctx.Done():
			return
		case f, ok := <-c.retry:
			if !ok {
				return
			}
			if f.db != c.DB() {
				continue
			}
			c.logger.Error("connection health check failed", f.err, c.fields())
			if !c.redial(ctx) {
				return
			}
		}
	}
}

// redial dials until it succeeds; false when stopped first.
func (c *Conn) redial(ctx context.Context) bool {
	for {
		db, err := c.dial()
		if err == nil {
			c.current.Store(db)
			c.logger.Info("Successfully reconnected to database", nil, c.fields())
			return true
		}
		c.logger.Error("reconnection failed", err, c.fields())

		timer := time.NewTimer(c.delay)
		select {
		case <-c.shutdown:
			timer.Stop()
			return false
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// MonitorConnection pings the connection every interval and signals
// RetryConnection on failure. A pending signal is not duplicated.
func (c *Conn) MonitorConnection(ctx context.Context) {
	defer c.closeRetryOnce.Do(func() {
		close(c.retry)
	})

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			c.logger.Info("Stopping MonitorConnection loop due to shutdown signal", nil, c.fields())
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			db := c.DB()
			if err := c.ping(ctx, db); err != nil {
				select {
				case c.retry <- failure{db: db, err: err}:
				default:
				}
			}
		}
	}
}

// Stop ends the background loops and waits for them.
func (c *Conn) Stop() {
	c.closeShutdownOnce.Do(func() {
		close(c.shutdown)
	})
	c.loops.Wait()
}

// Close stops the loops and closes the pool. Later calls return the first
// result.
func (c *Conn) Close() error {
	c.Stop()
	c.closeOnce.Do(func() {
		db := c.DB()
		if db == nil {
			return
		}
		if sqlDB, err := db.DB(); err == nil {
			c.closeErr = sqlDB.Close()
		}
	})
	return c.closeErr
}

func (c *Conn) fields() map[string]interface{} {
	return map[string]interface{}{"database": c.name}
}

func pingDB(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("database client is not initialized")
	}
	db, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance during health check: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed during health check: %w", err)
	}
	return nil
}
