package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/Aleph-Alpha/persistor/v1/observability"
)

// RedisClient wraps a go-redis universal client. It backs the schema
// synchronisation lock of the persistor.
type RedisClient struct {
	// client is the underlying Redis client
	client redis.UniversalClient

	cfg Config

	// logger is used for structured logging
	logger Logger

	// observer provides optional observability hooks for tracking operations
	observer observability.Observer

	// mu protects concurrent access to client
	mu     sync.RWMutex
	closed bool
}

// NewClient creates a Redis client for a standalone server or, when
// Config.ClusterAddrs names several nodes, for a cluster. No connection is
// made until the first command.
//
// Example:
//
//	client, err := redis.NewClient(redis.Config{Host: "localhost", Port: 6379})
//	if err != nil {
//		return nil, err
//	}
//	defer client.Close()
func NewClient(cfg Config) (*RedisClient, error) {
	cfg = cfg.withDefaults()

	opts, err := universalOptions(cfg)
	if err != nil {
		return nil, err
	}

	r := &RedisClient{
		client: redis.NewUniversalClient(opts),
		cfg:    cfg,
		logger: cfg.Logger,
	}
	r.logInfo("Redis client initialized", map[string]interface{}{"addrs": opts.Addrs})
	return r, nil
}

func universalOptions(cfg Config) (*redis.UniversalOptions, error) {
	addrs := cfg.ClusterAddrs
	if len(addrs) < 2 {
		addrs = []string{cfg.Host + ":" + strconv.Itoa(cfg.Port)}
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		var err error
		tlsConfig, err = createTLSConfig(cfg.TLS, cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	return &redis.UniversalOptions{
		Addrs:           addrs,
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		ConnMaxIdleTime: cfg.IdleTimeout,
		MaxRetries:      cfg.MaxRetries,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		TLSConfig:       tlsConfig,
	}, nil
}

// createTLSConfig creates a TLS configuration from the provided config
func createTLSConfig(cfg TLSConfig, defaultServerName string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.ServerName != "" {
		tlsConfig.ServerName = cfg.ServerName
	} else if defaultServerName != "" {
		tlsConfig.ServerName = defaultServerName
	}

	if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.ClientCertPath != "" && cfg.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Client returns the underlying go-redis client for advanced operations.
func (r *RedisClient) Client() redis.UniversalClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Ping checks the connection.
func (r *RedisClient) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client and releases all resources.
func (r *RedisClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.logInfo("Closing Redis client", nil)

	if err := r.client.Close(); err != nil {
		r.logWarn("Failed to close Redis client", err, nil)
		return err
	}
	return nil
}

// WithObserver sets the observer for this client and returns the client for method chaining.
func (r *RedisClient) WithObserver(observer observability.Observer) *RedisClient {
	r.observer = observer
	return r
}

// WithLogger sets the logger for this client and returns the client for method chaining.
func (r *RedisClient) WithLogger(logger Logger) *RedisClient {
	r.logger = logger
	return r
}

func (r *RedisClient) logInfo(msg string, fields map[string]interface{}) {
	if r.logger != nil {
		r.logger.Info(msg, nil, fields)
	}
}

func (r *RedisClient) logWarn(msg string, err error, fields map[string]interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, err, fields)
	}
}

func (r *RedisClient) logError(msg string, err error, fields map[string]interface{}) {
	if r.logger != nil {
		r.logger.Error(msg, err, fields)
	}
}
