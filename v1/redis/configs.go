package redis

import "time"

// Config defines the connection and locking settings of the Redis client.
type Config struct {
	// Host is the Redis server hostname or IP address
	// Default: "localhost"
	Host string

	// Port is the Redis server port
	// Default: 6379
	Port int

	// ClusterAddrs switches to a cluster client when it holds more than one
	// address. Host and Port are ignored then.
	ClusterAddrs []string

	// Username is the Redis username for ACL authentication (Redis 6.0+)
	Username string

	// Password is the Redis password
	Password string

	// DB selects the database of a standalone server
	DB int

	// PoolSize is the maximum number of socket connections
	// Default: 10 per CPU (set by go-redis)
	PoolSize int

	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int

	// IdleTimeout is the amount of time after which idle connections are closed
	// Default: 5 minutes
	IdleTimeout time.Duration

	// MaxRetries is the maximum number of retries before giving up.
	// -1 disables retries.
	// Default: 3
	MaxRetries int

	// DialTimeout is the timeout for establishing new connections
	// Default: 5 seconds
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads
	// Default: 3 seconds
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes
	// Default: ReadTimeout
	WriteTimeout time.Duration

	// TLS contains TLS/SSL configuration
	TLS TLSConfig

	// Lock configures the schema synchronisation lock
	Lock LockConfig

	// Logger is an optional logger from the logger package
	Logger Logger
}

// TLSConfig contains TLS/SSL configuration parameters.
type TLSConfig struct {
	Enabled bool

	// CACertPath is the file path to the CA certificate for verifying the server
	CACertPath string

	// ClientCertPath and ClientKeyPath enable mutual TLS
	ClientCertPath string
	ClientKeyPath  string

	InsecureSkipVerify bool

	// ServerName overrides the host name used to verify the server certificate
	ServerName string
}

// LockConfig controls how Locker holds its keys.
type LockConfig struct {
	// TTL bounds how long a crashed holder blocks others. A held lock is
	// refreshed every TTL/3.
	// Default: 30 seconds
	TTL time.Duration

	// RetryInterval is the pause between two acquisition attempts.
	// Default: 100 milliseconds
	RetryInterval time.Duration
}

// Logger is an interface that matches logger.Logger
type Logger interface {
	Error(msg string, err error, fields ...map[string]interface{})
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
}

// Default values for configuration
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultMaxRetries    = 3
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 3 * time.Second
	DefaultLockTTL       = 30 * time.Second
	DefaultRetryInterval = 100 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = DefaultLockTTL
	}
	if c.Lock.RetryInterval == 0 {
		c.Lock.RetryInterval = DefaultRetryInterval
	}
	return c
}
