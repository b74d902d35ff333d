package postgres

import "time"

// Config holds the connection settings of one PostgreSQL database.
type Config struct {
	Connection        Connection
	ConnectionDetails ConnectionDetails
}

// Connection identifies the server and credentials.
type Connection struct {
	Host     string `yaml:"host" envconfig:"POSTGRES_HOST"`
	Port     string `yaml:"port" envconfig:"POSTGRES_PORT"`
	User     string `yaml:"user" envconfig:"POSTGRES_USER"`
	Password string `yaml:"password" envconfig:"POSTGRES_PASSWORD"`
	DbName   string `yaml:"db_name" envconfig:"POSTGRES_DB"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"POSTGRES_SSL_MODE"`
}

// ConnectionDetails tunes the connection pool. Zero values fall back to
// 50 open, 25 idle and a one minute lifetime.
type ConnectionDetails struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN renders the libpq keyword/value connection string.
func (c Config) DSN() string {
	sslMode := c.Connection.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return "host=" + c.Connection.Host +
		" port=" + c.Connection.Port +
		" user=" + c.Connection.User +
		" password=" + c.Connection.Password +
		" dbname=" + c.Connection.DbName +
		" sslmode=" + sslMode
}
