package mariadb

import (
	"net/url"
	"time"
)

// Config holds the connection settings of one MariaDB/MySQL database.
type Config struct {
	Connection        Connection
	ConnectionDetails ConnectionDetails
}

// Connection identifies the server, credentials and DSN parameters.
type Connection struct {
	Host     string `yaml:"host" envconfig:"MARIADB_HOST"`
	Port     string `yaml:"port" envconfig:"MARIADB_PORT"`
	User     string `yaml:"user" envconfig:"MARIADB_USER"`
	Password string `yaml:"password" envconfig:"MARIADB_PASSWORD"`
	DbName   string `yaml:"db_name" envconfig:"MARIADB_DB"`

	// Charset defaults to utf8mb4.
	Charset string `yaml:"charset"`

	// ParseTime must be true for timestamps to scan into time.Time.
	ParseTime bool `yaml:"parse_time"`

	// Loc defaults to Local.
	Loc string `yaml:"loc"`

	TLS          string `yaml:"tls"`
	Timeout      string `yaml:"timeout"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// ConnectionDetails tunes the connection pool.
type ConnectionDetails struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN renders the go-sql-driver data source name.
// Format: username:password@tcp(host:port)/dbname?param=value
func (c Config) DSN() string {
	charset := c.Connection.Charset
	if charset == "" {
		charset = "utf8mb4"
	}

	parseTime := "True"
	if !c.Connection.ParseTime {
		parseTime = "False"
	}

	loc := c.Connection.Loc
	if loc == "" {
		loc = "Local"
	}

	dsn := c.Connection.User + ":" + c.Connection.Password +
		"@tcp(" + c.Connection.Host + ":" + c.Connection.Port + ")/" + c.Connection.DbName +
		"?charset=" + charset + "&parseTime=" + parseTime + "&loc=" + url.QueryEscape(loc)

	if c.Connection.TLS != "" {
		dsn += "&tls=" + c.Connection.TLS
	}
	if c.Connection.Timeout != "" {
		dsn += "&timeout=" + c.Connection.Timeout
	}
	if c.Connection.ReadTimeout != "" {
		dsn += "&readTimeout=" + c.Connection.ReadTimeout
	}
	if c.Connection.WriteTimeout != "" {
		dsn += "&writeTimeout=" + c.Connection.WriteTimeout
	}
	return dsn
}
