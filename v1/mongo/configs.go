package mongo

import "time"

// Config holds the connection settings of one MongoDB database.
type Config struct {
	// URI is a standard mongodb:// or mongodb+srv:// connection string.
	URI string `yaml:"uri" envconfig:"MONGO_URI"`

	// Database is the database holding the collections.
	Database string `yaml:"database" envconfig:"MONGO_DATABASE"`

	// ConnectTimeout bounds the initial connect and ping. Default 10s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// MaxPoolSize caps the driver's connection pool. Zero keeps the driver default.
	MaxPoolSize uint64 `yaml:"max_pool_size"`
}
