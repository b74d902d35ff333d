package persistor

import (
	"github.com/Aleph-Alpha/persistor/v1/mariadb"
	"github.com/Aleph-Alpha/persistor/v1/mongo"
	"github.com/Aleph-Alpha/persistor/v1/postgres"
)

// DefaultConcurrency bounds the number of queries a single fetch or save
// runs at once.
const DefaultConcurrency = 8

// Config configures the persistor.
type Config struct {
	// SyncOnStart synchronizes every table with its templates when the fx
	// application starts.
	SyncOnStart bool `yaml:"sync_on_start" envconfig:"PERSISTOR_SYNC_ON_START"`

	// SchemaFile is an optional JSON-with-comments document of schema entries
	// keyed by template name. It is applied on top of entries set in code.
	SchemaFile string `yaml:"schema_file" envconfig:"PERSISTOR_SCHEMA_FILE"`

	// NoLazySync stops fetches and commits from synchronizing the tables
	// they touch the first time they are used.
	NoLazySync bool `yaml:"no_lazy_sync" envconfig:"PERSISTOR_NO_LAZY_SYNC"`

	// Concurrency bounds the fan-out of follow-up queries. Default 8.
	Concurrency int `yaml:"concurrency" envconfig:"PERSISTOR_CONCURRENCY"`

	// Databases lists the backends. Collections and tables choose one with an
	// "alias/" prefix; names without a prefix use the entry whose Alias is empty.
	Databases []DatabaseConfig `yaml:"databases"`
}

// DatabaseConfig describes one backend.
type DatabaseConfig struct {
	Alias string `yaml:"alias"`

	// Type is postgres, mariadb or mongo.
	Type string `yaml:"type"`

	Postgres postgres.Config `yaml:"postgres"`
	MariaDB  mariadb.Config  `yaml:"mariadb"`
	Mongo    mongo.Config    `yaml:"mongo"`
}

func (c Config) concurrency() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}
