package persistor

import (
	"context"
	"fmt"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/mariadb"
	"github.com/Aleph-Alpha/persistor/v1/mongo"
	"github.com/Aleph-Alpha/persistor/v1/postgres"
)

// Databases holds the backends opened from Config.Databases.
type Databases struct {
	Registry *database.Registry

	Postgres []*postgres.Postgres
	MariaDB  []*mariadb.MariaDB
	Mongo    []*mongo.Mongo
}

// Close releases every opened backend.
func (d *Databases) Close() error {
	return d.Registry.Close()
}

// Connect opens every database of cfg and registers it under its alias.
// Backends opened before a failure are closed again.
func Connect(ctx context.Context, cfg Config, logger Logger) (*Databases, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	dbs := &Databases{Registry: database.NewRegistry()}
	for _, dc := range cfg.Databases {
		if err := dbs.open(ctx, dc, logger); err != nil {
			_ = dbs.Close()
			return nil, fmt.Errorf("%w: database %q: %w", ErrConfiguration, dc.Alias, err)
		}
		logger.Info("persistor.setDB", nil, logFields("api", "setDB", map[string]interface{}{"alias": dc.Alias, "type": dc.Type}))
	}
	return dbs, nil
}

func (d *Databases) open(ctx context.Context, dc DatabaseConfig, logger Logger) error {
	switch dc.Type {
	case database.TypePostgres:
		pg, err := postgres.NewPostgres(dc.Postgres)
		if err != nil {
			return err
		}
		pg.WithLogger(logger)
		d.Postgres = append(d.Postgres, pg)
		d.Registry.Set(database.Handle{Alias: dc.Alias, Type: database.TypePostgres, SQL: pg.Client(), Close: pg.GracefulShutdown})
	case database.TypeMariaDB:
		db, err := mariadb.NewMariaDB(dc.MariaDB)
		if err != nil {
			return err
		}
		db.WithLogger(logger)
		d.MariaDB = append(d.MariaDB, db)
		d.Registry.Set(database.Handle{Alias: dc.Alias, Type: database.TypeMariaDB, SQL: db.Client(), Close: db.GracefulShutdown})
	case database.TypeMongo:
		m, err := mongo.NewMongo(ctx, dc.Mongo)
		if err != nil {
			return err
		}
		d.Mongo = append(d.Mongo, m)
		d.Registry.Set(database.Handle{Alias: dc.Alias, Type: database.TypeMongo, Docs: m.Store(), Close: m.Close})
	default:
		return fmt.Errorf("unknown database type %q", dc.Type)
	}
	return nil
}
