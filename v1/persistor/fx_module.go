package persistor

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/persistor/v1/logger"
	"github.com/Aleph-Alpha/persistor/v1/mariadb"
	"github.com/Aleph-Alpha/persistor/v1/model"
	"github.com/Aleph-Alpha/persistor/v1/mongo"
	"github.com/Aleph-Alpha/persistor/v1/observability"
	"github.com/Aleph-Alpha/persistor/v1/postgres"
	"github.com/Aleph-Alpha/persistor/v1/tracer"
)

// FXModule opens the databases of Config, provides the *Persistor and
// synchronizes the tables on start when Config.SyncOnStart is set.
//
// A prepared or unprepared *model.Registry must be provided by the
// application. *logger.Logger, Collector, Observer, Tracer, SyncLocker and
// ChangePublisher are picked up when present.
//
//	app := fx.New(
//	    logger.FXModule,
//	    metrics.FXModule,
//	    persistor.FXModule,
//	    fx.Provide(loadPersistorConfig, buildTemplates),
//	)
var FXModule = fx.Module("persistor",
	fx.Provide(
		NewDatabasesWithDI,
		NewPersistorWithDI,
	),
	fx.Invoke(RegisterPersistorLifecycle),
)

// DatabasesParams groups the dependencies of NewDatabasesWithDI.
type DatabasesParams struct {
	fx.In

	Config Config
	Logger *logger.Logger `optional:"true"`
}

// NewDatabasesWithDI opens every configured database.
func NewDatabasesWithDI(params DatabasesParams) (*Databases, error) {
	return Connect(context.Background(), params.Config, zapLogger(params.Logger))
}

// PersistorParams groups the dependencies of NewPersistorWithDI.
type PersistorParams struct {
	fx.In

	Config    Config
	Templates *model.Registry
	Databases *Databases

	Logger    *logger.Logger         `optional:"true"`
	Collector Collector              `optional:"true"`
	Observer  observability.Observer `optional:"true"`
	Tracer    *tracer.Tracer         `optional:"true"`
	Locker    SyncLocker             `optional:"true"`
	Publisher ChangePublisher        `optional:"true"`
}

// NewPersistorWithDI applies Config.SchemaFile to the template registry,
// prepares it and builds the persistor.
func NewPersistorWithDI(params PersistorParams) (*Persistor, error) {
	if params.Config.SchemaFile != "" {
		entries, err := model.LoadSchemaFile(params.Config.SchemaFile)
		if err != nil {
			return nil, err
		}
		params.Templates.SetSchema(entries)
	}
	if err := params.Templates.Prepare(); err != nil {
		return nil, err
	}

	p := New(params.Templates, params.Databases.Registry, params.Config).
		WithLogger(zapLogger(params.Logger)).
		WithCollector(params.Collector).
		WithObserver(params.Observer).
		WithSyncLocker(params.Locker).
		WithPublisher(params.Publisher)
	if params.Tracer != nil {
		p.WithTracer(params.Tracer)
	}
	return p, nil
}

// zapLogger keeps a missing *logger.Logger a nil interface.
func zapLogger(l *logger.Logger) Logger {
	if l == nil {
		return nil
	}
	return l
}

// PersistorLifecycleParams groups the dependencies of
// RegisterPersistorLifecycle.
type PersistorLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Persistor *Persistor
	Databases *Databases
}

// RegisterPersistorLifecycle hands every opened database to its own
// lifecycle hooks and, when configured, synchronizes all tables once the
// connections are up.
func RegisterPersistorLifecycle(params PersistorLifecycleParams) {
	for _, pg := range params.Databases.Postgres {
		postgres.RegisterLifecycle(params.Lifecycle, pg)
	}
	for _, db := range params.Databases.MariaDB {
		mariadb.RegisterLifecycle(params.Lifecycle, db)
	}
	for _, m := range params.Databases.Mongo {
		mongo.RegisterMongoLifecycle(params.Lifecycle, m)
	}

	p := params.Persistor
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !p.cfg.SyncOnStart {
				return nil
			}
			p.logger.Info("synchronizing tables on start", nil, logFields("sync", "syncAllTables", nil))
			return p.SyncAllTables(ctx)
		},
	})
}
