package postgres

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/persistor/v1/logger"
)

// FXModule provides a single *Postgres from the fx-provided Config and keeps its
// connection health checked while the application runs.
//
// Applications with several databases let persistor.FXModule open them from
// its database list instead.
var FXModule = fx.Module("postgres",
	fx.Provide(NewPostgresClientWithDI),
	fx.Invoke(RegisterPostgresLifecycle),
)

// PostgresParams groups the dependencies of NewPostgresClientWithDI.
type PostgresParams struct {
	fx.In

	Config Config
	Logger *logger.Logger `optional:"true"`
}

// NewPostgresClientWithDI connects using the fx-provided Config.
func NewPostgresClientWithDI(params PostgresParams) (*Postgres, error) {
	client, err := NewPostgres(params.Config)
	if err != nil {
		return nil, err
	}
	if params.Logger != nil {
		client.WithLogger(params.Logger)
	}
	return client, nil
}

// RegisterPostgresLifecycle ties the provided client to the application lifecycle.
func RegisterPostgresLifecycle(lc fx.Lifecycle, pg *Postgres) {
	RegisterLifecycle(lc, pg)
}

// RegisterLifecycle health checks pg while the application runs and
// closes it on stop.
func RegisterLifecycle(lc fx.Lifecycle, pg *Postgres) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// the start context ends with startup
			pg.Start(context.WithoutCancel(ctx))
			return nil
		},
		OnStop: func(context.Context) error {
			return pg.GracefulShutdown()
		},
	})
}
