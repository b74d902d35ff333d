package mariadb

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/persistor/v1/logger"
)

// FXModule provides a single *MariaDB from the fx-provided Config and keeps its
// connection health checked while the application runs.
//
// Applications with several databases let persistor.FXModule open them from
// its database list instead.
var FXModule = fx.Module("mariadb",
	fx.Provide(NewMariaDBClientWithDI),
	fx.Invoke(RegisterMariaDBLifecycle),
)

// MariaDBParams groups the dependencies of NewMariaDBClientWithDI.
type MariaDBParams struct {
	fx.In

	Config Config
	Logger *logger.Logger `optional:"true"`
}

// NewMariaDBClientWithDI connects using the fx-provided Config.
func NewMariaDBClientWithDI(params MariaDBParams) (*MariaDB, error) {
	client, err := NewMariaDB(params.Config)
	if err != nil {
		return nil, err
	}
	if params.Logger != nil {
		client.WithLogger(params.Logger)
	}
	return client, nil
}

// RegisterMariaDBLifecycle ties the provided client to the application lifecycle.
func RegisterMariaDBLifecycle(lc fx.Lifecycle, db *MariaDB) {
	RegisterLifecycle(lc, db)
}

// RegisterLifecycle health checks db while the application runs and
// closes it on stop.
func RegisterLifecycle(lc fx.Lifecycle, db *MariaDB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// the start context ends with startup
			db.Start(context.WithoutCancel(ctx))
			return nil
		},
		OnStop: func(context.Context) error {
			return db.GracefulShutdown()
		},
	})
}
