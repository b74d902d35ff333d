package redis

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/persistor/v1/logger"
	"github.com/Aleph-Alpha/persistor/v1/observability"
	"github.com/Aleph-Alpha/persistor/v1/persistor"
)

// FXModule provides the Redis client and a Locker. The Locker is also
// provided as persistor.SyncLocker, which persistor.FXModule picks up to
// serialise schema synchronisation across processes.
//
// Usage:
//
//	app := fx.New(
//	    logger.FXModule,
//	    redis.FXModule,
//	    persistor.FXModule,
//	    fx.Provide(loadRedisConfig),
//	)
var FXModule = fx.Module("redis",
	fx.Provide(
		NewClientWithDI,
		NewLocker,
		fx.Annotate(
			func(l *Locker) *Locker { return l },
			fx.As(new(persistor.SyncLocker)),
		),
	),
	fx.Invoke(RegisterRedisLifecycle),
)

// RedisParams groups the dependencies needed to create a Redis client
type RedisParams struct {
	fx.In

	Config   Config
	Logger   *logger.Logger         `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewClientWithDI creates a new Redis client using dependency injection.
// The optional logger replaces Config.Logger.
func NewClientWithDI(params RedisParams) (*RedisClient, error) {
	if params.Logger != nil {
		params.Config.Logger = params.Logger
	}

	client, err := NewClient(params.Config)
	if err != nil {
		return nil, err
	}
	return client.WithObserver(params.Observer), nil
}

// RedisLifecycleParams groups the dependencies needed for Redis lifecycle management
type RedisLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    *RedisClient
}

// RegisterRedisLifecycle pings Redis on start and closes the client on
// stop.
func RegisterRedisLifecycle(params RedisLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Client.Ping(ctx); err != nil {
				params.Client.logError("Failed to ping Redis on startup", err, nil)
				return err
			}
			params.Client.logInfo("Redis client started and healthy", nil)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return params.Client.Close()
		},
	})
}
