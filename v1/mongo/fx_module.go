package mongo

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides *Mongo for single-database applications and disconnects
// it on shutdown.
var FXModule = fx.Module("mongo",
	fx.Provide(NewMongoWithDI),
	fx.Invoke(RegisterMongoLifecycle),
)

// NewMongoWithDI connects using the fx-provided Config.
func NewMongoWithDI(cfg Config) (*Mongo, error) {
	return NewMongo(context.Background(), cfg)
}

// RegisterMongoLifecycle disconnects the client when the application stops.
func RegisterMongoLifecycle(lc fx.Lifecycle, m *Mongo) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return m.Close()
		},
	})
}
