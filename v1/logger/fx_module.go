package logger

import (
	"context"
	"errors"
	"syscall"

	"go.uber.org/fx"
)

// FXModule provides *Logger built from the fx-provided Config and flushes it
// on shutdown.
//
// The database adapters, the persistor and the publishers take an optional
// *Logger in their fx params, so adding this module is enough to route all
// of their output through one zap core.
//
//	app := fx.New(
//	    logger.FXModule,
//	    persistor.FXModule,
//	    fx.Provide(func() logger.Config { return logger.Config{Level: logger.Debug} }),
//	)
var FXModule = fx.Module("logger",
	fx.Provide(NewLoggerClient),
	fx.Invoke(RegisterLoggerLifecycle),
)

// RegisterLoggerLifecycle syncs buffered entries when the application stops.
func RegisterLoggerLifecycle(lc fx.Lifecycle, client *Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			err := client.Zap.Sync()
			// stderr and terminals reject fsync
			if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
				return nil
			}
			return err
		},
	})
}
