// Package logger provides structured logging built on Uber's zap.
//
// The persistor engine, the database adapters and the publishers all log
// through the small Logger interfaces they declare; *Logger satisfies each of
// them, so one instance is shared across the application.
//
// # Direct Usage (Without FX)
//
//	import "github.com/Aleph-Alpha/persistor/v1/logger"
//
//	log, err := logger.NewLoggerClient(logger.Config{
//		Level:         "info",
//		ServiceName:   "persistor",
//		EnableTracing: true,
//	})
//	if err != nil {
//		return err
//	}
//
//	log.Info("Schema synchronized", nil, map[string]interface{}{
//		"table": "employee",
//	})
//
//	// Log with trace context (automatically includes trace_id and span_id)
//	log.InfoWithContext(ctx, "Transaction committed", nil, map[string]interface{}{
//		"objects": 12,
//	})
//
// In tests wrap zaptest or an observer core instead:
//
//	log := logger.NewFromZap(zaptest.NewLogger(t), false)
//
// # FX Module Integration
//
//	app := fx.New(
//		logger.FXModule,
//		fx.Provide(func() logger.Config {
//			return logger.Config{Level: "debug", ServiceName: "persistor"}
//		}),
//	)
//
// # Configuration
//
//	ZAP_LOGGER_LEVEL=debug              # debug, info, warning, error
//	ZAP_LOGGER_SERVICE_NAME=persistor   # "service" field on every entry
//	ZAP_LOGGER_ENABLE_TRACING=true      # add trace_id and span_id from ctx
//	ZAP_LOGGER_ENCODING=console         # json (default) or console
//	ZAP_LOGGER_OUTPUT_PATHS=stdout      # comma separated sinks, default stderr
//
// # Tracing Integration
//
// When tracing is enabled the *WithContext methods extract the OpenTelemetry
// span context and add trace_id and span_id to the entry.
//
// # Thread Safety
//
// All methods are safe for concurrent use by multiple goroutines.
package logger
