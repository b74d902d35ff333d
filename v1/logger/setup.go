package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger with the (msg, err, fields) call shape used by
// every persistor component.
type Logger struct {
	// Zap is exposed for callers that need zap directly, e.g. to derive a
	// named child logger.
	Zap *zap.Logger

	tracingEnabled bool
}

// NewLoggerClient builds a logger from cfg.
//
// Entries carry an ISO8601 "timestamp", the caller, the process id and the
// configured service name. An unknown encoding or an output path that cannot
// be opened is returned as an error.
//
// Example:
//
//	log, err := logger.NewLoggerClient(logger.Config{Level: logger.Debug, ServiceName: "persistor"})
//	if err != nil {
//	    return err
//	}
//	log.Info("tables synchronized", nil, nil)
func NewLoggerClient(cfg Config) (*Logger, error) {
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = EncodingJSON
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeCaller = zapcore.FullCallerEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder
	switch encoding {
	case EncodingJSON:
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	case EncodingConsole:
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log encoding %q", cfg.Encoding)
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		InitialFields: map[string]interface{}{
			"pid":     os.Getpid(),
			"service": cfg.ServiceName,
		},
	}

	// skip the wrapper methods so callers show up as the log site
	z, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &Logger{Zap: z, tracingEnabled: cfg.EnableTracing}, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case Debug:
		return zap.DebugLevel
	case Warning:
		return zap.WarnLevel
	case Error:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
