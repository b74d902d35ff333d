package logger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core), true)

	l.Error("commit failed", errors.New("boom"), map[string]interface{}{"objects": 2})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "commit failed", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, int64(2), fields["objects"])
}

func TestLoggerTraceContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core), true)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	l.DebugWithContext(ctx, "dataSaved", nil)
	l.InfoWithContext(context.Background(), "no span", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entries[0].ContextMap()["trace_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{level: Debug, want: zap.DebugLevel},
		{level: Warning, want: zap.WarnLevel},
		{level: Error, want: zap.ErrorLevel},
		{level: "unknown", want: zap.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, err := NewLoggerClient(Config{Level: tt.level, ServiceName: "persistor"})
			require.NoError(t, err)
			assert.True(t, l.Zap.Core().Enabled(tt.want))
			assert.False(t, l.Zap.Core().Enabled(tt.want-1))
		})
	}
}

func TestLoggerOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persistor.log")
	l, err := NewLoggerClient(Config{ServiceName: "persistor", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Info("table created", nil, map[string]interface{}{"table": "customer"})
	require.NoError(t, l.Zap.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "table created", entry["msg"])
	assert.Equal(t, "persistor", entry["service"])
	assert.Equal(t, "customer", entry["table"])
	assert.Contains(t, entry, "timestamp")
}

func TestLoggerRejectsUnknownEncoding(t *testing.T) {
	_, err := NewLoggerClient(Config{Encoding: "xml"})
	assert.ErrorContains(t, err, `unknown log encoding "xml"`)

	l, err := NewLoggerClient(Config{Encoding: EncodingConsole})
	require.NoError(t, err)
	assert.NotNil(t, l.Zap)
}
