package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/Aleph-Alpha/persistor/v1/logger"
)

func TestSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tr := NewWithProvider(trace.NewTracerProvider(trace.WithSpanProcessor(recorder)), logger.NewFromZap(zaptest.NewLogger(t), false))

	_, span := tr.StartSpan(context.Background(), "persistor.commit")
	tr.SetAttributes(span, map[string]interface{}{"objects": 3, "alias": "__default__"})
	tr.RecordErrorOnSpan(span, errors.New("Update Conflict"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "persistor.commit", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Attributes(), 2)
}

func TestCarrierRoundTrip(t *testing.T) {
	tp := trace.NewTracerProvider()
	tr := NewWithProvider(tp, logger.NewFromZap(zaptest.NewLogger(t), false))

	ctx, span := tr.StartSpan(context.Background(), "persistor.publish")
	defer span.End()

	carrier := tr.GetCarrier(ctx)
	assert.Contains(t, carrier, "traceparent")

	restored := tr.SetCarrierOnContext(context.Background(), carrier)
	_, child := tr.StartSpan(restored, "consumer")
	defer child.End()
	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())
}
