// Package tracer sets up OpenTelemetry tracing for the persistor.
//
// The persistor opens a span per public operation (fetch, commit,
// synchronize) and the change feed publishers carry the trace context to
// consumers through GetCarrier.
//
//	t, err := tracer.NewClient(tracer.Config{ServiceName: "persistor"}, log)
//	p := persistor.New(registry, dbs, persistor.WithTracer(t))
package tracer
