package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aleph-Alpha/persistor/v1/observability"
)

// ErrConflict is matched with errors.Is to count optimistic locking conflicts.
// The persistor's update conflict error matches it.
var ErrConflict = errors.New("update conflict")

// ObserveOperation records an operation report.
func (m *Metrics) ObserveOperation(ctx observability.OperationContext) {
	status := "success"
	if ctx.Error != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(ctx.Component, ctx.Operation, status).Inc()
	m.operationDuration.WithLabelValues(ctx.Component, ctx.Operation).Observe(ctx.Duration.Seconds())
	if ctx.Size > 0 {
		m.operationSize.WithLabelValues(ctx.Component, ctx.Operation).Observe(float64(ctx.Size))
	}
	if ctx.Error != nil && errors.Is(ctx.Error, ErrConflict) {
		m.conflictsTotal.WithLabelValues(ctx.Resource).Inc()
	}
}

// IncrementConflicts counts an optimistic locking conflict on resource.
func (m *Metrics) IncrementConflicts(resource string) {
	m.conflictsTotal.WithLabelValues(resource).Inc()
}

// RecordSchemaChange counts a DDL change, e.g. "create_table" or "add_column".
func (m *Metrics) RecordSchemaChange(table, change string) {
	m.schemaChanges.WithLabelValues(table, change).Inc()
}

// ObserveIdentityMap sets the number of objects loaded for a template.
func (m *Metrics) ObserveIdentityMap(template string, objects int) {
	m.idMapObjects.WithLabelValues(template).Set(float64(objects))
}

// CreateCounter creates a new CounterVec metric and registers it.
func (m *Metrics) CreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := createCounterVec(name, help, labels)
	m.registerer.MustRegister(counter)
	return counter
}

// CreateHistogram creates a new HistogramVec metric and registers it.
func (m *Metrics) CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	hist := createHistogramVec(name, help, labels, buckets)
	m.registerer.MustRegister(hist)
	return hist
}

// CreateGauge creates a new GaugeVec metric and registers it.
func (m *Metrics) CreateGauge(name, help string, labels []string) *prometheus.GaugeVec {
	gauge := createGaugeVec(name, help, labels)
	m.registerer.MustRegister(gauge)
	return gauge
}

func createCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}

func createHistogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: buckets,
		},
		labels,
	)
}

func createGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}
