package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aleph-Alpha/persistor/v1/observability"
)

// MetricsCollector provides an interface for collecting and exposing persistence metrics.
//
// This interface is implemented by the concrete *Metrics type.
type MetricsCollector interface {
	observability.Observer

	// IncrementConflicts counts an optimistic locking conflict on resource.
	IncrementConflicts(resource string)

	// RecordSchemaChange counts a DDL change applied by schema synchronization.
	RecordSchemaChange(table, change string)

	// ObserveIdentityMap sets the number of objects loaded for a template.
	ObserveIdentityMap(template string, objects int)

	// CreateCounter creates a new CounterVec metric and registers it.
	CreateCounter(name, help string, labels []string) *prometheus.CounterVec

	// CreateHistogram creates a new HistogramVec metric and registers it.
	CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec

	// CreateGauge creates a new GaugeVec metric and registers it.
	CreateGauge(name, help string, labels []string) *prometheus.GaugeVec
}

var _ MetricsCollector = (*Metrics)(nil)
