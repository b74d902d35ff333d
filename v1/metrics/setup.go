package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates the Prometheus registry and HTTP server responsible
// for exposing persistence metrics.
//
// It implements observability.Observer, so the persistor, the database
// adapters and the publishers report into it directly.
type Metrics struct {
	// Server defines the HTTP server used to expose the /metrics endpoint.
	Server *http.Server

	// Registry is the Prometheus registry where all metrics are registered.
	// Each service maintains its own isolated registry to prevent metric name collisions.
	Registry *prometheus.Registry

	registerer prometheus.Registerer

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	conflictsTotal    *prometheus.CounterVec
	schemaChanges     *prometheus.CounterVec
	idMapObjects      *prometheus.GaugeVec
}

// NewMetrics initializes and returns a new instance of the Metrics struct.
// It sets up a dedicated Prometheus registry, wraps all metrics with a
// constant `service` label, prefixes them with the configured namespace and
// creates an HTTP server exposing the /metrics endpoint.
//
// Example:
//
//	cfg := metrics.Config{
//	    Address:                 ":9090",
//	    ServiceName:             "persistor",
//	    EnableDefaultCollectors: true,
//	}
//	m := metrics.NewMetrics(cfg)
//	go m.Server.ListenAndServe()
func NewMetrics(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()

	var registerer prometheus.Registerer = registry
	if cfg.ServiceName != "" {
		registerer = prometheus.WrapRegistererWith(prometheus.Labels{"service": cfg.ServiceName}, registerer)
	}
	if cfg.Namespace != "" {
		registerer = prometheus.WrapRegistererWithPrefix(cfg.Namespace+"_", registerer)
	}

	m := &Metrics{
		Registry:   registry,
		registerer: registerer,
	}

	m.operationsTotal = createCounterVec("persistor_operations_total", "Total number of persistence operations", []string{"component", "operation", "status"})
	m.operationDuration = createHistogramVec("persistor_operation_duration_seconds", "Duration of persistence operations in seconds", []string{"component", "operation"}, prometheus.DefBuckets)
	m.operationSize = createHistogramVec("persistor_operation_size", "Rows, documents or bytes touched per operation", []string{"component", "operation"}, prometheus.ExponentialBuckets(1, 4, 8))
	m.conflictsTotal = createCounterVec("persistor_update_conflicts_total", "Optimistic locking conflicts detected on commit", []string{"resource"})
	m.schemaChanges = createCounterVec("persistor_schema_changes_total", "DDL changes applied by schema synchronization", []string{"table", "change"})
	m.idMapObjects = createGaugeVec("persistor_idmap_objects", "Objects held in the identity map of the last fetch", []string{"template"})

	registerer.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.operationSize,
		m.conflictsTotal,
		m.schemaChanges,
		m.idMapObjects,
	)

	if cfg.EnableDefaultCollectors {
		registerer.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	address := cfg.Address
	if address == "" {
		address = DefaultMetricsAddress
	}

	path := cfg.Path
	if path == "" {
		path = DefaultMetricsPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	m.Server = &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m
}
