// Package metrics provides Prometheus-based monitoring for the persistor.
//
// # Architecture
//
// This package follows the "accept interfaces, return structs" design pattern:
//   - MetricsCollector interface: Defines the contract for metrics operations
//   - Metrics struct: Concrete implementation of MetricsCollector and observability.Observer
//   - NewMetrics constructor: Returns *Metrics (concrete type)
//   - FX module: Provides *Metrics, MetricsCollector and observability.Observer
//
// Built-in collectors:
//   - persistor_operations_total{component,operation,status}
//   - persistor_operation_duration_seconds{component,operation}
//   - persistor_operation_size{component,operation}
//   - persistor_update_conflicts_total{resource}
//   - persistor_schema_changes_total{table,change}
//   - persistor_idmap_objects{template}
//
// # Direct Usage (Without FX)
//
//	m := metrics.NewMetrics(metrics.Config{
//		Address:                 ":9090",
//		EnableDefaultCollectors: true,
//		ServiceName:             "persistor",
//	})
//	go m.Server.ListenAndServe()
//
//	p := persistor.New(templates, dbs, persistor.Config{}).WithObserver(m)
//
// # FX Module Integration
//
//	app := fx.New(
//		logger.FXModule,
//		metrics.FXModule,
//		fx.Provide(func() metrics.Config {
//			return metrics.Config{Address: ":9090", ServiceName: "persistor"}
//		}),
//	)
//
// # Configuration
//
//	METRICS_ADDRESS=:9090
//	METRICS_PATH=/metrics
//	METRICS_ENABLE_DEFAULT_COLLECTORS=true
//	METRICS_NAMESPACE=app
//	METRICS_SERVICE_NAME=persistor
package metrics
