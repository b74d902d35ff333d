package metrics

// Defaults applied by NewMetrics.
const (
	DefaultMetricsAddress = ":9090"
	DefaultMetricsPath    = "/metrics"
)

// Config configures the Prometheus registry and the HTTP server that
// exposes it.
type Config struct {
	// Address the metrics server listens on, e.g. ":9090" or "127.0.0.1:9100".
	Address string `yaml:"address" envconfig:"METRICS_ADDRESS"`

	// Path the registry is served under. Defaults to /metrics.
	Path string `yaml:"path" envconfig:"METRICS_PATH"`

	// EnableDefaultCollectors adds the Go runtime, process and build info
	// collectors next to the persistence metrics.
	EnableDefaultCollectors bool `yaml:"enable_default_collectors" envconfig:"METRICS_ENABLE_DEFAULT_COLLECTORS"`

	// Namespace prefixes every metric name: "shop" turns
	// persistor_operations_total into shop_persistor_operations_total.
	Namespace string `yaml:"namespace" envconfig:"METRICS_NAMESPACE"`

	// ServiceName is added as a constant "service" label when set.
	ServiceName string `yaml:"service_name" envconfig:"METRICS_SERVICE_NAME"`
}
