package logger

const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Encodings accepted by Config.Encoding.
const (
	EncodingJSON    = "json"
	EncodingConsole = "console"
)

// Config configures the logger.
type Config struct {
	// Level is one of debug, info, warning or error. Anything else is info.
	Level string `yaml:"level" envconfig:"ZAP_LOGGER_LEVEL"`

	// ServiceName is attached to every entry as the "service" field.
	ServiceName string `yaml:"service_name" envconfig:"ZAP_LOGGER_SERVICE_NAME"`

	// EnableTracing adds trace_id and span_id from the context to entries
	// logged with the *WithContext methods.
	EnableTracing bool `yaml:"enable_tracing" envconfig:"ZAP_LOGGER_ENABLE_TRACING"`

	// Encoding is json (default) or console. Console output colors levels.
	Encoding string `yaml:"encoding" envconfig:"ZAP_LOGGER_ENCODING"`

	// OutputPaths are zap sink URLs or file paths. Defaults to stderr.
	OutputPaths []string `yaml:"output_paths" envconfig:"ZAP_LOGGER_OUTPUT_PATHS"`
}
