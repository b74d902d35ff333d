package changefeed

import "time"

// Transport names accepted by New.
const (
	TransportKafka  = "kafka"
	TransportRabbit = "rabbit"
)

// Config selects and configures the transport of the feed.
type Config struct {
	// Transport is TransportKafka or TransportRabbit.
	Transport string

	// Source is sent with every message so consumers can tell several
	// writers apart.
	Source string

	Kafka  KafkaConfig
	Rabbit RabbitConfig
}

// KafkaConfig configures the Kafka producer.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// RequiredAcks is the number of acknowledgements the leader waits for.
	// -1 waits for all in-sync replicas.
	// Default: -1
	RequiredAcks int

	// MaxAttempts bounds the delivery attempts of one batch.
	// Default: 10
	MaxAttempts int

	// WriteTimeout bounds one write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// CompressionCodec is "gzip", "snappy", "lz4", "zstd" or empty.
	CompressionCodec string

	TLS  TLSConfig
	SASL SASLConfig
}

// TLSConfig contains TLS settings of the Kafka connection.
type TLSConfig struct {
	Enabled            bool
	CACertPath         string
	ClientCertPath     string
	ClientKeyPath      string
	InsecureSkipVerify bool
}

// SASLConfig contains SASL settings of the Kafka connection.
type SASLConfig struct {
	Enabled bool

	// Mechanism is "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512".
	Mechanism string
	Username  string
	Password  string
}

// RabbitConfig configures the RabbitMQ publisher.
type RabbitConfig struct {
	Host     string
	Port     uint
	User     string
	Password string

	IsSSLEnabled   bool
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string
	ServerName     string

	// ExchangeName is declared as a durable exchange of ExchangeType on
	// connect.
	ExchangeName string

	// ExchangeType defaults to "topic".
	ExchangeType string

	// RoutingKey is prefixed to the template name of each change, e.g.
	// "persistor.changes.Order". Default: "persistor.changes"
	RoutingKey string

	// ConfirmTimeout bounds the wait for a broker confirm.
	// Default: 5 seconds
	ConfirmTimeout time.Duration
}

// Logger is the subset of logger.Logger used by the feed.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}

const (
	DefaultRequiredAcks   = -1
	DefaultMaxAttempts    = 10
	DefaultWriteTimeout   = 10 * time.Second
	DefaultExchangeType   = "topic"
	DefaultRoutingKey     = "persistor.changes"
	DefaultConfirmTimeout = 5 * time.Second
)

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.RequiredAcks == 0 {
		c.RequiredAcks = DefaultRequiredAcks
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

func (c RabbitConfig) withDefaults() RabbitConfig {
	if c.ExchangeType == "" {
		c.ExchangeType = DefaultExchangeType
	}
	if c.RoutingKey == "" {
		c.RoutingKey = DefaultRoutingKey
	}
	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	return c
}
