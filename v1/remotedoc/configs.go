package remotedoc

import "time"

// Client names accepted by New.
const (
	ClientS3    = "S3"
	ClientLocal = "local"
)

// Config selects and configures the document client.
type Config struct {
	// Client is ClientS3 or ClientLocal.
	Client string

	S3    S3Config
	Local LocalConfig
}

// S3Config holds the connection of the S3 client. Any S3 compatible server
// works, MinIO included.
type S3Config struct {
	// Endpoint is the host[:port] of the server, without scheme.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool

	// BucketName receives every document.
	BucketName string

	// CreateBucket creates a missing bucket on connect instead of failing.
	CreateBucket bool

	// ConnectTimeout bounds the bucket check on connect.
	// Default: 10 seconds
	ConnectTimeout time.Duration
}

// LocalConfig holds the settings of the local storage client.
type LocalConfig struct {
	// Root is the directory documents are stored under. It is created when
	// missing.
	Root string
}

// Logger is the subset of logger.Logger used by the clients.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}
