package remotedoc

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Aleph-Alpha/persistor/v1/observability"
)

// Service uploads, downloads and deletes base64 encoded documents through
// the client chosen by Config.Client.
type Service struct {
	client   Client
	kind     string
	logger   Logger
	observer observability.Observer
}

// New builds the client named by cfg.Client and wraps it in a Service.
// Names other than ClientS3 and ClientLocal fail with ErrNoClient.
func New(ctx context.Context, cfg Config) (*Service, error) {
	var (
		client Client
		err    error
	)
	switch cfg.Client {
	case ClientS3:
		client, err = NewS3Client(ctx, cfg.S3)
	case ClientLocal:
		client, err = NewLocalClient(cfg.Local)
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoClient, cfg.Client)
	}
	if err != nil {
		return nil, err
	}
	return NewService(cfg.Client, client), nil
}

// NewService wraps an existing client. kind names it in logs and
// observations.
func NewService(kind string, client Client) *Service {
	return &Service{client: client, kind: kind, logger: nopLogger{}}
}

// WithLogger sets the logger and returns the service for chaining.
func (s *Service) WithLogger(logger Logger) *Service {
	if logger == nil {
		logger = nopLogger{}
	}
	s.logger = logger
	return s
}

// WithObserver sets the observer and returns the service for chaining.
func (s *Service) WithObserver(observer observability.Observer) *Service {
	s.observer = observer
	return s
}

// Client returns the wrapped client.
func (s *Service) Client() Client {
	return s.client
}

// UploadDocument stores the base64 encoded document under key.
func (s *Service) UploadDocument(ctx context.Context, document, key string) error {
	start := time.Now()
	data, err := base64.StdEncoding.DecodeString(document)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	} else {
		err = s.client.Put(ctx, key, data)
	}
	s.observe("upload", key, start, int64(len(data)), err)
	return err
}

// DownloadDocument returns the document stored under key, base64 encoded.
func (s *Service) DownloadDocument(ctx context.Context, key string) (string, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, key)
	s.observe("download", key, start, int64(len(data)), err)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DeleteDocument removes the document stored under key.
func (s *Service) DeleteDocument(ctx context.Context, key string) error {
	start := time.Now()
	err := s.client.Delete(ctx, key)
	s.observe("delete", key, start, 0, err)
	return err
}

func (s *Service) observe(operation, key string, start time.Time, size int64, err error) {
	if err != nil {
		s.logger.Error("remote document "+operation+" failed", err, map[string]interface{}{
			"client": s.kind,
			"key":    key,
		})
	}
	if s.observer == nil {
		return
	}
	s.observer.ObserveOperation(observability.OperationContext{
		Component:   "remotedoc",
		Operation:   operation,
		Resource:    s.kind,
		SubResource: key,
		Duration:    time.Since(start),
		Error:       err,
		Size:        size,
	})
}
