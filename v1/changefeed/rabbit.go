package changefeed

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConfirmed is returned when the broker nacks a published message.
var ErrNotConfirmed = errors.New("message not confirmed by broker")

// RabbitTransport publishes envelopes to an exchange with publisher
// confirms. The routing key of a message is RoutingKey + "." + template.
type RabbitTransport struct {
	cfg  RabbitConfig
	conn *amqp.Connection
	ch   *amqp.Channel

	// one publish batch at a time keeps confirms in order
	mu sync.Mutex
}

// NewRabbitTransport connects, enables confirms and declares the exchange.
func NewRabbitTransport(cfg RabbitConfig) (*RabbitTransport, error) {
	cfg = cfg.withDefaults()
	if cfg.ExchangeName == "" {
		return nil, fmt.Errorf("rabbit exchange name cannot be empty")
	}

	conn, err := dialRabbit(cfg)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	err = ch.ExchangeDeclare(
		cfg.ExchangeName,
		cfg.ExchangeType,
		true,  // Durable
		false, // AutoDelete
		false, // Internal
		false, // NoWait
		nil,   // Arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitTransport{cfg: cfg, conn: conn, ch: ch}, nil
}

func (r *RabbitTransport) Send(ctx context.Context, envelopes []Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	confirms := make([]*amqp.DeferredConfirmation, 0, len(envelopes))
	for _, e := range envelopes {
		dc, err := r.ch.PublishWithDeferredConfirmWithContext(ctx,
			r.cfg.ExchangeName,
			routingKey(r.cfg.RoutingKey, e.Template),
			false, // Mandatory
			false, // Immediate
			publishing(e),
		)
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", e.Key, err)
		}
		confirms = append(confirms, dc)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ConfirmTimeout)
	defer cancel()
	for i, dc := range confirms {
		ok, err := dc.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to confirm %s: %w", envelopes[i].Key, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotConfirmed, envelopes[i].Key)
		}
	}
	return nil
}

func (r *RabbitTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

func routingKey(prefix, template string) string {
	return prefix + "." + template
}

func publishing(e Envelope) amqp.Publishing {
	headers := amqp.Table{}
	for _, h := range e.Headers {
		headers[h.Key] = h.Value
	}
	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.Key,
		Body:         e.Value,
	}
}

func rabbitURL(cfg RabbitConfig) string {
	scheme := "amqp"
	if cfg.IsSSLEnabled {
		scheme = "amqps"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.FormatUint(uint64(cfg.Port), 10)),
	}
	return u.String()
}

// dialRabbit connects with a 2-second heartbeat. Client certificates are
// used when both paths are set.
func dialRabbit(cfg RabbitConfig) (*amqp.Connection, error) {
	amqpCfg := amqp.Config{Heartbeat: 2 * time.Second}

	if cfg.IsSSLEnabled {
		tlsConfig := &tls.Config{ServerName: cfg.ServerName}
		if cfg.CACertPath != "" {
			caCert, err := os.ReadFile(cfg.CACertPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA cert: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to parse CA cert")
			}
			tlsConfig.RootCAs = pool
		}
		if cfg.ClientCertPath != "" && cfg.ClientKeyPath != "" {
			cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load client cert: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		amqpCfg.TLSClientConfig = tlsConfig
	}

	conn, err := amqp.DialConfig(rabbitURL(cfg), amqpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Rabbit: %w", err)
	}
	return conn, nil
}
