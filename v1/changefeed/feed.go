package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Aleph-Alpha/persistor/v1/observability"
	"github.com/Aleph-Alpha/persistor/v1/persistor"
)

// ErrNoTransport is returned by New for an unknown transport name.
var ErrNoTransport = errors.New("no change feed transport specified")

// Message is one committed object change as consumers receive it.
type Message struct {
	Source      string                      `json:"source,omitempty"`
	Template    string                      `json:"template"`
	Table       string                      `json:"table"`
	PrimaryKey  string                      `json:"primaryKey"`
	Action      string                      `json:"action"`
	Properties  []persistor.PropertyChanges `json:"properties"`
	CommittedAt time.Time                   `json:"committedAt"`
}

// Envelope is an encoded Message ready for a transport.
type Envelope struct {
	// Key is "<template>/<primary key>". Kafka partitions by it, so the
	// changes of one object stay in order.
	Key string

	// Template is the template name of the change.
	Template string

	Value   []byte
	Headers []Header
}

// Header is a message header. Transports keep the order.
type Header struct {
	Key   string
	Value string
}

// Transport delivers envelopes to a broker. Send returns once the broker
// accepted all of them or fails.
type Transport interface {
	Send(ctx context.Context, envelopes []Envelope) error
	Close() error
}

var _ persistor.ChangePublisher = (*Feed)(nil)

// Feed publishes the change tracking records of committed transactions,
// one message per changed object.
type Feed struct {
	transport Transport
	kind      string
	source    string
	logger    Logger
	observer  observability.Observer
	now       func() time.Time
}

// New connects the transport named by cfg.Transport.
func New(cfg Config) (*Feed, error) {
	var (
		transport Transport
		err       error
	)
	switch cfg.Transport {
	case TransportKafka:
		transport, err = NewKafkaTransport(cfg.Kafka)
	case TransportRabbit:
		transport, err = NewRabbitTransport(cfg.Rabbit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoTransport, cfg.Transport)
	}
	if err != nil {
		return nil, err
	}
	return NewFeed(cfg.Transport, transport, cfg.Source), nil
}

// NewFeed publishes through an existing transport.
func NewFeed(kind string, transport Transport, source string) *Feed {
	return &Feed{
		transport: transport,
		kind:      kind,
		source:    source,
		logger:    nopLogger{},
		now:       time.Now,
	}
}

// WithLogger sets the logger and returns the feed for chaining.
func (f *Feed) WithLogger(logger Logger) *Feed {
	if logger == nil {
		logger = nopLogger{}
	}
	f.logger = logger
	return f
}

// WithObserver sets the observer and returns the feed for chaining.
func (f *Feed) WithObserver(observer observability.Observer) *Feed {
	f.observer = observer
	return f
}

// Publish sends one message per object change. An empty record sends
// nothing.
func (f *Feed) Publish(ctx context.Context, changes persistor.ChangeTracking) error {
	if changes.Len() == 0 {
		return nil
	}

	envelopes, err := Encode(Messages(changes, f.source, f.now()))
	if err != nil {
		return err
	}

	start := time.Now()
	err = f.transport.Send(ctx, envelopes)
	f.observe(start, len(envelopes), err)
	if err != nil {
		f.logger.Error("failed to publish changes", err, map[string]interface{}{
			"transport": f.kind,
			"messages":  len(envelopes),
		})
		return fmt.Errorf("failed to publish %d changes: %w", len(envelopes), err)
	}
	return nil
}

// Close closes the transport.
func (f *Feed) Close() error {
	return f.transport.Close()
}

func (f *Feed) observe(start time.Time, n int, err error) {
	if f.observer == nil {
		return
	}
	f.observer.ObserveOperation(observability.OperationContext{
		Component: "changefeed",
		Operation: "publish",
		Resource:  f.kind,
		Duration:  time.Since(start),
		Error:     err,
		Size:      int64(n),
	})
}

// Messages flattens a change tracking record. Templates are ordered by
// name; the changes of one template keep their commit order.
func Messages(changes persistor.ChangeTracking, source string, at time.Time) []Message {
	templates := make([]string, 0, len(changes))
	for name := range changes {
		templates = append(templates, name)
	}
	sort.Strings(templates)

	msgs := make([]Message, 0, changes.Len())
	for _, name := range templates {
		for _, c := range changes[name] {
			msgs = append(msgs, Message{
				Source:      source,
				Template:    name,
				Table:       c.Table,
				PrimaryKey:  c.PrimaryKey,
				Action:      c.Action,
				Properties:  c.Properties,
				CommittedAt: at.UTC(),
			})
		}
	}
	return msgs
}

// Encode turns messages into JSON envelopes.
func Encode(msgs []Message) ([]Envelope, error) {
	envelopes := make([]Envelope, 0, len(msgs))
	for _, m := range msgs {
		value, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode change of %s %s: %w", m.Template, m.PrimaryKey, err)
		}
		headers := []Header{
			{Key: "template", Value: m.Template},
			{Key: "action", Value: m.Action},
		}
		if m.Source != "" {
			headers = append(headers, Header{Key: "source", Value: m.Source})
		}
		envelopes = append(envelopes, Envelope{
			Key:      m.Template + "/" + m.PrimaryKey,
			Template: m.Template,
			Value:    value,
			Headers:  headers,
		})
	}
	return envelopes, nil
}
