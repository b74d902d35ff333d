package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/persistor/v1/observability"
	"github.com/Aleph-Alpha/persistor/v1/persistor"
)

type fakeTransport struct {
	sent   [][]Envelope
	err    error
	closed bool
}

func (f *fakeTransport) Send(_ context.Context, envelopes []Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, envelopes)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

var committed = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func orderChanges() persistor.ChangeTracking {
	return persistor.ChangeTracking{
		"Order": {
			{Table: "orders", PrimaryKey: "o1", Action: "update", Properties: []persistor.PropertyChanges{
				{Name: "total", OriginalValue: 30.0, NewValue: 45.0, ColumnName: "total"},
			}},
			{Table: "orders", PrimaryKey: "o2", Action: "insert"},
		},
		"Customer": {
			{Table: "customer", PrimaryKey: "c1", Action: "delete"},
		},
	}
}

func newTestFeed(t *testing.T) (*Feed, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	f := NewFeed("fake", transport, "billing")
	f.now = func() time.Time { return committed }
	return f, transport
}

func TestMessagesAreOrderedByTemplate(t *testing.T) {
	msgs := Messages(orderChanges(), "billing", committed.In(time.FixedZone("CET", 3600)))

	require.Len(t, msgs, 3)
	got := make([]string, len(msgs))
	for i, m := range msgs {
		got[i] = m.Template + "/" + m.PrimaryKey
		assert.Equal(t, "billing", m.Source)
		assert.Equal(t, time.UTC, m.CommittedAt.Location())
	}
	assert.Equal(t, []string{"Customer/c1", "Order/o1", "Order/o2"}, got)
}

func TestPublishSendsOneMessagePerObject(t *testing.T) {
	f, transport := newTestFeed(t)

	require.NoError(t, f.Publish(context.Background(), orderChanges()))
	require.Len(t, transport.sent, 1)
	envelopes := transport.sent[0]
	require.Len(t, envelopes, 3)

	update := envelopes[1]
	assert.Equal(t, "Order/o1", update.Key)
	assert.Equal(t, "Order", update.Template)
	assert.Equal(t, []Header{
		{Key: "template", Value: "Order"},
		{Key: "action", Value: "update"},
		{Key: "source", Value: "billing"},
	}, update.Headers)

	var decoded Message
	require.NoError(t, json.Unmarshal(update.Value, &decoded))
	assert.Equal(t, "orders", decoded.Table)
	assert.Equal(t, "o1", decoded.PrimaryKey)
	assert.True(t, decoded.CommittedAt.Equal(committed))
	require.Len(t, decoded.Properties, 1)
	assert.Equal(t, "total", decoded.Properties[0].Name)
	assert.Equal(t, 30.0, decoded.Properties[0].OriginalValue)
	assert.Equal(t, 45.0, decoded.Properties[0].NewValue)
}

func TestPublishSkipsEmptyRecords(t *testing.T) {
	f, transport := newTestFeed(t)

	require.NoError(t, f.Publish(context.Background(), nil))
	require.NoError(t, f.Publish(context.Background(), persistor.ChangeTracking{"Order": nil}))
	assert.Empty(t, transport.sent)
}

func TestPublishFailure(t *testing.T) {
	f, transport := newTestFeed(t)
	broker := errors.New("broker down")
	transport.err = broker

	var observed []observability.OperationContext
	f.WithObserver(observability.ObserverFunc(func(ctx observability.OperationContext) {
		observed = append(observed, ctx)
	}))

	err := f.Publish(context.Background(), orderChanges())
	require.ErrorIs(t, err, broker)
	assert.Contains(t, err.Error(), "3 changes")

	require.Len(t, observed, 1)
	assert.Equal(t, "changefeed", observed[0].Component)
	assert.Equal(t, "publish", observed[0].Operation)
	assert.Equal(t, "fake", observed[0].Resource)
	assert.Equal(t, int64(3), observed[0].Size)
	assert.ErrorIs(t, observed[0].Error, broker)
}

func TestFeedIsChangePublisher(t *testing.T) {
	f, transport := newTestFeed(t)
	var publisher persistor.ChangePublisher = f

	require.NoError(t, publisher.Publish(context.Background(), orderChanges()))
	assert.Len(t, transport.sent, 1)

	require.NoError(t, f.Close())
	assert.True(t, transport.closed)
}

func TestNewRejectsUnknownTransport(t *testing.T) {
	for _, name := range []string{"", "nats", "Kafka"} {
		_, err := New(Config{Transport: name})
		assert.ErrorIs(t, err, ErrNoTransport, name)
	}
}
