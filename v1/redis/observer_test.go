package redis

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/persistor/v1/observability"
)

// TestObserver is a mock observer for testing.
type TestObserver struct {
	mu         sync.Mutex
	operations []observability.OperationContext
}

func (t *TestObserver) ObserveOperation(ctx observability.OperationContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operations = append(t.operations, ctx)
}

func (t *TestObserver) GetOperations() []observability.OperationContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]observability.OperationContext, len(t.operations))
	copy(out, t.operations)
	return out
}

func TestObserveOperationNilObserverNoPanic(t *testing.T) {
	r := &RedisClient{}
	r.observeOperation("lock", "persistor:sync:a/b", "token", 10*time.Millisecond, nil, nil)
}

func TestObserveOperationCallsObserver(t *testing.T) {
	obs := &TestObserver{}
	r := (&RedisClient{}).WithObserver(obs)

	r.observeOperation("lock", "persistor:sync:a/b", "token", 10*time.Millisecond, nil, map[string]interface{}{"ttl": "30s"})

	ops := obs.GetOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, "redis", ops[0].Component)
	assert.Equal(t, "lock", ops[0].Operation)
	assert.Equal(t, "persistor:sync:a/b", ops[0].Resource)
	assert.Equal(t, "token", ops[0].SubResource)
	assert.Equal(t, "30s", ops[0].Metadata["ttl"])
}
