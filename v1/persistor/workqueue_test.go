package persistor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueueDrainsFollowUps(t *testing.T) {
	q := newWorkQueue(2)
	var ios atomic.Int32
	var applied []int

	var push func(depth int)
	push = func(depth int) {
		q.push(request{
			io: func(context.Context) (interface{}, error) {
				ios.Add(1)
				return depth, nil
			},
			apply: func(_ context.Context, res interface{}) error {
				applied = append(applied, res.(int))
				if depth < 3 {
					push(depth + 1)
					push(depth + 1)
				}
				return nil
			},
		})
	}
	push(0)

	require.NoError(t, q.drain(context.Background()))
	// 1 + 2 + 4 + 8 requests
	assert.Equal(t, int32(15), ios.Load())
	assert.Equal(t, 15, q.done)
	assert.Equal(t, 0, applied[0])
	assert.Equal(t, 3, applied[len(applied)-1])
}

func TestWorkQueueAppliesInPushOrder(t *testing.T) {
	q := newWorkQueue(4)
	var order []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		q.push(request{
			io: func(context.Context) (interface{}, error) { return name, nil },
			apply: func(_ context.Context, res interface{}) error {
				order = append(order, res.(string))
				return nil
			},
		})
	}
	require.NoError(t, q.drain(context.Background()))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
}

func TestWorkQueueStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	q := newWorkQueue(1)
	applied := false
	q.push(request{io: func(context.Context) (interface{}, error) { return nil, boom }})
	q.push(request{
		io:    func(context.Context) (interface{}, error) { return nil, nil },
		apply: func(context.Context, interface{}) error { applied = true; return nil },
	})

	err := q.drain(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, applied)
}

func TestWorkQueueApplyOnlyRequests(t *testing.T) {
	q := newWorkQueue(0)
	assert.Equal(t, DefaultConcurrency, q.limit)

	calls := 0
	q.push(request{apply: func(_ context.Context, res interface{}) error {
		assert.Nil(t, res)
		calls++
		return nil
	}})
	require.NoError(t, q.drain(context.Background()))
	assert.Equal(t, 1, calls)
}
