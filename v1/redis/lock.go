package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Aleph-Alpha/persistor/v1/persistor"
)

var (
	// only the holder may delete or extend a lock
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

	refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`)
)

var _ persistor.SyncLocker = (*Locker)(nil)

// Locker is a persistor.SyncLocker holding one Redis key per lock. A held
// key expires after LockConfig.TTL unless its holder keeps refreshing it, so
// a crashed process blocks the others for one TTL at most.
type Locker struct {
	client *RedisClient
	ttl    time.Duration
	retry  time.Duration
}

// NewLocker creates a Locker on top of client.
func NewLocker(client *RedisClient) *Locker {
	cfg := client.cfg.withDefaults().Lock
	return &Locker{client: client, ttl: cfg.TTL, retry: cfg.RetryInterval}
}

// Lock blocks until key is held or ctx is done. The returned function
// releases the key; calling it more than once is harmless.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	start := time.Now()

	for {
		ok, err := l.client.Client().SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			err = fmt.Errorf("failed to acquire lock %s: %w", key, err)
			l.client.observeOperation("lock", key, token, time.Since(start), err, nil)
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			err := fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
			l.client.observeOperation("lock", key, token, time.Since(start), err, nil)
			return nil, err
		case <-time.After(l.retry):
		}
	}

	l.client.observeOperation("lock", key, token, time.Since(start), nil, map[string]interface{}{"ttl": l.ttl.String()})

	h := &heldLock{
		locker: l,
		key:    key,
		token:  token,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.keepAlive()
	return h.release, nil
}

type heldLock struct {
	locker *Locker
	key    string
	token  string
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (h *heldLock) keepAlive() {
	defer close(h.done)

	interval := h.locker.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := refreshScript.Run(ctx, h.locker.client.Client(), []string{h.key}, h.token, h.locker.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				err = ErrLockNotHeld
			}
			if err != nil {
				h.locker.client.logWarn("Failed to refresh lock", err, map[string]interface{}{"key": h.key})
				if errors.Is(err, ErrLockNotHeld) {
					return
				}
			}
		}
	}
}

func (h *heldLock) release() {
	h.once.Do(func() {
		close(h.stop)
		<-h.done

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		start := time.Now()
		n, err := releaseScript.Run(ctx, h.locker.client.Client(), []string{h.key}, h.token).Int64()
		if err == nil && n == 0 {
			err = ErrLockNotHeld
		}
		h.locker.client.observeOperation("unlock", h.key, h.token, time.Since(start), err, nil)
		if err != nil {
			h.locker.client.logError("Failed to release lock", err, map[string]interface{}{"key": h.key})
		}
	})
}
