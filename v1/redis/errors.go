package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrClosed is returned when the client is closed.
	ErrClosed = errors.New("redis: client is closed")

	// ErrLockNotAcquired is returned when the context ends before a lock
	// could be taken.
	ErrLockNotAcquired = errors.New("redis: lock not acquired")

	// ErrLockNotHeld is returned when a lock expired or was taken over
	// before it was released.
	ErrLockNotHeld = errors.New("redis: lock not held")
)

// IsNilError checks if the error is a "key does not exist" error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsClosedError checks if the error is a "client is closed" error.
func IsClosedError(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, redis.ErrClosed)
}
