package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeDials hands out distinct connections and fails the dials listed in fail.
type fakeDials struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
	conns []*gorm.DB
}

func (f *fakeDials) dial() (*gorm.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[f.calls] {
		return nil, errors.New("connection refused")
	}
	db := &gorm.DB{}
	f.conns = append(f.conns, db)
	return db, nil
}

func (f *fakeDials) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestOpenConnFails(t *testing.T) {
	f := &fakeDials{fail: map[int]bool{1: true}}
	_, err := OpenConn("postgres", f.dial)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error in connecting to postgres")
}

func TestConnRedialsAfterFailedPing(t *testing.T) {
	// the first redial fails, the second succeeds
	f := &fakeDials{fail: map[int]bool{2: true}}
	c, err := OpenConn("postgres", f.dial)
	require.NoError(t, err)
	first := c.DB()

	var pings atomic.Int32
	c.interval = 5 * time.Millisecond
	c.delay = time.Millisecond
	c.ping = func(_ context.Context, db *gorm.DB) error {
		pings.Add(1)
		if db == first {
			return errors.New("server closed the connection")
		}
		return nil
	}

	c.Start(context.Background())
	require.Eventually(t, func() bool { return c.DB() != first }, time.Second, 5*time.Millisecond)
	c.Stop()

	assert.Equal(t, 3, f.count())
	assert.Same(t, f.conns[1], c.DB())
	assert.Positive(t, pings.Load())
}

func TestConnStopsWhileRedialing(t *testing.T) {
	f := &fakeDials{fail: map[int]bool{}}
	c, err := OpenConn("mariadb", f.dial)
	require.NoError(t, err)
	first := c.DB()
	for i := 2; i < 1000; i++ {
		f.fail[i] = true
	}

	c.interval = 5 * time.Millisecond
	c.delay = time.Hour
	c.ping = func(context.Context, *gorm.DB) error { return errors.New("down") }

	c.Start(context.Background())
	require.Eventually(t, func() bool { return f.count() >= 2 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt the redial delay")
	}
	assert.Same(t, first, c.DB())
	// stopping twice is fine
	c.Stop()
}

func TestConnStopsWithContext(t *testing.T) {
	f := &fakeDials{}
	c, err := OpenConn("postgres", f.dial)
	require.NoError(t, err)
	c.ping = func(context.Context, *gorm.DB) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		c.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loops kept running after cancel")
	}
}
