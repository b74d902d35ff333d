package redis

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultLockTTL, cfg.Lock.TTL)
	assert.Equal(t, DefaultRetryInterval, cfg.Lock.RetryInterval)

	kept := Config{Host: "cache", Port: 7000, Lock: LockConfig{TTL: time.Minute}}.withDefaults()
	assert.Equal(t, "cache", kept.Host)
	assert.Equal(t, 7000, kept.Port)
	assert.Equal(t, time.Minute, kept.Lock.TTL)
}

func TestUniversalOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"standalone", Config{Host: "cache", Port: 6380}, []string{"cache:6380"}},
		{"single cluster address is standalone", Config{Host: "cache", Port: 6380, ClusterAddrs: []string{"a:1"}}, []string{"cache:6380"}},
		{"cluster", Config{ClusterAddrs: []string{"a:1", "b:2", "c:3"}}, []string{"a:1", "b:2", "c:3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := universalOptions(tt.cfg.withDefaults())
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts.Addrs)
			assert.Nil(t, opts.TLSConfig)
		})
	}
}

func TestUniversalOptionsTLS(t *testing.T) {
	opts, err := universalOptions(Config{Host: "cache", TLS: TLSConfig{Enabled: true}}.withDefaults())
	require.NoError(t, err)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "cache", opts.TLSConfig.ServerName)

	_, err = universalOptions(Config{TLS: TLSConfig{
		Enabled:    true,
		CACertPath: filepath.Join(t.TempDir(), "missing.pem"),
	}}.withDefaults())
	assert.ErrorContains(t, err, "failed to read CA cert")
}

func TestClosedClient(t *testing.T) {
	client, err := NewClient(Config{Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Ping(context.Background()), ErrClosed)
}

func TestLockFailsWithoutServer(t *testing.T) {
	client, err := NewClient(Config{
		Host:        "127.0.0.1",
		Port:        1,
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	defer client.Close()

	unlock, err := NewLocker(client).Lock(context.Background(), "persistor:sync:__default__/customer")
	assert.Error(t, err)
	assert.Nil(t, unlock)
}
