package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimitsPerKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3, time.Hour)

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i)
	}
	ok, _ := m.Allow(ctx, "alice")
	assert.False(t, ok)

	ok, _ = m.Allow(ctx, "bob")
	assert.True(t, ok, "keys are independent")
}

func TestMemoryPrune(t *testing.T) {
	m := NewMemory(1, time.Minute)
	_, _ = m.Allow(context.Background(), "a")
	assert.Equal(t, 0, m.Prune(time.Hour))
	assert.Equal(t, 1, m.Prune(0))
}

type broken struct{}

func (broken) Allow(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFailOpenAllowsOnBackendError(t *testing.T) {
	l := FailOpen(broken{}, quiet())
	ok, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFailOpenKeepsDenials(t *testing.T) {
	l := FailOpen(NewMemory(1, time.Hour), quiet())
	ok, _ := l.Allow(context.Background(), "k")
	assert.True(t, ok)
	ok, _ = l.Allow(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedisUnreachableFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := NewRedis(client, "claims", 1, time.Minute)
	_, err := r.Allow(context.Background(), "k")
	assert.Error(t, err)

	ok, err := FailOpen(r, quiet()).Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNoop(t *testing.T) {
	ok, err := Noop{}.Allow(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}
