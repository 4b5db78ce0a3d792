// Package ratelimit limits how often a caller may perform an action.
//
// Backends that can fail (Redis) are wrapped with FailOpen: when the backend
// is unavailable the action is allowed rather than blocking all traffic.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Noop allows everything. It stands in when no limiter is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }

// Memory is a per-key token bucket held in process memory.
type Memory struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemory allows n events per window per key, all of which may be spent at once.
func NewMemory(n int, window time.Duration) *Memory {
	return &Memory{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(n)),
		burst:    n,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow(), nil
}

// Prune forgets keys idle for longer than idle.
func (m *Memory) Prune(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	n := 0
	for k, v := range m.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(m.visitors, k)
			n++
		}
	}
	return n
}

// Redis is a fixed-window counter shared by every instance.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRedis(client *redis.Client, prefix string, n int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: int64(n), window: window}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().UnixNano() / int64(r.window)
	k := fmt.Sprintf("%s:%s:%d", r.prefix, key, bucket)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return incr.Val() <= r.limit, nil
}

type failOpen struct {
	next Limiter
	log  *slog.Logger
}

// FailOpen allows the action whenever next returns an error.
func FailOpen(next Limiter, log *slog.Logger) Limiter {
	return &failOpen{next: next, log: log}
}

func (f *failOpen) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := f.next.Allow(ctx, key)
	if err != nil {
		f.log.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		return true, nil
	}
	return ok, nil
}
