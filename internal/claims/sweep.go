package claims

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anonto42/lost-found/backend/internal/metrics"
	"github.com/anonto42/lost-found/backend/internal/ratelimit"
	"github.com/anonto42/lost-found/backend/internal/repositories"
)

type SweepResult struct {
	ExpiredClaims int64 `json:"expired_claims"`
	ClosedThreads int64 `json:"closed_threads"`
	PrunedKeys    int   `json:"pruned_rate_keys,omitempty"`
}

// pruner is a limiter that keeps per-key state in process memory.
type pruner interface {
	Prune(idle time.Duration) int
}

// Sweeper expires overdue pending claims and closes idle threads. Each step
// is a single conditional update, so runs may overlap with each other and
// with user actions.
type Sweeper struct {
	claims  repositories.ClaimRepository
	threads repositories.ThreadRepository
	now     func() time.Time
	log     *slog.Logger

	limiter pruner
	idle    time.Duration
}

func NewSweeper(claims repositories.ClaimRepository, threads repositories.ThreadRepository, log *slog.Logger) *Sweeper {
	return &Sweeper{
		claims:  claims,
		threads: threads,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// PruneLimiter makes each run forget rate limit keys idle for longer than
// idle. Limiters without local state are ignored.
func (s *Sweeper) PruneLimiter(l ratelimit.Limiter, idle time.Duration) {
	if p, ok := l.(pruner); ok {
		s.limiter, s.idle = p, idle
	}
}

func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	expired, err := s.claims.ExpirePending(ctx, now)
	if err != nil {
		return res, fmt.Errorf("expire pending claims: %w", err)
	}
	res.ExpiredClaims = expired

	closed, err := s.threads.CloseIdle(ctx, now)
	if err != nil {
		return res, fmt.Errorf("close idle threads: %w", err)
	}
	res.ClosedThreads = closed

	if s.limiter != nil {
		res.PrunedKeys = s.limiter.Prune(s.idle)
	}

	metrics.SweepAffected.WithLabelValues("expired_claims").Add(float64(expired))
	metrics.SweepAffected.WithLabelValues("closed_threads").Add(float64(closed))
	s.log.Info("sweep finished", "expired_claims", expired, "closed_threads", closed, "pruned_rate_keys", res.PrunedKeys)
	return res, nil
}
