package components

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clawsync/clawsync/internal/daemon"
	"github.com/clawsync/clawsync/internal/ratelimit"
)

const (
	sweepInterval = time.Minute
	sweepIdle     = 10 * time.Minute
)

// LimiterSweeperComponent drops idle rate-limit buckets so per-session keys
// do not accumulate over the daemon lifetime.
type LimiterSweeperComponent struct {
	limiter  *ratelimit.TokenBuckets
	interval time.Duration
	idle     time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

func NewLimiterSweeperComponent(limiter *ratelimit.TokenBuckets) *LimiterSweeperComponent {
	return &LimiterSweeperComponent{limiter: limiter, interval: sweepInterval, idle: sweepIdle}
}

func (s *LimiterSweeperComponent) Name() string {
	return "LimiterSweeper"
}

func (s *LimiterSweeperComponent) Dependencies() []string {
	return []string{}
}

func (s *LimiterSweeperComponent) Init(ctx context.Context) error {
	return nil
}

func (s *LimiterSweeperComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if n := s.limiter.Sweep(s.idle); n > 0 {
					slog.Debug("Swept idle rate-limit buckets", "component", s.Name(), "removed", n)
				}
			}
		}
	}(s.done)
	return nil
}

func (s *LimiterSweeperComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.cancel = nil
	return nil
}

func (s *LimiterSweeperComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}
