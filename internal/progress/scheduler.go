package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"lectern/internal/logging"
)

const defaultSyncInterval = 5 * time.Minute

// Pusher is satisfied by *Syncer.
type Pusher interface {
	Push(ctx context.Context) (PushResult, error)
}

// Scheduler runs a Pusher on a fixed interval between Start and Stop.
type Scheduler struct {
	pusher   Pusher
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler constructs a stopped scheduler.
func NewScheduler(pusher Pusher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Scheduler{
		pusher:   pusher,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "sync"),
	}
}

// Start launches the background loop. The first push happens after one interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return errors.New("sync scheduler already running")
	}
	if s.pusher == nil {
		return errors.New("sync scheduler requires a pusher")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.loop(loopCtx, s.done)
	s.logger.Info("sync scheduler started", logging.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight push to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.running.Store(false)
	s.logger.Info("sync scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.pusher.Push(ctx)
			switch {
			case err == nil:
				if result.Sent > 0 {
					s.logger.Debug("sync tick", logging.Int("sent", result.Sent), logging.Int64("acked", result.Acked))
				}
			case errors.Is(err, context.Canceled), errors.Is(err, ErrSyncDisabled):
			default:
				logging.WarnWithContext(s.logger, "progress sync failed", "sync_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check sync.base_url and network connectivity"),
				)
			}
		}
	}
}
