package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunFunc executes one scheduled refresh for an account.
type RunFunc func(ctx context.Context, accountID int64) error

// Scheduler dispatches delayed, one-shot job runs in-process with
// at-least-once semantics: a failed run is retried with polynomial backoff
// (attempt² × base) up to maxAttempts.
type Scheduler struct {
	logger      *zap.Logger
	run         RunFunc
	maxAttempts int
	backoff     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	timers  map[*time.Timer]struct{}
	wg      sync.WaitGroup
}

// New constructs a Scheduler around the given run function.
func New(logger *zap.Logger, run RunFunc, maxAttempts int, backoff time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:      logger,
		run:         run,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		ctx:         ctx,
		cancel:      cancel,
		timers:      make(map[*time.Timer]struct{}),
	}
}

// Schedule queues one run for accountID after delay. Calls after Stop are
// dropped with a warning.
func (s *Scheduler) Schedule(delay time.Duration, accountID int64) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Warn("scheduler.schedule_after_stop", zap.Int64("account_id", accountID))
		return
	}
	s.wg.Add(1)
	// The callback takes the mutex before reading t, which orders the read
	// after this locked section's assignment even for a zero delay.
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		if s.ctx.Err() != nil {
			return
		}
		s.dispatch(accountID)
	})
	s.timers[t] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) dispatch(accountID int64) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.run(s.ctx, accountID)
		if err == nil {
			return
		}

		s.logger.Error("scheduler.run_failed",
			zap.Int64("account_id", accountID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxAttempts),
			zap.Error(err))

		if attempt == s.maxAttempts {
			s.logger.Error("scheduler.attempts_exhausted", zap.Int64("account_id", accountID))
			return
		}

		wait := s.backoff * time.Duration(attempt*attempt)
		select {
		case <-time.After(wait):
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop cancels pending timers, interrupts retry waits, and blocks until
// in-flight runs return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for t := range s.timers {
		if t.Stop() {
			delete(s.timers, t)
			s.wg.Done()
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler.stopped")
}
