package debounce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/expense-metrics/internal/cache"
	"github.com/Checker-Finance/expense-metrics/internal/metrics"
	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// ErrInvalidDate is returned for zero-value affected dates. A missing date is
// a caller bug and must not silently collapse into "today".
var ErrInvalidDate = errors.New("invalid affected date")

// ErrInvalidAccount is returned for non-positive account IDs.
var ErrInvalidAccount = errors.New("invalid account id")

// Scheduler is the delayed-dispatch collaborator the gate schedules runs on.
type Scheduler interface {
	Schedule(delay time.Duration, accountID int64)
}

// Gate coalesces repeated refresh triggers for one account inside a window
// into a single scheduled job run, accumulating every distinct affected date.
//
// Per-account state machine: Idle → first trigger creates the pending marker
// (TTL = window) and schedules a run; further triggers only add dates. The
// marker's expiry (or the job consuming the set) returns the gate to Idle.
// The date set itself must outlive the window: the scheduled run fires only
// after the window elapses, so the set carries a longer sliding retention and
// is removed by the job when it drains it.
type Gate struct {
	logger *zap.Logger
	cache  cache.Cache
	sched  Scheduler
	window time.Duration
}

// NewGate constructs a debounce gate with the given coalescing window.
func NewGate(logger *zap.Logger, c cache.Cache, sched Scheduler, window time.Duration) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{logger: logger, cache: c, sched: sched, window: window}
}

// retention is how long accumulated dates survive without being consumed.
// It must exceed the window (the run fires only after the window elapses)
// with slack for dispatch latency; sliding on every add means a rescheduled
// window after a crashed run still finds the earlier dates.
func (g *Gate) retention() time.Duration {
	return 3 * g.window
}

// Trigger records an affected date for the account and schedules a refresh
// run if none is pending. Safe under concurrent callers: the pending marker
// is created with an atomic set-if-absent, so exactly one caller per window
// observes "first" and schedules.
func (g *Gate) Trigger(ctx context.Context, accountID int64, date time.Time) error {
	if accountID <= 0 {
		metrics.IncTrigger("invalid")
		return fmt.Errorf("%w: %d", ErrInvalidAccount, accountID)
	}
	if date.IsZero() {
		metrics.IncTrigger("invalid")
		return ErrInvalidDate
	}

	iso := model.DateOf(date).Format("2006-01-02")
	// The date goes in before the marker so a run scheduled by the marker
	// write can never observe an empty set.
	if err := g.cache.SetAdd(ctx, cache.DatesKey(accountID), iso, g.retention()); err != nil {
		metrics.IncError("debounce", "set_add_failed")
		return fmt.Errorf("record affected date: %w", err)
	}

	first, err := g.cache.WriteIfAbsent(ctx, cache.PendingKey(accountID), iso, g.window)
	if err != nil {
		metrics.IncError("debounce", "marker_failed")
		return fmt.Errorf("mark refresh pending: %w", err)
	}

	// Telemetry only; failures must not block the trigger path.
	if _, err := g.cache.Increment(ctx, cache.TriggerCountKey(accountID), 1, g.window); err != nil {
		g.logger.Debug("debounce.trigger_count_failed", zap.Int64("account_id", accountID), zap.Error(err))
	}

	if !first {
		metrics.IncTrigger("coalesced")
		g.logger.Debug("debounce.coalesced",
			zap.Int64("account_id", accountID),
			zap.String("date", iso))
		return nil
	}

	g.sched.Schedule(g.window, accountID)
	metrics.IncTrigger("scheduled")
	g.logger.Info("debounce.scheduled",
		zap.Int64("account_id", accountID),
		zap.String("date", iso),
		zap.Duration("window", g.window))
	return nil
}
