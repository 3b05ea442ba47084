package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/expense-metrics/internal/cache"
	"github.com/Checker-Finance/expense-metrics/internal/calculator"
	"github.com/Checker-Finance/expense-metrics/internal/clock"
	"github.com/Checker-Finance/expense-metrics/internal/metrics"
	"github.com/Checker-Finance/expense-metrics/internal/recorder"
	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// JobType identifies refresh executions in the rolling telemetry log.
const JobType = "metrics_refresh"

// Publisher emits a refresh-completed event for downstream consumers.
type Publisher interface {
	PublishRefreshed(ctx context.Context, ev model.RefreshedEvent) error
}

// pair is one (period, bucket) combination due for recomputation.
type pair struct {
	period model.Period
	bucket time.Time
}

// RefreshJob recomputes and re-caches every snapshot affected by a set of
// trigger dates, under a per-account lock.
type RefreshJob struct {
	logger   *zap.Logger
	cache    cache.Cache
	calc     *calculator.Calculator
	recorder *recorder.Recorder
	clk      clock.Clock
	pub      Publisher // optional

	lockTTL       time.Duration
	recencyWindow time.Duration
	target        time.Duration // elapsed budget before a slow-run warning
}

// NewRefreshJob wires the refresh work unit. pub may be nil.
func NewRefreshJob(
	logger *zap.Logger,
	c cache.Cache,
	calc *calculator.Calculator,
	rec *recorder.Recorder,
	clk clock.Clock,
	pub Publisher,
	lockTTL, recencyWindow, target time.Duration,
) *RefreshJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshJob{
		logger:        logger,
		cache:         c,
		calc:          calc,
		recorder:      rec,
		clk:           clk,
		pub:           pub,
		lockTTL:       lockTTL,
		recencyWindow: recencyWindow,
		target:        target,
	}
}

// Run executes one refresh for the account. Lock contention is a normal
// skip-and-log outcome, never an error. Any calculation failure aborts the
// remaining pairs, is recorded as a failed execution, and is returned for the
// scheduler's retry policy; the lock is released on every path.
func (j *RefreshJob) Run(ctx context.Context, accountID int64) error {
	lockKey := cache.LockKey(accountID)
	acquired, err := j.cache.WriteIfAbsent(ctx, lockKey, j.clk.Now(), j.lockTTL)
	if err != nil {
		metrics.IncError("refresh_job", "lock_failed")
		return fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !acquired {
		metrics.IncRefreshRun("lock_contended")
		j.logger.Info("refresh_job.lock_contended", zap.Int64("account_id", accountID))
		return nil
	}

	start := time.Now()
	runErr := func() error {
		defer func() {
			if err := j.cache.Delete(ctx, lockKey); err != nil {
				// TTL self-expiry is the safety net if this fails.
				j.logger.Error("refresh_job.lock_release_failed",
					zap.Int64("account_id", accountID), zap.Error(err))
			}
		}()
		return j.refresh(ctx, accountID, start)
	}()

	elapsed := time.Since(start)
	metrics.ObserveDuration(metrics.RefreshDuration, start)

	if runErr != nil {
		metrics.IncRefreshRun("error")
		if err := j.recorder.Record(ctx, JobType, accountID, recorder.StatusFailure, elapsed, 0); err != nil {
			j.logger.Warn("refresh_job.record_failed", zap.Int64("account_id", accountID), zap.Error(err))
		}
		j.logger.Error("refresh_job.failed",
			zap.Int64("account_id", accountID),
			zap.Duration("elapsed", elapsed),
			zap.Error(runErr))
		return runErr
	}

	metrics.IncRefreshRun("ok")
	metrics.SetLastRefresh("refresh_job", j.clk.Now())
	return nil
}

func (j *RefreshJob) refresh(ctx context.Context, accountID int64, start time.Time) error {
	datesKey := cache.DatesKey(accountID)
	members, err := j.cache.SetMembers(ctx, datesKey)
	if err != nil {
		return fmt.Errorf("read affected dates: %w", err)
	}
	// Consume the window: a trigger arriving after this point starts a new
	// one and schedules its own run. The pending marker normally self-expires
	// at the window boundary; clearing it here covers manual and retried runs.
	if err := j.cache.Delete(ctx, datesKey); err != nil {
		return fmt.Errorf("clear affected dates: %w", err)
	}
	if err := j.cache.Delete(ctx, cache.PendingKey(accountID)); err != nil {
		j.logger.Warn("refresh_job.pending_clear_failed",
			zap.Int64("account_id", accountID), zap.Error(err))
	}

	dates := make([]time.Time, 0, len(members))
	for _, m := range members {
		d, err := time.Parse("2006-01-02", m)
		if err != nil {
			j.logger.Warn("refresh_job.bad_date_skipped",
				zap.Int64("account_id", accountID), zap.String("date", m))
			continue
		}
		dates = append(dates, d)
	}
	// A manual run with no accumulated dates refreshes today's buckets.
	if len(dates) == 0 {
		dates = append(dates, model.DateOf(j.clk.Now()))
	}

	pairs := j.affectedPairs(dates)
	for _, p := range pairs {
		// Drop the stale entry first so a failed recompute cannot leave an
		// outdated snapshot behind.
		if err := j.cache.Delete(ctx, cache.SnapshotKey(accountID, p.period, p.bucket)); err != nil {
			j.logger.Warn("refresh_job.invalidate_failed",
				zap.Int64("account_id", accountID),
				zap.String("period", p.period.String()),
				zap.Error(err))
		}
		if _, err := j.calc.Recalculate(ctx, accountID, p.period, p.bucket); err != nil {
			return fmt.Errorf("recalculate %s/%s: %w", p.period, p.bucket.Format("2006-01-02"), err)
		}
	}

	elapsed := time.Since(start)
	if err := j.recorder.Record(ctx, JobType, accountID, recorder.StatusSuccess, elapsed, len(pairs)); err != nil {
		j.logger.Warn("refresh_job.record_failed", zap.Int64("account_id", accountID), zap.Error(err))
	}

	if j.target > 0 && elapsed > j.target {
		j.logger.Warn("refresh_job.target_exceeded",
			zap.Int64("account_id", accountID),
			zap.Duration("elapsed", elapsed),
			zap.Duration("target", j.target))
	}

	if j.pub != nil {
		ev := model.RefreshedEvent{
			AccountID:  accountID,
			Pairs:      len(pairs),
			DurationMS: elapsed.Milliseconds(),
			Timestamp:  j.clk.Now(),
		}
		if err := j.pub.PublishRefreshed(ctx, ev); err != nil {
			j.logger.Warn("refresh_job.publish_failed", zap.Int64("account_id", accountID), zap.Error(err))
		}
	}

	j.logger.Info("refresh_job.success",
		zap.Int64("account_id", accountID),
		zap.Int("pairs", len(pairs)),
		zap.Duration("elapsed", elapsed))
	return nil
}

// affectedPairs expands trigger dates into deduplicated (period, bucket)
// combinations. Dates inside the recency window also mark the current date's
// buckets: a late-arriving record for a near-past date changes "current
// period" totals too.
func (j *RefreshJob) affectedPairs(dates []time.Time) []pair {
	today := model.DateOf(j.clk.Now())
	seen := make(map[string]struct{})
	var pairs []pair

	add := func(p model.Period, ref time.Time) {
		bucket := p.BucketDate(ref)
		key := p.String() + ":" + bucket.Format("2006-01-02")
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		pairs = append(pairs, pair{period: p, bucket: bucket})
	}

	for _, d := range dates {
		d = model.DateOf(d)
		for _, p := range model.Periods {
			add(p, d)
		}
		if today.Sub(d) <= j.recencyWindow {
			for _, p := range model.Periods {
				add(p, today)
			}
		}
	}

	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].period != pairs[b].period {
			return periodOrder(pairs[a].period) < periodOrder(pairs[b].period)
		}
		return pairs[a].bucket.Before(pairs[b].bucket)
	})
	return pairs
}

func periodOrder(p model.Period) int {
	for i, candidate := range model.Periods {
		if p == candidate {
			return i
		}
	}
	return len(model.Periods)
}
