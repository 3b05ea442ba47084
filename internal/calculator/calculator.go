package calculator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/expense-metrics/internal/cache"
	"github.com/Checker-Finance/expense-metrics/internal/clock"
	"github.com/Checker-Finance/expense-metrics/internal/metrics"
	"github.com/Checker-Finance/expense-metrics/internal/records"
	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// ErrMissingAccount is returned when the target account is absent or unknown.
var ErrMissingAccount = errors.New("missing account")

// computeBudget is the soft latency target for one snapshot computation.
// Exceeding it logs a warning; it is never fatal.
const computeBudget = 100 * time.Millisecond

// CalculationError wraps an internal computation failure. Validation errors
// (ErrMissingAccount, model.ErrInvalidPeriod) are never wrapped in it.
type CalculationError struct {
	AccountID int64
	Period    model.Period
	Err       error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("metrics calculation failed for account %d (%s): %v", e.AccountID, e.Period, e.Err)
}

func (e *CalculationError) Unwrap() error { return e.Err }

// Calculator computes metrics snapshots over a record store and caches them.
type Calculator struct {
	logger      *zap.Logger
	records     records.Store
	cache       cache.Cache
	clk         clock.Clock
	snapshotTTL time.Duration
}

// New constructs a Calculator. snapshotTTL bounds the lifetime of cached
// snapshots (typically 1h).
func New(logger *zap.Logger, st records.Store, c cache.Cache, clk clock.Clock, snapshotTTL time.Duration) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		logger:      logger,
		records:     st,
		cache:       c,
		clk:         clk,
		snapshotTTL: snapshotTTL,
	}
}

// Calculate is the public read entry point: cache-first, and any internal
// computation failure degrades into a zeroed snapshot with Error set so a
// dashboard read never crashes. Validation errors still surface.
func (c *Calculator) Calculate(ctx context.Context, accountID int64, period model.Period, ref time.Time) (model.MetricsSnapshot, error) {
	bucket, err := c.validate(ctx, accountID, period, &ref)
	if err != nil {
		return model.MetricsSnapshot{}, err
	}

	key := cache.SnapshotKey(accountID, period, bucket)
	var cached model.MetricsSnapshot
	hit, err := c.cache.Read(ctx, key, &cached)
	if err != nil {
		c.logger.Warn("calculator.cache_read_failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		metrics.IncCacheAccess("hit")
		return cached, nil
	}
	metrics.IncCacheAccess("miss")

	snap, err := c.compute(ctx, accountID, period, bucket)
	if err != nil {
		c.logger.Error("calculator.compute_failed",
			zap.Int64("account_id", accountID),
			zap.String("period", period.String()),
			zap.Error(err))
		metrics.IncCalculation(period.String(), "degraded")
		return c.degraded(accountID, period, bucket, err), nil
	}

	if err := c.cache.Write(ctx, key, snap, c.snapshotTTL); err != nil {
		c.logger.Warn("calculator.cache_write_failed", zap.String("key", key), zap.Error(err))
	}
	metrics.IncCalculation(period.String(), "ok")
	return snap, nil
}

// Recalculate bypasses the cached snapshot and overwrites it. It is the
// internal boundary: computation failures propagate as *CalculationError so
// the refresh job can distinguish "computed zero" from "failed to compute".
func (c *Calculator) Recalculate(ctx context.Context, accountID int64, period model.Period, ref time.Time) (model.MetricsSnapshot, error) {
	bucket, err := c.validate(ctx, accountID, period, &ref)
	if err != nil {
		return model.MetricsSnapshot{}, err
	}

	snap, err := c.compute(ctx, accountID, period, bucket)
	if err != nil {
		metrics.IncCalculation(period.String(), "error")
		return model.MetricsSnapshot{}, &CalculationError{AccountID: accountID, Period: period, Err: err}
	}

	key := cache.SnapshotKey(accountID, period, bucket)
	if err := c.cache.Write(ctx, key, snap, c.snapshotTTL); err != nil {
		metrics.IncCalculation(period.String(), "error")
		return model.MetricsSnapshot{}, &CalculationError{AccountID: accountID, Period: period, Err: fmt.Errorf("cache write: %w", err)}
	}
	metrics.IncCalculation(period.String(), "ok")
	return snap, nil
}

// validate checks inputs and resolves the bucket date. A zero ref defaults to
// the clock's today.
func (c *Calculator) validate(ctx context.Context, accountID int64, period model.Period, ref *time.Time) (time.Time, error) {
	if !period.Valid() {
		return time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidPeriod, period)
	}
	if accountID <= 0 {
		return time.Time{}, ErrMissingAccount
	}
	exists, err := c.records.AccountExists(ctx, accountID)
	if err != nil {
		return time.Time{}, fmt.Errorf("account lookup: %w", err)
	}
	if !exists {
		return time.Time{}, fmt.Errorf("%w: account %d", ErrMissingAccount, accountID)
	}
	if ref.IsZero() {
		*ref = c.clk.Now()
	}
	return period.BucketDate(*ref), nil
}

func (c *Calculator) compute(ctx context.Context, accountID int64, period model.Period, bucket time.Time) (model.MetricsSnapshot, error) {
	start := time.Now()
	defer metrics.ObserveDuration(metrics.CalculationDuration, start, period.String())

	from, to := period.Range(bucket)
	recs, err := c.records.RecordsInRange(ctx, accountID, from, to)
	if err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("load records: %w", err)
	}

	prevBucket := period.Previous(bucket)
	pfrom, pto := period.Range(prevBucket)
	prevRecs, err := c.records.RecordsInRange(ctx, accountID, pfrom, pto)
	if err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("load previous period records: %w", err)
	}

	agg := aggregate(recs)
	prev := aggregate(prevRecs)

	snap := model.MetricsSnapshot{
		AccountID:   accountID,
		Period:      period,
		BucketDate:  bucket.Format("2006-01-02"),
		StartDate:   from.Format("2006-01-02"),
		EndDate:     to.Format("2006-01-02"),
		GeneratedAt: c.clk.Now(),

		TotalAmount:      round2(agg.total),
		TransactionCount: agg.count,
		AverageAmount:    round2(agg.mean),
		MedianAmount:     round2(agg.median),
		MinAmount:        round2(agg.min),
		MaxAmount:        round2(agg.max),

		UniqueMerchants:    len(agg.merchant),
		UniqueCategories:   agg.distinctCategories,
		UncategorizedCount: agg.uncategorized,

		CategoryBreakdown: agg.categories,
		StatusBreakdown:   agg.statuses,
		CurrencyBreakdown: agg.currencies,

		Trend: buildTrend(agg, prev),
	}
	if snap.CategoryBreakdown == nil {
		snap.CategoryBreakdown = []model.CategoryMetrics{}
	}

	if elapsed := time.Since(start); elapsed > computeBudget {
		c.logger.Warn("calculator.budget_exceeded",
			zap.Int64("account_id", accountID),
			zap.String("period", period.String()),
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", computeBudget))
	}
	return snap, nil
}

// degraded builds the zeroed-but-complete snapshot returned when computation
// fails at the public boundary.
func (c *Calculator) degraded(accountID int64, period model.Period, bucket time.Time, cause error) model.MetricsSnapshot {
	from, to := period.Range(bucket)
	return model.MetricsSnapshot{
		AccountID:         accountID,
		Period:            period,
		BucketDate:        bucket.Format("2006-01-02"),
		StartDate:         from.Format("2006-01-02"),
		EndDate:           to.Format("2006-01-02"),
		GeneratedAt:       c.clk.Now(),
		CategoryBreakdown: []model.CategoryMetrics{},
		StatusBreakdown:   map[string]model.GroupMetrics{},
		CurrencyBreakdown: map[string]model.GroupMetrics{},
		Error:             cause.Error(),
	}
}
