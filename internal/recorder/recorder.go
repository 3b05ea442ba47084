package recorder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/expense-metrics/internal/cache"
	"github.com/Checker-Finance/expense-metrics/internal/clock"
)

const (
	// maxEntries caps the rolling execution log per account+job-type.
	maxEntries = 100
	// logTTL bounds how long telemetry survives without new executions.
	logTTL = 24 * time.Hour
)

// Execution statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Execution is one recorded job run.
type Execution struct {
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms"`
	Status     string    `json:"status"`
	Items      int       `json:"items"` // work items processed (period/date pairs)
}

// Log is the cached rolling window plus derived aggregates. It is a single
// cache entry per account+job-type; concurrent writers are last-write-wins,
// which the surrounding system accepts.
type Log struct {
	Entries []Execution `json:"entries"`

	SuccessCount  int     `json:"success_count"`
	FailureCount  int     `json:"failure_count"`
	TotalDuration int64   `json:"total_duration_ms"`
	AvgDuration   float64 `json:"avg_duration_ms"`
	SuccessRate   float64 `json:"success_rate"` // percent
}

// Recorder appends execution outcomes to the rolling log in the cache store.
type Recorder struct {
	logger *zap.Logger
	cache  cache.Cache
	clk    clock.Clock
}

func New(logger *zap.Logger, c cache.Cache, clk clock.Clock) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger, cache: c, clk: clk}
}

// Record appends one execution, trims the window to the most recent
// maxEntries, and recomputes the derived aggregates.
func (r *Recorder) Record(ctx context.Context, jobType string, accountID int64, status string, duration time.Duration, items int) error {
	key := cache.JobMetricsKey(jobType, accountID)

	var log Log
	if _, err := r.cache.Read(ctx, key, &log); err != nil {
		// A corrupt or unreadable log is telemetry, not state; start over.
		r.logger.Warn("recorder.read_failed", zap.String("key", key), zap.Error(err))
		log = Log{}
	}

	log.Entries = append(log.Entries, Execution{
		Timestamp:  r.clk.Now(),
		DurationMS: duration.Milliseconds(),
		Status:     status,
		Items:      items,
	})
	if len(log.Entries) > maxEntries {
		log.Entries = log.Entries[len(log.Entries)-maxEntries:]
	}

	log.recompute()

	if err := r.cache.Write(ctx, key, log, logTTL); err != nil {
		r.logger.Warn("recorder.write_failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Summary returns the current rolling log for one account+job-type.
// A missing log returns an empty, zeroed Log.
func (r *Recorder) Summary(ctx context.Context, jobType string, accountID int64) (Log, error) {
	key := cache.JobMetricsKey(jobType, accountID)
	var log Log
	if _, err := r.cache.Read(ctx, key, &log); err != nil {
		return Log{}, err
	}
	if log.Entries == nil {
		log.Entries = []Execution{}
	}
	return log, nil
}

func (l *Log) recompute() {
	l.SuccessCount = 0
	l.FailureCount = 0
	l.TotalDuration = 0
	for _, e := range l.Entries {
		if e.Status == StatusSuccess {
			l.SuccessCount++
		} else {
			l.FailureCount++
		}
		l.TotalDuration += e.DurationMS
	}
	if n := len(l.Entries); n > 0 {
		l.AvgDuration = float64(l.TotalDuration) / float64(n)
		l.SuccessRate = float64(l.SuccessCount) / float64(n) * 100
	} else {
		l.AvgDuration = 0
		l.SuccessRate = 0
	}
}
