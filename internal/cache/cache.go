package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// Cache is the key-value coordination contract consumed by the refresh
// pipeline. All operations are single-key and atomic in the backing store;
// the pipeline's correctness depends on that per-key atomicity.
type Cache interface {
	// Read unmarshals the value at key into dest. Returns false on a miss.
	Read(ctx context.Context, key string, dest any) (bool, error)

	// Write stores a serialized value under key with the given TTL.
	Write(ctx context.Context, key string, value any, ttl time.Duration) error

	// WriteIfAbsent stores the value only if the key does not exist.
	// Returns true when this caller created the key.
	WriteIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Increment atomically adds by to the integer at key, creating it at
	// zero. The TTL is applied when the key is created.
	Increment(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error)

	// SetAdd adds a member to the set at key and slides the set's expiry out
	// to ttl. The expiry is garbage collection only; consumers remove the set
	// explicitly when they drain it.
	SetAdd(ctx context.Context, key, member string, ttl time.Duration) error

	// SetMembers returns all members of the set at key (empty on a miss).
	SetMembers(ctx context.Context, key string) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// Key formats are fixed for compatibility with the dashboards reading them.

// SnapshotKey caches one computed MetricsSnapshot.
func SnapshotKey(accountID int64, period model.Period, bucket time.Time) string {
	return fmt.Sprintf("metrics_calculator:account_%d:%s:%s", accountID, period, bucket.Format("2006-01-02"))
}

// LockKey is the per-account refresh mutual-exclusion marker.
func LockKey(accountID int64) string {
	return fmt.Sprintf("metrics_refresh:%d", accountID)
}

// DatesKey accumulates affected dates during a debounce window.
func DatesKey(accountID int64) string {
	return fmt.Sprintf("metrics_refresh_dates:%d", accountID)
}

// PendingKey marks that a refresh run is already scheduled for the account;
// its TTL is the debounce window.
func PendingKey(accountID int64) string {
	return fmt.Sprintf("metrics_refresh_pending:%d", accountID)
}

// JobMetricsKey holds the rolling execution log for one account and job type.
func JobMetricsKey(jobType string, accountID int64) string {
	return fmt.Sprintf("job_metrics:%s:%d", jobType, accountID)
}

// TriggerCountKey tracks raw trigger volume per window (telemetry only).
func TriggerCountKey(accountID int64) string {
	return fmt.Sprintf("metrics_refresh_triggers:%d", accountID)
}
