package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisWithClient(rdb, nil), mr
}

func TestReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	defer mr.Close()

	val := map[string]any{"total": 150.0, "count": 2.0}
	if err := c.Write(ctx, "metrics_calculator:account_1:month:2024-06-01", val, time.Hour); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var got map[string]any
	hit, err := c.Read(ctx, "metrics_calculator:account_1:month:2024-06-01", &got)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !hit {
		t.Fatal("expected hit, got miss")
	}
	if got["total"] != 150.0 {
		t.Errorf("expected total=150.0, got %v", got["total"])
	}
}

func TestRead_Miss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	defer mr.Close()

	var got map[string]any
	hit, err := c.Read(ctx, "absent", &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Error("expected miss for absent key")
	}
}

func TestWriteIfAbsent(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	defer mr.Close()

	created, err := c.WriteIfAbsent(ctx, "metrics_refresh:1", "locked", time.Minute)
	if err != nil {
		t.Fatalf("WriteIfAbsent failed: %v", err)
	}
	if !created {
		t.Fatal("expected first write to create the key")
	}

	created, err = c.WriteIfAbsent(ctx, "metrics_refresh:1", "locked", time.Minute)
	if err != nil {
		t.Fatalf("WriteIfAbsent failed: %v", err)
	}
	if created {
		t.Error("expected second write to be rejected")
	}

	// After deletion the key can be re-acquired.
	if err := c.Delete(ctx, "metrics_refresh:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	created, _ = c.WriteIfAbsent(ctx, "metrics_refresh:1", "locked", time.Minute)
	if !created {
		t.Error("expected re-acquire after delete")
	}
}

func TestWriteIfAbsent_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	defer mr.Close()

	if _, err := c.WriteIfAbsent(ctx, "metrics_refresh:9", "locked", 200*time.Millisecond); err != nil {
		t.Fatalf("WriteIfAbsent failed: %v", err)
	}

	mr.FastForward(300 * time.Millisecond)

	created, err := c.WriteIfAbsent(ctx, "metrics_refresh:9", "locked", time.Minute)
	if err != nil {
		t.Fatalf("WriteIfAbsent failed: %v", err)
	}
	if !created {
		t.Error("expected lock to self-expire and be re-acquirable")
	}
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	defer mr.Close()

	v, err := c.Increment(ctx, "metrics_refresh_triggers:1", 1, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if v != 1 {
		t.Errorf("expected 1, got %d", v)
	}

	v, _ = c.Increment(ctx, "metrics_refresh_triggers:1", 2, time.Minute)
	if v != 3 {
		t.Errorf("expected 3, got %d", v)
	}

	if mr.TTL("metrics_refresh_triggers:1") == 0 {
		t.Error("expected TTL to be set on creation")
	}
}

func TestSetAdd_AccumulatesDistinctMembers(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	defer mr.Close()

	if err := c.SetAdd(ctx, "metrics_refresh_dates:1", "2024-06-15", 5*time.Second); err != nil {
		t.Fatalf("SetAdd failed: %v", err)
	}
	if err := c.SetAdd(ctx, "metrics_refresh_dates:1", "2024-06-16", 5*time.Second); err != nil {
		t.Fatalf("SetAdd failed: %v", err)
	}

	members, err := c.SetMembers(ctx, "metrics_refresh_dates:1")
	if err != nil {
		t.Fatalf("SetMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 distinct dates, got %d: %v", len(members), members)
	}

	// Duplicate date does not grow the set.
	if err := c.SetAdd(ctx, "metrics_refresh_dates:1", "2024-06-15", 5*time.Second); err != nil {
		t.Fatalf("SetAdd failed: %v", err)
	}
	members, _ = c.SetMembers(ctx, "metrics_refresh_dates:1")
	if len(members) != 2 {
		t.Errorf("expected dedupe, got %d members", len(members))
	}
}

func TestSetAdd_SlidesExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	defer mr.Close()

	if err := c.SetAdd(ctx, "metrics_refresh_dates:2", "2024-06-15", 5*time.Second); err != nil {
		t.Fatalf("SetAdd failed: %v", err)
	}

	// A later add pushes the expiry out again.
	mr.FastForward(3 * time.Second)
	if err := c.SetAdd(ctx, "metrics_refresh_dates:2", "2024-06-16", 5*time.Second); err != nil {
		t.Fatalf("SetAdd failed: %v", err)
	}

	mr.FastForward(4 * time.Second)
	members, err := c.SetMembers(ctx, "metrics_refresh_dates:2")
	if err != nil {
		t.Fatalf("SetMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected the set to survive until the slid expiry, got %v", members)
	}

	mr.FastForward(2 * time.Second)
	members, _ = c.SetMembers(ctx, "metrics_refresh_dates:2")
	if len(members) != 0 {
		t.Errorf("expected the set to expire after the last add's TTL, got %v", members)
	}
}

func TestSetMembers_Missing(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	defer mr.Close()

	members, err := c.SetMembers(ctx, "absent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("expected empty set, got %v", members)
	}
}

func TestKeyFormats(t *testing.T) {
	bucket := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	if got := SnapshotKey(42, model.PeriodMonth, bucket); got != "metrics_calculator:account_42:month:2024-06-01" {
		t.Errorf("unexpected snapshot key: %s", got)
	}
	if got := LockKey(42); got != "metrics_refresh:42" {
		t.Errorf("unexpected lock key: %s", got)
	}
	if got := DatesKey(42); got != "metrics_refresh_dates:42" {
		t.Errorf("unexpected dates key: %s", got)
	}
	if got := PendingKey(42); got != "metrics_refresh_pending:42" {
		t.Errorf("unexpected pending key: %s", got)
	}
	if got := JobMetricsKey("metrics_refresh", 42); got != "job_metrics:metrics_refresh:42" {
		t.Errorf("unexpected job metrics key: %s", got)
	}
}
