package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/expense-metrics/internal/cache"
	"github.com/Checker-Finance/expense-metrics/internal/clock"
)

func newTestRecorder(t *testing.T) (*Recorder, *clock.Fake, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cc := cache.NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	clk := clock.NewFake(time.Date(2024, time.June, 20, 12, 0, 0, 0, time.UTC))
	return New(nil, cc, clk), clk, mr
}

func TestRecord_AppendsAndAggregates(t *testing.T) {
	ctx := context.Background()
	rec, clk, _ := newTestRecorder(t)

	require.NoError(t, rec.Record(ctx, "metrics_refresh", 1, StatusSuccess, 120*time.Millisecond, 6))
	clk.Advance(time.Minute)
	require.NoError(t, rec.Record(ctx, "metrics_refresh", 1, StatusFailure, 80*time.Millisecond, 0))
	clk.Advance(time.Minute)
	require.NoError(t, rec.Record(ctx, "metrics_refresh", 1, StatusSuccess, 100*time.Millisecond, 4))

	log, err := rec.Summary(ctx, "metrics_refresh", 1)
	require.NoError(t, err)

	require.Len(t, log.Entries, 3)
	assert.Equal(t, 2, log.SuccessCount)
	assert.Equal(t, 1, log.FailureCount)
	assert.Equal(t, int64(300), log.TotalDuration)
	assert.Equal(t, 100.0, log.AvgDuration)
	assert.InDelta(t, 66.67, log.SuccessRate, 0.01)

	// Entries are appended in execution order.
	assert.Equal(t, int64(120), log.Entries[0].DurationMS)
	assert.Equal(t, 6, log.Entries[0].Items)
	assert.True(t, log.Entries[0].Timestamp.Before(log.Entries[2].Timestamp))
}

func TestRecord_CapRetainsMostRecent(t *testing.T) {
	ctx := context.Background()
	rec, clk, _ := newTestRecorder(t)

	for i := 0; i < maxEntries+10; i++ {
		status := StatusSuccess
		if i < 10 {
			status = StatusFailure
		}
		require.NoError(t, rec.Record(ctx, "metrics_refresh", 1, status, time.Duration(i)*time.Millisecond, i))
		clk.Advance(time.Second)
	}

	log, err := rec.Summary(ctx, "metrics_refresh", 1)
	require.NoError(t, err)

	require.Len(t, log.Entries, maxEntries)
	// The 10 oldest (the failures) fell off the window.
	assert.Equal(t, maxEntries, log.SuccessCount)
	assert.Equal(t, 0, log.FailureCount)
	assert.Equal(t, 100.0, log.SuccessRate)
	assert.Equal(t, 10, log.Entries[0].Items)
}

func TestSummary_MissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	rec, _, _ := newTestRecorder(t)

	log, err := rec.Summary(ctx, "metrics_refresh", 404)
	require.NoError(t, err)

	assert.NotNil(t, log.Entries)
	assert.Empty(t, log.Entries)
	assert.Equal(t, 0.0, log.SuccessRate)
	assert.Equal(t, 0.0, log.AvgDuration)
}

func TestRecord_IsolatedPerAccountAndJobType(t *testing.T) {
	ctx := context.Background()
	rec, _, _ := newTestRecorder(t)

	require.NoError(t, rec.Record(ctx, "metrics_refresh", 1, StatusSuccess, time.Millisecond, 1))
	require.NoError(t, rec.Record(ctx, "metrics_refresh", 2, StatusFailure, time.Millisecond, 0))
	require.NoError(t, rec.Record(ctx, "cache_warm", 1, StatusFailure, time.Millisecond, 0))

	log, err := rec.Summary(ctx, "metrics_refresh", 1)
	require.NoError(t, err)
	require.Len(t, log.Entries, 1)
	assert.Equal(t, 1, log.SuccessCount)
	assert.Equal(t, 0, log.FailureCount)
}

func TestRecord_ExpiresWithoutActivity(t *testing.T) {
	ctx := context.Background()
	rec, _, mr := newTestRecorder(t)

	require.NoError(t, rec.Record(ctx, "metrics_refresh", 1, StatusSuccess, time.Millisecond, 1))

	mr.FastForward(logTTL + time.Minute)

	log, err := rec.Summary(ctx, "metrics_refresh", 1)
	require.NoError(t, err)
	assert.Empty(t, log.Entries)
}
