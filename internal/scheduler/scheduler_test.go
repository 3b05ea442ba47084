package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_RunsAfterDelay(t *testing.T) {
	var got atomic.Int64
	done := make(chan struct{})
	s := New(nil, func(_ context.Context, accountID int64) error {
		got.Store(accountID)
		close(done)
		return nil
	}, 3, time.Millisecond)
	defer s.Stop()

	s.Schedule(10*time.Millisecond, 42)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled run never fired")
	}
	assert.Equal(t, int64(42), got.Load())
}

func TestSchedule_RetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})
	s := New(nil, func(_ context.Context, _ int64) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, 5, time.Millisecond)
	defer s.Stop()

	s.Schedule(time.Millisecond, 1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run never succeeded")
	}
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSchedule_AttemptsExhausted(t *testing.T) {
	var attempts atomic.Int32
	started := make(chan struct{})
	var once sync.Once
	s := New(nil, func(_ context.Context, _ int64) error {
		once.Do(func() { close(started) })
		attempts.Add(1)
		return errors.New("permanent")
	}, 3, time.Millisecond)

	s.Schedule(time.Millisecond, 1)
	<-started
	s.Stop() // blocks until the dispatch loop returns

	// Stop interrupts the backoff wait, so not every retry necessarily ran,
	// but the first attempt did and the count never exceeds the cap.
	assert.GreaterOrEqual(t, attempts.Load(), int32(1))
	assert.LessOrEqual(t, attempts.Load(), int32(3))
}

func TestStop_CancelsPendingTimers(t *testing.T) {
	var ran atomic.Bool
	s := New(nil, func(_ context.Context, _ int64) error {
		ran.Store(true)
		return nil
	}, 1, time.Millisecond)

	s.Schedule(time.Hour, 1)
	s.Stop()

	assert.False(t, ran.Load(), "a pending timer must not fire after Stop")
}

func TestStop_InterruptsRetryWait(t *testing.T) {
	var attempts atomic.Int32
	started := make(chan struct{})
	var once sync.Once
	s := New(nil, func(_ context.Context, _ int64) error {
		attempts.Add(1)
		once.Do(func() { close(started) })
		return errors.New("transient")
	}, 3, time.Hour)

	s.Schedule(time.Millisecond, 1)
	<-started

	finished := make(chan struct{})
	go func() {
		s.Stop()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt the backoff wait")
	}
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSchedule_AfterStopIsDropped(t *testing.T) {
	var ran atomic.Bool
	s := New(nil, func(_ context.Context, _ int64) error {
		ran.Store(true)
		return nil
	}, 1, time.Millisecond)
	s.Stop()

	s.Schedule(time.Millisecond, 1)
	time.Sleep(20 * time.Millisecond)

	assert.False(t, ran.Load())
}

// Zero-delay timers fire as soon as they are armed; the callback's timer
// bookkeeping must still be ordered with Schedule's own writes.
func TestSchedule_ZeroDelay(t *testing.T) {
	const n = 50
	var ran atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	s := New(nil, func(_ context.Context, _ int64) error {
		ran.Add(1)
		wg.Done()
		return nil
	}, 1, time.Millisecond)
	defer s.Stop()

	for i := 0; i < n; i++ {
		s.Schedule(0, int64(i+1))
	}

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("zero-delay runs never fired")
	}
	assert.Equal(t, int32(n), ran.Load())
}

func TestSchedule_IndependentAccounts(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64]bool{}
	var wg sync.WaitGroup
	wg.Add(2)
	s := New(nil, func(_ context.Context, accountID int64) error {
		mu.Lock()
		seen[accountID] = true
		mu.Unlock()
		wg.Done()
		return nil
	}, 1, time.Millisecond)
	defer s.Stop()

	s.Schedule(time.Millisecond, 1)
	s.Schedule(time.Millisecond, 2)

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("runs never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, seen[1])
	require.True(t, seen[2])
}
