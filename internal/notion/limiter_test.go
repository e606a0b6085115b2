package notion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	const limit = 3
	const tasks = 24

	l := NewLimiter(limit)
	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			defer l.Release()

			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, peak.Load(), int32(limit))
	require.Equal(t, 0, l.InFlight())
}

func TestLimiterFIFOOrder(t *testing.T) {
	t.Parallel()

	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			l.Release()
		}(i)
		// Give each goroutine time to enqueue before the next arrives.
		time.Sleep(10 * time.Millisecond)
	}

	l.Release()
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLimiterRaiseLimitReleasesQueued(t *testing.T) {
	t.Parallel()

	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	admitted := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			if err := l.Acquire(context.Background()); err == nil {
				admitted <- struct{}{}
			}
		}()
	}

	// Queued waiters must stay blocked at limit 1.
	select {
	case <-admitted:
		t.Fatal("waiter admitted beyond limit")
	case <-time.After(20 * time.Millisecond):
	}

	l.SetLimit(3)
	for i := 0; i < 2; i++ {
		select {
		case <-admitted:
		case <-time.After(time.Second):
			t.Fatal("raised limit did not release queued waiter")
		}
	}
	require.Equal(t, 3, l.InFlight())
}

func TestLimiterLowerLimitKeepsInFlightWork(t *testing.T) {
	t.Parallel()

	l := NewLimiter(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}

	l.SetLimit(1)
	require.Equal(t, 3, l.InFlight())

	// New admissions wait until in-flight work drains below the new limit.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Acquire(ctx))

	l.Release()
	l.Release()
	l.Release()
	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, 1, l.InFlight())
}

func TestLimiterAcquireCanceledWhileQueued(t *testing.T) {
	t.Parallel()

	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Acquire(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// The canceled waiter must not consume the slot freed later.
	l.Release()
	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, 1, l.InFlight())
}
