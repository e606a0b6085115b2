package notion

import (
	"context"
	"sync"
)

// Limiter is a resizable counting semaphore with FIFO admission. It bounds
// the number of block fetches in flight against the remote API. Raising the
// limit immediately admits queued waiters that now fit; lowering it never
// cancels in-flight work, it only stops new admissions.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	running int
	waiters []chan struct{}
}

// NewLimiter builds a limiter admitting at most limit concurrent holders.
func NewLimiter(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{limit: limit}
}

// Acquire blocks until a slot is free or the context ends. Waiters are
// admitted in arrival order.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.running < l.limit && len(l.waiters) == 0 {
		l.running++
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ready {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		// Already admitted between ctx firing and taking the lock; give the
		// slot back so it is not leaked.
		l.running--
		l.admitLocked()
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees a slot and admits the next waiter, if any.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running--
	l.admitLocked()
}

// SetLimit adjusts the admission limit at runtime.
func (l *Limiter) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
	l.admitLocked()
}

// Limit returns the current admission limit.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// InFlight returns the number of currently admitted holders.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Limiter) admitLocked() {
	for len(l.waiters) > 0 && l.running < l.limit {
		ready := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.running++
		close(ready)
	}
}
