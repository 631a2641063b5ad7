package dht

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"
)

// NoPreempt runs fn pinned to its OS thread with the garbage collector
// paused. Stop-the-world pauses are the main source of multi-microsecond
// stalls in a busy loop; the previous GC setting is restored on return.
func NoPreempt(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	gc := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(gc)

	return fn()
}

type monotonicClock struct {
	origin time.Time
}

// NewMonotonicClock returns a Clock backed by the runtime's monotonic reading.
func NewMonotonicClock() Clock {
	return monotonicClock{origin: time.Now()}
}

func (c monotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
