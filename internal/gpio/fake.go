package gpio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// VirtualClock is a manually advanced clock shared by fakes and the code
// under test. Sleep advances it instead of blocking.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now returns the virtual time.
func (c *VirtualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// advanceTo moves the clock to t if t is in the future.
func (c *VirtualClock) advanceTo(t time.Duration) {
	c.mu.Lock()
	if t > c.now {
		c.now = t
	}
	c.mu.Unlock()
}

// Sleep advances the clock by d. It fails only if ctx is already done.
func (c *VirtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// Edge is a scripted level change at a point in virtual time.
type Edge struct {
	At     time.Duration
	Active bool
}

// FakeInput is a test double whose level follows a script of edges against
// a VirtualClock. The line starts inactive.
type FakeInput struct {
	clock *VirtualClock

	mu     sync.Mutex
	edges  []Edge
	closed bool

	// ReadError, if set, is returned by Active.
	ReadError error
}

// NewFakeInput creates a FakeInput following edges, which must be sorted by At.
func NewFakeInput(clock *VirtualClock, edges ...Edge) *FakeInput {
	return &FakeInput{clock: clock, edges: edges}
}

// levelAt returns the scripted level at t.
func (f *FakeInput) levelAt(t time.Duration) bool {
	level := false
	for _, e := range f.edges {
		if e.At > t {
			break
		}
		level = e.Active
	}
	return level
}

// Active returns the scripted level at the current virtual time.
func (f *FakeInput) Active() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levelAt(f.clock.Now()), nil
}

// WaitEdge advances the clock to the next inactive-to-active edge after now.
// With no such edge left it blocks until ctx is done.
func (f *FakeInput) WaitEdge(ctx context.Context) error {
	f.mu.Lock()
	now := f.clock.Now()
	var next *Edge
	for i := range f.edges {
		e := f.edges[i]
		if e.At <= now || !e.Active {
			continue
		}
		if !f.levelAt(e.At - 1) {
			next = &e
			break
		}
	}
	f.mu.Unlock()

	if next == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.clock.advanceTo(next.At)
	return nil
}

// WaitActive returns at once if the line is active, else behaves like WaitEdge.
func (f *FakeInput) WaitActive(ctx context.Context) error {
	active, err := f.Active()
	if err != nil {
		return err
	}
	if active {
		return ctx.Err()
	}
	return f.WaitEdge(ctx)
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeInput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var errFakeWireClosed = errors.New("gpio: fake wire closed")

// FakeWire records how a Wire was driven. It always reads high, which a
// sensor driver sees as an absent device.
type FakeWire struct {
	mu       sync.Mutex
	Levels   []bool
	Releases int
	closed   bool
}

// Drive records the level.
func (w *FakeWire) Drive(high bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errFakeWireClosed
	}
	w.Levels = append(w.Levels, high)
	return nil
}

// Release counts the switch to input.
func (w *FakeWire) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errFakeWireClosed
	}
	w.Releases++
	return nil
}

// High always reports the idle level.
func (w *FakeWire) High() bool { return true }

// Close marks the wire as closed.
func (w *FakeWire) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}
