package mqtt

import (
	"context"
	"sync"
)

// FakePublish is one publish attempt seen by a FakeDialer.
type FakePublish struct {
	Topic   string
	Payload string
	Err     error
}

// FakeDialer is an in-memory broker for tests. Set the error queues before
// use; each entry is consumed by one call, nil meaning success.
type FakeDialer struct {
	// DialErrors are returned by successive Dial calls.
	DialErrors []error

	// PublishErrors are returned by successive Publish calls across all
	// connections.
	PublishErrors []error

	// PingErrors are returned by successive Ping calls.
	PingErrors []error

	mu        sync.Mutex
	published []FakePublish
	dials     int
	pings     int
	zeroed    []bool
	open      int
	overlaps  int
	closes    int
}

// NewFakeDialer creates a FakeDialer whose calls all succeed.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// Dial records the attempt and whether bufs arrived zeroed.
func (f *FakeDialer) Dial(ctx context.Context, bufs *Buffers) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dials++
	f.zeroed = append(f.zeroed, bufs.IsZero())
	if f.open > 0 {
		f.overlaps++
	}
	if err := pop(&f.DialErrors); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.open++
	return &FakeConn{dialer: f, bufs: bufs}, nil
}

// Published returns every publish attempt in order.
func (f *FakeDialer) Published() []FakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakePublish(nil), f.published...)
}

// Delivered returns the attempts that succeeded.
func (f *FakeDialer) Delivered() []FakePublish {
	var out []FakePublish
	for _, p := range f.Published() {
		if p.Err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Dials returns the number of Dial calls.
func (f *FakeDialer) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// Pings returns the number of Ping calls.
func (f *FakeDialer) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// Closes returns the number of connections closed.
func (f *FakeDialer) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// ZeroedAtDial reports, per Dial call, whether the buffers were clear.
func (f *FakeDialer) ZeroedAtDial() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.zeroed...)
}

// Overlaps counts dials made while an earlier connection was still open.
func (f *FakeDialer) Overlaps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlaps
}

// FakeConn is a connection handed out by FakeDialer.
type FakeConn struct {
	dialer *FakeDialer
	bufs   *Buffers
}

// Publish records the attempt. It scribbles the topic into the write
// buffer the way a real encoder would.
func (c *FakeConn) Publish(ctx context.Context, topic string, payload []byte) error {
	f := c.dialer
	f.mu.Lock()
	defer f.mu.Unlock()

	copy(c.bufs.Write, topic)
	err := pop(&f.PublishErrors)
	if err == nil {
		err = ctx.Err()
	}
	f.published = append(f.published, FakePublish{Topic: topic, Payload: string(payload), Err: err})
	return err
}

// Ping records the keep-alive.
func (c *FakeConn) Ping(ctx context.Context) error {
	f := c.dialer
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return pop(&f.PingErrors)
}

// Close returns the buffers. Calling it twice returns nil.
func (c *FakeConn) Close() *Buffers {
	if c.bufs == nil {
		return nil
	}
	f := c.dialer
	f.mu.Lock()
	f.open--
	f.closes++
	f.mu.Unlock()

	b := c.bufs
	c.bufs = nil
	return b
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}
