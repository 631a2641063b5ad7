package fabric

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by RecvTimeout when nothing arrived in time.
var ErrTimeout = errors.New("mailbox: receive timeout")

// Mailbox is a bounded FIFO safe for many senders and one receiver.
// Send suspends while the mailbox is full.
type Mailbox[T any] struct {
	ch chan T
}

// NewMailbox creates a mailbox holding at most capacity items.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox[T]{ch: make(chan T, capacity)}
}

// Send enqueues v, waiting for space. It only fails if ctx is done first.
func (m *Mailbox[T]) Send(ctx context.Context, v T) error {
	select {
	case m.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues v if there is room and reports whether it did.
func (m *Mailbox[T]) TrySend(v T) bool {
	select {
	case m.ch <- v:
		return true
	default:
		return false
	}
}

// Recv dequeues the oldest item, waiting until one is available.
func (m *Mailbox[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v := <-m.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// RecvTimeout is Recv bounded by d. It returns ErrTimeout when d elapses.
func (m *Mailbox[T]) RecvTimeout(ctx context.Context, d time.Duration) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case v := <-m.ch:
		return v, nil
	case <-timer.C:
		var zero T
		return zero, ErrTimeout
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryRecv dequeues the oldest item if one is waiting.
func (m *Mailbox[T]) TryRecv() (T, bool) {
	select {
	case v := <-m.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes the receive side for use in select statements.
func (m *Mailbox[T]) C() <-chan T { return m.ch }

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int { return len(m.ch) }

// Cap returns the mailbox capacity.
func (m *Mailbox[T]) Cap() int { return cap(m.ch) }
