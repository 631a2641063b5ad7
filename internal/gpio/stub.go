//go:build !linux

package gpio

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Close is a no-op.
func (c *Chip) Close() error { return nil }

// RequestInput returns an error on non-Linux platforms.
func (c *Chip) RequestInput(offset int, activeLow, pullUp bool) (*RealInput, error) {
	return nil, errUnsupported
}

// RequestWire returns an error on non-Linux platforms.
func (c *Chip) RequestWire(offset int) (*RealWire, error) {
	return nil, errUnsupported
}

// RealInput is not implemented on non-Linux platforms.
type RealInput struct{}

func (in *RealInput) Active() (bool, error)                { return false, errUnsupported }
func (in *RealInput) WaitEdge(ctx context.Context) error   { return errUnsupported }
func (in *RealInput) WaitActive(ctx context.Context) error { return errUnsupported }
func (in *RealInput) Close() error                         { return nil }

// RealWire is not implemented on non-Linux platforms.
type RealWire struct{}

func (w *RealWire) Drive(high bool) error { return errUnsupported }
func (w *RealWire) Release() error        { return errUnsupported }
func (w *RealWire) High() bool            { return false }
func (w *RealWire) Close() error          { return nil }
