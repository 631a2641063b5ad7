//go:build linux

package gpio

import (
	"context"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip is an open GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Close releases the chip. Lines requested from it stay valid until closed.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// RealInput is an edge-watched input line.
type RealInput struct {
	line   *gpiocdev.Line
	rising chan struct{}
}

// RequestInput requests offset as an input with edge detection on both edges.
// Buttons wired to ground use activeLow with the internal pull-up; sensors
// with an external pull use neither.
func (c *Chip) RequestInput(offset int, activeLow, pullUp bool) (*RealInput, error) {
	in := &RealInput{rising: make(chan struct{}, 1)}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(in.handleEvent),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	if pullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}

	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	in.line = line
	return in, nil
}

// handleEvent runs on the gpiocdev watcher goroutine and must not block.
// Edge types are logical, so with AsActiveLow a press is a rising edge.
func (in *RealInput) handleEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}
	select {
	case in.rising <- struct{}{}:
	default:
	}
}

// Active returns the logical level.
func (in *RealInput) Active() (bool, error) {
	v, err := in.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	return v == 1, nil
}

// WaitEdge blocks until the next rising edge. Edges seen before the call
// are discarded.
func (in *RealInput) WaitEdge(ctx context.Context) error {
	in.drain()
	return in.waitRising(ctx)
}

// WaitActive returns at once if the line is active, else waits for an edge.
func (in *RealInput) WaitActive(ctx context.Context) error {
	in.drain()
	active, err := in.Active()
	if err != nil {
		return err
	}
	if active {
		return nil
	}
	return in.waitRising(ctx)
}

func (in *RealInput) waitRising(ctx context.Context) error {
	select {
	case <-in.rising:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *RealInput) drain() {
	select {
	case <-in.rising:
	default:
	}
}

// Close releases the line.
func (in *RealInput) Close() error {
	if err := in.line.Close(); err != nil {
		return fmt.Errorf("close input: %w", err)
	}
	return nil
}

// RealWire is a line switched between output and input for bit-banging.
type RealWire struct {
	line   *gpiocdev.Line
	output bool
}

// RequestWire requests offset as an output idling high.
func (c *Chip) RequestWire(offset int) (*RealWire, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(1))
	if err != nil {
		return nil, fmt.Errorf("request wire pin %d: %w", offset, err)
	}
	return &RealWire{line: line, output: true}, nil
}

// Drive sets the line as output at the given level.
func (w *RealWire) Drive(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if w.output {
		return w.line.SetValue(v)
	}
	if err := w.line.Reconfigure(gpiocdev.AsOutput(v)); err != nil {
		return fmt.Errorf("reconfigure wire as output: %w", err)
	}
	w.output = true
	return nil
}

// Release switches the line to input; the external pull-up takes it high.
func (w *RealWire) Release() error {
	if err := w.line.Reconfigure(gpiocdev.AsInput); err != nil {
		return fmt.Errorf("reconfigure wire as input: %w", err)
	}
	w.output = false
	return nil
}

// High reads the level. A failed read counts as low.
func (w *RealWire) High() bool {
	v, err := w.line.Value()
	return err == nil && v == 1
}

// Close reconfigures the line as an input before releasing it, so the
// sensor is never left held in reset.
func (w *RealWire) Close() error {
	var errs []error
	if w.output {
		if err := w.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wire: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
