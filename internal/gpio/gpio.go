// Package gpio provides digital line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware, in virtual time.
package gpio

import "context"

// Input is a debounced source's view of a digital line. Values are logical:
// polarity inversion is applied by the implementation.
type Input interface {
	// Active returns the current logical level.
	Active() (bool, error)

	// WaitEdge blocks until the next inactive-to-active transition.
	WaitEdge(ctx context.Context) error

	// WaitActive returns immediately if the line is active, otherwise it
	// waits like WaitEdge.
	WaitActive(ctx context.Context) error

	// Close releases the line.
	Close() error
}

// Wire is a bidirectional line for bit-banged protocols.
type Wire interface {
	// Drive switches the line to output at the given level.
	Drive(high bool) error

	// Release switches the line to input.
	Release() error

	// High reports the current level. Errors read as low.
	High() bool

	// Close leaves the line as an input and releases it.
	Close() error
}

// Default chip and line offsets.
const (
	DefaultChip = "gpiochip0"

	DefaultPinButtonA = 26
	DefaultPinButtonB = 27
	DefaultPinButtonC = 14
	DefaultPinButtonD = 12
	DefaultPinMotion  = 17
	DefaultPinContact = 19
	DefaultPinDHT     = 18
)
