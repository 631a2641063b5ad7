// Package dht reads a DHT11-class temperature/humidity sensor over a single
// bit-banged data line.
//
// A read has two phases. The reset pulse (line held low for 20ms) is slow and
// runs like any other task. The handshake and the 40-bit frame that follow are
// timed in microseconds and run inside a Critical scope so nothing preempts
// the busy-wait loops measuring them.
package dht

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Protocol timings. These are the sensor's contract; do not tune them.
const (
	ResetHold       = 20 * time.Millisecond
	ResponseTimeout = 50 * time.Microsecond
	HandshakeHigh   = 100 * time.Microsecond
	HandshakeLow    = 100 * time.Microsecond
	BitStartTimeout = 60 * time.Microsecond
	PulseCap        = 100 * time.Microsecond
	BitThreshold    = 40 * time.Microsecond
	TrailingLow     = 50 * time.Microsecond
	RetryDelay      = 100 * time.Millisecond
)

// FrameSize is the number of bytes the sensor transmits per read.
const FrameSize = 5

var (
	ErrNoResponse       = errors.New("dht: no response")
	ErrInvalidResponse  = errors.New("dht: invalid response")
	ErrChecksumMismatch = errors.New("dht: checksum mismatch")
)

// Frame is the raw sensor transmission: humidity integer and fraction,
// temperature integer and fraction, checksum.
type Frame [FrameSize]byte

// Checksum returns the 8-bit wrapping sum of the four data bytes.
func (f Frame) Checksum() byte {
	return f[0] + f[1] + f[2] + f[3]
}

// Valid reports whether the transmitted checksum matches the data.
func (f Frame) Valid() bool {
	return f[4] == f.Checksum()
}

// Reading is one validated measurement. This sensor class has no
// fractional part, so only the integer bytes are kept.
type Reading struct {
	Temperature uint8
	Humidity    uint8
}

// Decode validates f and extracts the reading.
func Decode(f Frame) (Reading, error) {
	if !f.Valid() {
		return Reading{}, fmt.Errorf("%w: got %#02x, want %#02x", ErrChecksumMismatch, f[4], f.Checksum())
	}
	return Reading{Temperature: f[2], Humidity: f[0]}, nil
}

// BitFromPulse classifies a data bit by the length of its high pulse.
// A zero is ~26us, a one ~70us; anything strictly over 40us is a one.
func BitFromPulse(d time.Duration) bool {
	return d > BitThreshold
}

// Line is the bidirectional data line.
type Line interface {
	// Drive switches the line to output and sets its level.
	Drive(high bool) error
	// Release switches the line to input so the sensor can drive it.
	Release() error
	// High reports the current level.
	High() bool
}

// Clock returns monotonic time since an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

// Critical runs fn with preemption suspended.
type Critical func(fn func() error) error

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ErrorSink receives every failed attempt made by ReadWithRetry.
type ErrorSink func(attempt int, err error)

// Sensor drives one DHT sensor. Not safe for concurrent use.
type Sensor struct {
	line     Line
	clock    Clock
	critical Critical
	sleep    SleepFunc
	sink     ErrorSink
	frame    Frame
}

// Option configures a Sensor.
type Option func(*Sensor)

// WithClock replaces the monotonic clock used for pulse timing.
func WithClock(c Clock) Option { return func(s *Sensor) { s.clock = c } }

// WithCritical replaces the scope the timed phase runs in.
func WithCritical(c Critical) Option { return func(s *Sensor) { s.critical = c } }

// WithSleep replaces the sleep used for the reset pulse and retry delay.
func WithSleep(f SleepFunc) Option { return func(s *Sensor) { s.sleep = f } }

// WithErrorSink sets the receiver of failed attempts.
func WithErrorSink(f ErrorSink) Option { return func(s *Sensor) { s.sink = f } }

// New creates a Sensor on the given line.
func New(line Line, opts ...Option) *Sensor {
	s := &Sensor{
		line:     line,
		clock:    NewMonotonicClock(),
		critical: NoPreempt,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read performs one complete transaction with the sensor.
func (s *Sensor) Read(ctx context.Context) (Reading, error) {
	s.frame = Frame{}

	if err := s.line.Drive(false); err != nil {
		return Reading{}, fmt.Errorf("dht: reset: %w", err)
	}
	if err := s.sleep(ctx, ResetHold); err != nil {
		return Reading{}, err
	}

	if err := s.critical(s.receive); err != nil {
		return Reading{}, err
	}
	return Decode(s.frame)
}

// ReadWithRetry calls Read up to attempts times, waiting RetryDelay after
// each failure that will be retried. It returns the last error when every
// attempt fails.
func (s *Sensor) ReadWithRetry(ctx context.Context, attempts int) (Reading, error) {
	lastErr := ErrNoResponse
	for i := 1; i <= attempts; i++ {
		r, err := s.Read(ctx)
		if err == nil {
			return r, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Reading{}, ctxErr
		}
		lastErr = err
		log.Printf("dht: attempt %d/%d: %v", i, attempts, err)
		if s.sink != nil {
			s.sink(i, err)
		}
		if i == attempts {
			break
		}
		if err := s.sleep(ctx, RetryDelay); err != nil {
			return Reading{}, err
		}
	}
	return Reading{}, lastErr
}

// receive runs inside the critical scope.
func (s *Sensor) receive() error {
	if err := s.line.Drive(true); err != nil {
		return fmt.Errorf("dht: start: %w", err)
	}
	if err := s.line.Release(); err != nil {
		return fmt.Errorf("dht: release: %w", err)
	}

	// handshake: sensor pulls low (~20-40us), high (~80us), low (~80us)
	if !s.waitLevel(false, ResponseTimeout) {
		return ErrNoResponse
	}
	if !s.waitLevel(true, HandshakeHigh) {
		return ErrInvalidResponse
	}
	if !s.waitLevel(false, HandshakeLow) {
		return ErrInvalidResponse
	}

	for i := range s.frame {
		for bit := 7; bit >= 0; bit-- {
			if !s.waitLevel(true, BitStartTimeout) {
				return ErrInvalidResponse
			}
			if BitFromPulse(s.measureHigh(PulseCap)) {
				s.frame[i] |= 1 << uint(bit)
			}
		}
	}

	s.busyWait(TrailingLow)
	return nil
}

// waitLevel spins until the line reads the wanted level. It gives up once
// more than timeout has elapsed.
func (s *Sensor) waitLevel(high bool, timeout time.Duration) bool {
	start := s.clock.Now()
	for s.line.High() != high {
		if s.clock.Now()-start > timeout {
			return false
		}
	}
	return true
}

// measureHigh returns how long the line stays high, capped just past limit.
// The line must already be high.
func (s *Sensor) measureHigh(limit time.Duration) time.Duration {
	start := s.clock.Now()
	var length time.Duration
	for s.line.High() {
		length = s.clock.Now() - start
		if length > limit {
			break
		}
	}
	return length
}

func (s *Sensor) busyWait(d time.Duration) {
	start := s.clock.Now()
	for s.clock.Now()-start < d {
	}
}
