package dht

import (
	"context"
	"time"
)

// segment is one level held for a duration after the line is released.
type segment struct {
	high bool
	d    time.Duration
}

// simWire simulates the sensor side of the data line in virtual time. Every
// High and Now call advances the clock by step, standing in for the cost of
// a register read in a busy loop.
type simWire struct {
	now        time.Duration
	step       time.Duration
	released   bool
	driven     bool
	releasedAt time.Duration
	waves      [][]segment
	wave       []segment
	releases   int
	sleeps     []time.Duration
	criticals  int
}

func newSimWire(waves ...[]segment) *simWire {
	return &simWire{step: time.Microsecond, driven: true, waves: waves}
}

func (w *simWire) Drive(high bool) error {
	w.released = false
	w.driven = high
	return nil
}

func (w *simWire) Release() error {
	w.released = true
	w.releasedAt = w.now
	if len(w.waves) > 0 {
		w.wave = w.waves[0]
		if len(w.waves) > 1 {
			w.waves = w.waves[1:]
		}
	}
	w.releases++
	return nil
}

func (w *simWire) High() bool {
	w.now += w.step
	if !w.released {
		return w.driven
	}
	t := w.now - w.releasedAt
	for _, seg := range w.wave {
		if t < seg.d {
			return seg.high
		}
		t -= seg.d
	}
	// pull-up holds an idle line high
	return true
}

func (w *simWire) Now() time.Duration {
	w.now += w.step
	return w.now
}

func (w *simWire) sleep(_ context.Context, d time.Duration) error {
	w.sleeps = append(w.sleeps, d)
	w.now += d
	return nil
}

func (w *simWire) critical(fn func() error) error {
	w.criticals++
	return fn()
}

func (w *simWire) sensor(opts ...Option) *Sensor {
	base := []Option{WithClock(w), WithSleep(w.sleep), WithCritical(w.critical)}
	return New(w, append(base, opts...)...)
}

func (w *simWire) sleepsOf(d time.Duration) int {
	n := 0
	for _, s := range w.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

// frameWave renders a well-formed transmission of f.
func frameWave(f Frame) []segment {
	wave := []segment{
		{high: true, d: 20 * time.Microsecond},
		{high: false, d: 80 * time.Microsecond},
		{high: true, d: 80 * time.Microsecond},
	}
	for _, b := range f {
		for bit := 7; bit >= 0; bit-- {
			pulse := 26 * time.Microsecond
			if b&(1<<uint(bit)) != 0 {
				pulse = 70 * time.Microsecond
			}
			wave = append(wave,
				segment{high: false, d: 50 * time.Microsecond},
				segment{high: true, d: pulse},
			)
		}
	}
	return append(wave, segment{high: false, d: 50 * time.Microsecond})
}

// silentWave never answers: the pull-up keeps the line high.
func silentWave() []segment { return nil }

// stuckLowWave answers the start signal and then never lets go.
func stuckLowWave() []segment {
	return []segment{
		{high: true, d: 20 * time.Microsecond},
		{high: false, d: time.Second},
	}
}

func validFrame(humidity, temperature byte) Frame {
	f := Frame{humidity, 0, temperature, 0, 0}
	f[4] = f.Checksum()
	return f
}
