package dht

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValidFrames(t *testing.T) {
	frames := []Frame{
		{45, 0, 23, 0, 68},
		{0, 0, 0, 0, 0},
		{255, 1, 0, 0, 0},       // sum wraps to 0
		{200, 100, 50, 10, 104}, // 360 mod 256
		{90, 0, 40, 0, 130},
	}
	for _, f := range frames {
		r, err := Decode(f)
		require.NoError(t, err, "frame %v", f)
		assert.Equal(t, Reading{Temperature: f[2], Humidity: f[0]}, r)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	frames := []Frame{
		{45, 0, 23, 0, 69},
		{255, 1, 0, 0, 255}, // saturating sum would accept this
		{1, 2, 3, 4, 0},
	}
	for _, f := range frames {
		_, err := Decode(f)
		assert.ErrorIs(t, err, ErrChecksumMismatch, "frame %v", f)
	}
}

func TestDecodeExhaustiveChecksumByte(t *testing.T) {
	f := Frame{33, 0, 21, 0, 0}
	for c := 0; c < 256; c++ {
		f[4] = byte(c)
		_, err := Decode(f)
		if byte(c) == 54 {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrChecksumMismatch)
		}
	}
}

func TestBitFromPulseBoundary(t *testing.T) {
	assert.False(t, BitFromPulse(26*time.Microsecond))
	assert.False(t, BitFromPulse(40*time.Microsecond))
	assert.True(t, BitFromPulse(41*time.Microsecond))
	assert.True(t, BitFromPulse(70*time.Microsecond))
}

func TestReadDecodesWaveform(t *testing.T) {
	w := newSimWire(frameWave(validFrame(55, 24)))
	s := w.sensor()

	r, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Reading{Temperature: 24, Humidity: 55}, r)
	assert.Equal(t, 1, w.criticals)
	assert.Equal(t, []time.Duration{ResetHold}, w.sleeps)
}

func TestReadAllBitPatterns(t *testing.T) {
	for _, pair := range [][2]byte{{0, 0}, {255, 0}, {0xAA, 0x55}, {0x81, 0x7E}} {
		w := newSimWire(frameWave(validFrame(pair[0], pair[1])))
		r, err := w.sensor().Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, pair[0], r.Humidity)
		assert.Equal(t, pair[1], r.Temperature)
	}
}

func TestReadNoResponse(t *testing.T) {
	w := newSimWire(silentWave())
	_, err := w.sensor().Read(context.Background())
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestReadInvalidResponse(t *testing.T) {
	w := newSimWire(stuckLowWave())
	_, err := w.sensor().Read(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestReadStuckHighAfterHandshake(t *testing.T) {
	w := newSimWire([]segment{
		{high: true, d: 20 * time.Microsecond},
		{high: false, d: 80 * time.Microsecond},
		{high: true, d: time.Second},
	})
	_, err := w.sensor().Read(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestReadResponseWindow(t *testing.T) {
	tests := []struct {
		delay time.Duration
		err   error
	}{
		{49 * time.Microsecond, nil},
		{60 * time.Microsecond, ErrNoResponse},
	}
	for _, tt := range tests {
		t.Run(tt.delay.String(), func(t *testing.T) {
			wave := frameWave(validFrame(55, 21))
			wave[0].d = tt.delay
			r, err := newSimWire(wave).sensor().Read(context.Background())
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Reading{Humidity: 55, Temperature: 21}, r)
		})
	}
}

func TestReadTruncatedFrame(t *testing.T) {
	wave := frameWave(validFrame(40, 20))
	// cut the transmission after the handshake and a few bits
	wave = append(wave[:3+2*10:3+2*10], segment{high: false, d: time.Second})
	w := newSimWire(wave)
	_, err := w.sensor().Read(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestReadChecksumMismatch(t *testing.T) {
	f := validFrame(50, 22)
	f[4]++
	w := newSimWire(frameWave(f))
	_, err := w.sensor().Read(context.Background())
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadClearsFrameBetweenReads(t *testing.T) {
	w := newSimWire(frameWave(validFrame(0xFF, 0xFF)), frameWave(validFrame(1, 2)))
	s := w.sensor()

	_, err := s.Read(context.Background())
	require.NoError(t, err)
	r, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Reading{Temperature: 2, Humidity: 1}, r)
}

func TestReadWithRetrySucceedsOnThirdAttempt(t *testing.T) {
	w := newSimWire(silentWave(), stuckLowWave(), frameWave(validFrame(60, 25)))

	var failures []int
	s := w.sensor(WithErrorSink(func(attempt int, err error) {
		failures = append(failures, attempt)
	}))

	r, err := s.ReadWithRetry(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, Reading{Temperature: 25, Humidity: 60}, r)
	assert.Equal(t, 2, w.sleepsOf(RetryDelay))
	assert.Equal(t, []int{1, 2}, failures)
	assert.Equal(t, 3, w.releases)
}

func TestReadWithRetryReturnsLastError(t *testing.T) {
	w := newSimWire(silentWave(), silentWave(), stuckLowWave())
	var failures int
	s := w.sensor(WithErrorSink(func(int, error) { failures++ }))

	_, err := s.ReadWithRetry(context.Background(), 3)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, 3, failures)
	assert.Equal(t, 2, w.sleepsOf(RetryDelay))
}

func TestReadWithRetryCancelled(t *testing.T) {
	w := newSimWire(silentWave())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(w, WithClock(w), WithCritical(w.critical))
	_, err := s.ReadWithRetry(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoPreemptRunsFunction(t *testing.T) {
	called := false
	err := NoPreempt(func() error {
		called = true
		return ErrNoResponse
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, ErrNoResponse)
}
