// Package input turns raw line activity into debounced application events.
//
// Every source follows the same shape: wait for the line, hold off for the
// debounce window, re-sample, and only then emit. A line that is no longer
// active after the window was a bounce and is dropped without an event.
package input

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/sensor-node/internal/fabric"
	"github.com/sweeney/sensor-node/internal/gpio"
)

// DebounceWindow is how long a line must stay active before it counts.
const DebounceWindow = 20 * time.Millisecond

// DisabledPoll is how often a disabled sensor source rechecks its switch.
const DisabledPoll = time.Second

// lineErrorBackoff spaces out retries after a hardware read fails.
const lineErrorBackoff = time.Second

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Debouncer runs debounced sources. One Debouncer may drive any number of
// sources concurrently.
type Debouncer struct {
	sleep SleepFunc
}

// NewDebouncer creates a Debouncer that waits using sleep.
func NewDebouncer(sleep SleepFunc) *Debouncer {
	return &Debouncer{sleep: sleep}
}

// Button emits id on every confirmed press of line until ctx is done.
// Buttons have no enable switch and no re-arm delay.
func (d *Debouncer) Button(ctx context.Context, id fabric.Button, line gpio.Input, out *fabric.Mailbox[fabric.Button]) error {
	for {
		if err := line.WaitEdge(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("input: button %s: wait: %v", id, err)
			if d.sleep(ctx, lineErrorBackoff) != nil {
				return nil
			}
			continue
		}

		ok, err := d.confirm(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("input: button %s: %v", id, err)
			continue
		}
		if !ok {
			continue
		}

		if out.Send(ctx, id) != nil {
			return nil
		}
	}
}

// Sensor emits alert while line is active and the alert's setting is
// enabled, at most once per configured interval, until ctx is done.
func (d *Debouncer) Sensor(ctx context.Context, alert fabric.Alert, line gpio.Input, settings *fabric.Settings, out *fabric.Mailbox[fabric.Alert]) error {
	setting := alert.Setting()
	for {
		if !settings.Enabled(setting) {
			if d.sleep(ctx, DisabledPoll) != nil {
				return nil
			}
			continue
		}

		if err := line.WaitActive(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("input: %s sensor: wait: %v", alert, err)
			if d.sleep(ctx, lineErrorBackoff) != nil {
				return nil
			}
			continue
		}

		ok, err := d.confirm(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("input: %s sensor: %v", alert, err)
			continue
		}
		if !ok {
			continue
		}

		// blocks while the other sensor's alert is still queued
		if out.Send(ctx, alert) != nil {
			return nil
		}

		if d.sleep(ctx, settings.IntervalDuration(setting)) != nil {
			return nil
		}
	}
}

// confirm waits out the debounce window and re-samples the line.
func (d *Debouncer) confirm(ctx context.Context, line gpio.Input) (bool, error) {
	if err := d.sleep(ctx, DebounceWindow); err != nil {
		return false, err
	}
	return line.Active()
}
