package fabric

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Interval bounds, in seconds.
const (
	MinInterval uint8 = 2
	MaxInterval uint8 = 30
)

// ErrIntervalRange is returned when an interval outside [MinInterval, MaxInterval] is set.
var ErrIntervalRange = errors.New("settings: interval out of range")

// Setting names a user-adjustable source.
type Setting int

const (
	SettingSensor Setting = iota
	SettingMotion
	SettingContact
	SettingPublishing
	numSettings
)

// AllSettings lists settings in menu order.
var AllSettings = []Setting{SettingSensor, SettingMotion, SettingContact, SettingPublishing}

func (s Setting) String() string {
	switch s {
	case SettingSensor:
		return "sensor"
	case SettingMotion:
		return "motion"
	case SettingContact:
		return "contact"
	case SettingPublishing:
		return "publishing"
	}
	return fmt.Sprintf("Setting(%d)", int(s))
}

// HasInterval reports whether the setting carries a polling interval.
// Publishing is a pure on/off switch.
func (s Setting) HasInterval() bool {
	return s >= SettingSensor && s < SettingPublishing
}

// Settings is the process-wide runtime configuration. Every field is an
// independent atomic; readers may observe a mix of old and new values across
// fields but never a torn field. Only the orchestrator writes.
type Settings struct {
	enabled  [numSettings]atomic.Bool
	interval [numSettings]atomic.Uint32
}

// NewSettings returns settings with everything enabled and every interval at
// MinInterval.
func NewSettings() *Settings {
	s := &Settings{}
	for _, st := range AllSettings {
		s.enabled[st].Store(true)
		if st.HasInterval() {
			s.interval[st].Store(uint32(MinInterval))
		}
	}
	return s
}

// Enabled reports whether the setting is switched on.
func (s *Settings) Enabled(st Setting) bool {
	return s.enabled[st].Load()
}

// SetEnabled switches the setting on or off.
func (s *Settings) SetEnabled(st Setting, on bool) {
	s.enabled[st].Store(on)
}

// Toggle flips the setting and returns the new value.
func (s *Settings) Toggle(st Setting) bool {
	for {
		old := s.enabled[st].Load()
		if s.enabled[st].CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Interval returns the polling interval in seconds. It panics for settings
// without an interval: asking is a programming error.
func (s *Settings) Interval(st Setting) uint8 {
	mustHaveInterval(st)
	return uint8(s.interval[st].Load())
}

// IntervalDuration is Interval as a time.Duration.
func (s *Settings) IntervalDuration(st Setting) time.Duration {
	return time.Duration(s.Interval(st)) * time.Second
}

// SetInterval stores v if it lies within [MinInterval, MaxInterval]; out of
// range values are rejected and never stored.
func (s *Settings) SetInterval(st Setting, v uint8) error {
	mustHaveInterval(st)
	if v < MinInterval || v > MaxInterval {
		return fmt.Errorf("%w: %s=%d", ErrIntervalRange, st, v)
	}
	s.interval[st].Store(uint32(v))
	return nil
}

func mustHaveInterval(st Setting) {
	if !st.HasInterval() {
		panic(fmt.Sprintf("settings: %s has no interval", st))
	}
}
