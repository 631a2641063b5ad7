// Package logic contains the orchestrator's pure state: the setup menu,
// current values, and the read and send trackers.
// This package has NO hardware, network, or OS dependencies and never sleeps.
// Time is always injectable via time.Time parameters.
package logic

import (
	"time"

	"github.com/sweeney/sensor-node/internal/fabric"
)

// Mode is the operator-facing mode.
type Mode string

const (
	ModeDisplaying Mode = "DISPLAYING"
	ModeSelecting  Mode = "SELECTING"
	ModeModifying  Mode = "MODIFYING"
)

// Setup reports whether m is one of the menu modes, in which only buttons
// are consumed.
func (m Mode) Setup() bool {
	return m == ModeSelecting || m == ModeModifying
}

// SendStatus is the last known state of a topic's publish.
type SendStatus string

const (
	SendIdle    SendStatus = ""
	SendPending SendStatus = "SENDING"
	SendSent    SendStatus = "SENT"
	SendError   SendStatus = "ERROR"
)

// Unknown marks a value that has not been read yet.
const Unknown uint8 = 255

// StatusHold is how long a read highlight or a send status stays visible.
const StatusHold = time.Second

// IdleGrace is added to a leveled sensor's interval before it is reported
// back at rest.
const IdleGrace = time.Second

// Tracker records when something last happened and whether that has
// been acknowledged.
type Tracker struct {
	Time    time.Time
	Handled bool
}

// Reset marks a new occurrence at now.
func (t *Tracker) Reset(now time.Time) {
	t.Time = now
	t.Handled = false
}

// Values are the most recent readings.
type Values struct {
	Temperature uint8
	Humidity    uint8
	Motion      uint8
	Contact     uint8
}

// Counts tracks activity since startup.
type Counts struct {
	Readings     int
	ReadFailures int
	Alerts       int
	Sent         int
	SendErrors   int
}

// TopicView is the per-topic part of a View.
type TopicView struct {
	Topic   fabric.Topic
	Value   uint8
	Enabled bool
	// Fresh is set while the value was updated less than StatusHold ago.
	Fresh bool
	Send  SendStatus
}

// View is a copy of the controller state for display.
type View struct {
	Mode      Mode
	Selection fabric.Setting
	Topics    []TopicView
	Counts    Counts
	LastRead  time.Time
}

// Topic returns the view of t.
func (v View) Topic(t fabric.Topic) TopicView {
	for _, tv := range v.Topics {
		if tv.Topic == t {
			return tv
		}
	}
	return TopicView{Topic: t, Value: Unknown}
}
