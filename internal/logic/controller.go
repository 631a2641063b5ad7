package logic

import (
	"time"

	"github.com/sweeney/sensor-node/internal/dht"
	"github.com/sweeney/sensor-node/internal/fabric"
)

type sendTracker struct {
	Tracker
	status SendStatus
}

// Controller holds the orchestrator's state between events. It decides
// what to publish; the caller performs reads and enqueues requests.
// Not safe for concurrent use.
type Controller struct {
	settings  *fabric.Settings
	mode      Mode
	selection fabric.Setting
	values    Values
	counts    Counts

	dhtRead     Tracker
	motionRead  Tracker
	contactRead Tracker
	sends       [len(topicSettings)]sendTracker
}

// topicSettings maps each topic, by index, to the setting that gates it.
var topicSettings = [...]fabric.Setting{
	fabric.TopicTemperature: fabric.SettingSensor,
	fabric.TopicHumidity:    fabric.SettingSensor,
	fabric.TopicMotion:      fabric.SettingMotion,
	fabric.TopicContact:     fabric.SettingContact,
}

// NewController creates a controller in Displaying mode. Interval timers
// start at startTime, so the first sensor read happens one interval later.
func NewController(settings *fabric.Settings, startTime time.Time) *Controller {
	c := &Controller{
		settings:  settings,
		mode:      ModeDisplaying,
		selection: fabric.SettingSensor,
		values: Values{
			Temperature: Unknown,
			Humidity:    Unknown,
		},
	}
	for _, t := range []*Tracker{&c.dhtRead, &c.motionRead, &c.contactRead} {
		*t = Tracker{Time: startTime, Handled: true}
	}
	for i := range c.sends {
		c.sends[i].Tracker = Tracker{Time: startTime, Handled: true}
	}
	return c
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode { return c.mode }

// Selection returns the setting highlighted in the menu.
func (c *Controller) Selection() fabric.Setting { return c.selection }

// Values returns the current readings.
func (c *Controller) Values() Values { return c.values }

// Counts returns activity counters.
func (c *Controller) Counts() Counts { return c.counts }

// HandleButton advances the menu. Displaying enters the menu on any
// button. In Selecting, A leaves, B and C move, D starts modifying. In
// Modifying, A toggles, B and C step the interval, D returns to Selecting.
func (c *Controller) HandleButton(b fabric.Button) error {
	switch c.mode {
	case ModeDisplaying:
		c.mode = ModeSelecting

	case ModeSelecting:
		switch b {
		case fabric.ButtonA:
			c.selection = fabric.SettingSensor
			c.mode = ModeDisplaying
		case fabric.ButtonB:
			c.selection = previous(c.selection)
		case fabric.ButtonC:
			c.selection = next(c.selection)
		case fabric.ButtonD:
			c.mode = ModeModifying
		}

	case ModeModifying:
		switch b {
		case fabric.ButtonA:
			c.settings.Toggle(c.selection)
		case fabric.ButtonB:
			return c.adjust(+1)
		case fabric.ButtonC:
			return c.adjust(-1)
		case fabric.ButtonD:
			c.mode = ModeSelecting
		}
	}
	return nil
}

// adjust steps the selected interval, staying inside [MinInterval, MaxInterval].
// Disabled entries and Publishing are left alone.
func (c *Controller) adjust(delta int) error {
	sel := c.selection
	if !sel.HasInterval() || !c.settings.Enabled(sel) {
		return nil
	}
	v := int(c.settings.Interval(sel)) + delta
	if v < int(fabric.MinInterval) || v > int(fabric.MaxInterval) {
		return nil
	}
	return c.settings.SetInterval(sel, uint8(v))
}

func previous(s fabric.Setting) fabric.Setting {
	for i, x := range fabric.AllSettings {
		if x == s && i > 0 {
			return fabric.AllSettings[i-1]
		}
	}
	return s
}

func next(s fabric.Setting) fabric.Setting {
	for i, x := range fabric.AllSettings {
		if x == s && i+1 < len(fabric.AllSettings) {
			return fabric.AllSettings[i+1]
		}
	}
	return s
}

// SensorDue reports whether the temperature/humidity sensor should be read.
// A failed read leaves the timer alone so the next tick tries again.
func (c *Controller) SensorDue(now time.Time) bool {
	if !c.settings.Enabled(fabric.SettingSensor) {
		return false
	}
	return now.Sub(c.dhtRead.Time) >= c.settings.IntervalDuration(fabric.SettingSensor)
}

// RecordReading stores a successful read and returns the requests to enqueue.
func (c *Controller) RecordReading(r dht.Reading, now time.Time) []fabric.PublishRequest {
	c.counts.Readings++
	c.values.Temperature = r.Temperature
	c.values.Humidity = r.Humidity
	c.dhtRead.Reset(now)

	var reqs []fabric.PublishRequest
	reqs = c.publish(reqs, fabric.TopicTemperature, r.Temperature)
	reqs = c.publish(reqs, fabric.TopicHumidity, r.Humidity)
	return reqs
}

// RecordReadFailure counts a read that failed every attempt.
func (c *Controller) RecordReadFailure() {
	c.counts.ReadFailures++
}

// HandleAlert records a motion or contact detection.
func (c *Controller) HandleAlert(a fabric.Alert, now time.Time) []fabric.PublishRequest {
	c.counts.Alerts++
	c.setLevel(a, 1, now)
	return c.publish(nil, a.Topic(), 1)
}

// HandleOutcome records the session manager's report for one send.
func (c *Controller) HandleOutcome(o fabric.Outcome, now time.Time) {
	s := &c.sends[o.Topic]
	if o.OK() {
		c.counts.Sent++
		s.status = SendSent
	} else {
		c.counts.SendErrors++
		s.status = SendError
	}
	s.Reset(now)
}

// Tick performs the periodic housekeeping. Leveled sensors that stayed
// quiet for their interval plus IdleGrace are reported back at rest, and
// highlights and send statuses older than StatusHold are cleared.
func (c *Controller) Tick(now time.Time) []fabric.PublishRequest {
	if c.settings.Enabled(fabric.SettingSensor) {
		expire(&c.dhtRead, now)
	}

	var reqs []fabric.PublishRequest
	for _, a := range []fabric.Alert{fabric.AlertMotion, fabric.AlertContact} {
		if !c.settings.Enabled(a.Setting()) {
			continue
		}
		t := c.readTracker(a)
		if now.Sub(t.Time) >= c.settings.IntervalDuration(a.Setting())+IdleGrace {
			c.setLevel(a, 0, now)
			reqs = c.publish(reqs, a.Topic(), 0)
			continue
		}
		expire(t, now)
	}

	for i := range c.sends {
		s := &c.sends[i]
		if expire(&s.Tracker, now) && s.status != SendPending {
			s.status = SendIdle
		}
	}
	return reqs
}

// expire marks t handled once StatusHold has passed and reports whether
// it did so on this call.
func expire(t *Tracker, now time.Time) bool {
	if t.Handled || now.Sub(t.Time) < StatusHold {
		return false
	}
	t.Handled = true
	return true
}

func (c *Controller) readTracker(a fabric.Alert) *Tracker {
	if a == fabric.AlertContact {
		return &c.contactRead
	}
	return &c.motionRead
}

func (c *Controller) setLevel(a fabric.Alert, v uint8, now time.Time) {
	if a == fabric.AlertContact {
		c.values.Contact = v
	} else {
		c.values.Motion = v
	}
	c.readTracker(a).Reset(now)
}

// publish appends a request for topic when publishing is enabled.
func (c *Controller) publish(reqs []fabric.PublishRequest, topic fabric.Topic, v uint8) []fabric.PublishRequest {
	if !c.settings.Enabled(fabric.SettingPublishing) {
		return reqs
	}
	c.sends[topic].status = SendPending
	return append(reqs, fabric.PublishRequest{Topic: topic, Value: v})
}

func (c *Controller) value(t fabric.Topic) uint8 {
	switch t {
	case fabric.TopicTemperature:
		return c.values.Temperature
	case fabric.TopicHumidity:
		return c.values.Humidity
	case fabric.TopicMotion:
		return c.values.Motion
	case fabric.TopicContact:
		return c.values.Contact
	}
	return Unknown
}

func (c *Controller) freshness(t fabric.Topic) *Tracker {
	switch t {
	case fabric.TopicMotion:
		return &c.motionRead
	case fabric.TopicContact:
		return &c.contactRead
	}
	return &c.dhtRead
}

// View returns a copy of the state for display.
func (c *Controller) View() View {
	v := View{
		Mode:      c.mode,
		Selection: c.selection,
		Counts:    c.counts,
	}
	if c.counts.Readings > 0 {
		v.LastRead = c.dhtRead.Time
	}
	for _, t := range fabric.Topics {
		v.Topics = append(v.Topics, TopicView{
			Topic:   t,
			Value:   c.value(t),
			Enabled: c.settings.Enabled(topicSettings[t]),
			Fresh:   !c.freshness(t).Handled,
			Send:    c.sends[t].status,
		})
	}
	return v
}
