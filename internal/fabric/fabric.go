// Package fabric is the event backbone shared by every task on the node:
// bounded mailboxes (one per event category) and the lock-free Settings that
// tasks consult between suspension points.
package fabric

import "fmt"

// Mailbox capacities.
const (
	ButtonCapacity  = 10
	AlertCapacity   = 1
	RequestCapacity = 20
	OutcomeCapacity = 20
)

// Button identifies one of the four momentary buttons.
type Button int

const (
	ButtonA Button = iota
	ButtonB
	ButtonC
	ButtonD
)

// Buttons lists every button in declaration order.
var Buttons = []Button{ButtonA, ButtonB, ButtonC, ButtonD}

func (b Button) String() string {
	switch b {
	case ButtonA:
		return "A"
	case ButtonB:
		return "B"
	case ButtonC:
		return "C"
	case ButtonD:
		return "D"
	}
	return fmt.Sprintf("Button(%d)", int(b))
}

// Alert identifies which leveled sensor fired.
type Alert int

const (
	AlertMotion Alert = iota
	AlertContact
)

func (a Alert) String() string {
	switch a {
	case AlertMotion:
		return "motion"
	case AlertContact:
		return "contact"
	}
	return fmt.Sprintf("Alert(%d)", int(a))
}

// Setting returns the Settings entry gating this alert source.
func (a Alert) Setting() Setting {
	if a == AlertContact {
		return SettingContact
	}
	return SettingMotion
}

// Topic returns the broker topic that carries this alert's level.
func (a Alert) Topic() Topic {
	if a == AlertContact {
		return TopicContact
	}
	return TopicMotion
}

// Topic is one of the fixed broker topics the node publishes to.
type Topic int

const (
	TopicTemperature Topic = iota
	TopicHumidity
	TopicMotion
	TopicContact
)

// Topics lists every topic in declaration order.
var Topics = []Topic{TopicTemperature, TopicHumidity, TopicMotion, TopicContact}

// String returns the wire topic name.
func (t Topic) String() string {
	switch t {
	case TopicTemperature:
		return "esp32/temperature"
	case TopicHumidity:
		return "esp32/humidity"
	case TopicMotion:
		return "esp32/motion"
	case TopicContact:
		return "esp32/contact"
	}
	return fmt.Sprintf("Topic(%d)", int(t))
}

// Name returns the short label used in logs and status output.
func (t Topic) Name() string {
	switch t {
	case TopicTemperature:
		return "temperature"
	case TopicHumidity:
		return "humidity"
	case TopicMotion:
		return "motion"
	case TopicContact:
		return "contact"
	}
	return "unknown"
}

// PublishRequest asks the session manager to publish one value.
type PublishRequest struct {
	Topic Topic
	Value uint8
}

// Outcome reports the result of one send attempt. Err is nil on success.
type Outcome struct {
	Topic Topic
	Err   error
}

// OK reports whether the send succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Fabric bundles the four mailboxes.
type Fabric struct {
	Buttons  *Mailbox[Button]
	Alerts   *Mailbox[Alert]
	Requests *Mailbox[PublishRequest]
	Outcomes *Mailbox[Outcome]
}

// New creates a Fabric with the standard capacities.
func New() *Fabric {
	return &Fabric{
		Buttons:  NewMailbox[Button](ButtonCapacity),
		Alerts:   NewMailbox[Alert](AlertCapacity),
		Requests: NewMailbox[PublishRequest](RequestCapacity),
		Outcomes: NewMailbox[Outcome](OutcomeCapacity),
	}
}
