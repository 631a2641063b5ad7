// Package node runs the orchestrator: the single consumer of button, alert
// and outcome events, and the owner of the scheduled sensor reads.
package node

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/sensor-node/internal/dht"
	"github.com/sweeney/sensor-node/internal/fabric"
	"github.com/sweeney/sensor-node/internal/logic"
)

// TickInterval paces the periodic work while nothing else is pending.
const TickInterval = 100 * time.Millisecond

// ReadAttempts is how many times a scheduled read is tried.
const ReadAttempts = 3

// Sensor is the temperature/humidity source.
type Sensor interface {
	ReadWithRetry(ctx context.Context, attempts int) (dht.Reading, error)
}

// Reporter receives the state after every handled event.
type Reporter interface {
	Update(v logic.View)
}

// Observer counts orchestrator activity.
type Observer interface {
	ReadCompleted(err error)
	Alert(a fabric.Alert)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReporter sets where state is published after each event.
func WithReporter(r Reporter) Option { return func(o *Orchestrator) { o.reporter = r } }

// WithObserver sets the activity counter.
func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.observer = obs } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// Orchestrator consumes events in priority order: buttons, then alerts,
// then outcomes, then the tick. Not safe for concurrent use; Run owns it.
type Orchestrator struct {
	fab      *fabric.Fabric
	settings *fabric.Settings
	sensor   Sensor
	reporter Reporter
	observer Observer
	now      func() time.Time
	ctrl     *logic.Controller
}

// New creates an orchestrator.
func New(fab *fabric.Fabric, settings *fabric.Settings, sensor Sensor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fab:      fab,
		settings: settings,
		sensor:   sensor,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.ctrl = logic.NewController(settings, o.now())
	return o
}

// Mode returns the current operator mode.
func (o *Orchestrator) Mode() logic.Mode { return o.ctrl.Mode() }

// View returns the current state.
func (o *Orchestrator) View() logic.View { return o.ctrl.View() }

// Run handles events until ctx is done. tick drives the periodic work,
// normally a time.Ticker at TickInterval.
func (o *Orchestrator) Run(ctx context.Context, tick <-chan time.Time) error {
	log.Printf("node: orchestrator started")
	o.report()
	for {
		if err := o.step(ctx, tick); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// step handles exactly one event.
func (o *Orchestrator) step(ctx context.Context, tick <-chan time.Time) error {
	buttons := o.fab.Buttons.C()

	// menu modes leave alerts and outcomes queued
	if o.ctrl.Mode().Setup() {
		select {
		case b := <-buttons:
			o.button(b)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	alerts := o.fab.Alerts.C()
	outcomes := o.fab.Outcomes.C()

	select {
	case b := <-buttons:
		o.button(b)
		return nil
	default:
	}
	select {
	case a := <-alerts:
		return o.alert(ctx, a)
	default:
	}
	select {
	case oc := <-outcomes:
		o.outcome(oc)
		return nil
	default:
	}

	select {
	case b := <-buttons:
		o.button(b)
		return nil
	case a := <-alerts:
		return o.alert(ctx, a)
	case oc := <-outcomes:
		o.outcome(oc)
		return nil
	case <-tick:
		return o.tick(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) button(b fabric.Button) {
	if err := o.ctrl.HandleButton(b); err != nil {
		log.Printf("node: button %s: %v", b, err)
	}
	log.Printf("node: button %s, mode %s, selection %s", b, o.ctrl.Mode(), o.ctrl.Selection())
	o.report()
}

func (o *Orchestrator) alert(ctx context.Context, a fabric.Alert) error {
	if o.observer != nil {
		o.observer.Alert(a)
	}
	log.Printf("node: %s detected", a)
	reqs := o.ctrl.HandleAlert(a, o.now())
	o.report()
	return o.enqueue(ctx, reqs)
}

func (o *Orchestrator) outcome(oc fabric.Outcome) {
	if !oc.OK() {
		log.Printf("node: sending %s failed: %v", oc.Topic.Name(), oc.Err)
	}
	o.ctrl.HandleOutcome(oc, o.now())
	o.report()
}

func (o *Orchestrator) tick(ctx context.Context) error {
	if o.ctrl.SensorDue(o.now()) {
		r, err := o.sensor.ReadWithRetry(ctx, ReadAttempts)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if o.observer != nil {
			o.observer.ReadCompleted(err)
		}
		if err != nil {
			log.Printf("node: failed to read sensor: %v", err)
			o.ctrl.RecordReadFailure()
		} else {
			log.Printf("node: temperature %dC humidity %d%%", r.Temperature, r.Humidity)
			if err := o.enqueue(ctx, o.ctrl.RecordReading(r, o.now())); err != nil {
				return err
			}
		}
	}

	reqs := o.ctrl.Tick(o.now())
	o.report()
	return o.enqueue(ctx, reqs)
}

// enqueue hands requests to the session manager, waiting while its
// mailbox is full.
func (o *Orchestrator) enqueue(ctx context.Context, reqs []fabric.PublishRequest) error {
	for _, r := range reqs {
		if err := o.fab.Requests.Send(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) report() {
	if o.reporter != nil {
		o.reporter.Update(o.ctrl.View())
	}
}
