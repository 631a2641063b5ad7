package mqtt

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/sensor-node/internal/fabric"
)

// State is the session's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Timing holds the manager's intervals. Zero fields take the defaults.
type Timing struct {
	Tick           time.Duration
	KeepAliveIdle  time.Duration
	ReceiveWait    time.Duration
	DrainYield     time.Duration
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

func (t Timing) withDefaults() Timing {
	def := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&t.Tick, TickInterval)
	def(&t.KeepAliveIdle, KeepAliveIdle)
	def(&t.ReceiveWait, ReceiveWait)
	def(&t.DrainYield, DrainYield)
	def(&t.ConnectTimeout, ConnectTimeout)
	def(&t.OpTimeout, OpTimeout)
	return t
}

// Stats receives session events for observability.
type Stats interface {
	ConnectAttempt(err error)
	PublishAttempt(topic fabric.Topic, err error)
	KeepAlive(err error)
}

type noStats struct{}

func (noStats) ConnectAttempt(error)               {}
func (noStats) PublishAttempt(fabric.Topic, error) {}
func (noStats) KeepAlive(error)                    {}

// Option configures a Manager.
type Option func(*Manager)

// WithTiming overrides the manager's intervals.
func WithTiming(t Timing) Option { return func(m *Manager) { m.timing = t.withDefaults() } }

// WithStats sets the observability receiver.
func WithStats(s Stats) Option { return func(m *Manager) { m.stats = s } }

// WithClock replaces the time source and sleep used by the run loop.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(m *Manager) {
		m.now = now
		m.sleep = sleep
	}
}

// Manager is the session manager. Run owns all fields except state; it
// must be driven by a single goroutine.
type Manager struct {
	dialer   Dialer
	requests *fabric.Mailbox[fabric.PublishRequest]
	outcomes *fabric.Mailbox[fabric.Outcome]
	settings *fabric.Settings
	timing   Timing
	stats    Stats
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	state atomic.Int32

	// exactly one of conn and bufs holds the scratch buffers
	conn Conn
	bufs *Buffers

	cached        *fabric.PublishRequest
	errorNotified bool
	lastActivity  time.Time
	payload       [3]byte
}

// NewManager creates a disconnected manager reading requests from f and
// reporting outcomes to f.
func NewManager(dialer Dialer, f *fabric.Fabric, settings *fabric.Settings, opts ...Option) *Manager {
	m := &Manager{
		dialer:   dialer,
		requests: f.Requests,
		outcomes: f.Outcomes,
		settings: settings,
		timing:   Timing{}.withDefaults(),
		stats:    noStats{},
		now:      time.Now,
		sleep:    sleepCtx,
		bufs:     NewBuffers(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state. Safe for concurrent use.
func (m *Manager) State() State { return State(m.state.Load()) }

// IsConnected reports whether a session is established. Safe for concurrent use.
func (m *Manager) IsConnected() bool { return m.State() == StateConnected }

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// Connect drops any existing session, clears the scratch buffers and
// establishes a new session.
func (m *Manager) Connect(ctx context.Context) error {
	log.Printf("mqtt: connecting")
	m.setState(StateConnecting)

	bufs := m.reclaim()
	bufs.Zero()

	dctx, cancel := context.WithTimeout(ctx, m.timing.ConnectTimeout)
	defer cancel()
	conn, err := m.dialer.Dial(dctx, bufs)
	m.stats.ConnectAttempt(err)
	if err != nil {
		m.bufs = bufs
		m.setState(StateDisconnected)
		return err
	}

	m.conn = conn
	m.lastActivity = m.now()
	m.setState(StateConnected)
	log.Printf("mqtt: connected")
	return nil
}

// reclaim closes the current session, if any, and takes back the buffers.
func (m *Manager) reclaim() *Buffers {
	if m.conn != nil {
		if b := m.conn.Close(); b != nil {
			m.bufs = b
		}
		m.conn = nil
	}
	b := m.bufs
	m.bufs = nil
	if b == nil {
		b = NewBuffers()
	}
	return b
}

func (m *Manager) disconnect() {
	m.bufs = m.reclaim()
	m.setState(StateDisconnected)
}

// Run drives the session until ctx is done. It never gives up on the broker.
func (m *Manager) Run(ctx context.Context) error {
	log.Printf("mqtt: session manager started")
	defer m.disconnect()

	for {
		if m.sleep(ctx, m.timing.Tick) != nil {
			return nil
		}
		m.tick(ctx)
	}
}

// tick performs one pass: reconnect, keep-alive, then drain the queue.
func (m *Manager) tick(ctx context.Context) {
	if m.conn == nil {
		if err := m.Connect(ctx); err != nil {
			log.Printf("mqtt: unable to connect: %v, retrying", err)
			return
		}
	}

	if m.now().Sub(m.lastActivity) >= m.timing.KeepAliveIdle {
		pctx, cancel := context.WithTimeout(ctx, m.timing.OpTimeout)
		err := m.conn.Ping(pctx)
		cancel()
		m.stats.KeepAlive(err)
		if err != nil {
			log.Printf("mqtt: keep-alive failed: %v, reconnecting", err)
			m.disconnect()
			return
		}
		m.lastActivity = m.now()
	}

	if !m.settings.Enabled(fabric.SettingPublishing) {
		return
	}
	m.drain(ctx)
}

// drain publishes queued requests until the queue stays empty for
// ReceiveWait or a send fails. A failed request is cached and retried
// before anything newer.
func (m *Manager) drain(ctx context.Context) {
	for {
		req, ok := m.next(ctx)
		if !ok {
			return
		}
		log.Printf("mqtt: sending %s=%d, queue length: %d", req.Topic, req.Value, m.requests.Len())

		err := m.publish(ctx, req)
		m.stats.PublishAttempt(req.Topic, err)
		if err != nil {
			// one failure outcome per episode, not per retry
			if !m.errorNotified {
				m.errorNotified = true
				m.report(ctx, fabric.Outcome{Topic: req.Topic, Err: err})
			}
			log.Printf("mqtt: sending to %s failed: %v, caching the message and reconnecting", req.Topic, err)
			m.cached = &req
			m.disconnect()
			return
		}

		m.errorNotified = false
		m.report(ctx, fabric.Outcome{Topic: req.Topic})
		m.lastActivity = m.now()

		if m.sleep(ctx, m.timing.DrainYield) != nil {
			return
		}
	}
}

func (m *Manager) next(ctx context.Context) (fabric.PublishRequest, bool) {
	if m.cached != nil {
		req := *m.cached
		m.cached = nil
		return req, true
	}
	req, err := m.requests.RecvTimeout(ctx, m.timing.ReceiveWait)
	return req, err == nil
}

func (m *Manager) publish(ctx context.Context, req fabric.PublishRequest) error {
	pctx, cancel := context.WithTimeout(ctx, m.timing.OpTimeout)
	defer cancel()
	return m.conn.Publish(pctx, req.Topic.String(), FormatPayload(m.payload[:], req.Value))
}

func (m *Manager) report(ctx context.Context, o fabric.Outcome) {
	if err := m.outcomes.Send(ctx, o); err != nil {
		log.Printf("mqtt: dropping %s outcome: %v", o.Topic, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
