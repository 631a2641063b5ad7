// Package status provides a thread-safe status tracker for the sensor-node daemon.
// It stands in for the node's screen and is read by the HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sensor-node/internal/fabric"
	"github.com/sweeney/sensor-node/internal/logic"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Broker   string
	Backend  string
	ClientID string
	HTTPAddr string
	Chip     string
}

// SettingView is one runtime setting as read at snapshot time.
type SettingView struct {
	Setting     fabric.Setting
	Enabled     bool
	HasInterval bool
	Interval    uint8
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	View      logic.View
	Settings  []SettingView
	Session   string
	StartTime time.Time
	Now       time.Time
	Network   *NetworkInfo
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Connected reports whether the broker session was up.
func (s Snapshot) Connected() bool {
	return s.Session == "CONNECTED"
}

// Tracker holds mutable daemon state behind an RWMutex. Runtime settings
// and the session state are read live when a snapshot is taken.
type Tracker struct {
	settings *fabric.Settings

	mu      sync.RWMutex
	snap    Snapshot
	session func() string
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config, settings *fabric.Settings) *Tracker {
	return &Tracker{
		settings: settings,
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Session:   "DISCONNECTED",
		},
	}
}

// Update stores the orchestrator's latest view.
// Called from the orchestrator after every handled event.
func (t *Tracker) Update(v logic.View) {
	t.mu.Lock()
	t.snap.View = v
	t.mu.Unlock()
}

// SetSessionSource registers the function reporting the broker session state.
func (t *Tracker) SetSessionSource(fn func() string) {
	t.mu.Lock()
	t.session = fn
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	session := t.session
	t.mu.RUnlock()

	s.View.Topics = append([]logic.TopicView(nil), s.View.Topics...)
	if session != nil {
		s.Session = session()
	}
	if t.settings != nil {
		for _, st := range fabric.AllSettings {
			sv := SettingView{Setting: st, Enabled: t.settings.Enabled(st), HasInterval: st.HasInterval()}
			if sv.HasInterval {
				sv.Interval = t.settings.Interval(st)
			}
			s.Settings = append(s.Settings, sv)
		}
	}
	s.Now = time.Now()
	return s
}
