package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/sensor-node/internal/dht"
	"github.com/sweeney/sensor-node/internal/fabric"
	"github.com/sweeney/sensor-node/internal/gpio"
	"github.com/sweeney/sensor-node/internal/metrics"
	"github.com/sweeney/sensor-node/internal/mqtt"
	"github.com/sweeney/sensor-node/internal/node"
	"github.com/sweeney/sensor-node/internal/status"
	"github.com/sweeney/sensor-node/internal/web"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")

	info := readNetworkInfo()
	if info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" {
		t.Errorf("Type: got %q, want empty", info.Type)
	}
	if info.IP != "" {
		t.Errorf("IP: got %q, want empty", info.IP)
	}
}

// --- daemon tests ---

type staticSensor struct{ r dht.Reading }

func (s staticSensor) ReadWithRetry(context.Context, int) (dht.Reading, error) { return s.r, nil }

type testDaemon struct {
	d       *daemon
	dialer  *mqtt.FakeDialer
	metrics *metrics.Metrics
	tracker *status.Tracker
}

// newTestDaemon wires the real tasks to fakes. All inputs share one virtual
// clock; only the motion line has activity.
func newTestDaemon(t *testing.T, motionEdges ...gpio.Edge) *testDaemon {
	t.Helper()
	clock := &gpio.VirtualClock{}
	l := &lines{
		motion:  gpio.NewFakeInput(clock, motionEdges...),
		contact: gpio.NewFakeInput(clock),
	}
	for i := range l.buttons {
		l.buttons[i] = gpio.NewFakeInput(clock)
	}

	fab := fabric.New()
	settings := fabric.NewSettings()
	m := metrics.New()
	dialer := mqtt.NewFakeDialer()
	manager := mqtt.NewManager(dialer, fab, settings,
		mqtt.WithStats(m),
		mqtt.WithTiming(mqtt.Timing{Tick: 5 * time.Millisecond, ReceiveWait: 5 * time.Millisecond}),
	)
	tracker := status.NewTracker(time.Now(), status.Config{Broker: "tcp://broker:1883"}, settings)
	tracker.SetSessionSource(func() string { return manager.State().String() })

	orch := node.New(fab, settings, staticSensor{dht.Reading{Temperature: 20, Humidity: 50}},
		node.WithReporter(tracker),
		node.WithObserver(m),
	)

	return &testDaemon{
		d: &daemon{
			fab:      fab,
			settings: settings,
			lines:    l,
			sleep:    clock.Sleep,
			manager:  manager,
			orch:     orch,
			tick:     make(chan time.Time),
		},
		dialer:  dialer,
		metrics: m,
		tracker: tracker,
	}
}

func (td *testDaemon) start(t *testing.T) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- td.d.run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("daemon did not stop")
			return nil
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func delivered(d *mqtt.FakeDialer, topic, payload string) bool {
	for _, p := range d.Delivered() {
		if p.Topic == topic && p.Payload == payload {
			return true
		}
	}
	return false
}

func TestDaemonPublishesMotion(t *testing.T) {
	td := newTestDaemon(t,
		gpio.Edge{At: 100 * time.Millisecond, Active: true},
		gpio.Edge{At: time.Second, Active: false},
	)
	stop := td.start(t)

	waitFor(t, "motion publish", func() bool { return delivered(td.dialer, "esp32/motion", "1") })
	waitFor(t, "connected session", func() bool { return td.tracker.Snapshot().Connected() })

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestDaemonStopsCleanlyWithoutActivity(t *testing.T) {
	td := newTestDaemon(t)
	stop := td.start(t)

	waitFor(t, "broker dial", func() bool { return td.dialer.Dials() > 0 })

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := len(td.dialer.Delivered()); n != 0 {
		t.Errorf("expected no publishes, got %d", n)
	}
}

func TestDaemonServesStatus(t *testing.T) {
	td := newTestDaemon(t)
	srv := web.New("127.0.0.1:0", td.tracker, td.metrics.Handler())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	stop := td.start(t)
	waitFor(t, "connected session", func() bool { return td.tracker.Snapshot().Connected() })

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "sensor_node_mqtt_connect_attempts_total") {
		t.Errorf("metrics missing connect counter:\n%s", buf.String())
	}

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}
}
