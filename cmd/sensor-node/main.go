// Command sensor-node reads a temperature/humidity sensor, a motion sensor,
// a door contact and four buttons, and publishes readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sensor-node/internal/config"
	"github.com/sweeney/sensor-node/internal/dht"
	"github.com/sweeney/sensor-node/internal/fabric"
	"github.com/sweeney/sensor-node/internal/gpio"
	"github.com/sweeney/sensor-node/internal/input"
	"github.com/sweeney/sensor-node/internal/metrics"
	"github.com/sweeney/sensor-node/internal/mqtt"
	"github.com/sweeney/sensor-node/internal/node"
	"github.com/sweeney/sensor-node/internal/status"
	"github.com/sweeney/sensor-node/internal/web"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Parse("sensor-node", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	chip, err := gpio.OpenChip(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	wire, err := chip.RequestWire(cfg.Pins.DHT)
	if err != nil {
		return fmt.Errorf("init dht wire: %w", err)
	}
	defer wire.Close()

	m := metrics.New()
	sensor := dht.New(wire, dht.WithErrorSink(m.ReadAttemptFailed))

	if cfg.ReadOnce {
		r, err := sensor.ReadWithRetry(ctx, node.ReadAttempts)
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Printf("temperature: %dC, humidity: %d%%\n", r.Temperature, r.Humidity)
		return nil
	}
	primeSensor(ctx, sensor)

	lines, err := requestLines(chip, cfg.Pins)
	if err != nil {
		return err
	}
	defer lines.close()

	settings := fabric.NewSettings()
	if err := cfg.Seed(settings); err != nil {
		return err
	}
	fab := fabric.New()

	dialer, err := mqtt.NewDialer(cfg.Backend, cfg.Broker, cfg.ClientID)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	manager := mqtt.NewManager(dialer, fab, settings, mqtt.WithStats(m))
	m.RegisterSessionState(manager.IsConnected)

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:   cfg.Broker,
		Backend:  cfg.Backend,
		ClientID: cfg.ClientID,
		HTTPAddr: cfg.HTTPAddr,
		Chip:     cfg.Chip,
	}, settings)
	tracker.SetSessionSource(func() string { return manager.State().String() })
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	orch := node.New(fab, settings, sensor,
		node.WithReporter(tracker),
		node.WithObserver(m),
	)

	ticker := time.NewTicker(node.TickInterval)
	defer ticker.Stop()

	d := &daemon{
		fab:      fab,
		settings: settings,
		lines:    lines,
		sleep:    dht.Sleep,
		manager:  manager,
		orch:     orch,
		tick:     ticker.C,
	}
	if cfg.HTTPAddr != "" {
		d.server = web.New(cfg.HTTPAddr, tracker, m.Handler())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: broker=%s backend=%s client=%s chip=%s", cfg.Broker, cfg.Backend, cfg.ClientID, cfg.Chip)
	err = d.run(ctx)
	log.Printf("shut down")
	return err
}

// primeSensor performs the throwaway read the sensor needs after power-up.
func primeSensor(ctx context.Context, s *dht.Sensor) {
	if _, err := s.Read(ctx); err != nil {
		log.Printf("dht: priming read: %v", err)
	}
}

// lines holds every debounced input.
type lines struct {
	buttons [4]gpio.Input
	motion  gpio.Input
	contact gpio.Input
}

func requestLines(chip *gpio.Chip, pins config.Pins) (*lines, error) {
	l := &lines{}
	buttonPins := [4]int{pins.ButtonA, pins.ButtonB, pins.ButtonC, pins.ButtonD}
	for i, pin := range buttonPins {
		in, err := chip.RequestInput(pin, true, true)
		if err != nil {
			l.close()
			return nil, fmt.Errorf("init button %s: %w", fabric.Buttons[i], err)
		}
		l.buttons[i] = in
	}

	motion, err := chip.RequestInput(pins.Motion, false, false)
	if err != nil {
		l.close()
		return nil, fmt.Errorf("init motion sensor: %w", err)
	}
	l.motion = motion

	contact, err := chip.RequestInput(pins.Contact, false, false)
	if err != nil {
		l.close()
		return nil, fmt.Errorf("init contact sensor: %w", err)
	}
	l.contact = contact
	return l, nil
}

func (l *lines) close() {
	for _, in := range append(l.buttons[:], l.motion, l.contact) {
		if in != nil {
			in.Close()
		}
	}
}

// daemon is the set of concurrent tasks that make up the node.
type daemon struct {
	fab      *fabric.Fabric
	settings *fabric.Settings
	lines    *lines
	sleep    input.SleepFunc
	manager  *mqtt.Manager
	orch     *node.Orchestrator
	tick     <-chan time.Time
	server   *web.Server // nil disables HTTP
}

// run starts every task and blocks until ctx is done or a task fails.
func (d *daemon) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	deb := input.NewDebouncer(d.sleep)

	for i, line := range d.lines.buttons {
		id, line := fabric.Buttons[i], line
		g.Go(func() error { return deb.Button(ctx, id, line, d.fab.Buttons) })
	}
	g.Go(func() error {
		return deb.Sensor(ctx, fabric.AlertMotion, d.lines.motion, d.settings, d.fab.Alerts)
	})
	g.Go(func() error {
		return deb.Sensor(ctx, fabric.AlertContact, d.lines.contact, d.settings, d.fab.Alerts)
	})
	g.Go(func() error { return d.manager.Run(ctx) })
	g.Go(func() error { return d.orch.Run(ctx, d.tick) })

	if d.server != nil {
		g.Go(func() error {
			if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return d.server.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
