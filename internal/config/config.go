// Package config loads the daemon configuration. Values come from the
// built-in defaults, then an optional YAML file, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/sensor-node/internal/fabric"
	"github.com/sweeney/sensor-node/internal/gpio"
	"github.com/sweeney/sensor-node/internal/mqtt"
)

// DefaultBroker is used when neither the file nor a flag names one.
const DefaultBroker = "tcp://192.168.1.200:1883"

// ErrInvalid marks a configuration that failed validation.
var ErrInvalid = errors.New("config: invalid")

// Pins holds the GPIO line offsets on the chip.
type Pins struct {
	ButtonA int `yaml:"button_a"`
	ButtonB int `yaml:"button_b"`
	ButtonC int `yaml:"button_c"`
	ButtonD int `yaml:"button_d"`
	Motion  int `yaml:"motion"`
	Contact int `yaml:"contact"`
	DHT     int `yaml:"dht"`
}

// Source is the start-up state of one switchable source.
type Source struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"`
}

// Settings seeds the runtime settings. The menu changes them afterwards;
// nothing is written back.
type Settings struct {
	Sensor     Source `yaml:"sensor"`
	Motion     Source `yaml:"motion"`
	Contact    Source `yaml:"contact"`
	Publishing bool   `yaml:"publishing"`
}

// Config is the complete daemon configuration.
type Config struct {
	Broker   string   `yaml:"broker"`
	Backend  string   `yaml:"backend"`
	ClientID string   `yaml:"client_id"`
	HTTPAddr string   `yaml:"http"`
	Chip     string   `yaml:"chip"`
	Pins     Pins     `yaml:"pins"`
	Settings Settings `yaml:"settings"`

	// ReadOnce reads the sensor a single time, prints it and exits.
	ReadOnce bool `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	on := Source{Enabled: true, Interval: int(fabric.MinInterval)}
	return &Config{
		Broker:   DefaultBroker,
		Backend:  mqtt.BackendNative,
		ClientID: mqtt.ClientID,
		HTTPAddr: ":80",
		Chip:     gpio.DefaultChip,
		Pins: Pins{
			ButtonA: gpio.DefaultPinButtonA,
			ButtonB: gpio.DefaultPinButtonB,
			ButtonC: gpio.DefaultPinButtonC,
			ButtonD: gpio.DefaultPinButtonD,
			Motion:  gpio.DefaultPinMotion,
			Contact: gpio.DefaultPinContact,
			DHT:     gpio.DefaultPinDHT,
		},
		Settings: Settings{
			Sensor:     on,
			Motion:     on,
			Contact:    on,
			Publishing: true,
		},
	}
}

// Load reads a YAML file over the defaults. Environment variables in the
// file are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse builds the configuration from command-line arguments (without the
// program name). Only flags given explicitly override the file.
func Parse(name string, args []string, output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	path := fs.String("config", "", "YAML config file (optional)")
	f := Default()
	fs.StringVar(&f.Broker, "broker", f.Broker, "MQTT broker address")
	fs.StringVar(&f.Backend, "backend", f.Backend, `MQTT client backend ("native", "paho" or "v5")`)
	fs.StringVar(&f.ClientID, "client-id", f.ClientID, "MQTT client identifier")
	fs.StringVar(&f.HTTPAddr, "http", f.HTTPAddr, "HTTP status address (empty to disable)")
	fs.StringVar(&f.Chip, "chip", f.Chip, "GPIO chip name")
	fs.IntVar(&f.Pins.ButtonA, "pin-a", f.Pins.ButtonA, "line offset for button A")
	fs.IntVar(&f.Pins.ButtonB, "pin-b", f.Pins.ButtonB, "line offset for button B")
	fs.IntVar(&f.Pins.ButtonC, "pin-c", f.Pins.ButtonC, "line offset for button C")
	fs.IntVar(&f.Pins.ButtonD, "pin-d", f.Pins.ButtonD, "line offset for button D")
	fs.IntVar(&f.Pins.Motion, "pin-motion", f.Pins.Motion, "line offset for the motion sensor")
	fs.IntVar(&f.Pins.Contact, "pin-contact", f.Pins.Contact, "line offset for the contact sensor")
	fs.IntVar(&f.Pins.DHT, "pin-dht", f.Pins.DHT, "line offset for the DHT data wire")
	fs.IntVar(&f.Settings.Sensor.Interval, "sensor-interval", f.Settings.Sensor.Interval, "seconds between temperature/humidity reads")
	fs.IntVar(&f.Settings.Motion.Interval, "motion-interval", f.Settings.Motion.Interval, "seconds the motion sensor rests after firing")
	fs.IntVar(&f.Settings.Contact.Interval, "contact-interval", f.Settings.Contact.Interval, "seconds the contact sensor rests after firing")
	fs.BoolVar(&f.Settings.Publishing, "publishing", f.Settings.Publishing, "publish to the broker at start-up")
	fs.BoolVar(&f.ReadOnce, "read-once", false, "read the sensor once, print it and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *path != "" {
		loaded, err := Load(*path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrides := map[string]func(){
		"broker":           func() { cfg.Broker = f.Broker },
		"backend":          func() { cfg.Backend = f.Backend },
		"client-id":        func() { cfg.ClientID = f.ClientID },
		"http":             func() { cfg.HTTPAddr = f.HTTPAddr },
		"chip":             func() { cfg.Chip = f.Chip },
		"pin-a":            func() { cfg.Pins.ButtonA = f.Pins.ButtonA },
		"pin-b":            func() { cfg.Pins.ButtonB = f.Pins.ButtonB },
		"pin-c":            func() { cfg.Pins.ButtonC = f.Pins.ButtonC },
		"pin-d":            func() { cfg.Pins.ButtonD = f.Pins.ButtonD },
		"pin-motion":       func() { cfg.Pins.Motion = f.Pins.Motion },
		"pin-contact":      func() { cfg.Pins.Contact = f.Pins.Contact },
		"pin-dht":          func() { cfg.Pins.DHT = f.Pins.DHT },
		"sensor-interval":  func() { cfg.Settings.Sensor.Interval = f.Settings.Sensor.Interval },
		"motion-interval":  func() { cfg.Settings.Motion.Interval = f.Settings.Motion.Interval },
		"contact-interval": func() { cfg.Settings.Contact.Interval = f.Settings.Contact.Interval },
		"publishing":       func() { cfg.Settings.Publishing = f.Settings.Publishing },
		"read-once":        func() { cfg.ReadOnce = f.ReadOnce },
	}
	fs.Visit(func(fl *flag.Flag) {
		if apply, ok := overrides[fl.Name]; ok {
			apply()
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: broker %q", ErrInvalid, c.Broker)
	}
	switch c.Backend {
	case mqtt.BackendNative, mqtt.BackendPaho, mqtt.BackendV5:
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalid, c.Backend)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: empty client id", ErrInvalid)
	}
	if c.Chip == "" {
		return fmt.Errorf("%w: empty gpio chip", ErrInvalid)
	}

	seen := make(map[int]string)
	for _, p := range []struct {
		name   string
		offset int
	}{
		{"button_a", c.Pins.ButtonA},
		{"button_b", c.Pins.ButtonB},
		{"button_c", c.Pins.ButtonC},
		{"button_d", c.Pins.ButtonD},
		{"motion", c.Pins.Motion},
		{"contact", c.Pins.Contact},
		{"dht", c.Pins.DHT},
	} {
		if p.offset < 0 {
			return fmt.Errorf("%w: pin %s: negative offset %d", ErrInvalid, p.name, p.offset)
		}
		if other, dup := seen[p.offset]; dup {
			return fmt.Errorf("%w: pins %s and %s share offset %d", ErrInvalid, other, p.name, p.offset)
		}
		seen[p.offset] = p.name
	}

	for _, s := range []struct {
		name     string
		interval int
	}{
		{"sensor", c.Settings.Sensor.Interval},
		{"motion", c.Settings.Motion.Interval},
		{"contact", c.Settings.Contact.Interval},
	} {
		if s.interval < int(fabric.MinInterval) || s.interval > int(fabric.MaxInterval) {
			return fmt.Errorf("%w: %s interval %d outside [%d, %d]",
				ErrInvalid, s.name, s.interval, fabric.MinInterval, fabric.MaxInterval)
		}
	}
	return nil
}

// Seed copies the start-up settings into s. The config must be valid.
func (c *Config) Seed(s *fabric.Settings) error {
	for st, src := range map[fabric.Setting]Source{
		fabric.SettingSensor:  c.Settings.Sensor,
		fabric.SettingMotion:  c.Settings.Motion,
		fabric.SettingContact: c.Settings.Contact,
	} {
		s.SetEnabled(st, src.Enabled)
		if src.Interval < 0 || src.Interval > 255 {
			return fmt.Errorf("seed %s: %w", st, fabric.ErrIntervalRange)
		}
		if err := s.SetInterval(st, uint8(src.Interval)); err != nil {
			return fmt.Errorf("seed %s: %w", st, err)
		}
	}
	s.SetEnabled(fabric.SettingPublishing, c.Settings.Publishing)
	return nil
}
