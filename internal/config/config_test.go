package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/sensor-node/internal/fabric"
	"github.com/sweeney/sensor-node/internal/gpio"
	"github.com/sweeney/sensor-node/internal/mqtt"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensor-node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, mqtt.ClientID, cfg.ClientID)
	assert.Equal(t, mqtt.BackendNative, cfg.Backend)
	assert.Equal(t, gpio.DefaultPinDHT, cfg.Pins.DHT)
	assert.True(t, cfg.Settings.Publishing)
}

func TestParseNoArgs(t *testing.T) {
	cfg, err := Parse("sensor-node", nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeFile(t, `
broker: tcp://100.64.0.8:1883
pins:
  dht: 4
settings:
  motion:
    enabled: false
    interval: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://100.64.0.8:1883", cfg.Broker)
	assert.Equal(t, 4, cfg.Pins.DHT)
	assert.Equal(t, gpio.DefaultPinButtonA, cfg.Pins.ButtonA)
	assert.False(t, cfg.Settings.Motion.Enabled)
	assert.Equal(t, 10, cfg.Settings.Motion.Interval)
	assert.True(t, cfg.Settings.Contact.Enabled)
	assert.Equal(t, mqtt.BackendNative, cfg.Backend)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SENSOR_BROKER", "tcp://broker.lan:1883")
	cfg, err := Load(writeFile(t, "broker: ${SENSOR_BROKER}\n"))
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker.lan:1883", cfg.Broker)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "pins: [1, 2\n"))
	assert.Error(t, err)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, `
broker: tcp://from-file:1883
backend: paho
settings:
  sensor:
    enabled: true
    interval: 12
`)
	cfg, err := Parse("sensor-node", []string{
		"-config", path,
		"-backend", "v5",
		"-pin-dht", "5",
		"-publishing=false",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "tcp://from-file:1883", cfg.Broker, "file value kept when the flag is absent")
	assert.Equal(t, "v5", cfg.Backend)
	assert.Equal(t, 5, cfg.Pins.DHT)
	assert.Equal(t, 12, cfg.Settings.Sensor.Interval)
	assert.False(t, cfg.Settings.Publishing)
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	_, err := Parse("sensor-node", []string{"-bogus"}, io.Discard)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty broker", func(c *Config) { c.Broker = "" }},
		{"broker without host", func(c *Config) { c.Broker = "localhost" }},
		{"unknown backend", func(c *Config) { c.Backend = "amqp" }},
		{"empty client id", func(c *Config) { c.ClientID = "" }},
		{"empty chip", func(c *Config) { c.Chip = "" }},
		{"negative pin", func(c *Config) { c.Pins.Motion = -1 }},
		{"shared pin", func(c *Config) { c.Pins.Contact = c.Pins.Motion }},
		{"interval too short", func(c *Config) { c.Settings.Sensor.Interval = 1 }},
		{"interval too long", func(c *Config) { c.Settings.Contact.Interval = 31 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestParseValidates(t *testing.T) {
	_, err := Parse("sensor-node", []string{"-motion-interval", "40"}, io.Discard)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSeed(t *testing.T) {
	cfg := Default()
	cfg.Settings.Sensor.Interval = 9
	cfg.Settings.Contact.Enabled = false
	cfg.Settings.Publishing = false

	s := fabric.NewSettings()
	require.NoError(t, cfg.Seed(s))

	assert.Equal(t, uint8(9), s.Interval(fabric.SettingSensor))
	assert.Equal(t, uint8(2), s.Interval(fabric.SettingMotion))
	assert.False(t, s.Enabled(fabric.SettingContact))
	assert.True(t, s.Enabled(fabric.SettingMotion))
	assert.False(t, s.Enabled(fabric.SettingPublishing))
}

func TestSeedRejectsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Settings.Motion.Interval = 300

	s := fabric.NewSettings()
	assert.ErrorIs(t, cfg.Seed(s), fabric.ErrIntervalRange)
}
