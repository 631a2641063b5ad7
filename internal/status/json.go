package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sensor-node/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Mode          string                 `json:"mode"`
	Selection     string                 `json:"selection,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	StartTime     string                 `json:"start_time"`
	Timestamp     string                 `json:"timestamp"`
	LastRead      string                 `json:"last_read,omitempty"`
	Readings      map[string]ReadingJSON `json:"readings"`
	Settings      map[string]SettingJSON `json:"settings"`
	MQTT          MQTTStatus             `json:"mqtt"`
	Counts        CountsJSON             `json:"counts"`
	Network       *NetworkJSON           `json:"network,omitempty"`
	Config        ConfigJSON             `json:"config"`
}

// ReadingJSON is one topic's value and send status. Value is null until
// the first reading.
type ReadingJSON struct {
	Topic   string `json:"topic"`
	Value   *uint8 `json:"value"`
	Enabled bool   `json:"enabled"`
	Send    string `json:"send,omitempty"`
}

// SettingJSON is one runtime setting.
type SettingJSON struct {
	Enabled         bool   `json:"enabled"`
	IntervalSeconds *uint8 `json:"interval_seconds,omitempty"`
}

// MQTTStatus reports MQTT session state.
type MQTTStatus struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Backend   string `json:"backend"`
}

// CountsJSON is the JSON representation of activity counts.
type CountsJSON struct {
	Readings     int `json:"readings"`
	ReadFailures int `json:"read_failures"`
	Alerts       int `json:"alerts"`
	Sent         int `json:"sent"`
	SendErrors   int `json:"send_errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker   string `json:"broker"`
	Backend  string `json:"backend"`
	ClientID string `json:"client_id"`
	HTTPAddr string `json:"http_addr"`
	Chip     string `json:"gpio_chip"`
}

func buildInner(snap Snapshot) StatusInner {
	mode := string(snap.View.Mode)
	if mode == "" {
		mode = string(logic.ModeDisplaying)
	}

	inner := StatusInner{
		Mode:          mode,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Readings:      make(map[string]ReadingJSON, len(snap.View.Topics)),
		Settings:      make(map[string]SettingJSON, len(snap.Settings)),
		MQTT: MQTTStatus{
			State:     snap.Session,
			Connected: snap.Connected(),
			Broker:    snap.Config.Broker,
			Backend:   snap.Config.Backend,
		},
		Counts: CountsJSON{
			Readings:     snap.View.Counts.Readings,
			ReadFailures: snap.View.Counts.ReadFailures,
			Alerts:       snap.View.Counts.Alerts,
			Sent:         snap.View.Counts.Sent,
			SendErrors:   snap.View.Counts.SendErrors,
		},
		Config: ConfigJSON{
			Broker:   snap.Config.Broker,
			Backend:  snap.Config.Backend,
			ClientID: snap.Config.ClientID,
			HTTPAddr: snap.Config.HTTPAddr,
			Chip:     snap.Config.Chip,
		},
	}
	if snap.View.Mode.Setup() {
		inner.Selection = snap.View.Selection.String()
	}
	if !snap.View.LastRead.IsZero() {
		inner.LastRead = snap.View.LastRead.UTC().Format(time.RFC3339)
	}

	for _, tv := range snap.View.Topics {
		r := ReadingJSON{
			Topic:   tv.Topic.String(),
			Enabled: tv.Enabled,
			Send:    string(tv.Send),
		}
		if tv.Value != logic.Unknown {
			v := tv.Value
			r.Value = &v
		}
		inner.Readings[tv.Topic.Name()] = r
	}

	for _, sv := range snap.Settings {
		sj := SettingJSON{Enabled: sv.Enabled}
		if sv.HasInterval {
			iv := sv.Interval
			sj.IntervalSeconds = &iv
		}
		inner.Settings[sv.Setting.String()] = sj
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
