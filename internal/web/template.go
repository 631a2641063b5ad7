package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sensor-node/internal/logic"
	"github.com/sweeney/sensor-node/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"value": formatValue,
}).Parse(indexHTML))

// formatValue renders a reading the way the node's screen did.
func formatValue(tv logic.TopicView) string {
	if !tv.Enabled {
		return "OFF"
	}
	if tv.Value == logic.Unknown {
		return "???"
	}
	switch tv.Topic.Name() {
	case "temperature":
		return fmt.Sprintf("%dC", tv.Value)
	case "humidity":
		return fmt.Sprintf("%d%%", tv.Value)
	}
	if tv.Value != 0 {
		return "YES"
	}
	return "NO"
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Sensor Node</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.fresh { background: #222; color: #fff; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.SENT { color: green; }
.ERROR { color: red; }
.SENDING { color: orange; }
</style>
</head>
<body>
<h1>Sensor Node</h1>

<h2>Readings</h2>
<table>
{{range .View.Topics}}<tr><th>{{.Topic.Name}}</th><td class="{{if not .Enabled}}off{{else if .Fresh}}fresh{{end}}">{{value .}}</td><td class="{{.Send}}">{{.Send}}</td></tr>
{{end}}</table>

<h2>Settings{{if .View.Mode.Setup}} ({{.View.Mode}}: {{.View.Selection}}){{end}}</h2>
<table>
{{range .Settings}}<tr><th>{{.Setting}}</th><td>{{if not .Enabled}}OFF{{else if .HasInterval}}{{.Interval}}s{{else}}ON{{end}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .Connected}}connected{{else}}disconnected{{end}}">{{.Session}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}} ({{.Config.Backend}})</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Readings</th><td>{{.View.Counts.Readings}}</td></tr>
<tr><th>Read failures</th><td>{{.View.Counts.ReadFailures}}</td></tr>
<tr><th>Alerts</th><td>{{.View.Counts.Alerts}}</td></tr>
<tr><th>Sent</th><td>{{.View.Counts.Sent}}</td></tr>
<tr><th>Send errors</th><td>{{.View.Counts.SendErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.Chip}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
