package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/heating-control/internal/status"
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
	"temp": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.1f°C", *v)
	},
	"stateClass": func(s string) string {
		switch s {
		case "ON":
			return "on"
		case "OFF":
			return "off"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Heating Control</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.fault, .no_data { color: red; }
.window_open { color: steelblue; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Heating Control<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Boiler</h2>
<table>
<tr><th>Boiler</th><td id="boiler" class="{{if .BoilerActive}}on{{else}}off{{end}}">{{if .BoilerActive}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Outside</th><td id="outside">{{temp .OutsideTemperature}}</td></tr>
<tr><th>Window detection</th><td id="window-detection">{{if .WindowDetection}}enabled{{else}}disabled{{end}}</td></tr>
</table>

<h2>Zones</h2>
<table>
<tr><th>Zone</th><th>Temp</th><th>Setpoint</th><th>Duty</th><th>Pump</th><th>Status</th><th>Cycles/h</th></tr>
{{range .ZoneRows}}<tr id="zone-{{.Name}}">
<td>{{.Name}}</td>
<td class="temp">{{temp .Temperature}}</td>
<td class="setpoint">{{printf "%.1f" .Setpoint}}°C</td>
<td class="duty">{{.DutyPercent}}%</td>
<td class="pump {{stateClass .Pump}}">{{.Pump}}</td>
<td class="status {{.Status}}">{{.Status}}</td>
<td class="cycles">{{.CyclesThisHour}}</td>
</tr>
{{else}}<tr><td colspan="7">no control tick yet</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td id="mqtt" class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Control ticks</th><td id="ticks">{{.Ticks}}</td></tr>
<tr><th>Control interval</th><td>{{.Config.ControlInterval}}</td></tr>
<tr><th>Heartbeat</th><td>{{.Config.HeartbeatInterval}} on {{.Config.HeartbeatTopic}}</td></tr>
<tr><th>Boiler relay</th><td>{{if lt .Config.BoilerGPIOPin 0}}MQTT only{{else}}GPIO {{.Config.BoilerGPIOPin}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/api/status">JSON</a> · <a href="/api/events">Events</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function text(el, v) { if (el) { el.textContent = v; } }
  function temp(v) { return v === null || v === undefined ? "-" : v.toFixed(1) + "°C"; }

  function apply(s) {
    var boiler = document.getElementById("boiler");
    text(boiler, s.boiler_active ? "ON" : "OFF");
    boiler.className = s.boiler_active ? "on" : "off";
    text(document.getElementById("outside"), temp(s.outside_temperature));
    text(document.getElementById("ticks"), s.ticks);
    (s.zones || []).forEach(function(z) {
      var row = document.getElementById("zone-" + z.name);
      if (!row) { return; }
      text(row.querySelector(".temp"), temp(z.temperature));
      text(row.querySelector(".setpoint"), z.setpoint.toFixed(1) + "°C");
      text(row.querySelector(".duty"), z.duty_percent + "%");
      var pump = row.querySelector(".pump");
      text(pump, z.pump);
      pump.className = "pump " + (z.pump === "ON" ? "on" : z.pump === "OFF" ? "off" : "unknown");
      var st = row.querySelector(".status");
      text(st, z.status);
      st.className = "status " + z.status;
      text(row.querySelector(".cycles"), z.cycles_this_hour);
    });
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws?interval=5s");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type === "status") { apply(msg.data); }
      } catch (e) {}
    };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	rows := make([]status.ZoneJSON, 0, len(snap.Zones))
	for _, z := range snap.Zones {
		rows = append(rows, status.NewZoneJSON(z))
	}
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		ZoneRows []status.ZoneJSON
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		ZoneRows: rows,
	}
	return indexTmpl.Execute(w, data)
}
