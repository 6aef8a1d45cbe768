package mqtt

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/sweeney/heating-control/internal/logic"
)

// SwitchPayload is the Zigbee2MQTT switch command body.
type SwitchPayload struct {
	State string `json:"state"`
}

// BoilerActivePayload is the Home Assistant boiler state body.
type BoilerActivePayload struct {
	State bool `json:"state"`
}

// AlertPayload is the body of an alert event.
type AlertPayload struct {
	AlertID   string `json:"alert_id"`
	Severity  string `json:"severity"`
	Zone      string `json:"zone,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HeartbeatPayload is the liveness signal body.
type HeartbeatPayload struct {
	Timestamp     string `json:"timestamp"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	BoilerActive  bool   `json:"boiler_active"`
	Beat          int    `json:"beat"`
}

// ThermalPayload is the hourly per-zone thermal summary.
type ThermalPayload struct {
	Timestamp       string  `json:"timestamp"`
	AvgHeatLossRate float64 `json:"avg_heat_loss_rate"`
	AvgHeatGainRate float64 `json:"avg_heat_gain_rate"`
	Insulation      string  `json:"insulation_rating"`
	HeatingSamples  int     `json:"heating_samples"`
	CoolingSamples  int     `json:"cooling_samples"`
}

// SwitchCommand returns the command message that drives a Zigbee2MQTT switch
// whose base topic is device.
func SwitchCommand(device string, state logic.State) Message {
	data, _ := json.Marshal(SwitchPayload{State: string(state)})
	return Message{Topic: SetTopic(device), Payload: data, Delivery: DeliveryCommand}
}

// BoilerActiveMessage returns the boiler state message for Home Assistant.
func BoilerActiveMessage(t Topics, active bool) Message {
	data, _ := json.Marshal(BoilerActivePayload{State: active})
	return Message{Topic: t.BoilerActive(), Payload: data, Delivery: DeliveryState}
}

// ZoneStateMessages returns the per-tick state messages for one zone. The
// current temperature is omitted while it is unknown.
func ZoneStateMessages(t Topics, s logic.ZoneState) []Message {
	mode := "heat"
	if !s.Enabled {
		mode = "off"
	}
	action := "idle"
	if s.PumpOn() {
		action = "heating"
	}

	var msgs []Message
	add := func(leaf, value string) {
		msgs = append(msgs, Message{Topic: t.Zone(s.Name, leaf), Payload: []byte(value), Delivery: DeliveryState})
	}
	if s.Temperature != nil {
		add(LeafCurrentTemp, FormatNumber(*s.Temperature, 2))
	}
	add(LeafSetpoint, FormatNumber(s.Setpoint, 1))
	add(LeafMode, mode)
	add(LeafAction, action)
	add(LeafDuty, FormatNumber(s.Duty*100, 1))
	add(LeafWindowOpen, strconv.FormatBool(s.WindowOpen))
	add(LeafStatus, string(s.Status))
	add(LeafCycles, strconv.Itoa(s.CyclesThisHour))
	return msgs
}

// AlertMessage returns the event message for an alert. Zone alerts go to the
// zone's alert topic, others to the system alert topic.
func AlertMessage(t Topics, a logic.Alert) Message {
	topic := t.SystemAlert()
	if a.Zone != "" {
		topic = t.Zone(a.Zone, LeafAlert)
	}
	data, _ := json.Marshal(AlertPayload{
		AlertID:   string(a.Code),
		Severity:  string(a.Severity),
		Zone:      a.Zone,
		Message:   a.Message,
		Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
	})
	return Message{Topic: topic, Payload: data, Delivery: DeliveryEvent}
}

// HeartbeatMessage returns the liveness message.
func HeartbeatMessage(topic string, hb logic.HeartbeatData) Message {
	data, _ := json.Marshal(HeartbeatPayload{
		Timestamp:     hb.Timestamp.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(hb.Uptime.Truncate(time.Second).Seconds()),
		BoilerActive:  hb.BoilerActive,
		Beat:          hb.Beats,
	})
	return Message{Topic: topic, Payload: data, Delivery: DeliveryLiveness}
}

// ThermalMessage returns the thermal summary message for a zone.
func ThermalMessage(t Topics, zone string, r logic.ThermalReport, now time.Time) Message {
	data, _ := json.Marshal(ThermalPayload{
		Timestamp:       now.UTC().Format(time.RFC3339),
		AvgHeatLossRate: round(r.AvgHeatLossRate, 3),
		AvgHeatGainRate: round(r.AvgHeatGainRate, 3),
		Insulation:      string(r.Insulation),
		HeatingSamples:  r.HeatingSamples,
		CoolingSamples:  r.CoolingSamples,
	})
	return Message{Topic: t.Zone(zone, LeafThermal), Payload: data, Delivery: DeliveryState}
}

// GetRequest returns a Zigbee2MQTT state request asking device for field.
func GetRequest(device, field string) Message {
	data, _ := json.Marshal(map[string]string{field: ""})
	return Message{Topic: GetTopic(device), Payload: data, Delivery: DeliveryRequest}
}

// StatusMessage wraps a pre-formatted lifecycle payload.
func StatusMessage(t Topics, payload []byte) Message {
	return Message{Topic: t.SystemStatus(), Payload: payload, Delivery: DeliveryState}
}

// FormatNumber renders v with at most prec decimals and no trailing zeros.
func FormatNumber(v float64, prec int) string {
	return strconv.FormatFloat(round(v, prec), 'f', -1, 64)
}

func round(v float64, prec int) float64 {
	p := math.Pow(10, float64(prec))
	return math.Round(v*p) / p
}
