package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/heating-control/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event              string     `json:"event,omitempty"`
	Reason             string     `json:"reason,omitempty"`
	BoilerActive       bool       `json:"boiler_active"`
	WindowDetection    bool       `json:"window_detection"`
	OutsideTemperature *float64   `json:"outside_temperature,omitempty"`
	UptimeSeconds      int64      `json:"uptime_seconds"`
	StartTime          string     `json:"start_time"`
	Timestamp          string     `json:"timestamp"`
	LastTick           string     `json:"last_tick,omitempty"`
	Ticks              int        `json:"ticks"`
	MQTT               MQTTStatus `json:"mqtt"`
	Zones              []ZoneJSON `json:"zones"`
	Config             ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ZoneJSON is the JSON representation of one zone.
type ZoneJSON struct {
	Name           string      `json:"name"`
	Temperature    *float64    `json:"temperature"`
	LastUpdate     string      `json:"last_update,omitempty"`
	Setpoint       float64     `json:"setpoint"`
	Enabled        bool        `json:"enabled"`
	Pump           string      `json:"pump"`
	PumpChangedAt  string      `json:"pump_changed_at,omitempty"`
	DutyPercent    float64     `json:"duty_percent"`
	WindowOpen     bool        `json:"window_open"`
	Status         string      `json:"status"`
	CyclesThisHour int         `json:"cycles_this_hour"`
	Controller     string      `json:"controller"`
	Battery        *float64    `json:"battery,omitempty"`
	LinkQuality    *float64    `json:"link_quality,omitempty"`
	Thermal        ThermalJSON `json:"thermal"`
}

// ThermalJSON is the JSON representation of a zone's thermal report.
type ThermalJSON struct {
	AvgHeatLossRate float64 `json:"avg_heat_loss_rate"`
	AvgHeatGainRate float64 `json:"avg_heat_gain_rate"`
	Insulation      string  `json:"insulation_rating"`
	HeatingSamples  int     `json:"heating_samples"`
	CoolingSamples  int     `json:"cooling_samples"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ControlIntervalMs   int64  `json:"control_interval_ms"`
	HeartbeatIntervalMs int64  `json:"heartbeat_interval_ms"`
	Broker              string `json:"broker"`
	HTTPAddr            string `json:"http_addr"`
	BoilerTopic         string `json:"boiler_topic"`
	HeartbeatTopic      string `json:"heartbeat_topic"`
	BoilerGPIOPin       int    `json:"boiler_gpio_pin"`
}

// NewZoneJSON converts a zone state for output.
func NewZoneJSON(s logic.ZoneState) ZoneJSON {
	z := ZoneJSON{
		Name:           s.Name,
		Temperature:    s.Temperature,
		LastUpdate:     formatTime(s.LastUpdate),
		Setpoint:       s.Setpoint,
		Enabled:        s.Enabled,
		Pump:           string(s.Pump),
		PumpChangedAt:  formatTime(s.PumpChangedAt),
		DutyPercent:    math.Round(s.Duty*1000) / 10,
		WindowOpen:     s.WindowOpen,
		Status:         string(s.Status),
		CyclesThisHour: s.CyclesThisHour,
		Controller:     string(s.Controller),
		Battery:        s.Battery,
		LinkQuality:    s.LinkQuality,
		Thermal: ThermalJSON{
			AvgHeatLossRate: s.Thermal.AvgHeatLossRate,
			AvgHeatGainRate: s.Thermal.AvgHeatGainRate,
			Insulation:      string(s.Thermal.Insulation),
			HeatingSamples:  s.Thermal.HeatingSamples,
			CoolingSamples:  s.Thermal.CoolingSamples,
		},
	}
	if z.Pump == "" {
		z.Pump = "UNKNOWN"
	}
	return z
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	zones := make([]ZoneJSON, 0, len(snap.Zones))
	for _, z := range snap.Zones {
		zones = append(zones, NewZoneJSON(z))
	}

	return StatusInner{
		BoilerActive:       snap.BoilerActive,
		WindowDetection:    snap.WindowDetection,
		OutsideTemperature: snap.OutsideTemperature,
		UptimeSeconds:      int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:          snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:          snap.Now.UTC().Format(time.RFC3339),
		LastTick:           formatTime(snap.LastTick),
		Ticks:              snap.Ticks,
		MQTT:               MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Zones:              zones,
		Config: ConfigJSON{
			ControlIntervalMs:   snap.Config.ControlInterval.Milliseconds(),
			HeartbeatIntervalMs: snap.Config.HeartbeatInterval.Milliseconds(),
			Broker:              snap.Config.Broker,
			HTTPAddr:            snap.Config.HTTPAddr,
			BoilerTopic:         snap.Config.BoilerTopic,
			HeartbeatTopic:      snap.Config.HeartbeatTopic,
			BoilerGPIOPin:       snap.Config.BoilerGPIOPin,
		},
	}
}

// NewStatusJSON converts a snapshot for output.
func NewStatusJSON(snap Snapshot) StatusJSON {
	return StatusJSON{Status: buildInner(snap)}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(NewStatusJSON(snap), "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatOfflineEvent returns the minimal status body used as the MQTT last
// will, published by the broker when the daemon disappears.
func FormatOfflineEvent(reason string) []byte {
	data, _ := json.Marshal(map[string]map[string]string{
		"status": {"event": "OFFLINE", "reason": reason},
	})
	return data
}
