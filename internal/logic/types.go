// Package logic contains the pure control logic for the heating system.
// This package has NO external dependencies (no MQTT, GPIO, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of a pump or the boiler.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// StateOf converts a bool to ON/OFF.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// ZoneStatus summarises what a zone did on its last tick.
type ZoneStatus string

const (
	StatusHeating    ZoneStatus = "heating"
	StatusIdle       ZoneStatus = "idle"
	StatusNoData     ZoneStatus = "no_data"
	StatusDisabled   ZoneStatus = "disabled"
	StatusWindowOpen ZoneStatus = "window_open"
	StatusFault      ZoneStatus = "fault"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertCode is a machine-readable alert identifier.
type AlertCode string

const (
	AlertSensorStale      AlertCode = "HEAT-CTL-001"
	AlertRuntimeCeiling   AlertCode = "HEAT-CTL-002"
	AlertCycleRateWarning AlertCode = "HEAT-CTL-003"
	AlertCycleRateHigh    AlertCode = "HEAT-CTL-004"
	AlertSensorOffline    AlertCode = "HEAT-CTL-005"
	AlertZoneFault        AlertCode = "HEAT-CTL-900"
	AlertBatteryLow       AlertCode = "HEAT-MN-001"
	AlertLinkQualityLow   AlertCode = "HEAT-MN-002"
)

// Alert is a structured warning or critical event raised by the control logic.
type Alert struct {
	Timestamp time.Time
	Code      AlertCode
	Severity  Severity
	Zone      string // empty for system-wide alerts
	Message   string
}

// ZoneState is a point-in-time view of a zone.
// It is a value type, safe to use after the zone lock is released.
type ZoneState struct {
	Name           string
	Temperature    *float64 // nil means no valid reading
	LastUpdate     time.Time
	Setpoint       float64
	Enabled        bool
	Pump           State
	PumpChangedAt  time.Time
	Duty           float64
	WindowOpen     bool
	Status         ZoneStatus
	CyclesThisHour int
	Controller     ControllerKind
	Thermal        ThermalReport
	Battery        *float64
	LinkQuality    *float64
}

// PumpOn reports whether the zone's pump is on.
func (s ZoneState) PumpOn() bool {
	return s.Pump == StateOn
}

// TickResult is what a zone reports back from one control tick.
type TickResult struct {
	State       ZoneState
	PumpChanged bool
	Alerts      []Alert
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp    time.Time
	Uptime       time.Duration
	BoilerActive bool
	Beats        int
}
