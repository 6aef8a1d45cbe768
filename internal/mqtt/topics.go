package mqtt

import "strings"

// Zone topic leaves under <prefix>/<zone>/.
const (
	LeafCurrentTemp = "current_temp"
	LeafSetpoint    = "climate/setpoint"
	LeafMode        = "climate/mode"
	LeafAction      = "climate/action"
	LeafDuty        = "duty_cycle"
	LeafWindowOpen  = "window_open"
	LeafStatus      = "status"
	LeafCycles      = "cycles_per_hour"
	LeafThermal     = "thermal"
	LeafAlert       = "alert"

	LeafSetpointSet = "setpoint/set"
	LeafEnabledSet  = "enabled/set"
	LeafPIDSet      = "pid/set"
)

// Topics builds the controller's own topic names under a common prefix.
type Topics struct {
	Prefix string
}

// NewTopics returns a topic builder for prefix (e.g. "heating").
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimSuffix(prefix, "/")}
}

// Zone returns <prefix>/<zone>/<leaf>.
func (t Topics) Zone(zone, leaf string) string {
	return t.Prefix + "/" + zone + "/" + leaf
}

// WindowDetectionSet is the global window-detection command topic.
func (t Topics) WindowDetectionSet() string { return t.Prefix + "/window_detection/set" }

// ModeSet is the global heating-mode command topic.
func (t Topics) ModeSet() string { return t.Prefix + "/mode/set" }

// BoilerActive is the boiler state topic for Home Assistant.
func (t Topics) BoilerActive() string { return t.Prefix + "/boiler_active" }

// SystemAlert carries alerts that belong to no zone.
func (t Topics) SystemAlert() string { return t.Prefix + "/system/alert" }

// SystemStatus carries lifecycle events and the last will.
func (t Topics) SystemStatus() string { return t.Prefix + "/system/status" }

// ZoneCommands returns the command topics for zone.
func (t Topics) ZoneCommands(zone string) []string {
	return []string{
		t.Zone(zone, LeafSetpointSet),
		t.Zone(zone, LeafEnabledSet),
		t.Zone(zone, LeafPIDSet),
	}
}

// ParseZoneCommand splits <prefix>/<zone>/<command leaf> into its zone and
// leaf. ok is false for any other topic.
func (t Topics) ParseZoneCommand(topic string) (zone, leaf string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/")
	if !found {
		return "", "", false
	}
	zone, leaf, found = strings.Cut(rest, "/")
	if !found || zone == "" {
		return "", "", false
	}
	switch leaf {
	case LeafSetpointSet, LeafEnabledSet, LeafPIDSet:
		return zone, leaf, true
	}
	return "", "", false
}

// SetTopic returns the Zigbee2MQTT command topic for a device base topic.
func SetTopic(device string) string { return device + "/set" }

// GetTopic returns the Zigbee2MQTT state-request topic for a device base topic.
func GetTopic(device string) string { return device + "/get" }
