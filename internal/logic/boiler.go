package logic

import "time"

// BoilerActive derives the boiler request from zone states: the boiler runs
// whenever any zone's pump is ON. It holds no state of its own.
func BoilerActive(states []ZoneState) bool {
	for _, s := range states {
		if s.PumpOn() {
			return true
		}
	}
	return false
}

// ActiveZones returns the names of zones whose pump is ON.
func ActiveZones(states []ZoneState) []string {
	var names []string
	for _, s := range states {
		if s.PumpOn() {
			names = append(names, s.Name)
		}
	}
	return names
}

// Heartbeat tracks the liveness signal sent to the external relay watchdog.
type Heartbeat struct {
	startTime time.Time
	last      time.Time
	count     int
}

// NewHeartbeat creates a tracker. startTime is used for uptime.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{startTime: startTime}
}

// Beat records a heartbeat at now and returns its payload data. The beat is
// unconditional: liveness does not depend on whether any zone is heating.
func (h *Heartbeat) Beat(now time.Time, boilerActive bool) HeartbeatData {
	h.last = now
	h.count++
	return HeartbeatData{
		Timestamp:    now,
		Uptime:       now.Sub(h.startTime),
		BoilerActive: boilerActive,
		Beats:        h.count,
	}
}

// Last returns the time of the last beat (zero if none).
func (h *Heartbeat) Last() time.Time { return h.last }
