// Package status provides a thread-safe tracker of the controller's latest
// state. It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/heating-control/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker            string
	HTTPAddr          string
	ControlInterval   time.Duration
	HeartbeatInterval time.Duration
	BoilerTopic       string
	HeartbeatTopic    string
	BoilerGPIOPin     int // -1 when no local relay is driven
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Zones              []logic.ZoneState
	BoilerActive       bool
	WindowDetection    bool
	OutsideTemperature *float64
	LastTick           time.Time
	Ticks              int
	StartTime          time.Time
	Now                time.Time
	MQTTConnected      bool
	Config             Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Zone returns the named zone's state.
func (s Snapshot) Zone(name string) (logic.ZoneState, bool) {
	for _, z := range s.Zones {
		if z.Name == name {
			return z, true
		}
	}
	return logic.ZoneState{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// Window detection starts enabled.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:       startTime,
			WindowDetection: true,
			Config:          cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots. For tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update records the zone states and boiler decision of a control tick.
func (t *Tracker) Update(at time.Time, zones []logic.ZoneState, boilerActive bool) {
	cp := make([]logic.ZoneState, len(zones))
	copy(cp, zones)
	t.mu.Lock()
	t.snap.Zones = cp
	t.snap.BoilerActive = boilerActive
	t.snap.LastTick = at
	t.snap.Ticks++
	t.mu.Unlock()
}

// SetWindowDetection records the global window-detection switch.
func (t *Tracker) SetWindowDetection(enabled bool) {
	t.mu.Lock()
	t.snap.WindowDetection = enabled
	t.mu.Unlock()
}

// SetOutsideTemperature records the latest outside reading; nil clears it.
func (t *Tracker) SetOutsideTemperature(v *float64) {
	t.mu.Lock()
	if v == nil {
		t.snap.OutsideTemperature = nil
	} else {
		c := *v
		t.snap.OutsideTemperature = &c
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set from the tracker clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Zones = append([]logic.ZoneState(nil), t.snap.Zones...)
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
