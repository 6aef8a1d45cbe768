package logic

import (
	"fmt"
	"time"
)

// WatchdogParams configures the two independent safety checks.
type WatchdogParams struct {
	SensorTimeout time.Duration // no reading for this long nulls the temperature
	MaxRuntime    time.Duration // pump ON continuously for this long forces a shutdown
}

// Watchdog evaluates sensor staleness and the pump runtime ceiling.
// Both checks run on every tick and either can force a shutdown on its own.
type Watchdog struct {
	params       WatchdogParams
	staleAlerted bool
}

// NewWatchdog creates a watchdog.
func NewWatchdog(params WatchdogParams) *Watchdog {
	return &Watchdog{params: params}
}

// CheckSensor reports whether the sensor is stale at now. The returned alert
// is raised once per stale episode; a fresh reading re-arms it via Fresh.
func (w *Watchdog) CheckSensor(now, lastUpdate time.Time) (stale bool, alert *Alert) {
	if w.params.SensorTimeout <= 0 {
		return false, nil
	}
	silent := now.Sub(lastUpdate)
	if silent < w.params.SensorTimeout {
		return false, nil
	}
	if w.staleAlerted {
		return true, nil
	}
	w.staleAlerted = true
	return true, &Alert{
		Timestamp: now,
		Code:      AlertSensorStale,
		Severity:  SeverityCritical,
		Message:   fmt.Sprintf("no temperature update for %s (timeout %s), heating disabled until data returns", silent.Truncate(time.Second), w.params.SensorTimeout),
	}
}

// Fresh re-arms the staleness alert after a valid reading.
func (w *Watchdog) Fresh() { w.staleAlerted = false }

// CheckRuntime reports whether a pump that has been ON since onSince has hit
// the runtime ceiling at now.
func (w *Watchdog) CheckRuntime(now time.Time, pumpOn bool, onSince time.Time) (exceeded bool, alert *Alert) {
	if !pumpOn || w.params.MaxRuntime <= 0 || onSince.IsZero() {
		return false, nil
	}
	ran := now.Sub(onSince)
	if ran < w.params.MaxRuntime {
		return false, nil
	}
	return true, &Alert{
		Timestamp: now,
		Code:      AlertRuntimeCeiling,
		Severity:  SeverityCritical,
		Message:   fmt.Sprintf("pump ON continuously for %s (ceiling %s), zone disabled pending manual re-enable", ran.Truncate(time.Second), w.params.MaxRuntime),
	}
}
