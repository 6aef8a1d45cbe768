package logic

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var (
	// ErrImplausibleTemperature is returned for NaN, infinite or out-of-range readings.
	ErrImplausibleTemperature = errors.New("implausible temperature")
	// ErrInvalidGains is returned for negative or non-finite controller gains.
	ErrInvalidGains = errors.New("invalid controller gains")
	// ErrNotPID is returned when gains are sent to a zone without a PID controller.
	ErrNotPID = errors.New("zone controller is not PID")
)

// ZoneParams is the immutable configuration of one zone.
type ZoneParams struct {
	Name               string
	DefaultSetpoint    float64
	MinSetpoint        float64
	MaxSetpoint        float64
	ResetSetpointDelta float64 // setpoint steps larger than this reset the controller
	MinPlausible       float64
	MaxPlausible       float64
	Controller         ControllerParams
	Window             WindowParams
	Cycling            CyclingParams
	Thermal            ThermalParams
	Watchdog           WatchdogParams
	Health             HealthParams
}

// Zone is one independently controlled heating area with its own sensor and
// pump. All methods are safe for concurrent use.
type Zone struct {
	mu     sync.Mutex
	params ZoneParams

	controller Controller
	window     *WindowDetector
	guard      *CyclingGuard
	thermal    *ThermalMonitor
	watchdog   *Watchdog
	health     *SensorHealth

	temperature *float64
	lastUpdate  time.Time
	setpoint    float64
	enabled     bool
	duty        float64
	status      ZoneStatus
	lastCompute time.Time
}

// NewZone creates a zone at its default setpoint, enabled, pump OFF, with no
// temperature. created is the reference time for the staleness watchdog until
// the first reading arrives.
func NewZone(params ZoneParams, created time.Time) (*Zone, error) {
	ctrl, err := NewController(params.Controller)
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", params.Name, err)
	}
	return &Zone{
		params:     params,
		controller: ctrl,
		window:     NewWindowDetector(params.Window),
		guard:      NewCyclingGuard(params.Cycling),
		thermal:    NewThermalMonitor(params.Thermal),
		watchdog:   NewWatchdog(params.Watchdog),
		health:     NewSensorHealth(params.Health),
		lastUpdate: created,
		setpoint:   clamp(params.DefaultSetpoint, params.MinSetpoint, params.MaxSetpoint),
		enabled:    true,
		status:     StatusNoData,
	}, nil
}

// Name returns the zone's unique name.
func (z *Zone) Name() string { return z.params.Name }

// Params returns the zone configuration.
func (z *Zone) Params() ZoneParams { return z.params }

// UpdateTemperature records a valid reading and adds it to the window
// detector's history at its arrival time.
func (z *Zone) UpdateTemperature(v float64, now time.Time) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < z.params.MinPlausible || v > z.params.MaxPlausible {
		return fmt.Errorf("%w: %v (plausible %v..%v)", ErrImplausibleTemperature, v, z.params.MinPlausible, z.params.MaxPlausible)
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	z.temperature = &v
	z.lastUpdate = now
	z.watchdog.Fresh()
	z.window.Update(v, now)
	return nil
}

// MarkUnavailable handles an explicit "unavailable" from the sensor. It
// returns a warning alert if the zone had a valid reading until now.
func (z *Zone) MarkUnavailable(now time.Time) *Alert {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.temperature == nil {
		return nil
	}
	z.temperature = nil
	z.controller.Reset()
	z.lastCompute = time.Time{}
	a := z.tag(Alert{
		Timestamp: now,
		Code:      AlertSensorOffline,
		Severity:  SeverityWarning,
		Message:   "temperature sensor reported unavailable, heating disabled until data returns",
	})
	return &a
}

// ObserveHealth records optional battery and link-quality readings.
func (z *Zone) ObserveHealth(now time.Time, battery, linkQuality *float64) []Alert {
	z.mu.Lock()
	defer z.mu.Unlock()
	alerts := z.health.Observe(now, battery, linkQuality)
	for i := range alerts {
		alerts[i] = z.tag(alerts[i])
	}
	return alerts
}

// SetSetpoint changes the target temperature, clamped to the configured
// range, and returns the value applied. It arms the one-shot dwell override.
func (z *Zone) SetSetpoint(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("setpoint %v is not a number", v)
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	applied := clamp(v, z.params.MinSetpoint, z.params.MaxSetpoint)
	if math.Abs(applied-z.setpoint) > z.params.ResetSetpointDelta {
		z.controller.Reset()
		z.lastCompute = time.Time{}
	}
	z.setpoint = applied
	z.guard.SetOverride()
	return applied, nil
}

// SetEnabled switches heating for the zone. Disabling resets the controller.
// It arms the one-shot dwell override.
func (z *Zone) SetEnabled(enabled bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !enabled {
		z.controller.Reset()
		z.lastCompute = time.Time{}
	}
	z.enabled = enabled
	z.guard.SetOverride()
}

// SetGains replaces the PID gains.
func (z *Zone) SetGains(kp, ki, kd float64) error {
	for _, g := range []float64{kp, ki, kd} {
		if g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
			return fmt.Errorf("%w: kp=%v ki=%v kd=%v", ErrInvalidGains, kp, ki, kd)
		}
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	pid, ok := z.controller.(*PID)
	if !ok {
		return ErrNotPID
	}
	pid.SetGains(kp, ki, kd)
	z.lastCompute = time.Time{}
	return nil
}

// Tick runs one control step:
//  1. staleness and runtime-ceiling watchdogs
//  2. no temperature or disabled: pump forced OFF
//  3. window flag (duty forced to 0 while open)
//  4. controller duty
//  5. cycling guard decides the pump transition
//  6. thermal monitor observes the result
func (z *Zone) Tick(now time.Time, windowDetection bool) TickResult {
	z.mu.Lock()
	defer z.mu.Unlock()

	var (
		alerts  []Alert
		changed bool
	)

	if stale, a := z.watchdog.CheckSensor(now, z.lastUpdate); stale {
		z.temperature = nil
		if a != nil {
			alerts = append(alerts, z.tag(*a))
		}
	}
	if exceeded, a := z.watchdog.CheckRuntime(now, z.guard.On(), z.guard.ChangedAt()); exceeded {
		changed = z.guard.Force(false, now)
		z.enabled = false
		alerts = append(alerts, z.tag(*a))
	}

	z.window.Settle(now)
	if !windowDetection {
		z.window.ForceClosed()
	}

	switch {
	case z.temperature == nil:
		changed = z.shutdown(now, StatusNoData) || changed
	case !z.enabled:
		changed = z.shutdown(now, StatusDisabled) || changed
	default:
		var dt time.Duration
		if !z.lastCompute.IsZero() {
			dt = now.Sub(z.lastCompute)
		}
		duty := z.controller.Compute(z.setpoint, *z.temperature, dt)
		z.lastCompute = now

		open := z.window.Open()
		if open {
			duty = 0
		}
		z.duty = duty

		on, ch, a := z.guard.Decide(duty, now)
		changed = changed || ch
		if a != nil {
			alerts = append(alerts, z.tag(*a))
		}
		switch {
		case open:
			z.status = StatusWindowOpen
		case on:
			z.status = StatusHeating
		default:
			z.status = StatusIdle
		}
	}

	z.thermal.Observe(now, z.temperature, z.guard.On())

	return TickResult{
		State:       z.snapshotLocked(now),
		PumpChanged: changed,
		Alerts:      alerts,
	}
}

// Fault forces the pump OFF after a failed tick and marks the zone faulted.
func (z *Zone) Fault(now time.Time) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.shutdown(now, StatusFault)
}

func (z *Zone) shutdown(now time.Time, status ZoneStatus) bool {
	z.controller.Reset()
	z.lastCompute = time.Time{}
	z.duty = 0
	z.status = status
	return z.guard.Force(false, now)
}

// Snapshot returns the current state without running the control step.
func (z *Zone) Snapshot(now time.Time) ZoneState {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.snapshotLocked(now)
}

// WindowSamples returns a copy of the rolling temperature history.
func (z *Zone) WindowSamples() []Sample {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.window.Samples()
}

// ThermalReport returns the current thermal performance summary.
func (z *Zone) ThermalReport() ThermalReport {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.thermal.Report()
}

func (z *Zone) snapshotLocked(now time.Time) ZoneState {
	s := ZoneState{
		Name:           z.params.Name,
		LastUpdate:     z.lastUpdate,
		Setpoint:       z.setpoint,
		Enabled:        z.enabled,
		Pump:           StateOf(z.guard.On()),
		PumpChangedAt:  z.guard.ChangedAt(),
		Duty:           z.duty,
		WindowOpen:     z.window.Open(),
		Status:         z.status,
		CyclesThisHour: z.guard.CyclesThisHour(now),
		Controller:     z.controller.Kind(),
		Thermal:        z.thermal.Report(),
		Battery:        z.health.Battery(),
		LinkQuality:    z.health.LinkQuality(),
	}
	if z.temperature != nil {
		t := *z.temperature
		s.Temperature = &t
	}
	return s
}

func (z *Zone) tag(a Alert) Alert {
	a.Zone = z.params.Name
	return a
}
