package logic

import (
	"fmt"
	"math"
	"time"
)

// ControllerKind selects the control algorithm of a zone.
type ControllerKind string

const (
	ControllerPID   ControllerKind = "pid"
	ControllerOnOff ControllerKind = "onoff"
)

// Controller turns a setpoint and a measurement into a duty cycle in [0, 1].
// The set of implementations is closed: *PID and *OnOff.
type Controller interface {
	// Compute returns the duty cycle for this step. dt is the time since the
	// previous step; zero means there is no previous step.
	Compute(setpoint, measurement float64, dt time.Duration) float64

	// Reset clears all accumulated state.
	Reset()

	// Kind identifies the variant.
	Kind() ControllerKind
}

// ControllerParams holds the tuning for both controller variants. Only the
// fields of the selected kind are used.
type ControllerParams struct {
	Kind          ControllerKind
	Kp            float64
	Ki            float64
	Kd            float64
	IntegralLimit float64 // °C·min
	Hysteresis    float64 // °C either side of the setpoint
}

// NewController builds the controller variant named by params.Kind.
func NewController(params ControllerParams) (Controller, error) {
	switch params.Kind {
	case ControllerPID:
		return NewPID(params.Kp, params.Ki, params.Kd, params.IntegralLimit), nil
	case ControllerOnOff:
		return NewOnOff(params.Hysteresis), nil
	default:
		return nil, fmt.Errorf("unknown controller kind %q", params.Kind)
	}
}

// PIDTerms contains the individual PID components of the last step, for logging.
type PIDTerms struct {
	P     float64
	I     float64
	D     float64
	Error float64
}

// PID is a proportional-integral-derivative controller.
//
// Time is measured in minutes, so Ki is per °C·min and Kd is per °C/min.
// The derivative acts on the measurement rather than the error so a setpoint
// step does not produce a spike. The integral is clamped to ±IntegralLimit.
type PID struct {
	kp, ki, kd    float64
	integralLimit float64

	integral        float64
	prevMeasurement float64
	hasPrev         bool
	last            PIDTerms
}

// NewPID creates a PID controller with the given gains and integral clamp.
func NewPID(kp, ki, kd, integralLimit float64) *PID {
	return &PID{kp: kp, ki: ki, kd: kd, integralLimit: math.Abs(integralLimit)}
}

// Compute implements Controller.
func (c *PID) Compute(setpoint, measurement float64, dt time.Duration) float64 {
	minutes := dt.Minutes()
	if minutes < 0 {
		minutes = 0
	}

	e := setpoint - measurement
	c.integral = clamp(c.integral+e*minutes, -c.integralLimit, c.integralLimit)

	var derivative float64
	if c.hasPrev && minutes > 0 {
		derivative = (measurement - c.prevMeasurement) / minutes
	}
	c.prevMeasurement = measurement
	c.hasPrev = true

	c.last = PIDTerms{
		P:     c.kp * e,
		I:     c.ki * c.integral,
		D:     -c.kd * derivative,
		Error: e,
	}
	out := c.last.P + c.last.I + c.last.D
	if math.IsNaN(out) {
		return 0
	}
	return clamp(out, 0, 1)
}

// Reset implements Controller.
func (c *PID) Reset() {
	c.integral = 0
	c.prevMeasurement = 0
	c.hasPrev = false
	c.last = PIDTerms{}
}

// Kind implements Controller.
func (c *PID) Kind() ControllerKind { return ControllerPID }

// SetGains replaces the gains. Accumulated state is cleared because the old
// integral is meaningless under a new Ki.
func (c *PID) SetGains(kp, ki, kd float64) {
	c.kp, c.ki, c.kd = kp, ki, kd
	c.Reset()
}

// Gains returns the current gains.
func (c *PID) Gains() (kp, ki, kd float64) {
	return c.kp, c.ki, c.kd
}

// Integral returns the accumulated integral (°C·min).
func (c *PID) Integral() float64 { return c.integral }

// Terms returns the components of the last Compute.
func (c *PID) Terms() PIDTerms { return c.last }

// OnOff is a bang-bang controller with a dead band around the setpoint.
// Inside the band the previous output is held.
type OnOff struct {
	hysteresis float64
	heating    bool
}

// NewOnOff creates an on/off controller with ±hysteresis dead band.
func NewOnOff(hysteresis float64) *OnOff {
	return &OnOff{hysteresis: math.Abs(hysteresis)}
}

// Compute implements Controller.
func (c *OnOff) Compute(setpoint, measurement float64, _ time.Duration) float64 {
	switch {
	case measurement < setpoint-c.hysteresis:
		c.heating = true
	case measurement > setpoint+c.hysteresis:
		c.heating = false
	}
	if c.heating {
		return 1
	}
	return 0
}

// Reset implements Controller.
func (c *OnOff) Reset() { c.heating = false }

// Kind implements Controller.
func (c *OnOff) Kind() ControllerKind { return ControllerOnOff }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
