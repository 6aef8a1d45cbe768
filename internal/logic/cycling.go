package logic

import (
	"fmt"
	"time"
)

// CyclingParams configures pump short-cycle protection.
type CyclingParams struct {
	MinOn        time.Duration // minimum dwell in ON before an OFF is allowed
	MinOff       time.Duration // minimum dwell in OFF before an ON is allowed
	OnThreshold  float64       // duty above which ON is requested
	OffThreshold float64       // duty below which OFF is requested
	WarnCycles   int           // warning once cycles this hour exceed this
	AlertCycles  int           // critical once cycles this hour exceed this
}

// CyclingGuard decides when a pump may change state.
//
// Between OffThreshold and OnThreshold the pump holds its state. A manual
// override lets exactly one decision skip the dwell check; it is cleared by
// the next call to Decide regardless of outcome.
type CyclingGuard struct {
	params CyclingParams

	on          bool
	changedAt   time.Time // zero until the first transition
	override    bool
	hourStart   time.Time
	cycles      int
	warnRaised  bool
	alertRaised bool
}

// NewCyclingGuard creates a guard with the pump OFF and no transition history.
func NewCyclingGuard(params CyclingParams) *CyclingGuard {
	return &CyclingGuard{params: params}
}

// On reports the pump state the guard believes is current.
func (g *CyclingGuard) On() bool { return g.on }

// ChangedAt returns the time of the last transition (zero if none yet).
func (g *CyclingGuard) ChangedAt() time.Time { return g.changedAt }

// SetOverride arms the one-shot manual override.
func (g *CyclingGuard) SetOverride() { g.override = true }

// OverrideArmed reports whether the next decision may bypass dwell times.
func (g *CyclingGuard) OverrideArmed() bool { return g.override }

// dwellMet reports whether the pump has been in its current state for at least d.
// With no transition yet there is nothing to protect.
func (g *CyclingGuard) dwellMet(now time.Time, d time.Duration) bool {
	return g.changedAt.IsZero() || now.Sub(g.changedAt) >= d
}

// MayTurnOn reports whether an ON transition is permitted for duty.
func (g *CyclingGuard) MayTurnOn(duty float64, now time.Time) bool {
	if g.on || duty <= g.params.OnThreshold {
		return false
	}
	return g.override || g.dwellMet(now, g.params.MinOff)
}

// MayTurnOff reports whether an OFF transition is permitted for duty.
func (g *CyclingGuard) MayTurnOff(duty float64, now time.Time) bool {
	if !g.on || duty >= g.params.OffThreshold {
		return false
	}
	return g.override || g.dwellMet(now, g.params.MinOn)
}

// Decide applies duty to the pump state and returns the (possibly unchanged)
// state, whether it changed, and any cycle-rate alert. The override is
// consumed.
func (g *CyclingGuard) Decide(duty float64, now time.Time) (on bool, changed bool, alert *Alert) {
	g.rollHour(now)

	switch {
	case g.MayTurnOn(duty, now):
		g.transition(true, now)
		changed = true
		alert = g.countCycle(now)
	case g.MayTurnOff(duty, now):
		g.transition(false, now)
		changed = true
	}

	g.override = false
	return g.on, changed, alert
}

// Force sets the pump state without any dwell check. Safety shutdowns use
// this. Returns whether the state changed.
func (g *CyclingGuard) Force(on bool, now time.Time) bool {
	g.rollHour(now)
	g.override = false
	if g.on == on {
		return false
	}
	g.transition(on, now)
	if on {
		g.countCycle(now)
	}
	return true
}

// CyclesThisHour returns the number of ON transitions in the current clock hour.
func (g *CyclingGuard) CyclesThisHour(now time.Time) int {
	g.rollHour(now)
	return g.cycles
}

func (g *CyclingGuard) transition(on bool, now time.Time) {
	g.on = on
	g.changedAt = now
}

func (g *CyclingGuard) rollHour(now time.Time) {
	h := now.Truncate(time.Hour)
	if !h.Equal(g.hourStart) {
		g.hourStart = h
		g.cycles = 0
		g.warnRaised = false
		g.alertRaised = false
	}
}

func (g *CyclingGuard) countCycle(now time.Time) *Alert {
	g.cycles++
	switch {
	case g.params.AlertCycles > 0 && g.cycles > g.params.AlertCycles && !g.alertRaised:
		g.alertRaised = true
		return &Alert{
			Timestamp: now,
			Code:      AlertCycleRateHigh,
			Severity:  SeverityCritical,
			Message:   fmt.Sprintf("pump cycled %d times this hour (limit %d)", g.cycles, g.params.AlertCycles),
		}
	case g.params.WarnCycles > 0 && g.cycles > g.params.WarnCycles && !g.warnRaised:
		g.warnRaised = true
		return &Alert{
			Timestamp: now,
			Code:      AlertCycleRateWarning,
			Severity:  SeverityWarning,
			Message:   fmt.Sprintf("pump cycled %d times this hour (warning above %d)", g.cycles, g.params.WarnCycles),
		}
	}
	return nil
}
