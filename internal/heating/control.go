package heating

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sweeney/heating-control/internal/logic"
	"github.com/sweeney/heating-control/internal/mqtt"
	"github.com/sweeney/heating-control/internal/repository"
)

// TickReport is the outcome of one control tick.
type TickReport struct {
	Time         time.Time
	Zones        []logic.ZoneState
	BoilerActive bool
}

// Tick runs one control step over every zone, then derives the boiler
// request from the resulting pump states. Commands are re-sent until the
// broker accepts them, so a failed publish is retried on the next tick.
func (s *Service) Tick() TickReport {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]logic.ZoneState, 0, len(s.zones))
	for _, e := range s.zones {
		res := s.tickZone(e, now, s.windowDetection)
		for _, a := range res.Alerts {
			s.raise(a)
		}
		if res.PumpChanged {
			s.pumpSwitched(e, res.State)
		}
		for _, msg := range mqtt.ZoneStateMessages(s.topics, res.State) {
			s.publish(msg)
		}
		s.syncPump(e, res.State.Pump)
		states = append(states, res.State)
	}

	active := logic.BoilerActive(states)
	s.syncBoiler(now, active, logic.ActiveZones(states))
	s.syncRelay(active)

	s.tracker.Update(now, states, active)
	s.tracker.SetMQTTConnected(s.mq.IsConnected())
	s.log.Infof("control loop: boiler %s | %s", logic.StateOf(active), summarize(states))

	return TickReport{Time: now, Zones: states, BoilerActive: active}
}

// tickZone runs one zone's step. A panic is contained to the zone: its pump
// is forced OFF and a critical alert raised, and the other zones still run.
func (s *Service) tickZone(e *zoneEntry, now time.Time, windowDetection bool) (res logic.TickResult) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.log.Errorw("zone tick failed", "zone", e.name, "panic", r, "stack", string(debug.Stack()))
		changed := e.zone.Fault(now)
		res = logic.TickResult{
			State:       e.zone.Snapshot(now),
			PumpChanged: changed,
			Alerts: []logic.Alert{{
				Timestamp: now,
				Code:      logic.AlertZoneFault,
				Severity:  logic.SeverityCritical,
				Zone:      e.name,
				Message:   fmt.Sprintf("control step failed, pump forced OFF: %v", r),
			}},
		}
	}()
	res = e.tick(now, windowDetection)
	s.log.Debugw("zone tick",
		"zone", e.name,
		"temperature", res.State.Temperature,
		"setpoint", res.State.Setpoint,
		"duty", mqtt.FormatNumber(res.State.Duty*100, 1),
		"pump", res.State.Pump,
		"status", res.State.Status,
		"window_open", res.State.WindowOpen,
	)
	return res
}

func (s *Service) pumpSwitched(e *zoneEntry, st logic.ZoneState) {
	s.log.Infow("pump switched",
		"zone", e.name,
		"state", st.Pump,
		"duty", mqtt.FormatNumber(st.Duty*100, 1),
		"status", st.Status,
	)
	s.record(repository.Event{
		OccurredAt: st.PumpChangedAt,
		Kind:       repository.KindPump,
		Zone:       e.name,
		Message:    fmt.Sprintf("pump %s (%s, duty %s%%)", st.Pump, st.Status, mqtt.FormatNumber(st.Duty*100, 0)),
	})
}

func (s *Service) syncPump(e *zoneEntry, want logic.State) {
	if e.sent == want {
		return
	}
	if !s.publish(mqtt.SwitchCommand(e.pumpTopic, want)) {
		e.sent = ""
		return
	}
	e.sent = want
}

func (s *Service) syncBoiler(now time.Time, active bool, zones []string) {
	if s.boilerKnown && active != s.boilerActive {
		s.log.Infow("boiler switched", "state", logic.StateOf(active), "zones", zones)
		msg := fmt.Sprintf("boiler %s", logic.StateOf(active))
		if active {
			msg += " for " + strings.Join(zones, ", ")
		}
		s.record(repository.Event{OccurredAt: now, Kind: repository.KindBoiler, Message: msg})
	}
	s.boilerActive = active
	s.boilerKnown = true

	want := logic.StateOf(active)
	if s.boilerSent == want {
		return
	}
	ok := s.publish(mqtt.SwitchCommand(s.cfg.BoilerControlTopic, want))
	ok = s.publish(mqtt.BoilerActiveMessage(s.topics, active)) && ok
	if !ok {
		s.boilerSent = ""
		return
	}
	s.boilerSent = want
}

func (s *Service) syncRelay(active bool) {
	if s.relay == nil {
		return
	}
	want := logic.StateOf(active)
	if s.relaySent == want {
		return
	}
	if err := s.relay.Set(active); err != nil {
		s.relaySent = ""
		s.log.Errorw("boiler relay failed", "state", want, "error", err)
		return
	}
	s.relaySent = want
}

// summarize renders the one-line per-zone status used in the tick log.
func summarize(states []logic.ZoneState) string {
	parts := make([]string, 0, len(states))
	for _, st := range states {
		var v string
		switch {
		case st.Status == logic.StatusNoData:
			v = "NO DATA"
		case st.Status == logic.StatusDisabled:
			v = "DISABLED"
		case st.Status == logic.StatusFault:
			v = "FAULT"
		case st.Status == logic.StatusWindowOpen:
			v = "WINDOW OPEN"
		case st.PumpOn():
			v = fmt.Sprintf("ON (%s%%)", mqtt.FormatNumber(st.Duty*100, 0))
		default:
			v = "OFF"
		}
		parts = append(parts, st.Name+": "+v)
	}
	return strings.Join(parts, " | ")
}

// Heartbeat publishes the liveness signal for the boiler relay's hardware
// watchdog. It is sent whether or not any zone is heating.
func (s *Service) Heartbeat() {
	s.mu.Lock()
	active := s.boilerActive
	s.mu.Unlock()

	hb := s.heartbeat.Beat(s.now(), active)
	if s.publish(mqtt.HeartbeatMessage(s.cfg.HeartbeatTopic, hb)) {
		s.log.Debugw("heartbeat", "beat", hb.Beats, "uptime", hb.Uptime.Truncate(time.Second))
	}
}

// ReportThermal publishes every zone's thermal performance summary.
func (s *Service) ReportThermal() {
	now := s.now()
	for _, e := range s.zones {
		r := e.zone.ThermalReport()
		s.publish(mqtt.ThermalMessage(s.topics, e.name, r, now))
		s.log.Infow("thermal report",
			"zone", e.name,
			"heat_loss_rate", mqtt.FormatNumber(r.AvgHeatLossRate, 3),
			"heat_gain_rate", mqtt.FormatNumber(r.AvgHeatGainRate, 3),
			"insulation", r.Insulation,
			"heating_samples", r.HeatingSamples,
			"cooling_samples", r.CoolingSamples,
		)
	}
}

// RequestInitialStates asks Zigbee2MQTT for the current state of every
// sensor, pump and the boiler, so readings arrive before the first tick.
func (s *Service) RequestInitialStates() {
	var n int
	request := func(device, field string) {
		if s.publish(mqtt.GetRequest(device, field)) {
			n++
		}
	}
	for _, e := range s.zones {
		request(e.sensorTopic, "temperature")
	}
	if s.cfg.OutsideTemperatureTopic != "" {
		request(s.cfg.OutsideTemperatureTopic, "temperature")
	}
	for _, e := range s.zones {
		request(e.pumpTopic, "state")
	}
	request(s.cfg.BoilerControlTopic, "state")
	s.log.Infow("initial state requested", "requests", n)
}
