package heating

import (
	"fmt"
	"time"

	"github.com/sweeney/heating-control/internal/mqtt"
)

// HandleMessage routes one inbound message. Malformed payloads and unknown
// zones are returned as errors; the message is dropped and no other zone is
// affected.
func (s *Service) HandleMessage(topic string, payload []byte) error {
	now := s.now()

	if e, ok := s.bySensor[topic]; ok {
		return s.handleReading(e, payload, now)
	}
	if s.cfg.OutsideTemperatureTopic != "" && topic == s.cfg.OutsideTemperatureTopic {
		return s.handleOutside(payload)
	}

	switch topic {
	case s.topics.WindowDetectionSet():
		on, err := mqtt.ParseSwitch(payload)
		if err != nil {
			return fmt.Errorf("window detection: %w", err)
		}
		s.SetWindowDetection(on)
		return nil
	case s.topics.ModeSet():
		mode, err := mqtt.ParseMode(payload)
		if err != nil {
			return fmt.Errorf("mode: %w", err)
		}
		s.SetMode(mode)
		return nil
	}

	name, leaf, ok := s.topics.ParseZoneCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	e, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}

	switch leaf {
	case mqtt.LeafSetpointSet:
		v, err := mqtt.ParseSetpoint(payload)
		if err != nil {
			return fmt.Errorf("zone %s: %w", name, err)
		}
		applied, err := e.zone.SetSetpoint(v)
		if err != nil {
			return fmt.Errorf("zone %s: %w", name, err)
		}
		s.log.Infow("setpoint changed", "zone", name, "requested", v, "applied", applied)
	case mqtt.LeafEnabledSet:
		on, err := mqtt.ParseSwitch(payload)
		if err != nil {
			return fmt.Errorf("zone %s: %w", name, err)
		}
		e.zone.SetEnabled(on)
		s.log.Infow("zone heating switched", "zone", name, "enabled", on)
	case mqtt.LeafPIDSet:
		g, err := mqtt.ParseGains(payload)
		if err != nil {
			return fmt.Errorf("zone %s: %w", name, err)
		}
		if err := e.zone.SetGains(g.Kp, g.Ki, g.Kd); err != nil {
			return fmt.Errorf("zone %s: %w", name, err)
		}
		s.log.Infow("controller gains changed", "zone", name, "kp", g.Kp, "ki", g.Ki, "kd", g.Kd)
	}
	return nil
}

func (s *Service) handleReading(e *zoneEntry, payload []byte, now time.Time) error {
	r, err := mqtt.ParseReading(payload)
	if err != nil {
		return fmt.Errorf("zone %s: %w", e.name, err)
	}

	if r.Battery != nil || r.LinkQuality != nil {
		for _, a := range e.zone.ObserveHealth(now, r.Battery, r.LinkQuality) {
			s.raise(a)
		}
	}

	switch {
	case r.Unavailable:
		if a := e.zone.MarkUnavailable(now); a != nil {
			s.raise(*a)
		}
	case r.Temperature != nil:
		if err := e.zone.UpdateTemperature(*r.Temperature, now); err != nil {
			return fmt.Errorf("zone %s: %w", e.name, err)
		}
		s.log.Debugw("temperature", "zone", e.name, "value", *r.Temperature)
	}
	return nil
}

func (s *Service) handleOutside(payload []byte) error {
	r, err := mqtt.ParseReading(payload)
	if err != nil {
		return fmt.Errorf("outside temperature: %w", err)
	}
	switch {
	case r.Unavailable:
		s.tracker.SetOutsideTemperature(nil)
	case r.Temperature != nil:
		s.tracker.SetOutsideTemperature(r.Temperature)
		s.log.Debugw("outside temperature", "value", *r.Temperature)
	}
	return nil
}

// SetWindowDetection switches window detection for every zone. When
// disabled, open flags are cleared on the next tick.
func (s *Service) SetWindowDetection(on bool) {
	s.mu.Lock()
	s.windowDetection = on
	s.mu.Unlock()
	s.tracker.SetWindowDetection(on)
	s.log.Infow("window detection switched", "enabled", on)
}

// SetMode applies a global heating mode: auto and heat enable every zone,
// off disables every zone.
func (s *Service) SetMode(mode mqtt.Mode) {
	enabled := mode != mqtt.ModeOff
	for _, e := range s.zones {
		e.zone.SetEnabled(enabled)
	}
	s.log.Infow("heating mode changed", "mode", mode, "zones", len(s.zones))
}
