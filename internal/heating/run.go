package heating

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/heating-control/internal/logic"
	"github.com/sweeney/heating-control/internal/mqtt"
	"github.com/sweeney/heating-control/internal/repository"
	"github.com/sweeney/heating-control/internal/status"
)

// System events published retained on the status topic.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
)

// Schedule carries the timer channels that drive the loop. A nil channel
// never fires.
type Schedule struct {
	Control   <-chan time.Time
	Heartbeat <-chan time.Time
	Thermal   <-chan time.Time
}

// PublishStartup announces the daemon on the status topic with a full
// status snapshot.
func (s *Service) PublishStartup() {
	s.publishLifecycle(EventStartup, "")
}

// Shutdown commands every pump and the boiler OFF, de-energises the local
// relay and publishes the SHUTDOWN event. The loop must have returned.
func (s *Service) Shutdown(reason string) {
	s.mu.Lock()
	for _, e := range s.zones {
		if s.publish(mqtt.SwitchCommand(e.pumpTopic, logic.StateOff)) {
			e.sent = logic.StateOff
		}
	}
	s.publish(mqtt.SwitchCommand(s.cfg.BoilerControlTopic, logic.StateOff))
	s.publish(mqtt.BoilerActiveMessage(s.topics, false))
	s.boilerSent = logic.StateOff
	s.boilerActive = false
	if s.relay != nil {
		if err := s.relay.Set(false); err != nil {
			s.log.Errorw("boiler relay failed", "state", logic.StateOff, "error", err)
		}
		s.relaySent = logic.StateOff
	}
	s.mu.Unlock()

	s.publishLifecycle(EventShutdown, reason)
}

func (s *Service) publishLifecycle(event, reason string) {
	s.tracker.SetMQTTConnected(s.mq.IsConnected())
	snap := s.tracker.Snapshot()
	if s.publish(mqtt.StatusMessage(s.topics, status.FormatStatusEvent(snap, event, reason))) {
		s.log.Infow("published system event", "event", event, "reason", reason)
	}
	msg := event
	if reason != "" {
		msg += ": " + reason
	}
	s.record(repository.Event{OccurredAt: snap.Now, Kind: repository.KindSystem, Message: msg})
}

// Run subscribes to the inbound topics and drives the control loop until ctx
// is cancelled. The first control tick is delayed by the configured startup
// delay so that requested sensor states have time to arrive.
func (s *Service) Run(ctx context.Context) error {
	if err := s.mq.Subscribe(s.InboundTopics(), s.enqueue); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if s.mq.IsConnected() {
		s.NotifyConnected()
	}

	s.log.Infow("control loop started",
		"zones", len(s.zones),
		"control_interval", s.cfg.ControlInterval,
		"heartbeat_interval", s.cfg.HeartbeatInterval,
		"startup_delay", s.cfg.StartupDelay,
		"window_detection", s.WindowDetection(),
	)
	return s.Loop(ctx, Schedule{
		Control:   every(ctx, s.cfg.StartupDelay, s.cfg.ControlInterval),
		Heartbeat: every(ctx, 0, s.cfg.HeartbeatInterval),
		Thermal:   every(ctx, s.cfg.ThermalReportInterval, s.cfg.ThermalReportInterval),
	})
}

// Loop serialises inbound messages, connection notices and the scheduled
// work onto one goroutine. It returns nil when ctx is cancelled.
func (s *Service) Loop(ctx context.Context, sched Schedule) error {
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("control loop stopped", "reason", context.Cause(ctx))
			return nil

		case m := <-s.inbox:
			if err := s.HandleMessage(m.topic, m.payload); err != nil {
				s.log.Errorw("message rejected", "topic", m.topic, "error", err)
			}

		case <-s.connected:
			s.RequestInitialStates()

		case <-sched.Control:
			s.Tick()

		case <-sched.Heartbeat:
			s.Heartbeat()

		case <-sched.Thermal:
			s.ReportThermal()
		}
	}
}

// every fires once after first, then at every interval, until ctx ends.
// A non-positive interval yields a nil channel.
func every(ctx context.Context, first, interval time.Duration) <-chan time.Time {
	if interval <= 0 {
		return nil
	}
	ch := make(chan time.Time, 1)
	go func() {
		timer := time.NewTimer(first)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case t := <-timer.C:
			send(ch, t)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				send(ch, t)
			}
		}
	}()
	return ch
}

// send delivers t unless a previous tick is still pending; a slow loop skips
// ticks rather than queueing them.
func send(ch chan time.Time, t time.Time) {
	select {
	case ch <- t:
	default:
	}
}
