// Package heating coordinates the zones. It routes inbound MQTT messages to
// them, runs the periodic control tick, derives and drives the boiler, and
// publishes zone state, alerts and the liveness heartbeat.
package heating

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/heating-control/internal/config"
	"github.com/sweeney/heating-control/internal/gpio"
	"github.com/sweeney/heating-control/internal/logger"
	"github.com/sweeney/heating-control/internal/logic"
	"github.com/sweeney/heating-control/internal/mqtt"
	"github.com/sweeney/heating-control/internal/repository"
	"github.com/sweeney/heating-control/internal/status"
)

var (
	// ErrUnknownZone is returned for commands addressed to a zone that is not configured.
	ErrUnknownZone = errors.New("unknown zone")
	// ErrUnknownTopic is returned for messages on a topic the service does not handle.
	ErrUnknownTopic = errors.New("unknown topic")
)

// inboxSize bounds the inbound messages queued between ticks.
const inboxSize = 256

// Transport is the broker surface the service needs.
type Transport interface {
	mqtt.Publisher
	mqtt.Subscriber
	mqtt.ConnectionStatus
}

// EventRecorder persists alerts and transitions.
type EventRecorder interface {
	Append(ctx context.Context, e repository.Event) error
}

// Options configures a Service.
type Options struct {
	Config    config.Config
	Transport Transport
	Relay     gpio.Relay    // optional local boiler relay
	Events    EventRecorder // optional event history
	Logger    *logger.Logger
	Now       func() time.Time
}

type zoneEntry struct {
	name        string
	zone        *logic.Zone
	sensorTopic string
	pumpTopic   string
	tick        func(now time.Time, windowDetection bool) logic.TickResult

	// sent is the last pump command the broker accepted. Empty until the
	// first publish succeeds and after any failure, so the command is retried.
	sent logic.State
}

// Service is the heating control loop.
type Service struct {
	cfg     config.Config
	topics  mqtt.Topics
	mq      Transport
	relay   gpio.Relay
	events  EventRecorder
	tracker *status.Tracker
	log     *logger.Logger
	now     func() time.Time

	zones    []*zoneEntry
	byName   map[string]*zoneEntry
	bySensor map[string]*zoneEntry

	heartbeat *logic.Heartbeat
	inbox     chan inbound
	connected chan struct{}

	mu              sync.Mutex
	windowDetection bool
	boilerActive    bool
	boilerKnown     bool
	boilerSent      logic.State
	relaySent       logic.State
}

type inbound struct {
	topic   string
	payload []byte
}

// New builds the zones from cfg. The configuration must already be valid.
func New(opts Options) (*Service, error) {
	if opts.Transport == nil {
		return nil, errors.New("heating: transport is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfg := opts.Config
	start := opts.Now()

	s := &Service{
		cfg:    cfg,
		topics: mqtt.NewTopics(cfg.TopicPrefix),
		mq:     opts.Transport,
		relay:  opts.Relay,
		events: opts.Events,
		tracker: status.NewTracker(start, status.Config{
			Broker:            cfg.MQTT.Broker,
			HTTPAddr:          cfg.HTTPAddr,
			ControlInterval:   cfg.ControlInterval,
			HeartbeatInterval: cfg.HeartbeatInterval,
			BoilerTopic:       cfg.BoilerControlTopic,
			HeartbeatTopic:    cfg.HeartbeatTopic,
			BoilerGPIOPin:     cfg.BoilerGPIOPin,
		}),
		log:             opts.Logger,
		now:             opts.Now,
		byName:          make(map[string]*zoneEntry, len(cfg.Zones)),
		bySensor:        make(map[string]*zoneEntry, len(cfg.Zones)),
		heartbeat:       logic.NewHeartbeat(start),
		inbox:           make(chan inbound, inboxSize),
		connected:       make(chan struct{}, 1),
		windowDetection: cfg.WindowDetection,
	}
	s.tracker.SetClock(opts.Now)
	s.tracker.SetWindowDetection(cfg.WindowDetection)

	for _, zc := range cfg.Zones {
		z, err := logic.NewZone(zc.ZoneParams(), start)
		if err != nil {
			return nil, fmt.Errorf("create zone %s: %w", zc.Name, err)
		}
		e := &zoneEntry{
			name:        zc.Name,
			zone:        z,
			sensorTopic: zc.TemperatureSensorTopic,
			pumpTopic:   zc.PumpControlTopic,
			tick:        z.Tick,
		}
		s.zones = append(s.zones, e)
		s.byName[e.name] = e
		s.bySensor[e.sensorTopic] = e
	}
	return s, nil
}

// Tracker returns the status tracker fed by the control loop.
func (s *Service) Tracker() *status.Tracker { return s.tracker }

// Zone returns the named zone.
func (s *Service) Zone(name string) (*logic.Zone, error) {
	e, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	return e.zone, nil
}

// WindowDetection reports whether global window detection is enabled.
func (s *Service) WindowDetection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowDetection
}

// InboundTopics lists every topic the service subscribes to.
func (s *Service) InboundTopics() []string {
	var topics []string
	for _, e := range s.zones {
		topics = append(topics, e.sensorTopic)
	}
	if s.cfg.OutsideTemperatureTopic != "" {
		topics = append(topics, s.cfg.OutsideTemperatureTopic)
	}
	for _, e := range s.zones {
		topics = append(topics, s.topics.ZoneCommands(e.name)...)
	}
	return append(topics, s.topics.WindowDetectionSet(), s.topics.ModeSet())
}

// NotifyConnected schedules the initial-state requests on the control
// goroutine. Safe to call from the MQTT client's callbacks.
func (s *Service) NotifyConnected() {
	select {
	case s.connected <- struct{}{}:
	default:
	}
}

// enqueue hands an inbound message to the control goroutine without blocking
// the MQTT client.
func (s *Service) enqueue(topic string, payload []byte) {
	select {
	case s.inbox <- inbound{topic: topic, payload: append([]byte(nil), payload...)}:
	default:
		s.log.Errorw("inbound queue full, message dropped", "topic", topic)
	}
}

// publish sends msg, logging failures. Publish errors never stop the loop.
func (s *Service) publish(msg mqtt.Message) bool {
	if err := s.mq.Publish(msg); err != nil {
		s.log.Warnw("publish failed", "topic", msg.Topic, "error", err)
		return false
	}
	return true
}

func (s *Service) record(e repository.Event) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Warnw("event not recorded", "kind", e.Kind, "zone", e.Zone, "error", err)
	}
}

// raise logs, publishes and records an alert.
func (s *Service) raise(a logic.Alert) {
	kv := []interface{}{"code", a.Code, "zone", a.Zone, "message", a.Message}
	if a.Severity == logic.SeverityCritical {
		s.log.Errorw("alert", kv...)
	} else {
		s.log.Warnw("alert", kv...)
	}
	s.publish(mqtt.AlertMessage(s.topics, a))
	s.record(repository.Event{
		OccurredAt: a.Timestamp,
		Kind:       repository.KindAlert,
		Zone:       a.Zone,
		Code:       string(a.Code),
		Severity:   string(a.Severity),
		Message:    a.Message,
	})
}
