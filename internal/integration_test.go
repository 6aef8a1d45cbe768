package internal

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/heating-control/internal/config"
	"github.com/sweeney/heating-control/internal/gpio"
	"github.com/sweeney/heating-control/internal/heating"
	"github.com/sweeney/heating-control/internal/logger"
	"github.com/sweeney/heating-control/internal/mqtt"
	"github.com/sweeney/heating-control/internal/repository"
	"github.com/sweeney/heating-control/internal/status"
)

const (
	groundSensor = "zigbee2mqtt/ground_floor_sensor"
	groundPump   = "zigbee2mqtt/ground_floor_pump"
	firstSensor  = "zigbee2mqtt/first_floor_sensor"
	firstPump    = "zigbee2mqtt/first_floor_pump"

	waitFor = 5 * time.Second
	pollFor = 10 * time.Millisecond
)

// startBroker runs an in-process broker on a free local port and returns its URL.
func startBroker(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	return "tcp://" + addr
}

// recorder collects what the simulated Zigbee network sees.
type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) add(topic string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, topic+" "+string(payload))
}

// has reports whether a message on topic containing fragment was seen.
func (r *recorder) has(topic, fragment string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if strings.HasPrefix(m, topic+" ") && strings.Contains(m[len(topic)+1:], fragment) {
			return true
		}
	}
	return false
}

func connect(t *testing.T, opts mqtt.Options) *mqtt.Client {
	t.Helper()
	opts.Logger = logger.Nop()
	opts.RetryInterval = 100 * time.Millisecond
	c := mqtt.NewClient(opts)
	t.Cleanup(func() { _ = c.Close() })
	require.Eventually(t, c.IsConnected, waitFor, pollFor, "client %s did not connect", opts.ClientID)
	return c
}

func testConfig(broker string) config.Config {
	cfg := config.Default()
	cfg.MQTT.Broker = broker
	cfg.StartupDelay = 50 * time.Millisecond
	cfg.ControlInterval = 50 * time.Millisecond
	cfg.HeartbeatInterval = time.Hour
	cfg.ThermalReportInterval = time.Hour

	ground := config.DefaultZone("ground_floor")
	ground.TemperatureSensorTopic = groundSensor
	ground.PumpControlTopic = groundPump
	first := config.DefaultZone("first_floor")
	first.TemperatureSensorTopic = firstSensor
	first.PumpControlTopic = firstPump
	cfg.Zones = []config.ZoneConfig{first, ground}
	return cfg
}

func TestIntegrationControlLoopOverBroker(t *testing.T) {
	broker := startBroker(t)
	cfg := testConfig(broker)
	topics := mqtt.NewTopics(cfg.TopicPrefix)

	zigbee := &recorder{}
	device := connect(t, mqtt.Options{Broker: broker, ClientID: "zigbee-sim"})
	require.NoError(t, device.Subscribe([]string{
		"zigbee2mqtt/+/set",
		"zigbee2mqtt/+/get",
		cfg.HeartbeatTopic,
		cfg.TopicPrefix + "/#",
	}, zigbee.add))

	ctl := connect(t, mqtt.Options{
		Broker:      broker,
		ClientID:    "heating-control",
		WillTopic:   topics.SystemStatus(),
		WillPayload: status.FormatOfflineEvent("connection lost"),
	})

	db, err := repository.InitDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := repository.NewEventStore(db)
	relay := gpio.NewFakeRelay()

	svc, err := heating.New(heating.Options{
		Config:    cfg,
		Transport: ctl,
		Relay:     relay,
		Events:    store,
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	ctl.SetOnConnect(svc.NotifyConnected)
	svc.PublishStartup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	// The get requests follow the subscription, so readings sent after them
	// reach the service.
	require.Eventually(t, func() bool {
		return zigbee.has(mqtt.GetTopic(groundSensor), "temperature") &&
			zigbee.has(mqtt.GetTopic(groundPump), "state")
	}, waitFor, pollFor, "initial state requests not seen")
	require.Eventually(t, func() bool {
		return zigbee.has(cfg.HeartbeatTopic, "timestamp")
	}, waitFor, pollFor, "heartbeat not seen")

	require.NoError(t, device.Publish(mqtt.Message{
		Topic:    groundSensor,
		Payload:  []byte(`{"temperature":15.2,"battery":90,"linkquality":180}`),
		Delivery: mqtt.DeliveryState,
	}))
	require.NoError(t, device.Publish(mqtt.Message{
		Topic:    firstSensor,
		Payload:  []byte(`{"temperature":23.0,"battery":90,"linkquality":180}`),
		Delivery: mqtt.DeliveryState,
	}))

	require.Eventually(t, func() bool {
		return zigbee.has(mqtt.SetTopic(groundPump), `"ON"`) &&
			zigbee.has(mqtt.SetTopic(firstPump), `"OFF"`) &&
			zigbee.has(mqtt.SetTopic(cfg.BoilerControlTopic), `"ON"`)
	}, waitFor, pollFor, "pump and boiler commands not seen")
	require.Eventually(t, relay.IsOn, waitFor, pollFor, "local relay not energised")
	require.Eventually(t, func() bool {
		return zigbee.has(topics.BoilerActive(), "true")
	}, waitFor, pollFor, "boiler_active not published")

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("control loop did not stop")
	}
	svc.Shutdown("TEST")

	require.Eventually(t, func() bool {
		return zigbee.has(mqtt.SetTopic(groundPump), `"OFF"`) &&
			zigbee.has(mqtt.SetTopic(cfg.BoilerControlTopic), `"OFF"`) &&
			zigbee.has(topics.SystemStatus(), heating.EventShutdown)
	}, waitFor, pollFor, "fail-safe shutdown not seen")
	require.False(t, relay.IsOn(), "relay should be released on shutdown")

	events, err := store.List(context.Background(), repository.Filter{Kind: repository.KindSystem})
	require.NoError(t, err)
	var messages []string
	for _, e := range events {
		messages = append(messages, e.Message)
	}
	require.Contains(t, messages, heating.EventStartup)
	require.Contains(t, messages, fmt.Sprintf("%s: %s", heating.EventShutdown, "TEST"))

	boiler, err := store.List(context.Background(), repository.Filter{Kind: repository.KindBoiler})
	require.NoError(t, err)
	require.NotEmpty(t, boiler, "boiler transitions should be recorded")
}
