package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/heating-control/internal/config"
	"github.com/sweeney/heating-control/internal/heating"
	"github.com/sweeney/heating-control/internal/logger"
	"github.com/sweeney/heating-control/internal/logic"
	"github.com/sweeney/heating-control/internal/mqtt"
)

const testYAML = `
mqtt:
  broker: tcp://file.local:1883
zones:
  ground_floor:
    temperature_sensor_topic: zigbee2mqtt/ground_floor_sensor
    pump_control_topic: zigbee2mqtt/ground_floor_pump
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heating_config.yaml")
	if err := os.WriteFile(path, []byte(testYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	v := config.NewViper()
	opts, err := parseFlags(nil, v)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.configPath != defaultConfigPath {
		t.Errorf("config path: got %q, want %q", opts.configPath, defaultConfigPath)
	}
	if opts.envFile != defaultEnvFile {
		t.Errorf("env file: got %q, want %q", opts.envFile, defaultEnvFile)
	}
	if opts.printConfig {
		t.Error("print-config should default to false")
	}
	if got := v.GetString("http_addr"); got != config.DefaultHTTPAddr {
		t.Errorf("http_addr: got %q, want %q", got, config.DefaultHTTPAddr)
	}
	if got := v.GetInt("boiler_gpio_pin"); got != -1 {
		t.Errorf("boiler_gpio_pin: got %d, want -1", got)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	v := config.NewViper()
	_, err := parseFlags([]string{
		"--broker", "tcp://flag.local:1883",
		"--http", "",
		"--db", "/var/lib/heating/events.db",
		"--log-level", "debug",
		"--boiler-gpio-pin", "17",
	}, v)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	checks := map[string]string{
		"mqtt.broker":     "tcp://flag.local:1883",
		"http_addr":       "",
		"db_path":         "/var/lib/heating/events.db",
		"log_level":       "debug",
		"boiler_gpio_pin": "17",
	}
	for key, want := range checks {
		if got := v.GetString(key); got != want {
			t.Errorf("%s: got %q, want %q", key, got, want)
		}
	}
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	if _, err := parseFlags([]string{"--poll", "1s"}, config.NewViper()); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestLoadConfigFlagBeatsFile(t *testing.T) {
	cfg, _, err := loadConfig([]string{
		"--config", writeConfig(t),
		"--env-file", noEnvFile(t),
		"--broker", "tcp://flag.local:1883",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://flag.local:1883" {
		t.Errorf("broker: got %q, want flag value", cfg.MQTT.Broker)
	}
	if len(cfg.Zones) != 1 || cfg.Zones[0].Name != "ground_floor" {
		t.Errorf("zones: got %+v, want ground_floor only", cfg.Zones)
	}
}

func TestLoadConfigFileBeatsDefault(t *testing.T) {
	cfg, _, err := loadConfig([]string{"--config", writeConfig(t), "--env-file", noEnvFile(t)})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://file.local:1883" {
		t.Errorf("broker: got %q, want file value", cfg.MQTT.Broker)
	}
	if cfg.HTTPAddr != config.DefaultHTTPAddr {
		t.Errorf("http_addr: got %q, want %q", cfg.HTTPAddr, config.DefaultHTTPAddr)
	}
}

func TestRunPrintConfig(t *testing.T) {
	var buf bytes.Buffer
	err := run([]string{
		"--config", writeConfig(t),
		"--env-file", noEnvFile(t),
		"--print-config",
	}, &buf)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"broker: tcp://file.local:1883", "ground_floor:", "pump_control_topic: zigbee2mqtt/ground_floor_pump"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunMissingConfig(t *testing.T) {
	err := run([]string{
		"--config", filepath.Join(t.TempDir(), "nope.yaml"),
		"--env-file", noEnvFile(t),
	}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func newTestService(t *testing.T, mq *mqtt.FakeClient) *heating.Service {
	t.Helper()
	cfg := config.Default()
	z := config.DefaultZone("ground_floor")
	z.TemperatureSensorTopic = "zigbee2mqtt/ground_floor_sensor"
	z.PumpControlTopic = "zigbee2mqtt/ground_floor_pump"
	cfg.Zones = []config.ZoneConfig{z}

	svc, err := heating.New(heating.Options{
		Config:    cfg,
		Transport: mq,
		Logger:    logger.Nop(),
		Now:       func() time.Time { return time.Date(2026, 1, 10, 7, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("heating.New: %v", err)
	}
	return svc
}

func TestRunLoopShutdownOnSignal(t *testing.T) {
	mq := mqtt.NewFakeClient()
	svc := newTestService(t, mq)

	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM

	errCh := make(chan error, 1)
	go func() { errCh <- runLoop(svc, sig, logger.Nop()) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return after signal")
	}

	pump, ok := mq.Last(mqtt.SetTopic("zigbee2mqtt/ground_floor_pump"))
	if !ok {
		t.Fatal("no pump command published on shutdown")
	}
	if !strings.Contains(string(pump.Payload), string(logic.StateOff)) {
		t.Errorf("pump command: got %s, want OFF", pump.Payload)
	}

	msg, ok := mq.Last(mqtt.NewTopics(config.DefaultTopicPrefix).SystemStatus())
	if !ok {
		t.Fatal("no status event published")
	}
	var body struct {
		Status struct {
			Event  string `json:"event"`
			Reason string `json:"reason"`
		} `json:"status"`
	}
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		t.Fatalf("unmarshal status event: %v", err)
	}
	if body.Status.Event != heating.EventShutdown {
		t.Errorf("event: got %q, want %q", body.Status.Event, heating.EventShutdown)
	}
	if body.Status.Reason != "SIGTERM" {
		t.Errorf("reason: got %q, want SIGTERM", body.Status.Reason)
	}
}
