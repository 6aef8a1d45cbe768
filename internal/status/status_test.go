package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/heating-control/internal/logic"
)

func ptr(v float64) *float64 { return &v }

func testConfig() Config {
	return Config{
		Broker:            "tcp://localhost:1883",
		HTTPAddr:          ":8080",
		ControlInterval:   30 * time.Second,
		HeartbeatInterval: 5 * time.Minute,
		BoilerTopic:       "zigbee2mqtt/boiler_relay",
		HeartbeatTopic:    "boiler_heat_request/heartbeat",
		BoilerGPIOPin:     -1,
	}
}

func groundFloor(now time.Time) logic.ZoneState {
	return logic.ZoneState{
		Name:           "ground_floor",
		Temperature:    ptr(19.5),
		LastUpdate:     now,
		Setpoint:       20,
		Enabled:        true,
		Pump:           logic.StateOn,
		PumpChangedAt:  now.Add(-5 * time.Minute),
		Duty:           0.4567,
		Status:         logic.StatusHeating,
		CyclesThisHour: 2,
		Controller:     logic.ControllerPID,
		Thermal: logic.ThermalReport{
			AvgHeatLossRate: 0.4,
			Insulation:      logic.InsulationGood,
			CoolingSamples:  3,
		},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.ControlInterval != 30*time.Second {
		t.Errorf("Config.ControlInterval: got %v, want 30s", snap.Config.ControlInterval)
	}
	if !snap.WindowDetection {
		t.Error("expected WindowDetection=true initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if len(snap.Zones) != 0 {
		t.Errorf("Zones: got %d, want 0", len(snap.Zones))
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(now, testConfig())

	tr.Update(now, []logic.ZoneState{groundFloor(now)}, true)
	tr.Update(now.Add(30*time.Second), []logic.ZoneState{groundFloor(now)}, true)

	snap := tr.Snapshot()
	if !snap.BoilerActive {
		t.Error("expected BoilerActive=true")
	}
	if snap.Ticks != 2 {
		t.Errorf("Ticks: got %d, want 2", snap.Ticks)
	}
	if !snap.LastTick.Equal(now.Add(30 * time.Second)) {
		t.Errorf("LastTick: got %v", snap.LastTick)
	}
	z, ok := snap.Zone("ground_floor")
	if !ok {
		t.Fatal("ground_floor missing from snapshot")
	}
	if z.Pump != logic.StateOn {
		t.Errorf("Pump: got %q, want ON", z.Pump)
	}
	if _, ok := snap.Zone("attic"); ok {
		t.Error("unexpected zone attic")
	}
}

func TestSetters(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())

	tr.SetMQTTConnected(true)
	tr.SetWindowDetection(false)
	outside := 4.5
	tr.SetOutsideTemperature(&outside)
	outside = 99

	snap := tr.Snapshot()
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	if snap.WindowDetection {
		t.Error("expected WindowDetection=false")
	}
	if snap.OutsideTemperature == nil || *snap.OutsideTemperature != 4.5 {
		t.Errorf("OutsideTemperature: got %v, want 4.5", snap.OutsideTemperature)
	}

	tr.SetOutsideTemperature(nil)
	if tr.Snapshot().OutsideTemperature != nil {
		t.Error("expected OutsideTemperature cleared")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}

	fixed := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return fixed })
	if got := tr.Snapshot().Now; !got.Equal(fixed) {
		t.Errorf("Now with clock: got %v, want %v", got, fixed)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(now, Config{})
	zones := []logic.ZoneState{groundFloor(now)}
	tr.Update(now, zones, true)

	// Mutating the caller's slice must not leak into the tracker.
	zones[0].Pump = logic.StateOff

	snap1 := tr.Snapshot()
	snap1.Zones[0].Setpoint = 5

	tr.Update(now.Add(time.Minute), nil, false)

	if snap1.Zones[0].Pump != logic.StateOn {
		t.Error("snapshot should be a copy; Pump was modified")
	}
	if !snap1.BoilerActive {
		t.Error("snapshot should be a copy; BoilerActive was modified")
	}
	if len(tr.Snapshot().Zones) != 0 {
		t.Error("tracker zones should be replaced by the latest update")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(15 * time.Minute)
	snap := Snapshot{
		Zones:              []logic.ZoneState{groundFloor(now)},
		BoilerActive:       true,
		WindowDetection:    true,
		OutsideTemperature: ptr(3),
		LastTick:           now,
		Ticks:              30,
		StartTime:          start,
		Now:                now,
		MQTTConnected:      true,
		Config:             testConfig(),
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if !s.BoilerActive {
		t.Error("expected BoilerActive=true")
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Config.ControlIntervalMs != 30000 {
		t.Errorf("Config.ControlIntervalMs: got %d, want 30000", s.Config.ControlIntervalMs)
	}
	if s.OutsideTemperature == nil || *s.OutsideTemperature != 3 {
		t.Errorf("OutsideTemperature: got %v, want 3", s.OutsideTemperature)
	}
	if len(s.Zones) != 1 {
		t.Fatalf("Zones: got %d, want 1", len(s.Zones))
	}
	z := s.Zones[0]
	if z.Name != "ground_floor" || z.Pump != "ON" || z.Status != "heating" {
		t.Errorf("zone: got %+v", z)
	}
	if z.DutyPercent != 45.7 {
		t.Errorf("DutyPercent: got %v, want 45.7", z.DutyPercent)
	}
	if z.Temperature == nil || *z.Temperature != 19.5 {
		t.Errorf("Temperature: got %v, want 19.5", z.Temperature)
	}
	if z.Thermal.Insulation != "good" {
		t.Errorf("Thermal.Insulation: got %q, want good", z.Thermal.Insulation)
	}
	// Event and Reason should be omitted
	if s.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", s.Event)
	}
	if s.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", s.Reason)
	}
}

func TestFormatJSONNoReading(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	z := groundFloor(now)
	z.Temperature = nil
	z.Pump = ""

	data := FormatJSON(Snapshot{Zones: []logic.ZoneState{z}, StartTime: now, Now: now})

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	zones := raw["status"].(map[string]interface{})["zones"].([]interface{})
	zone := zones[0].(map[string]interface{})
	if v, exists := zone["temperature"]; !exists || v != nil {
		t.Errorf("temperature: got %v, want explicit null", v)
	}
	if zone["pump"] != "UNKNOWN" {
		t.Errorf("pump: got %v, want UNKNOWN", zone["pump"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        testConfig(),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "STARTUP" {
		t.Errorf("Event: got %q, want STARTUP", parsed.Status.Event)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.Zones == nil {
		t.Error("zones should encode as an empty list, not null")
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if _, exists := status["last_tick"]; exists {
		t.Error("last_tick should be omitted before the first tick")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(now, Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(now.Add(time.Duration(i)*time.Second), []logic.ZoneState{groundFloor(now)}, i%2 == 0)
			tr.SetMQTTConnected(i%2 == 0)
			v := float64(i)
			tr.SetOutsideTemperature(&v)
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}

func TestFormatOfflineEvent(t *testing.T) {
	var parsed StatusJSON
	if err := json.Unmarshal(FormatOfflineEvent("connection lost"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "OFFLINE" {
		t.Errorf("Event: got %q, want OFFLINE", parsed.Status.Event)
	}
	if parsed.Status.Reason != "connection lost" {
		t.Errorf("Reason: got %q, want connection lost", parsed.Status.Reason)
	}
}
