package logic

import (
	"math"
	"testing"
	"time"
)

func testThermalParams() ThermalParams {
	return ThermalParams{MinPeriod: 15 * time.Minute, BufferSize: 20}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRateInsulation(t *testing.T) {
	tests := []struct {
		loss float64
		want InsulationRating
	}{
		{0, InsulationExcellent},
		{0.29, InsulationExcellent},
		{0.3, InsulationGood},
		{0.5, InsulationGood},
		{0.51, InsulationFair},
		{0.8, InsulationFair},
		{0.81, InsulationPoor},
		{3, InsulationPoor},
	}
	for _, tt := range tests {
		if got := RateInsulation(tt.loss); got != tt.want {
			t.Errorf("RateInsulation(%v): got %s, want %s", tt.loss, got, tt.want)
		}
	}
}

func TestThermalRecordPeriod(t *testing.T) {
	m := NewThermalMonitor(testThermalParams())

	if !m.RecordPeriod(PeriodCooling, 30*time.Minute, -0.2) {
		t.Fatal("30-minute cooling period should be recorded")
	}
	if !m.RecordPeriod(PeriodHeating, time.Hour, 1.5) {
		t.Fatal("1-hour heating period should be recorded")
	}

	r := m.Report()
	if !approx(r.AvgHeatLossRate, 0.4) {
		t.Errorf("heat loss: got %v, want 0.4", r.AvgHeatLossRate)
	}
	if !approx(r.AvgHeatGainRate, 1.5) {
		t.Errorf("heat gain: got %v, want 1.5", r.AvgHeatGainRate)
	}
	if r.Insulation != InsulationGood {
		t.Errorf("insulation: got %s, want good", r.Insulation)
	}
	if r.CoolingSamples != 1 || r.HeatingSamples != 1 {
		t.Errorf("samples: got cooling=%d heating=%d, want 1/1", r.CoolingSamples, r.HeatingSamples)
	}
}

func TestThermalDiscardsShortPeriods(t *testing.T) {
	m := NewThermalMonitor(testThermalParams())
	if m.RecordPeriod(PeriodCooling, 14*time.Minute+59*time.Second, -1) {
		t.Error("period shorter than 15 minutes should be discarded")
	}
	if !m.RecordPeriod(PeriodCooling, 15*time.Minute, -0.1) {
		t.Error("15-minute period should be recorded")
	}
	if got := m.Report().CoolingSamples; got != 1 {
		t.Errorf("cooling samples: got %d, want 1", got)
	}
}

func TestThermalBufferKeepsLast20(t *testing.T) {
	m := NewThermalMonitor(testThermalParams())
	// Five poor periods followed by twenty excellent ones.
	for i := 0; i < 5; i++ {
		m.RecordPeriod(PeriodCooling, time.Hour, -2)
	}
	for i := 0; i < 20; i++ {
		m.RecordPeriod(PeriodCooling, time.Hour, -0.1)
	}
	r := m.Report()
	if r.CoolingSamples != 20 {
		t.Errorf("cooling samples: got %d, want 20", r.CoolingSamples)
	}
	if !approx(r.AvgHeatLossRate, 0.1) {
		t.Errorf("heat loss: got %v, want 0.1", r.AvgHeatLossRate)
	}
	if r.Insulation != InsulationExcellent {
		t.Errorf("insulation: got %s, want excellent", r.Insulation)
	}
}

func TestThermalReportUnknownWithoutCooling(t *testing.T) {
	m := NewThermalMonitor(testThermalParams())
	m.RecordPeriod(PeriodHeating, time.Hour, 1)
	if got := m.Report().Insulation; got != InsulationUnknown {
		t.Errorf("insulation: got %s, want unknown", got)
	}
}

func TestThermalObserve(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	temp := func(v float64) *float64 { return &v }

	t.Run("complete periods", func(t *testing.T) {
		m := NewThermalMonitor(testThermalParams())
		m.Observe(start, temp(20), false)
		m.Observe(start.Add(15*time.Minute), temp(19.9), false)
		// Pump turns ON after 30 minutes of cooling by 0.3°C.
		m.Observe(start.Add(30*time.Minute), temp(19.7), true)
		// Heating for 30 minutes gains 0.5°C.
		m.Observe(start.Add(60*time.Minute), temp(20.2), false)

		r := m.Report()
		if r.CoolingSamples != 1 || !approx(r.AvgHeatLossRate, 0.6) {
			t.Errorf("cooling: got %d samples at %v, want 1 at 0.6", r.CoolingSamples, r.AvgHeatLossRate)
		}
		if r.HeatingSamples != 1 || !approx(r.AvgHeatGainRate, 1.0) {
			t.Errorf("heating: got %d samples at %v, want 1 at 1.0", r.HeatingSamples, r.AvgHeatGainRate)
		}
	})

	t.Run("nil temperature disqualifies period", func(t *testing.T) {
		m := NewThermalMonitor(testThermalParams())
		m.Observe(start, temp(20), false)
		m.Observe(start.Add(10*time.Minute), nil, false)
		m.Observe(start.Add(20*time.Minute), temp(19.8), false)
		m.Observe(start.Add(30*time.Minute), temp(19.7), true)
		if got := m.Report().CoolingSamples; got != 0 {
			t.Errorf("cooling samples: got %d, want 0", got)
		}
	})

	t.Run("short period discarded", func(t *testing.T) {
		m := NewThermalMonitor(testThermalParams())
		m.Observe(start, temp(20), true)
		m.Observe(start.Add(5*time.Minute), temp(20.3), false)
		if got := m.Report().HeatingSamples; got != 0 {
			t.Errorf("heating samples: got %d, want 0", got)
		}
	})
}
