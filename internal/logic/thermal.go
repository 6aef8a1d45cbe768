package logic

import "time"

// PeriodKind distinguishes heating (pump ON) from cooling (pump OFF) periods.
type PeriodKind string

const (
	PeriodHeating PeriodKind = "heating"
	PeriodCooling PeriodKind = "cooling"
)

// InsulationRating grades the average heat-loss rate.
type InsulationRating string

const (
	InsulationUnknown   InsulationRating = "unknown"
	InsulationExcellent InsulationRating = "excellent"
	InsulationGood      InsulationRating = "good"
	InsulationFair      InsulationRating = "fair"
	InsulationPoor      InsulationRating = "poor"
)

// RateInsulation maps a heat-loss rate in °C/h to a rating.
func RateInsulation(lossPerHour float64) InsulationRating {
	switch {
	case lossPerHour < 0.3:
		return InsulationExcellent
	case lossPerHour <= 0.5:
		return InsulationGood
	case lossPerHour <= 0.8:
		return InsulationFair
	default:
		return InsulationPoor
	}
}

// ThermalParams configures the thermal performance monitor.
type ThermalParams struct {
	MinPeriod  time.Duration // shortest period that counts
	BufferSize int           // completed periods kept per kind
}

// ThermalReport summarises the rolling buffers. Heat loss is reported as a
// positive °C/h while the zone cools with the pump OFF; heat gain is °C/h
// while the pump is ON.
type ThermalReport struct {
	AvgHeatLossRate float64
	AvgHeatGainRate float64
	Insulation      InsulationRating
	HeatingSamples  int
	CoolingSamples  int
}

// ThermalMonitor derives heat-loss/heat-gain rates from completed periods of
// constant pump state.
type ThermalMonitor struct {
	params  ThermalParams
	heating []float64
	cooling []float64

	tracking    bool
	periodOn    bool
	periodStart time.Time
	startTemp   float64
	periodValid bool
}

// NewThermalMonitor creates an empty monitor.
func NewThermalMonitor(params ThermalParams) *ThermalMonitor {
	if params.BufferSize < 1 {
		params.BufferSize = 1
	}
	return &ThermalMonitor{params: params}
}

// RecordPeriod adds a completed period. It returns false if the period is
// shorter than MinPeriod and was discarded.
func (m *ThermalMonitor) RecordPeriod(kind PeriodKind, duration time.Duration, tempDelta float64) bool {
	if duration < m.params.MinPeriod || duration <= 0 {
		return false
	}
	hours := duration.Hours()
	switch kind {
	case PeriodHeating:
		m.heating = pushRate(m.heating, tempDelta/hours, m.params.BufferSize)
	case PeriodCooling:
		m.cooling = pushRate(m.cooling, -tempDelta/hours, m.params.BufferSize)
	default:
		return false
	}
	return true
}

// Observe feeds the monitor once per tick. A period closes when the pump state
// differs from the one the period started with; any nil temperature seen
// during a period disqualifies it.
func (m *ThermalMonitor) Observe(now time.Time, temperature *float64, pumpOn bool) {
	if !m.tracking {
		m.start(now, temperature, pumpOn)
		return
	}
	if temperature == nil {
		m.periodValid = false
	}
	if pumpOn == m.periodOn {
		return
	}

	if m.periodValid && temperature != nil {
		kind := PeriodCooling
		if m.periodOn {
			kind = PeriodHeating
		}
		m.RecordPeriod(kind, now.Sub(m.periodStart), *temperature-m.startTemp)
	}
	m.start(now, temperature, pumpOn)
}

func (m *ThermalMonitor) start(now time.Time, temperature *float64, pumpOn bool) {
	if temperature == nil {
		m.tracking = false
		return
	}
	m.tracking = true
	m.periodOn = pumpOn
	m.periodStart = now
	m.startTemp = *temperature
	m.periodValid = true
}

// Report returns the averaged rates and rating.
func (m *ThermalMonitor) Report() ThermalReport {
	r := ThermalReport{
		AvgHeatLossRate: mean(m.cooling),
		AvgHeatGainRate: mean(m.heating),
		Insulation:      InsulationUnknown,
		HeatingSamples:  len(m.heating),
		CoolingSamples:  len(m.cooling),
	}
	if len(m.cooling) > 0 {
		r.Insulation = RateInsulation(r.AvgHeatLossRate)
	}
	return r
}

func pushRate(buf []float64, v float64, size int) []float64 {
	buf = append(buf, v)
	if len(buf) > size {
		buf = buf[len(buf)-size:]
	}
	return buf
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
