package logic

import (
	"fmt"
	"time"
)

// HealthParams configures the sensor health thresholds.
type HealthParams struct {
	BatteryLow     float64 // percent
	LinkQualityLow float64 // Zigbee LQI
}

// SensorHealth latches low-battery and weak-link alerts so each is raised
// once until the reading recovers.
type SensorHealth struct {
	params      HealthParams
	battery     *float64
	linkQuality *float64
	batteryLow  bool
	linkLow     bool
}

// NewSensorHealth creates a health tracker.
func NewSensorHealth(params HealthParams) *SensorHealth {
	return &SensorHealth{params: params}
}

// Observe records optional battery and link-quality readings and returns any
// newly raised alerts.
func (h *SensorHealth) Observe(now time.Time, battery, linkQuality *float64) []Alert {
	var alerts []Alert
	if battery != nil {
		v := *battery
		h.battery = &v
		low := v < h.params.BatteryLow
		if low && !h.batteryLow {
			alerts = append(alerts, Alert{
				Timestamp: now,
				Code:      AlertBatteryLow,
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("sensor battery at %.0f%% (threshold %.0f%%)", v, h.params.BatteryLow),
			})
		}
		h.batteryLow = low
	}
	if linkQuality != nil {
		v := *linkQuality
		h.linkQuality = &v
		low := v < h.params.LinkQualityLow
		if low && !h.linkLow {
			alerts = append(alerts, Alert{
				Timestamp: now,
				Code:      AlertLinkQualityLow,
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("sensor link quality at %.0f (threshold %.0f)", v, h.params.LinkQualityLow),
			})
		}
		h.linkLow = low
	}
	return alerts
}

// Battery returns the last battery reading, if any.
func (h *SensorHealth) Battery() *float64 { return h.battery }

// LinkQuality returns the last link-quality reading, if any.
func (h *SensorHealth) LinkQuality() *float64 { return h.linkQuality }
