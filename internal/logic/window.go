package logic

import "time"

// WindowParams configures the open-window heuristic. Rates are in °C/min.
type WindowParams struct {
	Capacity      int           // samples kept in the rolling buffer
	ShortWindow   time.Duration // typically 1 minute
	LongWindow    time.Duration // typically 2 minutes
	ShortDropRate float64       // open if the short-window drop exceeds this
	LongDropRate  float64       // open if the long-window drop exceeds this
	CloseRate     float64       // close once every evaluated |rate| is below this
}

// Sample is one timestamped temperature reading.
type Sample struct {
	Time        time.Time
	Temperature float64
}

// WindowDetector flags an open window from a rapid temperature drop.
//
// A sub-window is only evaluated once the buffer spans its full length, so a
// cold start never reports an open window.
type WindowDetector struct {
	params  WindowParams
	samples []Sample // oldest first
	open    bool
}

// NewWindowDetector creates a detector with an empty buffer.
func NewWindowDetector(params WindowParams) *WindowDetector {
	if params.Capacity < 2 {
		params.Capacity = 2
	}
	return &WindowDetector{
		params:  params,
		samples: make([]Sample, 0, params.Capacity),
	}
}

// Update appends a sample and re-evaluates the open flag.
// Samples older than the newest one already held are ignored.
func (w *WindowDetector) Update(temperature float64, ts time.Time) bool {
	if n := len(w.samples); n > 0 && !ts.After(w.samples[n-1].Time) {
		return w.open
	}
	if len(w.samples) == w.params.Capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, Sample{Time: ts, Temperature: temperature})
	w.evaluate()
	return w.open
}

func (w *WindowDetector) evaluate() {
	short, shortOK := w.rate(w.params.ShortWindow)
	long, longOK := w.rate(w.params.LongWindow)
	if !shortOK && !longOK {
		// Not enough history: fail toward heating.
		w.open = false
		return
	}

	if !w.open {
		if (shortOK && -short > w.params.ShortDropRate) || (longOK && -long > w.params.LongDropRate) {
			w.open = true
		}
		return
	}

	// Hysteresis: every evaluable window has to be quiet before closing.
	if shortOK && abs(short) >= w.params.CloseRate {
		return
	}
	if longOK && abs(long) >= w.params.CloseRate {
		return
	}
	w.open = false
}

// rate returns the least-squares slope (°C/min) over the samples inside the
// most recent span, and false if the buffer does not cover the span yet.
func (w *WindowDetector) rate(span time.Duration) (float64, bool) {
	n := len(w.samples)
	if n < 2 || span <= 0 {
		return 0, false
	}
	newest := w.samples[n-1].Time
	if newest.Sub(w.samples[0].Time) < span {
		return 0, false
	}

	cutoff := newest.Add(-span)
	var sumX, sumY, sumXX, sumXY float64
	var count float64
	for i := n - 1; i >= 0; i-- {
		s := w.samples[i]
		if s.Time.Before(cutoff) {
			break
		}
		x := s.Time.Sub(newest).Minutes()
		sumX += x
		sumY += s.Temperature
		sumXX += x * x
		sumXY += x * s.Temperature
		count++
	}
	if count < 2 {
		return 0, false
	}
	denom := count*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (count*sumXY - sumX*sumY) / denom, true
}

// Settle closes an open window once no reading has arrived for the long
// span. Sensors report on change, so silence means a steady temperature.
func (w *WindowDetector) Settle(now time.Time) {
	n := len(w.samples)
	if !w.open || n == 0 {
		return
	}
	if now.Sub(w.samples[n-1].Time) >= w.params.LongWindow {
		w.open = false
	}
}

// Open reports the current flag.
func (w *WindowDetector) Open() bool { return w.open }

// ForceClosed clears the flag without touching the buffer. Used when window
// detection is disabled globally.
func (w *WindowDetector) ForceClosed() { w.open = false }

// Reset clears the buffer and the flag.
func (w *WindowDetector) Reset() {
	w.samples = w.samples[:0]
	w.open = false
}

// Samples returns a copy of the buffer, oldest first.
func (w *WindowDetector) Samples() []Sample {
	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Rates returns the current short and long window rates and whether each
// could be evaluated.
func (w *WindowDetector) Rates() (short float64, shortOK bool, long float64, longOK bool) {
	short, shortOK = w.rate(w.params.ShortWindow)
	long, longOK = w.rate(w.params.LongWindow)
	return
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
