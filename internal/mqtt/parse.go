package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidPayload is returned for inbound messages that cannot be parsed.
var ErrInvalidPayload = errors.New("invalid payload")

// Reading is a parsed sensor message. Temperature is nil when the message
// carried none; Unavailable is set for an explicit "unavailable".
type Reading struct {
	Temperature *float64
	Unavailable bool
	Battery     *float64
	LinkQuality *float64
}

// sensorJSON covers the Zigbee2MQTT and Home Assistant sensor shapes.
type sensorJSON struct {
	Temperature *json.Number `json:"temperature"`
	State       *string      `json:"state"`
	Battery     *float64     `json:"battery"`
	LinkQuality *float64     `json:"linkquality"`
}

// ParseReading decodes a temperature sensor message: a bare number,
// "unavailable", Zigbee2MQTT JSON ({"temperature":..,"battery":..,
// "linkquality":..}) or a Home Assistant state ({"state":"21.5"}).
func ParseReading(payload []byte) (Reading, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return Reading{}, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	if isUnavailable(s) {
		return Reading{Unavailable: true}, nil
	}
	if v, err := parseNumber(s); err == nil {
		return Reading{Temperature: &v}, nil
	}

	var body sensorJSON
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return Reading{}, fmt.Errorf("%w: %q", ErrInvalidPayload, truncate(s))
	}

	r := Reading{Battery: body.Battery, LinkQuality: body.LinkQuality}
	switch {
	case body.Temperature != nil:
		v, err := parseNumber(body.Temperature.String())
		if err != nil {
			return Reading{}, fmt.Errorf("%w: temperature %q", ErrInvalidPayload, body.Temperature.String())
		}
		r.Temperature = &v
	case body.State != nil:
		if isUnavailable(*body.State) {
			r.Unavailable = true
			break
		}
		v, err := parseNumber(*body.State)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: state %q", ErrInvalidPayload, *body.State)
		}
		r.Temperature = &v
	}
	if r.Temperature == nil && !r.Unavailable && r.Battery == nil && r.LinkQuality == nil {
		return Reading{}, fmt.Errorf("%w: no temperature in %q", ErrInvalidPayload, truncate(s))
	}
	return r, nil
}

// ParseSetpoint decodes a bare number or {"setpoint":x}.
func ParseSetpoint(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if v, err := parseNumber(s); err == nil {
		return v, nil
	}
	var body struct {
		Setpoint *float64 `json:"setpoint"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Setpoint == nil {
		return 0, fmt.Errorf("%w: setpoint %q", ErrInvalidPayload, truncate(s))
	}
	return *body.Setpoint, nil
}

// ParseSwitch decodes ON/OFF, true/false, 1/0, or a JSON object with an
// "enabled" or "state" field.
func ParseSwitch(payload []byte) (bool, error) {
	s := strings.TrimSpace(string(payload))
	if v, ok := parseBoolWord(s); ok {
		return v, nil
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err == nil {
		for _, key := range []string{"enabled", "state"} {
			switch v := body[key].(type) {
			case bool:
				return v, nil
			case string:
				if b, ok := parseBoolWord(v); ok {
					return b, nil
				}
			}
		}
	}
	return false, fmt.Errorf("%w: switch %q", ErrInvalidPayload, truncate(s))
}

// Gains is a parsed PID gain update.
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// ParseGains decodes {"kp":x,"ki":y,"kd":z}. All three are required.
func ParseGains(payload []byte) (Gains, error) {
	var body struct {
		Kp *float64 `json:"kp"`
		Ki *float64 `json:"ki"`
		Kd *float64 `json:"kd"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return Gains{}, fmt.Errorf("%w: gains: %v", ErrInvalidPayload, err)
	}
	if body.Kp == nil || body.Ki == nil || body.Kd == nil {
		return Gains{}, fmt.Errorf("%w: gains need kp, ki and kd", ErrInvalidPayload)
	}
	return Gains{Kp: *body.Kp, Ki: *body.Ki, Kd: *body.Kd}, nil
}

// Mode is a global heating mode.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeHeat Mode = "heat"
	ModeOff  Mode = "off"
)

// ParseMode decodes a bare mode word or {"mode":"..."}.
func ParseMode(payload []byte) (Mode, error) {
	s := strings.TrimSpace(string(payload))
	var body struct {
		Mode string `json:"mode"`
	}
	if strings.HasPrefix(s, "{") {
		if err := json.Unmarshal(payload, &body); err != nil {
			return "", fmt.Errorf("%w: mode %q", ErrInvalidPayload, truncate(s))
		}
		s = body.Mode
	}
	s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), `"`)
	switch Mode(s) {
	case ModeAuto, ModeHeat, ModeOff:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: mode %q", ErrInvalidPayload, truncate(s))
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Trim(s, `"`), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite number", ErrInvalidPayload)
	}
	return v, nil
}

func parseBoolWord(s string) (bool, bool) {
	switch strings.ToLower(strings.Trim(s, `"`)) {
	case "on", "true", "1", "enable", "enabled":
		return true, true
	case "off", "false", "0", "disable", "disabled":
		return false, true
	}
	return false, false
}

func isUnavailable(s string) bool {
	return strings.EqualFold(strings.Trim(s, `"`), "unavailable")
}

const maxQuoted = 64

// truncate shortens s to at most maxQuoted bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxQuoted {
		return s
	}
	cut := maxQuoted
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
