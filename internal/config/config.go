// Package config defines the controller configuration, its defaults and its
// validation rules, and loads it with viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/heating-control/internal/logger"
	"github.com/sweeney/heating-control/internal/logic"
)

// Zone defaults.
const (
	DefaultSetpoint           = 20.0
	DefaultMinSetpoint        = 5.0
	DefaultMaxSetpoint        = 30.0
	DefaultSetpointResetDelta = 2.0
	DefaultControllerType     = "pid"
	DefaultKp                 = 5.0
	DefaultKi                 = 0.1
	DefaultKd                 = 1.0
	DefaultIntegralLimit      = 5.0
	DefaultHysteresis         = 0.2
	DefaultWindowBufferSize   = 20
	DefaultWindowShortSpan    = time.Minute
	DefaultWindowLongSpan     = 2 * time.Minute
	DefaultWindowShortDrop    = 0.3
	DefaultWindowLongDrop     = 0.2
	DefaultWindowCloseRate    = 0.1
	DefaultPumpMinOnTime      = 10 * time.Minute
	DefaultPumpMinOffTime     = 10 * time.Minute
	DefaultDutyOnThreshold    = 0.30
	DefaultDutyOffThreshold   = 0.05
	DefaultCycleWarnPerHour   = 6
	DefaultCycleAlertPerHour  = 10
	DefaultSensorTimeout      = 20 * time.Minute
	DefaultMaxRuntime         = 6 * time.Hour
	DefaultThermalMinPeriod   = 15 * time.Minute
	DefaultThermalBufferSize  = 20
	DefaultMinPlausibleTemp   = -30.0
	DefaultMaxPlausibleTemp   = 60.0
	DefaultBatteryLow         = 20.0
	DefaultLinkQualityLow     = 100.0
)

// System defaults.
const (
	DefaultBroker                = "tcp://192.168.1.10:1883"
	DefaultClientID              = "heating_control"
	DefaultOfflineBufferSize     = 100
	DefaultLogLevel              = logger.InfoLevel
	DefaultHTTPAddr              = ":8080"
	DefaultGPIOChip              = "gpiochip0"
	DefaultControlInterval       = 30 * time.Second
	DefaultHeartbeatInterval     = 5 * time.Minute
	DefaultStartupDelay          = 5 * time.Second
	DefaultThermalReportInterval = time.Hour
	DefaultTopicPrefix           = "heating"
	DefaultBoilerTopic           = "zigbee2mqtt/boiler_relay"
	DefaultHeartbeatTopic        = "boiler_heat_request/heartbeat"
)

// Validation errors.
var (
	ErrNoZones               = errors.New("no zones configured")
	ErrInvalidSetpointRange  = errors.New("invalid setpoint range")
	ErrInvalidControllerType = errors.New("invalid controller type")
	ErrInvalidGains          = errors.New("invalid controller gains")
	ErrInvalidThreshold      = errors.New("invalid threshold")
	ErrInvalidDuration       = errors.New("invalid duration")
	ErrMissingTopic          = errors.New("missing topic")
	ErrDuplicateTopic        = errors.New("duplicate topic")
	ErrInvalidLogLevel       = errors.New("invalid log level")
	ErrInvalidZoneName       = errors.New("invalid zone name")
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker     string `mapstructure:"broker" yaml:"broker"`
	ClientID   string `mapstructure:"client_id" yaml:"client_id"`
	Username   string `mapstructure:"username" yaml:"username,omitempty"`
	Password   string `mapstructure:"password" yaml:"-"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// ZoneConfig is the configuration of one heating zone. Keys mirror the
// heating_config.yaml layout used by the installation.
type ZoneConfig struct {
	Name string `mapstructure:"-" yaml:"-"`

	TemperatureSensorTopic string `mapstructure:"temperature_sensor_topic" yaml:"temperature_sensor_topic"`
	PumpControlTopic       string `mapstructure:"pump_control_topic" yaml:"pump_control_topic"`

	DefaultSetpoint    float64 `mapstructure:"default_setpoint" yaml:"default_setpoint"`
	MinSetpoint        float64 `mapstructure:"min_setpoint" yaml:"min_setpoint"`
	MaxSetpoint        float64 `mapstructure:"max_setpoint" yaml:"max_setpoint"`
	SetpointResetDelta float64 `mapstructure:"setpoint_reset_delta" yaml:"setpoint_reset_delta"`

	ControllerType   string  `mapstructure:"controller_type" yaml:"controller_type"`
	PIDKp            float64 `mapstructure:"pid_kp" yaml:"pid_kp"`
	PIDKi            float64 `mapstructure:"pid_ki" yaml:"pid_ki"`
	PIDKd            float64 `mapstructure:"pid_kd" yaml:"pid_kd"`
	PIDIntegralLimit float64 `mapstructure:"pid_integral_limit" yaml:"pid_integral_limit"`
	Hysteresis       float64 `mapstructure:"hysteresis" yaml:"hysteresis"`

	WindowBufferSize    int           `mapstructure:"window_buffer_size" yaml:"window_buffer_size"`
	WindowShortSpan     time.Duration `mapstructure:"window_short_span" yaml:"window_short_span"`
	WindowLongSpan      time.Duration `mapstructure:"window_long_span" yaml:"window_long_span"`
	WindowShortDropRate float64       `mapstructure:"window_short_drop_rate" yaml:"window_short_drop_rate"`
	WindowLongDropRate  float64       `mapstructure:"window_long_drop_rate" yaml:"window_long_drop_rate"`
	WindowCloseRate     float64       `mapstructure:"window_close_rate" yaml:"window_close_rate"`

	PumpMinOnTime     time.Duration `mapstructure:"pump_min_on_time" yaml:"pump_min_on_time"`
	PumpMinOffTime    time.Duration `mapstructure:"pump_min_off_time" yaml:"pump_min_off_time"`
	DutyOnThreshold   float64       `mapstructure:"duty_on_threshold" yaml:"duty_on_threshold"`
	DutyOffThreshold  float64       `mapstructure:"duty_off_threshold" yaml:"duty_off_threshold"`
	CycleWarnPerHour  int           `mapstructure:"cycle_warn_per_hour" yaml:"cycle_warn_per_hour"`
	CycleAlertPerHour int           `mapstructure:"cycle_alert_per_hour" yaml:"cycle_alert_per_hour"`

	SensorTimeout time.Duration `mapstructure:"sensor_timeout" yaml:"sensor_timeout"`
	MaxRuntime    time.Duration `mapstructure:"max_runtime" yaml:"max_runtime"`

	ThermalMinPeriod  time.Duration `mapstructure:"thermal_min_period" yaml:"thermal_min_period"`
	ThermalBufferSize int           `mapstructure:"thermal_buffer_size" yaml:"thermal_buffer_size"`

	MinPlausibleTemp float64 `mapstructure:"min_plausible_temp" yaml:"min_plausible_temp"`
	MaxPlausibleTemp float64 `mapstructure:"max_plausible_temp" yaml:"max_plausible_temp"`
	BatteryLow       float64 `mapstructure:"battery_low" yaml:"battery_low"`
	LinkQualityLow   float64 `mapstructure:"link_quality_low" yaml:"link_quality_low"`
}

// Config is the complete controller configuration.
type Config struct {
	MQTT     MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`
	LogLevel string     `mapstructure:"log_level" yaml:"log_level"`
	HTTPAddr string     `mapstructure:"http_addr" yaml:"http_addr"`
	DBPath   string     `mapstructure:"db_path" yaml:"db_path"`

	BoilerGPIOPin       int    `mapstructure:"boiler_gpio_pin" yaml:"boiler_gpio_pin"` // negative disables the local relay
	BoilerGPIOActiveLow bool   `mapstructure:"boiler_gpio_active_low" yaml:"boiler_gpio_active_low"`
	GPIOChip            string `mapstructure:"gpio_chip" yaml:"gpio_chip"`

	ControlInterval       time.Duration `mapstructure:"control_interval" yaml:"control_interval"`
	HeartbeatInterval     time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	StartupDelay          time.Duration `mapstructure:"startup_delay" yaml:"startup_delay"`
	ThermalReportInterval time.Duration `mapstructure:"thermal_report_interval" yaml:"thermal_report_interval"`
	WindowDetection       bool          `mapstructure:"window_detection" yaml:"window_detection"`

	TopicPrefix             string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	BoilerControlTopic      string `mapstructure:"boiler_control_topic" yaml:"boiler_control_topic"`
	OutsideTemperatureTopic string `mapstructure:"outside_temperature_topic" yaml:"outside_temperature_topic,omitempty"`
	HeartbeatTopic          string `mapstructure:"heartbeat_topic" yaml:"heartbeat_topic"`

	Zones []ZoneConfig `mapstructure:"-" yaml:"-"`
}

// DefaultZone returns a zone configuration with every field at its default.
// Topics are left empty; they have no sensible default.
func DefaultZone(name string) ZoneConfig {
	return ZoneConfig{
		Name:                name,
		DefaultSetpoint:     DefaultSetpoint,
		MinSetpoint:         DefaultMinSetpoint,
		MaxSetpoint:         DefaultMaxSetpoint,
		SetpointResetDelta:  DefaultSetpointResetDelta,
		ControllerType:      DefaultControllerType,
		PIDKp:               DefaultKp,
		PIDKi:               DefaultKi,
		PIDKd:               DefaultKd,
		PIDIntegralLimit:    DefaultIntegralLimit,
		Hysteresis:          DefaultHysteresis,
		WindowBufferSize:    DefaultWindowBufferSize,
		WindowShortSpan:     DefaultWindowShortSpan,
		WindowLongSpan:      DefaultWindowLongSpan,
		WindowShortDropRate: DefaultWindowShortDrop,
		WindowLongDropRate:  DefaultWindowLongDrop,
		WindowCloseRate:     DefaultWindowCloseRate,
		PumpMinOnTime:       DefaultPumpMinOnTime,
		PumpMinOffTime:      DefaultPumpMinOffTime,
		DutyOnThreshold:     DefaultDutyOnThreshold,
		DutyOffThreshold:    DefaultDutyOffThreshold,
		CycleWarnPerHour:    DefaultCycleWarnPerHour,
		CycleAlertPerHour:   DefaultCycleAlertPerHour,
		SensorTimeout:       DefaultSensorTimeout,
		MaxRuntime:          DefaultMaxRuntime,
		ThermalMinPeriod:    DefaultThermalMinPeriod,
		ThermalBufferSize:   DefaultThermalBufferSize,
		MinPlausibleTemp:    DefaultMinPlausibleTemp,
		MaxPlausibleTemp:    DefaultMaxPlausibleTemp,
		BatteryLow:          DefaultBatteryLow,
		LinkQualityLow:      DefaultLinkQualityLow,
	}
}

// Default returns a configuration with every system field at its default and
// no zones.
func Default() Config {
	return Config{
		MQTT: MQTTConfig{
			Broker:     DefaultBroker,
			ClientID:   DefaultClientID,
			BufferSize: DefaultOfflineBufferSize,
		},
		LogLevel:              DefaultLogLevel,
		HTTPAddr:              DefaultHTTPAddr,
		BoilerGPIOPin:         -1,
		GPIOChip:              DefaultGPIOChip,
		ControlInterval:       DefaultControlInterval,
		HeartbeatInterval:     DefaultHeartbeatInterval,
		StartupDelay:          DefaultStartupDelay,
		ThermalReportInterval: DefaultThermalReportInterval,
		WindowDetection:       true,
		TopicPrefix:           DefaultTopicPrefix,
		BoilerControlTopic:    DefaultBoilerTopic,
		HeartbeatTopic:        DefaultHeartbeatTopic,
	}
}

// Zone returns the configuration of the named zone.
func (c Config) Zone(name string) (ZoneConfig, bool) {
	for _, z := range c.Zones {
		if z.Name == name {
			return z, true
		}
	}
	return ZoneConfig{}, false
}

// Validate checks the configuration once at load time.
func (c Config) Validate() error {
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker", ErrMissingTopic)
	}
	for name, d := range map[string]time.Duration{
		"control_interval":        c.ControlInterval,
		"heartbeat_interval":      c.HeartbeatInterval,
		"thermal_report_interval": c.ThermalReportInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidDuration, name, d)
		}
	}
	if c.StartupDelay < 0 {
		return fmt.Errorf("%w: startup_delay must not be negative", ErrInvalidDuration)
	}
	if c.TopicPrefix == "" {
		return fmt.Errorf("%w: topic_prefix", ErrMissingTopic)
	}
	if c.BoilerControlTopic == "" {
		return fmt.Errorf("%w: boiler_control_topic", ErrMissingTopic)
	}
	if c.HeartbeatTopic == "" {
		return fmt.Errorf("%w: heartbeat_topic", ErrMissingTopic)
	}
	if len(c.Zones) == 0 {
		return ErrNoZones
	}

	seen := map[string]string{c.BoilerControlTopic: "boiler_control_topic"}
	if c.OutsideTemperatureTopic != "" {
		seen[c.OutsideTemperatureTopic] = "outside_temperature_topic"
	}
	for _, z := range c.Zones {
		if err := z.Validate(); err != nil {
			return fmt.Errorf("zone %s: %w", z.Name, err)
		}
		for _, topic := range []string{z.TemperatureSensorTopic, z.PumpControlTopic} {
			if other, ok := seen[topic]; ok {
				return fmt.Errorf("zone %s: %w: %s already used by %s", z.Name, ErrDuplicateTopic, topic, other)
			}
			seen[topic] = z.Name
		}
	}
	return nil
}

// Validate checks one zone's configuration.
func (z ZoneConfig) Validate() error {
	if z.Name == "" {
		return fmt.Errorf("%w: zone name", ErrMissingTopic)
	}
	if !validZoneName(z.Name) {
		return fmt.Errorf("%w: %q must be lower case letters, digits, '_' or '-'", ErrInvalidZoneName, z.Name)
	}
	if z.TemperatureSensorTopic == "" {
		return fmt.Errorf("%w: temperature_sensor_topic", ErrMissingTopic)
	}
	if z.PumpControlTopic == "" {
		return fmt.Errorf("%w: pump_control_topic", ErrMissingTopic)
	}
	if z.MinSetpoint > z.MaxSetpoint || z.DefaultSetpoint < z.MinSetpoint || z.DefaultSetpoint > z.MaxSetpoint {
		return fmt.Errorf("%w: want min %v <= default %v <= max %v", ErrInvalidSetpointRange, z.MinSetpoint, z.DefaultSetpoint, z.MaxSetpoint)
	}
	if z.MinPlausibleTemp >= z.MaxPlausibleTemp {
		return fmt.Errorf("%w: plausible range %v..%v", ErrInvalidThreshold, z.MinPlausibleTemp, z.MaxPlausibleTemp)
	}

	switch logic.ControllerKind(z.ControllerType) {
	case logic.ControllerPID:
		for _, g := range []float64{z.PIDKp, z.PIDKi, z.PIDKd} {
			if g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
				return fmt.Errorf("%w: kp=%v ki=%v kd=%v", ErrInvalidGains, z.PIDKp, z.PIDKi, z.PIDKd)
			}
		}
		if z.PIDIntegralLimit <= 0 {
			return fmt.Errorf("%w: pid_integral_limit must be positive", ErrInvalidGains)
		}
	case logic.ControllerOnOff:
		if z.Hysteresis < 0 {
			return fmt.Errorf("%w: hysteresis must not be negative", ErrInvalidThreshold)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidControllerType, z.ControllerType)
	}

	if z.DutyOffThreshold <= 0 || z.DutyOnThreshold >= 1 || z.DutyOffThreshold >= z.DutyOnThreshold {
		return fmt.Errorf("%w: want 0 < off %v < on %v < 1", ErrInvalidThreshold, z.DutyOffThreshold, z.DutyOnThreshold)
	}
	if z.WindowShortDropRate <= 0 || z.WindowLongDropRate <= 0 || z.WindowCloseRate <= 0 {
		return fmt.Errorf("%w: window rates must be positive", ErrInvalidThreshold)
	}
	if z.WindowCloseRate > z.WindowShortDropRate || z.WindowCloseRate > z.WindowLongDropRate {
		return fmt.Errorf("%w: window close rate %v above an open rate", ErrInvalidThreshold, z.WindowCloseRate)
	}
	if z.WindowBufferSize < 2 || z.ThermalBufferSize < 1 {
		return fmt.Errorf("%w: buffer sizes", ErrInvalidThreshold)
	}
	if z.CycleWarnPerHour < 0 || z.CycleAlertPerHour < z.CycleWarnPerHour {
		return fmt.Errorf("%w: cycle limits warn %d alert %d", ErrInvalidThreshold, z.CycleWarnPerHour, z.CycleAlertPerHour)
	}

	for name, d := range map[string]time.Duration{
		"window_short_span":  z.WindowShortSpan,
		"window_long_span":   z.WindowLongSpan,
		"pump_min_on_time":   z.PumpMinOnTime,
		"pump_min_off_time":  z.PumpMinOffTime,
		"sensor_timeout":     z.SensorTimeout,
		"max_runtime":        z.MaxRuntime,
		"thermal_min_period": z.ThermalMinPeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidDuration, name, d)
		}
	}
	return nil
}

// ZoneParams converts the zone configuration into control-logic parameters.
func (z ZoneConfig) ZoneParams() logic.ZoneParams {
	return logic.ZoneParams{
		Name:               z.Name,
		DefaultSetpoint:    z.DefaultSetpoint,
		MinSetpoint:        z.MinSetpoint,
		MaxSetpoint:        z.MaxSetpoint,
		ResetSetpointDelta: z.SetpointResetDelta,
		MinPlausible:       z.MinPlausibleTemp,
		MaxPlausible:       z.MaxPlausibleTemp,
		Controller: logic.ControllerParams{
			Kind:          logic.ControllerKind(z.ControllerType),
			Kp:            z.PIDKp,
			Ki:            z.PIDKi,
			Kd:            z.PIDKd,
			IntegralLimit: z.PIDIntegralLimit,
			Hysteresis:    z.Hysteresis,
		},
		Window: logic.WindowParams{
			Capacity:      z.WindowBufferSize,
			ShortWindow:   z.WindowShortSpan,
			LongWindow:    z.WindowLongSpan,
			ShortDropRate: z.WindowShortDropRate,
			LongDropRate:  z.WindowLongDropRate,
			CloseRate:     z.WindowCloseRate,
		},
		Cycling: logic.CyclingParams{
			MinOn:        z.PumpMinOnTime,
			MinOff:       z.PumpMinOffTime,
			OnThreshold:  z.DutyOnThreshold,
			OffThreshold: z.DutyOffThreshold,
			WarnCycles:   z.CycleWarnPerHour,
			AlertCycles:  z.CycleAlertPerHour,
		},
		Thermal: logic.ThermalParams{
			MinPeriod:  z.ThermalMinPeriod,
			BufferSize: z.ThermalBufferSize,
		},
		Watchdog: logic.WatchdogParams{
			SensorTimeout: z.SensorTimeout,
			MaxRuntime:    z.MaxRuntime,
		},
		Health: logic.HealthParams{
			BatteryLow:     z.BatteryLow,
			LinkQualityLow: z.LinkQualityLow,
		},
	}
}

// Write dumps the effective configuration as YAML. The MQTT password is
// never written.
func (c Config) Write(w io.Writer) error {
	type dump struct {
		Config `yaml:",inline"`
		Zones  map[string]ZoneConfig `yaml:"zones"`
	}
	d := dump{Config: c, Zones: make(map[string]ZoneConfig, len(c.Zones))}
	for _, z := range c.Zones {
		d.Zones[z.Name] = z
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// validZoneName reports whether name is usable as a topic level. Upper case
// is refused because the config loader folds map keys to lower case.
func validZoneName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return name != ""
}

func sortZones(zones []ZoneConfig) {
	sort.Slice(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
}
