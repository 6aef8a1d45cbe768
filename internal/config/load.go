package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. HEATING_MQTT_BROKER.
const EnvPrefix = "HEATING"

// Legacy environment variables, usually supplied through a .env file.
const (
	EnvBrokerIP = "MQTT_BROKER_IP"
	EnvUsername = "MQTT_USERNAME"
	EnvPassword = "MQTT_PASSWORD"
)

// NewViper returns a viper instance with every system default registered and
// environment overrides enabled. Callers bind their flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.buffer_size", d.MQTT.BufferSize)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("boiler_gpio_pin", d.BoilerGPIOPin)
	v.SetDefault("boiler_gpio_active_low", d.BoilerGPIOActiveLow)
	v.SetDefault("gpio_chip", d.GPIOChip)
	v.SetDefault("control_interval", d.ControlInterval)
	v.SetDefault("heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("startup_delay", d.StartupDelay)
	v.SetDefault("thermal_report_interval", d.ThermalReportInterval)
	v.SetDefault("window_detection", d.WindowDetection)
	v.SetDefault("topic_prefix", d.TopicPrefix)
	v.SetDefault("boiler_control_topic", d.BoilerControlTopic)
	v.SetDefault("outside_temperature_topic", d.OutsideTemperatureTopic)
	v.SetDefault("heartbeat_topic", d.HeartbeatTopic)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv reads a .env file if present. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path (if non-empty) into v, decodes the system
// settings and every zone over its defaults, and validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	applyLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := checkZoneNames(path); err != nil {
			return Config{}, fmt.Errorf("invalid config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	for name := range v.GetStringMap("zones") {
		z := DefaultZone(name)
		if err := v.UnmarshalKey("zones."+name, &z); err != nil {
			return Config{}, fmt.Errorf("decode zone %s: %w", name, err)
		}
		z.Name = name
		cfg.Zones = append(cfg.Zones, z)
	}
	sortZones(cfg.Zones)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyLegacyEnv lets MQTT_BROKER_IP, MQTT_USERNAME and MQTT_PASSWORD fill in
// broker settings that are not configured any other way.
func applyLegacyEnv(v *viper.Viper) {
	if ip := strings.TrimSpace(os.Getenv(EnvBrokerIP)); ip != "" {
		broker := ip
		if !strings.Contains(ip, "://") {
			broker = "tcp://" + ip
		}
		if !strings.Contains(strings.SplitN(broker, "://", 2)[1], ":") {
			broker += ":1883"
		}
		v.SetDefault("mqtt.broker", broker)
	}
	if u := os.Getenv(EnvUsername); u != "" {
		v.SetDefault("mqtt.username", u)
	}
	if p := os.Getenv(EnvPassword); p != "" {
		v.SetDefault("mqtt.password", p)
	}
}

// checkZoneNames rejects zone keys that viper would silently fold to lower
// case, which would move the zone's topics. Only YAML files are inspected.
func checkZoneNames(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var raw struct {
		Zones map[string]yaml.Node `yaml:"zones"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	for name := range raw.Zones {
		if name != strings.ToLower(name) {
			return fmt.Errorf("%w: %q must be lower case", ErrInvalidZoneName, name)
		}
	}
	return nil
}
