// Package config loads the server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// Values come from defaults, then the YAML file, then ALPACA_* environment variables.
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	HardwareID string         `yaml:"hardware_id"`
	Database   DatabaseConfig `yaml:"database"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
	Logging    LoggingConfig  `yaml:"logging"`
	Devices    []DeviceConfig `yaml:"devices"`
}

// ServerConfig contains the HTTP and discovery settings and the management description.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	DiscoveryPort       int    `yaml:"discovery_port"`
	Name                string `yaml:"name"`
	Manufacturer        string `yaml:"manufacturer"`
	ManufacturerVersion string `yaml:"manufacturer_version"`
	Location            string `yaml:"location"`
}

// DatabaseConfig contains the bbolt database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains the broker used to drive relays.
// Relays are not driven when Enabled is false.
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	ClientID  string `yaml:"client_id"`
	TopicRoot string `yaml:"topic_root"`
	QoS       int    `yaml:"qos"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DeviceConfig describes one device served by the driver.
type DeviceConfig struct {
	Type             string   `yaml:"type"`
	Number           int      `yaml:"number"`
	Description      string   `yaml:"description"`
	DriverInfo       string   `yaml:"driver_info"`
	DriverVersion    string   `yaml:"driver_version"`
	InterfaceVersion int      `yaml:"interface_version"`
	SupportedActions []string `yaml:"supported_actions"`
	RelayTopic       string   `yaml:"relay_topic"`
}

// Load reads path and applies environment overrides. A missing file is not
// an error; the defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDeviceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration serving a single CoverCalibrator.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                11111,
			DiscoveryPort:       32227,
			Name:                "Alpaca Relay Server",
			Manufacturer:        "My Company",
			ManufacturerVersion: "v1.0.0",
			Location:            "FR",
		},
		Database: DatabaseConfig{
			Path: "alpaca.db",
		},
		MQTT: MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			ClientID:  "alpaca-relay",
			TopicRoot: "alpaca",
			QoS:       1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Devices: []DeviceConfig{
			{
				Type:             "CoverCalibrator",
				Number:           0,
				Description:      "Driver for Cache Calibration",
				RelayTopic:       "relay0",
				InterfaceVersion: 1,
			},
		},
	}
}

// applyDeviceDefaults fills per-device fields left empty with server-wide values.
func (c *Config) applyDeviceDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.DriverVersion == "" {
			d.DriverVersion = c.Server.ManufacturerVersion
		}
		if d.InterfaceVersion == 0 {
			d.InterfaceVersion = 1
		}
		if d.SupportedActions == nil {
			d.SupportedActions = []string{}
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPACA_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("ALPACA_PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := envInt("ALPACA_DISCOVERY_PORT"); ok {
		cfg.Server.DiscoveryPort = v
	}
	if v := os.Getenv("ALPACA_HARDWARE_ID"); v != "" {
		cfg.HardwareID = v
	}
	if v := os.Getenv("ALPACA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ALPACA_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("ALPACA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("ALPACA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("ALPACA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.DiscoveryPort < 1 || c.Server.DiscoveryPort > 65535 {
		errs = append(errs, "server.discovery_port must be between 1 and 65535")
	}
	if c.Server.Port == c.Server.DiscoveryPort {
		errs = append(errs, "server.port and server.discovery_port must differ")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			errs = append(errs, "mqtt.host is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}
	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.Type == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].type is required", i))
		}
		if d.Number < 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].number must not be negative", i))
		}
		key := strings.ToLower(d.Type) + "/" + strconv.Itoa(d.Number)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("devices[%d]: duplicate %s %d", i, d.Type, d.Number))
		}
		seen[key] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Broker returns the MQTT broker URL.
func (m MQTTConfig) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", m.Host, m.Port)
}
