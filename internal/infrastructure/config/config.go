package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for devagent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Link      LinkConfig      `yaml:"link"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Status    StatusConfig    `yaml:"status"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies this device.
type DeviceConfig struct {
	// UID is the fixed device identifier used in topics and the client ID.
	UID string `yaml:"uid"`

	// Namespace is the first topic segment (tenant), e.g. "t0".
	Namespace string `yaml:"namespace"`

	// TransportPrefix is prepended to UID to form the MQTT client ID.
	TransportPrefix string `yaml:"transport_prefix"`
}

// ClientID returns the MQTT client identifier "<transport_prefix>-<uid>".
func (d DeviceConfig) ClientID() string {
	return d.TransportPrefix + "-" + d.UID
}

// LinkConfig contains network link settings.
type LinkConfig struct {
	// Interface is the network interface that must be up (empty = any non-loopback).
	Interface string `yaml:"interface"`

	// ProbeAddress is a host:port dialled to confirm the link carries traffic.
	// Empty disables the probe and only the interface state is checked.
	ProbeAddress string `yaml:"probe_address"`

	// ProbeTimeout bounds each reachability probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// RetryDelay is the fixed pause between link attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxAttempts limits attempts per EnsureLink call. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	KeepAlive      time.Duration       `yaml:"keepalive"`
	ConnectTimeout time.Duration       `yaml:"connect_timeout"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains session re-establishment settings.
type MQTTReconnectConfig struct {
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// TelemetryConfig contains telemetry cadence settings.
type TelemetryConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxPayload int           `yaml:"max_payload"`
}

// ActuatorConfig describes the single digital output driven by commands.
type ActuatorConfig struct {
	Name         string `yaml:"name"`
	InitialLevel string `yaml:"initial_level"` // "low" or "high"
}

// DatabaseConfig contains SQLite settings for the actuator journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains the optional local telemetry mirror settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// StatusConfig contains the optional HTTP status listener settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DEVAGENT_SECTION_KEY
// For example: DEVAGENT_DEVICE_UID, DEVAGENT_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, as used when no file is present.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns the built-in settings for a single ESP32-class device.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			UID:             "dev-esp32-01",
			Namespace:       "t0",
			TransportPrefix: "esp32",
		},
		Link: LinkConfig{
			ProbeTimeout: 2 * time.Second,
			RetryDelay:   500 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:            1,
			KeepAlive:      15 * time.Second,
			ConnectTimeout: 10 * time.Second,
			Reconnect: MQTTReconnectConfig{
				Delay: 5 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Interval:   5 * time.Second,
			MaxPayload: 256,
		},
		Actuator: ActuatorConfig{
			Name:         "led",
			InitialLevel: "low",
		},
		Database: DatabaseConfig{
			Enabled:     false,
			Path:        "./data/devagent.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Status: StatusConfig{
			Host: "127.0.0.1",
			Port: 9100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DEVAGENT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("DEVAGENT_DEVICE_UID"); v != "" {
		cfg.Device.UID = v
	}
	if v := os.Getenv("DEVAGENT_NAMESPACE"); v != "" {
		cfg.Device.Namespace = v
	}

	// MQTT
	if v := os.Getenv("DEVAGENT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DEVAGENT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("DEVAGENT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DEVAGENT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("DEVAGENT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("DEVAGENT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device identity feeds topic names, so it must be a single topic level
	if c.Device.UID == "" {
		errs = append(errs, "device.uid is required")
	} else if strings.ContainsAny(c.Device.UID, "/+#") {
		errs = append(errs, "device.uid must not contain '/', '+' or '#'")
	}
	if c.Device.Namespace == "" {
		errs = append(errs, "device.namespace is required")
	} else if strings.ContainsAny(c.Device.Namespace, "/+#") {
		errs = append(errs, "device.namespace must not contain '/', '+' or '#'")
	}
	if c.Device.TransportPrefix == "" {
		errs = append(errs, "device.transport_prefix is required")
	}

	// Link validation
	if c.Link.RetryDelay <= 0 {
		errs = append(errs, "link.retry_delay must be positive")
	}
	if c.Link.MaxAttempts < 0 {
		errs = append(errs, "link.max_attempts must not be negative")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.Delay <= 0 {
		errs = append(errs, "mqtt.reconnect.delay must be positive")
	}
	if c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect.max_attempts must not be negative")
	}

	// Telemetry validation
	if c.Telemetry.Interval <= 0 {
		errs = append(errs, "telemetry.interval must be positive")
	}
	if c.Telemetry.MaxPayload <= 0 {
		errs = append(errs, "telemetry.max_payload must be positive")
	}

	// Actuator validation
	switch strings.ToLower(c.Actuator.InitialLevel) {
	case "low", "high", "":
	default:
		errs = append(errs, "actuator.initial_level must be \"low\" or \"high\"")
	}

	// Optional components
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		errs = append(errs, "status.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerAddress returns host:port of the MQTT broker.
func (c *Config) BrokerAddress() string {
	return fmt.Sprintf("%s:%d", c.MQTT.Broker.Host, c.MQTT.Broker.Port)
}
