package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Conductor Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Lab       LabConfig       `yaml:"lab"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Execution ExecutionConfig `yaml:"execution"`
	Registers RegistersConfig `yaml:"registers"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// LabConfig identifies the laboratory installation.
type LabConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket feedback streaming settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// TelemetryConfig contains InfluxDB connection settings for feedback
// time-series (temperature curves, volume counters, waypoint progress).
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ExecutionConfig contains action execution defaults.
type ExecutionConfig struct {
	// DefaultTimeout applies to goals submitted without a timeout (seconds).
	// Guarantees liveness when a driver never responds. 0 disables.
	DefaultTimeout int `yaml:"default_timeout"`

	// MaxTimeout caps caller-supplied timeouts (seconds). 0 disables the cap.
	MaxTimeout int `yaml:"max_timeout"`

	// MaxQueueDepth limits the per-device admission wait queue.
	// 0 means unbounded.
	MaxQueueDepth int `yaml:"max_queue_depth"`
}

// RegistersConfig locates the logical register address table.
type RegistersConfig struct {
	TablePath string `yaml:"table_path"`
}

// DeviceConfig declares one instrument to register at startup.
// Driver selects the driver implementation: heatchill, pump,
// liquidhandler, agv, or plc. The plc driver requires
// registers.table_path.
type DeviceConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CONDUCTOR_SECTION_KEY
// For example: CONDUCTOR_DATABASE_PATH, CONDUCTOR_MQTT_HOST
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Lab: LabConfig{
			ID:       "lab-001",
			Name:     "Conductor",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/conductor.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "conductor-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Execution: ExecutionConfig{
			DefaultTimeout: 600,
			MaxTimeout:     3600,
			MaxQueueDepth:  64,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CONDUCTOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CONDUCTOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CONDUCTOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CONDUCTOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CONDUCTOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CONDUCTOR_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CONDUCTOR_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Telemetry
	if v := os.Getenv("CONDUCTOR_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Registers
	if v := os.Getenv("CONDUCTOR_REGISTERS_TABLE"); v != "" {
		cfg.Registers.TablePath = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Lab.ID == "" {
		errs = append(errs, "lab.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Execution.DefaultTimeout < 0 {
		errs = append(errs, "execution.default_timeout must not be negative")
	}
	if c.Execution.MaxTimeout < 0 {
		errs = append(errs, "execution.max_timeout must not be negative")
	}
	if c.Execution.MaxTimeout > 0 && c.Execution.DefaultTimeout > c.Execution.MaxTimeout {
		errs = append(errs, "execution.default_timeout must not exceed execution.max_timeout")
	}
	if c.Execution.MaxQueueDepth < 0 {
		errs = append(errs, "execution.max_queue_depth must not be negative")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true
		switch d.Driver {
		case "heatchill", "pump", "liquidhandler", "agv", "plc":
		default:
			errs = append(errs, fmt.Sprintf("devices[%d].driver %q is not recognised", i, d.Driver))
		}
		if d.Driver == "plc" && c.Registers.TablePath == "" {
			errs = append(errs, "registers.table_path is required when a plc device is configured")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// DefaultActionTimeout returns the default goal timeout as a Duration.
func (c *Config) DefaultActionTimeout() time.Duration {
	return time.Duration(c.Execution.DefaultTimeout) * time.Second
}

// MaxActionTimeout returns the goal timeout cap as a Duration.
func (c *Config) MaxActionTimeout() time.Duration {
	return time.Duration(c.Execution.MaxTimeout) * time.Second
}
