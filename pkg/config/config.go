package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mqtt-cerebro-bridge/pkg/errors"
	"mqtt-cerebro-bridge/pkg/logger"
)

// Defaults mirrored from the add-on packaging
const (
	DefaultSerialPort      = "/dev/ttyUSB0"
	DefaultBaudrate        = 9600
	DefaultMQTTPort        = 1883
	DefaultBaseTopic       = "cerebro2mqtt"
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultClientID        = "cerebro2mqtt"
	DefaultIntervalSec     = 30
	DefaultExchangeTimeout = 2000 // ms
	DefaultRetryDelay      = 5000 // ms
	DefaultKeepAlive       = 60   // seconds
)

// Config represents the complete application configuration
type Config struct {
	Serial  SerialConfig         `yaml:"serial"`
	MQTT    MQTTConfig           `yaml:"mqtt"`
	Polling PollingConfig        `yaml:"polling"`
	Logging logger.LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig        `yaml:"metrics"`
	Boards  []Board              `yaml:"boards"`
}

// SerialConfig contains the serial line settings for the bus
type SerialConfig struct {
	Port      string `yaml:"port"`
	Baudrate  int    `yaml:"baudrate"`
	ByteSize  int    `yaml:"bytesize"`
	Parity    string `yaml:"parity"`   // N, E or O
	StopBits  int    `yaml:"stopbits"` // 1 or 2
	TimeoutMs int    `yaml:"timeout_ms"`
}

// MQTTConfig contains MQTT broker and topic settings
type MQTTConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	BaseTopic       string `yaml:"base_topic"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	KeepAlive       int    `yaml:"keepalive"`      // seconds
	RetryDelay      int    `yaml:"retry_delay_ms"` // delay between connection retries
}

// PollingConfig controls the periodic status poll of the bus
type PollingConfig struct {
	IntervalSec       int   `yaml:"interval_sec"`
	AutoStart         *bool `yaml:"auto_start"`
	ExchangeTimeoutMs int   `yaml:"exchange_timeout_ms"`
}

// MetricsConfig enables the optional Prometheus-text and health endpoints
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Listen       string `yaml:"listen"`        // e.g. ":9105"
	HealthListen string `yaml:"health_listen"` // e.g. ":8080", empty disables /health
}

// AutoStartEnabled reports whether the poll loop starts with the bridge
func (p *PollingConfig) AutoStartEnabled() bool {
	return p.AutoStart == nil || *p.AutoStart
}

// LoadConfig loads configuration from the specified file, falling back to
// the conventional locations
func LoadConfig(configPath string) (*Config, error) {
	paths := []string{
		configPath,
		"/etc/cerebro2mqtt/config.yaml",
		"/etc/cerebro2mqtt.yaml",
		"./config.yaml",
	}

	var data []byte
	var err error
	var usedPath string

	for _, path := range paths {
		if path == "" {
			continue
		}
		// #nosec G304 - Paths are from a hardcoded list of safe configuration file locations
		data, err = os.ReadFile(path)
		if err == nil {
			usedPath = path
			break
		}
	}

	if err != nil {
		return nil, errors.NewConfigError("read config file",
			fmt.Errorf("no readable file among %v: %w", paths, err), "")
	}

	cfg, err := LoadConfigFromString(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", usedPath, err)
	}
	logger.LogInfo("Configuration loaded from %s (%d boards)", usedPath, len(cfg.Boards))
	return cfg, nil
}

// LoadConfigFromString parses and validates a configuration document
func LoadConfigFromString(data string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, errors.NewConfigError("parse yaml", err, "")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Serial.Port == "" {
		c.Serial.Port = DefaultSerialPort
	}
	if c.Serial.Baudrate == 0 {
		c.Serial.Baudrate = DefaultBaudrate
	}
	if c.Serial.ByteSize == 0 {
		c.Serial.ByteSize = 8
	}
	if c.Serial.Parity == "" {
		c.Serial.Parity = "N"
	}
	if c.Serial.StopBits == 0 {
		c.Serial.StopBits = 1
	}
	if c.Serial.TimeoutMs == 0 {
		c.Serial.TimeoutMs = 1000
	}

	if c.MQTT.Port == 0 {
		c.MQTT.Port = DefaultMQTTPort
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientID
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = DefaultBaseTopic
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.MQTT.KeepAlive == 0 {
		c.MQTT.KeepAlive = DefaultKeepAlive
	}
	if c.MQTT.RetryDelay == 0 {
		c.MQTT.RetryDelay = DefaultRetryDelay
	}

	if c.Polling.IntervalSec == 0 {
		c.Polling.IntervalSec = DefaultIntervalSec
	}
	if c.Polling.ExchangeTimeoutMs == 0 {
		c.Polling.ExchangeTimeoutMs = DefaultExchangeTimeout
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.MQTT.Host == "" {
		return errors.NewConfigError("validate", fmt.Errorf("mqtt host is required"), "mqtt.host")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return errors.NewConfigError("validate",
			fmt.Errorf("mqtt port %d out of range", c.MQTT.Port), "mqtt.port")
	}
	switch c.Serial.Parity {
	case "N", "E", "O":
	default:
		return errors.NewConfigError("validate",
			fmt.Errorf("parity must be N, E or O, got %q", c.Serial.Parity), "serial.parity")
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return errors.NewConfigError("validate",
			fmt.Errorf("stopbits must be 1 or 2, got %d", c.Serial.StopBits), "serial.stopbits")
	}
	if c.Polling.IntervalSec < 1 {
		return errors.NewConfigError("validate",
			fmt.Errorf("interval_sec must be >= 1, got %d", c.Polling.IntervalSec), "polling.interval_sec")
	}

	if _, err := NewBoardSnapshot(c.Boards); err != nil {
		return err
	}
	return nil
}
