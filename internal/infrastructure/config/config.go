package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values used when neither the config file nor the environment
// provides a setting.
const (
	DefaultMaxRetries        = 10
	DefaultReconnectPeriodMS = 5000
	DefaultTopicPrefix       = "bhyve"
	DefaultBrokerAddress     = "tcp://localhost:1883"
	DefaultOrbitBaseURL      = "https://api.orbitbhyve.com"
	DefaultOrbitStreamURL    = "wss://api.orbitbhyve.com/v1/events"
)

// Config is the root configuration structure for the bridge.
// Values come from defaults, an optional YAML file, and environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Orbit    OrbitConfig    `yaml:"orbit"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keepalive"`       // seconds
	Timeout   int                 `yaml:"connect_timeout"` // seconds
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	// Address is the broker URL, e.g. "tcp://localhost:1883" or "mqtts://broker:8883".
	Address string `yaml:"address"`

	// ClientIDPrefix is suffixed with random characters on every start so
	// that restarts never collide with a stale session on the broker.
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds the reconnection policy.
type MQTTReconnectConfig struct {
	PeriodMS   int `yaml:"period_ms"`
	MaxRetries int `yaml:"max_retries"`
}

// OrbitConfig contains the B-hyve cloud account and endpoints.
type OrbitConfig struct {
	Email        string `yaml:"email"`
	Password     string `yaml:"password"`
	BaseURL      string `yaml:"base_url"`
	StreamURL    string `yaml:"stream_url"`
	Timeout      int    `yaml:"timeout"`       // seconds, REST and handshake
	PingInterval int    `yaml:"ping_interval"` // seconds
}

// BridgeConfig contains topic layout settings.
type BridgeConfig struct {
	TopicPrefix string `yaml:"topic_prefix"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
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

// Load builds the configuration and validates it.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is not empty
//  3. Environment variables
//
// The environment names are the ones the bridge has always used
// (MQTT_BROKER_ADDRESS, ORBIT_EMAIL, MAX_RETRIES, ...) plus BHYVE_* for
// settings that have no historical name.
//
// Parameters:
//   - path: Path to a YAML configuration file, or "" for environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
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
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Address:        DefaultBrokerAddress,
				ClientIDPrefix: "bhyve-mqtt",
			},
			QoS:       0,
			KeepAlive: 10,
			Timeout:   120,
			Reconnect: MQTTReconnectConfig{
				PeriodMS:   DefaultReconnectPeriodMS,
				MaxRetries: DefaultMaxRetries,
			},
		},
		Orbit: OrbitConfig{
			BaseURL:      DefaultOrbitBaseURL,
			StreamURL:    DefaultOrbitStreamURL,
			Timeout:      10,
			PingInterval: 25,
		},
		Bridge: BridgeConfig{
			TopicPrefix: DefaultTopicPrefix,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:           "bhyve",
			Bucket:        "bhyve",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("MQTT_BROKER_ADDRESS"); v != "" {
		cfg.MQTT.Broker.Address = v
	}
	if v := os.Getenv("MQTT_USER"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	cfg.MQTT.Reconnect.MaxRetries = envInt("MAX_RETRIES", cfg.MQTT.Reconnect.MaxRetries)
	cfg.MQTT.Reconnect.PeriodMS = envInt("RECONNECT_PERIOD", cfg.MQTT.Reconnect.PeriodMS)

	// Orbit
	if v := os.Getenv("ORBIT_EMAIL"); v != "" {
		cfg.Orbit.Email = v
	}
	if v := os.Getenv("ORBIT_PASSWORD"); v != "" {
		cfg.Orbit.Password = v
	}

	// Bridge
	if v := os.Getenv("BHYVE_TOPIC_PREFIX"); v != "" {
		cfg.Bridge.TopicPrefix = strings.TrimSuffix(v, "/")
	}

	// Logging
	if v := os.Getenv("BHYVE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BHYVE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// API
	if v := os.Getenv("BHYVE_API_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.API.Enabled = enabled
		}
	}
	cfg.API.Port = envInt("BHYVE_API_PORT", cfg.API.Port)

	// InfluxDB - setting the URL is enough to enable the recorder
	if v := os.Getenv("BHYVE_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
		cfg.InfluxDB.Enabled = true
	}
	if v := os.Getenv("BHYVE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// envInt reads an integer environment variable, falling back to def when
// the variable is unset or not a number.
func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Validate checks the configuration for errors.
//
// All problems are reported together so a misconfigured deployment can be
// fixed in a single pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []error

	if c.MQTT.Broker.Address == "" {
		errs = append(errs, errors.New("mqtt.broker.address is required (set MQTT_BROKER_ADDRESS)"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1, or 2"))
	}
	if c.MQTT.Reconnect.MaxRetries < 1 {
		errs = append(errs, errors.New("mqtt.reconnect.max_retries must be at least 1"))
	}
	if c.MQTT.Reconnect.PeriodMS < 1 {
		errs = append(errs, errors.New("mqtt.reconnect.period_ms must be positive"))
	}

	if c.Orbit.Email == "" {
		errs = append(errs, errors.New("orbit.email is required (set ORBIT_EMAIL)"))
	}
	if c.Orbit.Password == "" {
		errs = append(errs, errors.New("orbit.password is required (set ORBIT_PASSWORD)"))
	}

	if c.Bridge.TopicPrefix == "" || strings.ContainsAny(c.Bridge.TopicPrefix, "#+") {
		errs = append(errs, errors.New("bridge.topic_prefix must be non-empty and contain no wildcards"))
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, errors.New("influxdb.url is required when influxdb is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}

	return nil
}

// GetReconnectPeriod returns the delay between reconnection attempts.
func (c MQTTConfig) GetReconnectPeriod() time.Duration {
	return time.Duration(c.Reconnect.PeriodMS) * time.Millisecond
}

// GetKeepAlive returns the MQTT keepalive interval.
func (c MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// GetConnectTimeout returns the MQTT connect timeout.
func (c MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetTimeout returns the REST and stream handshake timeout.
func (c OrbitConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetPingInterval returns the stream keepalive interval.
func (c OrbitConfig) GetPingInterval() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
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
