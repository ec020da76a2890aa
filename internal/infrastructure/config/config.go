package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultHubPath is where the realtime hub endpoint is mounted.
const DefaultHubPath = "/hubs/network"

// Config is the root configuration structure for netpulse.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Hub       HubConfig       `yaml:"hub"`
	Producer  ProducerConfig  `yaml:"producer"`
	Client    ClientConfig    `yaml:"client"`
}

// DatabaseConfig contains SQLite settings for the sample history store.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionHours is how long sample history is kept. Zero keeps
	// everything.
	RetentionHours int `yaml:"retention_hours"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`

	// HealthInterval is how often the bridge publishes hub health, in
	// seconds. Zero disables health publishing.
	HealthInterval int `yaml:"health_interval"`
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
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains realtime channel settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// HubConfig contains broadcaster settings.
type HubConfig struct {
	// SendBufferSize is the outbound queue depth per connection.
	// A full queue drops the message for that recipient only.
	SendBufferSize int `yaml:"send_buffer_size"`
}

// ProducerConfig contains synthetic telemetry producer settings.
type ProducerConfig struct {
	Enabled    bool     `yaml:"enabled"`
	IntervalMS int      `yaml:"interval_ms"`
	Devices    []string `yaml:"devices"`

	// DualDelivery publishes each sample to its device group and to every
	// connection. Disable to publish to the device group only.
	DualDelivery bool `yaml:"dual_delivery"`
}

// ClientConfig contains defaults for the netpulse-watch client.
type ClientConfig struct {
	URL            string `yaml:"url"`
	Group          string `yaml:"group"`
	BufferCapacity int    `yaml:"buffer_capacity"`
	RetryDelaysMS  []int  `yaml:"retry_delays_ms"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NETPULSE_SECTION_KEY
// For example: NETPULSE_DATABASE_PATH, NETPULSE_API_PORT
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
// It is also used directly when no config file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Enabled:     false,
			Path:        "./data/netpulse.db",
			WALMode:        true,
			BusyTimeout:    5,
			RetentionHours: 24,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			TopicPrefix: "netpulse",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "netpulse",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HealthInterval: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
			},
		},
		WebSocket: WebSocketConfig{
			Path:           DefaultHubPath,
			MaxMessageSize: 8192,
			PingInterval:   15,
			PongTimeout:    30,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "netpulse",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/netpulse.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		Hub: HubConfig{
			SendBufferSize: 256,
		},
		Producer: ProducerConfig{
			Enabled:      true,
			IntervalMS:   1000,
			Devices:      []string{"alpha", "bravo", "charlie"},
			DualDelivery: true,
		},
		Client: ClientConfig{
			URL:            "ws://localhost:5000" + DefaultHubPath,
			Group:          "alpha",
			BufferCapacity: 200,
			RetryDelaysMS:  []int{0, 2000, 10000, 30000},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NETPULSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("NETPULSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NETPULSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NETPULSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("NETPULSE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("NETPULSE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("NETPULSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("NETPULSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("NETPULSE_PRODUCER_DEVICES"); v != "" {
		cfg.Producer.Devices = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.Database.RetentionHours < 0 {
		errs = append(errs, "database.retention_hours must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}
	if c.MQTT.HealthInterval < 0 {
		errs = append(errs, "mqtt.health_interval must not be negative")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.WebSocket.PingInterval < 0 {
		errs = append(errs, "websocket.ping_interval must not be negative")
	}
	if c.WebSocket.PongTimeout < 1 {
		errs = append(errs, "websocket.pong_timeout must be positive")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Hub.SendBufferSize < 1 {
		errs = append(errs, "hub.send_buffer_size must be positive")
	}

	if c.Producer.Enabled {
		if c.Producer.IntervalMS < 1 {
			errs = append(errs, "producer.interval_ms must be positive")
		}
		if len(c.Producer.Devices) == 0 {
			errs = append(errs, "producer.devices must not be empty")
		}
		for _, d := range c.Producer.Devices {
			if strings.TrimSpace(d) == "" {
				errs = append(errs, "producer.devices must not contain empty names")
				break
			}
		}
	}

	if c.Client.BufferCapacity < 1 {
		errs = append(errs, "client.buffer_capacity must be positive")
	}
	for _, d := range c.Client.RetryDelaysMS {
		if d < 0 {
			errs = append(errs, "client.retry_delays_ms must not contain negative values")
			break
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

// GetProducerInterval returns the producer tick interval as a Duration.
func (c *Config) GetProducerInterval() time.Duration {
	return time.Duration(c.Producer.IntervalMS) * time.Millisecond
}

// GetHistoryRetention returns how long sample history is kept as a Duration.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Database.RetentionHours) * time.Hour
}

// GetMQTTHealthInterval returns the bridge health publishing interval as a Duration.
func (c *Config) GetMQTTHealthInterval() time.Duration {
	return time.Duration(c.MQTT.HealthInterval) * time.Second
}

// GetRetryDelays returns the client reconnect schedule as Durations.
func (c *Config) GetRetryDelays() []time.Duration {
	out := make([]time.Duration, len(c.Client.RetryDelaysMS))
	for i, ms := range c.Client.RetryDelaysMS {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}
