package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Command transports understood by the dispatcher wiring.
const (
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
)

// Config is the root configuration structure for Smart Watering Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Commands  CommandsConfig  `yaml:"commands"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// IngestEnabled subscribes to smartwatering/sensor/+ and feeds
	// readings into the same pipeline as POST /api/v1/sensor_data.
	IngestEnabled bool `yaml:"ingest_enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// KafkaConfig contains Kafka producer settings, used when commands.transport is "kafka".
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	ClientID     string   `yaml:"client_id"`
	WriteTimeout int      `yaml:"write_timeout"` // seconds
	RequiredAcks int      `yaml:"required_acks"` // -1 all, 0 none, 1 leader
}

// CommandsConfig selects how device commands leave the service.
type CommandsConfig struct {
	Transport string `yaml:"transport"` // mqtt | kafka
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for the reading mirror.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SMARTWATERING_SECTION_KEY
// For example: SMARTWATERING_DATABASE_PATH, SMARTWATERING_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "smartwatering-01",
			Name: "Smart Watering",
		},
		Database: DatabaseConfig{
			Path:        "./data/smartwatering.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "smartwatering-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Kafka: KafkaConfig{
			ClientID:     "smartwatering-core",
			WriteTimeout: 5,
			RequiredAcks: 1,
		},
		Commands: CommandsConfig{
			Transport: TransportMQTT,
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
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envOverride maps one environment variable onto the configuration.
type envOverride struct {
	key   string
	apply func(cfg *Config, v string) error
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

var envOverrides = []envOverride{
	{"SMARTWATERING_DATABASE_PATH", setString(func(c *Config) *string { return &c.Database.Path })},
	{"SMARTWATERING_MQTT_HOST", setString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"SMARTWATERING_MQTT_PORT", setInt(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"SMARTWATERING_MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"SMARTWATERING_MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"SMARTWATERING_MQTT_INGEST_ENABLED", setBool(func(c *Config) *bool { return &c.MQTT.IngestEnabled })},
	{"SMARTWATERING_KAFKA_BROKERS", func(c *Config, v string) error {
		c.Kafka.Brokers = c.Kafka.Brokers[:0]
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
		return nil
	}},
	{"SMARTWATERING_COMMANDS_TRANSPORT", func(c *Config, v string) error {
		c.Commands.Transport = strings.ToLower(v)
		return nil
	}},
	{"SMARTWATERING_API_HOST", setString(func(c *Config) *string { return &c.API.Host })},
	{"SMARTWATERING_API_PORT", setInt(func(c *Config) *int { return &c.API.Port })},
	{"SMARTWATERING_INFLUXDB_ENABLED", setBool(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"SMARTWATERING_INFLUXDB_URL", setString(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"SMARTWATERING_INFLUXDB_TOKEN", setString(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"SMARTWATERING_LOG_LEVEL", setString(func(c *Config) *string { return &c.Logging.Level })},
}

// applyEnvOverrides applies every non-empty SMARTWATERING_* variable.
func applyEnvOverrides(cfg *Config) error {
	var errs []string
	for _, o := range envOverrides {
		v := os.Getenv(o.key)
		if v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", o.key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	switch c.Commands.Transport {
	case TransportMQTT:
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka.brokers is required when commands.transport is kafka")
		}
	default:
		errs = append(errs, fmt.Sprintf("commands.transport must be %q or %q", TransportMQTT, TransportKafka))
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Kafka.RequiredAcks < -1 || c.Kafka.RequiredAcks > 1 {
		errs = append(errs, "kafka.required_acks must be -1, 0, or 1")
	}

	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	if c.InfluxDB.Enabled {
		for key, v := range map[string]string{"url": c.InfluxDB.URL, "org": c.InfluxDB.Org, "bucket": c.InfluxDB.Bucket} {
			if v == "" {
				errs = append(errs, "influxdb."+key+" is required when influxdb is enabled")
			}
		}
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
