package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Lumina Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host           string           `yaml:"host"`
	Port           int              `yaml:"port"`
	Prefix         string           `yaml:"prefix"`
	DefaultVersion int              `yaml:"default_version"`
	Timeouts       APITimeoutConfig `yaml:"timeouts"`
	CORS           CORSConfig       `yaml:"cors"`
	RateLimit      RateLimitConfig  `yaml:"rate_limit"`
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

// RateLimitConfig contains per-IP rate limiting for the auth endpoints.
type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled"`
	PerSecond int  `yaml:"per_second"`
	Burst     int  `yaml:"burst"`
}

// AuthConfig contains token lifetimes and RSA key file locations.
//
// Two independent key pairs are used: one for access tokens, one for refresh
// tokens. Compromise or rotation of one pair does not invalidate the other
// token class.
type AuthConfig struct {
	AccessTokenTTL  int        `yaml:"access_token_ttl"`  // seconds
	RefreshTokenTTL int        `yaml:"refresh_token_ttl"` // seconds
	Keys            KeysConfig `yaml:"keys"`
}

// KeysConfig contains the PEM file locations for the two RSA key pairs.
type KeysConfig struct {
	Directory      string `yaml:"directory"`
	PrivateAccess  string `yaml:"private_access"`
	PublicAccess   string `yaml:"public_access"`
	PrivateRefresh string `yaml:"private_refresh"`
	PublicRefresh  string `yaml:"public_refresh"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for sensor history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// SMTPConfig contains outbound email settings for security alerts.
type SMTPConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	AlertTo  []string `yaml:"alert_to"`
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
// Environment variables follow the pattern: LUMINA_SECTION_KEY
// For example: LUMINA_DATABASE_PATH, LUMINA_MQTT_HOST
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
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Lumina",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/lumina.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           4001,
			Prefix:         "api",
			DefaultVersion: 1,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			RateLimit: RateLimitConfig{
				Enabled:   true,
				PerSecond: 5,
				Burst:     10,
			},
		},
		Auth: AuthConfig{
			AccessTokenTTL:  300,
			RefreshTokenTTL: 3600,
			Keys: KeysConfig{
				Directory:      "./keys",
				PrivateAccess:  "private_key_access.pem",
				PublicAccess:   "public_key_access.pem",
				PrivateRefresh: "private_key_refresh.pem",
				PublicRefresh:  "public_key_refresh.pem",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lumina-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "no-reply@lumina.local",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LUMINA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LUMINA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("LUMINA_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LUMINA_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Auth
	if v := os.Getenv("LUMINA_KEY_DIRECTORY"); v != "" {
		cfg.Auth.Keys.Directory = v
	}
	if v := os.Getenv("LUMINA_ACCESS_TOKEN_TTL"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			cfg.Auth.AccessTokenTTL = ttl
		}
	}
	if v := os.Getenv("LUMINA_REFRESH_TOKEN_TTL"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			cfg.Auth.RefreshTokenTTL = ttl
		}
	}

	// MQTT
	if v := os.Getenv("LUMINA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LUMINA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LUMINA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LUMINA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// SMTP
	if v := os.Getenv("LUMINA_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if strings.Contains(c.API.Prefix, "/") {
		errs = append(errs, "api.prefix must be a bare path segment (no slashes)")
	}
	if c.API.DefaultVersion < 1 {
		errs = append(errs, "api.default_version must be at least 1")
	}

	// Auth validation. Key material is required: tokens cannot be issued or
	// verified without both RSA pairs, and the Key Manager fails fatally at
	// startup if the files are missing or malformed.
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, "auth.access_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, "auth.refresh_token_ttl must be positive")
	}
	if c.Auth.Keys.Directory == "" {
		errs = append(errs, "auth.keys.directory is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set LUMINA_INFLUXDB_TOKEN)")
		}
	}

	if c.SMTP.Enabled && c.SMTP.Host == "" {
		errs = append(errs, "smtp.host is required when smtp is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// NormalizedPrefix returns the API prefix with surrounding slashes stripped,
// matching how routes are mounted and how permission paths are normalized.
func (c *APIConfig) NormalizedPrefix() string {
	return strings.Trim(c.Prefix, "/")
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

// AccessTTL returns the access token lifetime as a Duration.
func (c *AuthConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

// RefreshTTL returns the refresh token lifetime as a Duration.
func (c *AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Second
}
