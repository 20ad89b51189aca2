package config

import (
	"fmt"
	"time"
)

type HTTPConfig struct {
	Addr string `json:"addr"`
	// AllowOrigins feeds the CORS middleware and the websocket origin check.
	AllowOrigins []string `json:"allow_origins"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"*"}
	}
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
	MaxIdle  int    `json:"max_idle"`
	MaxOpen  int    `json:"max_open"`
	// AutoMigrate runs schema migrations on startup.
	AutoMigrate bool `json:"auto_migrate"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" {
		c.Port = "5432"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = 10
	}
	if c.MaxOpen <= 0 {
		c.MaxOpen = 100
	}
}

// DSN renders the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

type RedisConfig struct {
	URL string `json:"url"`
}

func (c *RedisConfig) SetDefaults() {
	if c.URL == "" {
		c.URL = "redis://localhost:6379"
	}
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

func (c *KafkaConfig) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "trip-events"
	}
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	// TokenTTLHours bounds token lifetime and how long a revocation is kept.
	TokenTTLHours int `json:"token_ttl_hours"`
}

func (c *AuthConfig) SetDefaults() {
	if c.TokenTTLHours <= 0 {
		c.TokenTTLHours = 24
	}
}

func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c AuthConfig) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

// DispatchConfig holds the candidate search and offer parameters.
type DispatchConfig struct {
	SearchRadiusMeters float64 `json:"search_radius_meters"`
	MaxCandidates      int     `json:"max_candidates"`
	OfferTTLSeconds    int     `json:"offer_ttl_seconds"`
	// OfferTTLMillis overrides OfferTTLSeconds when set.
	OfferTTLMillis       int     `json:"offer_ttl_millis"`
	SweepIntervalSeconds int     `json:"sweep_interval_seconds"`
	AverageSpeedKmh      float64 `json:"average_speed_kmh"`
	Currency             string  `json:"currency"`
}

func (c *DispatchConfig) SetDefaults() {
	if c.SearchRadiusMeters <= 0 {
		c.SearchRadiusMeters = 5000
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 5
	}
	if c.OfferTTLSeconds <= 0 {
		c.OfferTTLSeconds = 20
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = 15
	}
	if c.AverageSpeedKmh <= 0 {
		c.AverageSpeedKmh = 30
	}
	if c.Currency == "" {
		c.Currency = "KES"
	}
}

func (c DispatchConfig) Validate() error {
	if c.MaxCandidates > 50 {
		return fmt.Errorf("dispatch.max_candidates must be <= 50")
	}
	return nil
}

func (c DispatchConfig) OfferTTL() time.Duration {
	if c.OfferTTLMillis > 0 {
		return time.Duration(c.OfferTTLMillis) * time.Millisecond
	}
	return time.Duration(c.OfferTTLSeconds) * time.Second
}

func (c DispatchConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// OutboxConfig controls the relay poll loop and its retry policy.
type OutboxConfig struct {
	PollIntervalMillis int `json:"poll_interval_ms"`
	BatchSize          int `json:"batch_size"`
	// MaxAttempts caps delivery attempts per row; zero retries forever.
	MaxAttempts      int `json:"max_attempts"`
	RetryBaseSeconds int `json:"retry_base_seconds"`
	RetryMaxSeconds  int `json:"retry_max_seconds"`
}

func (c *OutboxConfig) SetDefaults() {
	if c.PollIntervalMillis <= 0 {
		c.PollIntervalMillis = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RetryBaseSeconds <= 0 {
		c.RetryBaseSeconds = 1
	}
	if c.RetryMaxSeconds <= 0 {
		c.RetryMaxSeconds = 60
	}
}

func (c OutboxConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("outbox.max_attempts must not be negative")
	}
	if c.RetryMaxSeconds < c.RetryBaseSeconds {
		return fmt.Errorf("outbox.retry_max_seconds must be >= retry_base_seconds")
	}
	return nil
}

func (c OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

type RealtimeConfig struct {
	SendBuffer int `json:"send_buffer"`
	// IncludeAdminContact exposes driver phone numbers in admin views.
	IncludeAdminContact bool `json:"include_admin_contact"`
}

func (c *RealtimeConfig) SetDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
}

// PushConfig enables Firebase Cloud Messaging; leaving the service account
// empty disables push delivery.
type PushConfig struct {
	ServiceAccountPath string `json:"service_account_path"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown logging.level %s", c.Level)
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
