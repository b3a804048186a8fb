package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinSigningSecretLen is the minimum byte length of the tracking signing
// secret. Shorter secrets are a startup error, never a runtime one.
const MinSigningSecretLen = 32

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Tracking TrackingConfig `yaml:"tracking"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TrackingConfig holds tracking endpoint configuration
type TrackingConfig struct {
	BaseURL       string `yaml:"base_url"`
	SigningSecret string `yaml:"signing_secret"`
}

// MailerConfig holds mail transport and template configuration
type MailerConfig struct {
	Provider            string          `yaml:"provider"` // "ses" or "sparkpost"
	FromEmail           string          `yaml:"from_email"`
	FromName            string          `yaml:"from_name"`
	TemplateDir         string          `yaml:"template_dir"`
	UnsubscribeTTLHours int             `yaml:"unsubscribe_ttl_hours"`
	SES                 SESConfig       `yaml:"ses"`
	SparkPost           SparkPostConfig `yaml:"sparkpost"`
}

// UnsubscribeTTL returns the lifetime of unsubscribe tokens.
func (c MailerConfig) UnsubscribeTTL() time.Duration {
	return time.Duration(c.UnsubscribeTTLHours) * time.Hour
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SparkPostConfig holds SparkPost API configuration
type SparkPostConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SparkPostConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WorkerConfig holds send-queue worker configuration
type WorkerConfig struct {
	BatchSize         int `yaml:"batch_size"`
	IntervalSeconds   int `yaml:"interval_seconds"`
	MaxAttempts       int `yaml:"max_attempts"`
	RetryBaseSeconds  int `yaml:"retry_base_seconds"`
	RetryMaxSeconds   int `yaml:"retry_max_seconds"`
	StaleClaimSeconds int `yaml:"stale_claim_seconds"`
}

// Interval returns the queue polling interval as a duration
func (c WorkerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RetryBase returns the base backoff delay as a duration
func (c WorkerConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseSeconds) * time.Second
}

// RetryMax returns the backoff cap as a duration
func (c WorkerConfig) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxSeconds) * time.Second
}

// StaleAfter returns the age at which an unfinished claim is requeued
func (c WorkerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleClaimSeconds) * time.Second
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// RedactEnabled reports whether recipient redaction is on (default true).
func (c LogConfig) RedactEnabled() bool {
	if c.RedactPII == nil {
		return true
	}
	return *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "http://localhost:8081"
	}
	if cfg.Mailer.Provider == "" {
		cfg.Mailer.Provider = "ses"
	}
	if cfg.Mailer.TemplateDir == "" {
		cfg.Mailer.TemplateDir = "templates"
	}
	if cfg.Mailer.UnsubscribeTTLHours == 0 {
		cfg.Mailer.UnsubscribeTTLHours = 30 * 24
	}
	if cfg.Mailer.SES.Region == "" {
		cfg.Mailer.SES.Region = "us-east-1"
	}
	if cfg.Mailer.SparkPost.BaseURL == "" {
		cfg.Mailer.SparkPost.BaseURL = "https://api.sparkpost.com/api/v1"
	}
	if cfg.Mailer.SparkPost.TimeoutSeconds == 0 {
		cfg.Mailer.SparkPost.TimeoutSeconds = 30
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 100
	}
	if cfg.Worker.IntervalSeconds == 0 {
		cfg.Worker.IntervalSeconds = 1
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Worker.RetryBaseSeconds == 0 {
		cfg.Worker.RetryBaseSeconds = 30
	}
	if cfg.Worker.RetryMaxSeconds == 0 {
		cfg.Worker.RetryMaxSeconds = 900
	}
	if cfg.Worker.StaleClaimSeconds == 0 {
		cfg.Worker.StaleClaimSeconds = 300
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if secret := os.Getenv("TRACKING_SIGNING_SECRET"); secret != "" {
		cfg.Tracking.SigningSecret = secret
	}
	if baseURL := os.Getenv("TRACKING_BASE_URL"); baseURL != "" {
		cfg.Tracking.BaseURL = baseURL
	}
	if apiKey := os.Getenv("SPARKPOST_API_KEY"); apiKey != "" {
		cfg.Mailer.SparkPost.APIKey = apiKey
	}
	if baseURL := os.Getenv("SPARKPOST_BASE_URL"); baseURL != "" {
		cfg.Mailer.SparkPost.BaseURL = baseURL
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.Mailer.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.Mailer.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.Mailer.SES.Region = region
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

// Validate checks invariants that must hold before the process serves
// traffic. A missing or short signing secret refuses startup.
func (c *Config) Validate() error {
	if len(c.Tracking.SigningSecret) < MinSigningSecretLen {
		return fmt.Errorf("tracking.signing_secret must be at least %d bytes, got %d",
			MinSigningSecretLen, len(c.Tracking.SigningSecret))
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	switch c.Mailer.Provider {
	case "ses", "sparkpost":
	default:
		return fmt.Errorf("mailer.provider must be \"ses\" or \"sparkpost\", got %q", c.Mailer.Provider)
	}
	return nil
}
