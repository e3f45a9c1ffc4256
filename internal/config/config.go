// Package config loads platform configuration from a YAML file with
// environment variable overrides for deployment secrets.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Email    EmailConfig    `yaml:"email"`
	SMS      GatewayConfig  `yaml:"sms"`
	Chat     GatewayConfig  `yaml:"chat"`
	Voice    GatewayConfig  `yaml:"voice"`
	Postal   GatewayConfig  `yaml:"postal"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings for the interaction queue
// and per-prospect locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DispatchConfig tunes the dispatch worker pool.
type DispatchConfig struct {
	Workers                int `yaml:"workers"`
	BatchSize              int `yaml:"batch_size"`
	PollIntervalMillis     int `yaml:"poll_interval_millis"`
	ProviderTimeoutSeconds int `yaml:"provider_timeout_seconds"`
	MaxAttempts            int `yaml:"max_attempts"`
	LeaseTTLSeconds        int `yaml:"lease_ttl_seconds"`
}

// PollInterval returns the due-enrollment poll interval as a duration.
func (c DispatchConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// ProviderTimeout returns the per-send provider timeout as a duration.
func (c DispatchConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// LeaseTTL returns the enrollment lease TTL as a duration.
func (c DispatchConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// IngestConfig tunes the interaction consumer.
type IngestConfig struct {
	QueueKey           string `yaml:"queue_key"`
	LockTTLSeconds     int    `yaml:"lock_ttl_seconds"`
	BlockTimeoutMillis int    `yaml:"block_timeout_millis"`
}

// LockTTL returns the per-prospect lock TTL as a duration.
func (c IngestConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// BlockTimeout returns how long a queue pop blocks before re-checking for shutdown.
func (c IngestConfig) BlockTimeout() time.Duration {
	return time.Duration(c.BlockTimeoutMillis) * time.Millisecond
}

// EmailConfig holds AWS SES credentials for the email channel.
type EmailConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	Enabled   bool   `yaml:"enabled"`
}

// GatewayConfig holds settings for an HTTP channel gateway (SMS, chat,
// voice-drop, postal). All four speak the same JSON send contract.
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration.
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 8
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 50
	}
	if cfg.Dispatch.PollIntervalMillis == 0 {
		cfg.Dispatch.PollIntervalMillis = 1000
	}
	if cfg.Dispatch.ProviderTimeoutSeconds == 0 {
		cfg.Dispatch.ProviderTimeoutSeconds = 30
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 3
	}
	if cfg.Dispatch.LeaseTTLSeconds == 0 {
		// Must outlast provider timeout plus the whole backoff budget so a
		// crashed worker's lease expires only after any in-flight send died.
		cfg.Dispatch.LeaseTTLSeconds = 300
	}
	if cfg.Ingest.QueueKey == "" {
		cfg.Ingest.QueueKey = "outreach:interactions"
	}
	if cfg.Ingest.LockTTLSeconds == 0 {
		cfg.Ingest.LockTTLSeconds = 30
	}
	if cfg.Ingest.BlockTimeoutMillis == 0 {
		cfg.Ingest.BlockTimeoutMillis = 2000
	}
	if cfg.Email.Region == "" {
		cfg.Email.Region = "us-east-1"
	}
	for _, gw := range []*GatewayConfig{&cfg.SMS, &cfg.Chat, &cfg.Voice, &cfg.Postal} {
		if gw.TimeoutSeconds == 0 {
			gw.TimeoutSeconds = 30
		}
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

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Email.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Email.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Email.Region = v
	}
	if v := os.Getenv("SMS_GATEWAY_API_KEY"); v != "" {
		cfg.SMS.APIKey = v
	}
	if v := os.Getenv("CHAT_GATEWAY_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("VOICE_GATEWAY_API_KEY"); v != "" {
		cfg.Voice.APIKey = v
	}
	if v := os.Getenv("POSTAL_GATEWAY_API_KEY"); v != "" {
		cfg.Postal.APIKey = v
	}

	return cfg, nil
}
