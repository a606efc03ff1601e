// Package config loads and validates app config from env and an optional .env
// file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL selects the Redis-backed session store when set; empty keeps
	// sessions in process memory (single-instance deployments only).
	RedisURL string `mapstructure:"REDIS_URL"`
	// SessionTTL is the hard session lifetime anchored to creation (e.g. "168h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// ResetTokenTTL is the password-reset token lifetime (e.g. "1h").
	ResetTokenTTL string `mapstructure:"RESET_TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// SessionStatsRecent is how many most-recently-active sessions the stats
	// view returns.
	SessionStatsRecent int `mapstructure:"SESSION_STATS_RECENT"`

	// SendGridAPIKey enables reset email delivery; empty uses a no-op mailer.
	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	// ResetFromEmail is the sender address on reset email.
	ResetFromEmail string `mapstructure:"RESET_FROM_EMAIL"`
	// ResetFromName is the sender display name on reset email.
	ResetFromName string `mapstructure:"RESET_FROM_NAME"`
	// ResetLinkBaseURL is the public reset page the emailed link points at.
	ResetLinkBaseURL string `mapstructure:"RESET_LINK_BASE_URL"`
	// ResetTokenReturnToClient when true includes the raw reset token in the
	// request-reset API response, for dev/test flows without an email
	// provider. Must not be true when Env is production (refused at startup);
	// the production channel for tokens is email only.
	ResetTokenReturnToClient bool `mapstructure:"RESET_TOKEN_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// AuditKafkaBrokers is a comma-separated broker list; when set, audit
	// entries are also streamed to Kafka for downstream analytics.
	AuditKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the topic for the audit entry stream.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// Worker-only: SweepInterval is how often the cleanup worker sweeps
	// expired sessions and reset tokens (e.g. "10m").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI); env vars
// override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SESSION_TTL", "168h") // 7d
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_STATS_RECENT", 10)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("RESET_FROM_EMAIL", "noreply@club.example")
	v.SetDefault("RESET_FROM_NAME", "Club Support")
	v.SetDefault("RESET_LINK_BASE_URL", "")
	v.SetDefault("RESET_TOKEN_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "club-reset-audit")
	v.SetDefault("SWEEP_INTERVAL", "10m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.ResetTokenReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: RESET_TOKEN_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// SessionMaxAge parses SessionTTL as a time.Duration. Returns 168h if unset or
// invalid.
func (c *Config) SessionMaxAge() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// ResetTokenLifetime parses ResetTokenTTL as a time.Duration. Returns 1h if
// unset or invalid.
func (c *Config) ResetTokenLifetime() time.Duration {
	d, err := time.ParseDuration(c.ResetTokenTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Sweep parses SweepInterval as a time.Duration. Returns 10m if unset or
// invalid.
func (c *Config) Sweep() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// AuditKafkaBrokersList returns broker addresses from the comma-separated
// config. Used to decide if the audit stream is enabled (non-empty list) and
// to create the producer.
func (c *Config) AuditKafkaBrokersList() []string {
	if c == nil || c.AuditKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AuditKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
