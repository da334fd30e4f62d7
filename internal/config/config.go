// Package config loads the coordinator's runtime configuration from the
// environment as a small typed struct, rather than a flag-parsing
// framework.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the coordinator's full runtime configuration, assembled once at
// startup from the environment.
type Config struct {
	HTTPAddr   string
	DatabaseURL string
	RedisURL    string

	SentryDSN         string
	SentryEnvironment string

	ResendAPIKey   string
	MailFromName   string
	MailFromEmail  string
	// MailRecipientDomain turns a pipeline creator's forge login into a
	// recipient address (login@domain) for completion notifications. Left
	// empty, MailNotifier never resolves a recipient and notifications are
	// silently skipped — the store has no verified email on file for users.
	MailRecipientDomain string

	// LivenessTick is how often the sweeper scans for stale workers.
	LivenessTick time.Duration
	// LivenessTimeout is the no-heartbeat duration after which a worker is dead.
	LivenessTimeout time.Duration

	// RelayBuffer is the number of most-recent log lines retained per hostname.
	RelayBuffer int

	// RequestTimeout bounds every inbound HTTP handler.
	RequestTimeout time.Duration

	// DashboardCacheTTL bounds how long dashboard/status aggregates are cached.
	DashboardCacheTTL time.Duration
}

// Load reads configuration from the environment, applying the defaults
// recommended in §4.4/§4.7/§5 of the coordinator's design.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:          getEnv("BUILDIT_HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("BUILDIT_DATABASE_URL"),
		RedisURL:          os.Getenv("BUILDIT_REDIS_URL"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "production"),
		ResendAPIKey:      os.Getenv("RESEND_API_KEY"),
		MailFromName:      getEnv("BUILDIT_MAIL_FROM_NAME", "BuildIt"),
		MailFromEmail:     os.Getenv("BUILDIT_MAIL_FROM_EMAIL"),
		MailRecipientDomain: os.Getenv("BUILDIT_MAIL_RECIPIENT_DOMAIN"),
	}

	var err error
	if cfg.LivenessTick, err = getDuration("BUILDIT_LIVENESS_TICK", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.LivenessTimeout, err = getDuration("BUILDIT_LIVENESS_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("BUILDIT_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.DashboardCacheTTL, err = getDuration("BUILDIT_DASHBOARD_CACHE_TTL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RelayBuffer, err = getInt("BUILDIT_RELAY_BUFFER", 5000); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: BUILDIT_DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return n, nil
}
