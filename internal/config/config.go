// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the shared configuration of the worker and HTTP processes.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string `env:"DB_PATH" envDefault:"edupipe.db"`

	// Transcoding provider: local, bunny, or mux.
	TranscodeProvider  string `env:"TRANSCODE_PROVIDER" envDefault:"local"`
	BunnyLibraryID     string `env:"BUNNY_LIBRARY_ID"`
	BunnyAPIKey        string `env:"BUNNY_API_KEY"`
	BunnyWebhookSecret string `env:"BUNNY_WEBHOOK_SECRET"`
	MuxTokenID         string `env:"MUX_TOKEN_ID"`
	MuxTokenSecret     string `env:"MUX_TOKEN_SECRET"`
	MuxWebhookSecret   string `env:"MUX_WEBHOOK_SECRET"`

	// Email provider: console, mailgun, or sendgrid.
	EmailProvider  string `env:"EMAIL_PROVIDER" envDefault:"console"`
	EmailFrom      string `env:"EMAIL_FROM" envDefault:"no-reply@edupipe.local"`
	MailgunDomain  string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey  string `env:"MAILGUN_API_KEY"`
	SendgridAPIKey string `env:"SENDGRID_API_KEY"`

	// Worker tuning.
	TranscodingConcurrency   int           `env:"TRANSCODING_CONCURRENCY" envDefault:"4"`
	NotificationsConcurrency int           `env:"NOTIFICATIONS_CONCURRENCY" envDefault:"8"`
	DigestsConcurrency       int           `env:"DIGESTS_CONCURRENCY" envDefault:"2"`
	MaintenanceConcurrency   int           `env:"MAINTENANCE_CONCURRENCY" envDefault:"1"`
	ShutdownGrace            time.Duration `env:"SHUTDOWN_GRACE" envDefault:"30s"`

	// Circuit breaker thresholds, shared by all protected providers.
	BreakerTimeout        time.Duration `env:"BREAKER_TIMEOUT" envDefault:"12s"`
	BreakerErrorThreshold int           `env:"BREAKER_ERROR_THRESHOLD_PCT" envDefault:"50"`
	BreakerVolume         int           `env:"BREAKER_VOLUME_THRESHOLD" envDefault:"5"`
	BreakerResetTimeout   time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`

	// Transcode status polling bounds.
	PollDelay time.Duration `env:"TRANSCODE_POLL_DELAY" envDefault:"30s"`
	MaxPolls  int           `env:"TRANSCODE_MAX_POLLS" envDefault:"40"`

	// Digest scheduling (hour in server local time; weekday 0=Sunday).
	DigestHour      int `env:"DIGEST_HOUR" envDefault:"8"`
	WeeklyDigestDay int `env:"WEEKLY_DIGEST_DAY" envDefault:"1"`

	// Retention for completed job rows.
	JobRetention time.Duration `env:"JOB_RETENTION" envDefault:"336h"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}
