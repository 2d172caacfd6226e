package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP (empty host => sandbox transport)
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:""`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	MailFrom     string `envconfig:"MAIL_FROM" default:"noreply@mailroom.local"`

	// ----------------------------
	// Dispatch
	// ----------------------------
	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"30s"`
	BatchLimit   int           `envconfig:"BATCH_LIMIT" default:"10"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	RateLimit    int           `envconfig:"RATE_LIMIT" default:"10"`
	SendTimeout  time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`
	// BaseURL is the public origin tracking pixel links are built on.
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database (empty => in-memory store)
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
