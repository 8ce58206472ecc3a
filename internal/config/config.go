// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment
// variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"7001"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"hordebroker"`

	// Scheduling windows (§3, §4.2).
	StaleSeconds       int           `env:"STALE_SECONDS" envDefault:"300"`
	PromptStaleSeconds int           `env:"PROMPT_STALE_SECONDS" envDefault:"600"`
	FinishedRetention  time.Duration `env:"FINISHED_RETENTION" envDefault:"60s"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	MaxLiveUserPrompts int           `env:"MAX_LIVE_USER_PROMPTS" envDefault:"3"`

	// Registry persistence (§6).
	SnapshotDir      string        `env:"SNAPSHOT_DIR" envDefault:"./data"`
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"10s"`

	// HTTP transport.
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSAllowOrigins      []string      `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`

	// Event fan-out (optional, §2 domain stack).
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"generation.completed"`

	// Front-end passthrough (out of core scope; declared so a future
	// registration front-end has one place to source them from, per
	// spec §6).
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	SecretKey          string `env:"secret_key"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// EventBusEnabled reports whether a Kafka/Redpanda publisher should be
// wired in place of the no-op event bus (§2 domain stack: event
// fan-out is optional and additive).
func (c Config) EventBusEnabled() bool { return len(c.KafkaBrokers) > 0 }
