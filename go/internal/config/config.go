// Package config loads the client settings from an optional YAML file, a
// .env file and CHICKEN_* environment variables, in that order of precedence
// from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/resolver"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/session"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the variable pointing at the YAML file.
const FileEnv = "CHICKEN_CONFIG_FILE"

type Config struct {
	LedgerURL    string `yaml:"ledger_url" env:"CHICKEN_LEDGER_URL"`
	LedgerAPIKey string `yaml:"ledger_api_key" env:"CHICKEN_LEDGER_API_KEY"`
	Participant  string `yaml:"participant" env:"CHICKEN_PARTICIPANT"`
	Port         string `yaml:"port" env:"CHICKEN_PORT"`
	Debug        bool   `yaml:"debug" env:"CHICKEN_DEBUG"`

	Events  EventsConfig  `yaml:"events" envPrefix:"CHICKEN_EVENTS_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"CHICKEN_METRICS_"`
	Timings TimingsConfig `yaml:"timings" envPrefix:"CHICKEN_"`
}

// EventsConfig selects the terminal-event feeds. Both may be set; neither
// leaves the machine on its timer fallback.
type EventsConfig struct {
	NATSURL      string `yaml:"nats_url" env:"NATS_URL"`
	Subject      string `yaml:"subject" env:"SUBJECT"`
	Stream       string `yaml:"stream" env:"STREAM"`
	WebSocketURL string `yaml:"websocket_url" env:"WS_URL"`
}

// MetricsConfig enables the OTLP metrics exporter when Enabled is set.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Endpoint string        `yaml:"endpoint" env:"OTLP_ENDPOINT"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

type TimingsConfig struct {
	StartPollInterval   time.Duration `yaml:"start_poll_interval" env:"START_POLL_INTERVAL"`
	StartTimeout        time.Duration `yaml:"start_timeout" env:"START_TIMEOUT"`
	EjectConfirmTimeout time.Duration `yaml:"eject_confirm_timeout" env:"EJECT_CONFIRM_TIMEOUT"`
	ResolveAttempts     int           `yaml:"resolve_attempts" env:"RESOLVE_ATTEMPTS"`
	ResolveInterval     time.Duration `yaml:"resolve_interval" env:"RESOLVE_INTERVAL"`
	FrameInterval       time.Duration `yaml:"frame_interval" env:"FRAME_INTERVAL"`
}

// Default returns the built-in settings.
func Default() Config {
	t := session.DefaultTimings()
	return Config{
		Port: "8080",
		Events: EventsConfig{
			Subject: "chicken.events.>",
		},
		Metrics: MetricsConfig{
			Interval: 10 * time.Second,
		},
		Timings: TimingsConfig{
			StartPollInterval:   t.StartPollInterval,
			StartTimeout:        t.StartTimeout,
			EjectConfirmTimeout: t.EjectConfirmTimeout,
			ResolveAttempts:     t.Resolve.Attempts,
			ResolveInterval:     t.Resolve.Interval,
			FrameInterval:       t.FrameInterval,
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// CHICKEN_CONFIG_FILE is consulted.
func Load(path string) (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate reports every missing or out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.LedgerURL == "" {
		errs = append(errs, errors.New("ledger url is required"))
	}
	if c.Participant == "" {
		errs = append(errs, errors.New("participant is required"))
	}

	t := c.Timings
	for name, d := range map[string]time.Duration{
		"start poll interval":   t.StartPollInterval,
		"start timeout":         t.StartTimeout,
		"eject confirm timeout": t.EjectConfirmTimeout,
		"resolve interval":      t.ResolveInterval,
		"frame interval":        t.FrameInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if t.ResolveAttempts <= 0 {
		errs = append(errs, errors.New("resolve attempts must be positive"))
	}
	if t.StartPollInterval > t.StartTimeout {
		errs = append(errs, errors.New("start poll interval exceeds start timeout"))
	}

	return errors.Join(errs...)
}

// Session converts the timing block into machine timings.
func (t TimingsConfig) Session() session.Timings {
	return session.Timings{
		StartPollInterval:   t.StartPollInterval,
		StartTimeout:        t.StartTimeout,
		EjectConfirmTimeout: t.EjectConfirmTimeout,
		FrameInterval:       t.FrameInterval,
		Resolve: resolver.Config{
			Attempts: t.ResolveAttempts,
			Interval: t.ResolveInterval,
		},
	}
}
