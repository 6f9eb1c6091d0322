package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/config"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/logger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/telemetry"
	"github.com/rs/zerolog/log"
)

type Globals struct {
	Debug      bool
	ConfigFile string
	Version    string
}

// load reads and validates the configuration and sets up logging.
func (g *Globals) load() (config.Config, error) {
	cfg, err := config.Load(g.ConfigFile)
	if err != nil {
		return config.Config{}, err
	}
	if g.Debug {
		cfg.Debug = true
	}
	logger.Setup(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Debug().
		Str("version", g.Version).
		Str("ledger_url", cfg.LedgerURL).
		Str("participant", cfg.Participant).
		Msg("configuration loaded")
	return cfg, nil
}

// setupMetrics installs the OTLP exporter when enabled. The returned function
// flushes it and is safe to call when metrics are off.
func (g *Globals) setupMetrics(ctx context.Context, cfg config.Config) func() {
	if !cfg.Metrics.Enabled {
		return func() {}
	}
	shutdown, err := telemetry.InitMetrics(ctx, "chicken", g.Version, cfg.Metrics.Endpoint, cfg.Metrics.Interval)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize metrics, continuing without them")
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("metrics shutdown failed")
		}
	}
}
