// Package resolver obtains the authoritative outcome of a round from the
// ledger, tolerating the window in which the ledger has not recorded the end
// of a round the local timer already considers over.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/telemetry"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const opReadResult = "read session result"

// ErrResultUnavailable is surfaced when polling exhausts its budget.
var ErrResultUnavailable = errors.New("result not available yet, check back later")

// Mode selects the retry policy.
type Mode int

const (
	// ModeSingle is used when the local timer expired without an eject:
	// one attempt, "not ended" is reported back to the caller.
	ModeSingle Mode = iota
	// ModePolling is used after an eject was confirmed: "not ended" is
	// retried at a fixed interval up to the attempt budget.
	ModePolling
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// ResultReader is the subset of the ledger port the resolver needs.
type ResultReader interface {
	SessionResult(ctx context.Context, id models.SessionID) (models.Result, error)
}

// Config is the polling budget.
type Config struct {
	Attempts int
	Interval time.Duration
}

// DefaultConfig returns 20 attempts spaced 500ms apart.
func DefaultConfig() Config {
	return Config{
		Attempts: 20,
		Interval: 500 * time.Millisecond,
	}
}

// Resolver reads session results under a Mode-specific retry policy.
type Resolver struct {
	reader ResultReader
	clock  clockwork.Clock
	cfg    Config
}

// New creates a resolver. Non-positive config values fall back to defaults.
func New(reader ResultReader, clock clockwork.Clock, cfg Config) *Resolver {
	def := DefaultConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{reader: reader, clock: clock, cfg: cfg}
}

// Resolve returns the outcome of session id.
//
// ModeSingle reports "not ended" as a Transient error wrapping
// ledger.ErrNotEnded. ModePolling retries it and returns a Timeout error
// wrapping ErrResultUnavailable once the budget is spent. Any other read
// failure aborts immediately as Fatal.
func (r *Resolver) Resolve(ctx context.Context, id models.SessionID, mode Mode) (models.Result, error) {
	attempts := 1
	if mode == ModePolling {
		attempts = r.cfg.Attempts
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode.String()))

	for attempt := 1; ; attempt++ {
		telemetry.GetMetrics().ResolverAttempts.Add(ctx, 1, attrs)

		result, err := r.reader.SessionResult(ctx, id)
		if err == nil {
			log.Info().
				Str("session_id", id.String()).
				Str("mode", mode.String()).
				Int("attempt", attempt).
				Bool("won", result.Won).
				Msg("session result resolved")
			return result, nil
		}

		if ctx.Err() != nil {
			return models.Result{}, fmt.Errorf("resolve session %s: %w", id, ctx.Err())
		}

		if !errors.Is(err, ledger.ErrNotEnded) {
			log.Error().Err(err).Str("session_id", id.String()).Int("attempt", attempt).Msg("session result read failed")
			return models.Result{}, apperr.Fatal(opReadResult, id, err)
		}

		if mode == ModeSingle {
			return models.Result{}, apperr.Transient(opReadResult, id, err)
		}

		if attempt >= attempts {
			log.Warn().Str("session_id", id.String()).Int("attempts", attempt).Msg("session result still not available")
			return models.Result{}, apperr.Timeout(opReadResult, id, fmt.Errorf("%w after %d attempts", ErrResultUnavailable, attempt))
		}

		log.Debug().Str("session_id", id.String()).Int("attempt", attempt).Msg("session not ended yet, retrying")

		timer := r.clock.NewTimer(r.cfg.Interval)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			return models.Result{}, fmt.Errorf("resolve session %s: %w", id, ctx.Err())
		}
	}
}
