package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/bhavyaTomar2711/Cosmic-chicken"
)

// Metrics holds the OpenTelemetry instruments of the session core. They are
// created from the global meter provider, so they are no-ops until the host
// installs a real provider.
type Metrics struct {
	// Session lifecycle
	SessionsStarted  metric.Int64Counter
	SessionsImported metric.Int64Counter
	StartTimeouts    metric.Int64Counter
	Resolutions      metric.Int64Counter

	// Resolution inputs
	ResolverAttempts metric.Int64Counter
	TerminalEvents   metric.Int64Counter

	// Feedback dispatch
	HooksDropped metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.SessionsStarted, _ = meter.Int64Counter(
		"chicken.sessions.started.total",
		metric.WithDescription("Start actions accepted by the ledger"),
		metric.WithUnit("{session}"),
	)

	m.SessionsImported, _ = meter.Int64Counter(
		"chicken.sessions.imported.total",
		metric.WithDescription("Active sessions rebuilt from the ledger on startup or reload"),
		metric.WithUnit("{session}"),
	)

	m.StartTimeouts, _ = meter.Int64Counter(
		"chicken.sessions.start_timeouts.total",
		metric.WithDescription("Start confirmations that exceeded the polling budget"),
		metric.WithUnit("{session}"),
	)

	m.Resolutions, _ = meter.Int64Counter(
		"chicken.sessions.resolutions.total",
		metric.WithDescription("Resolution attempts by outcome"),
		metric.WithUnit("{resolution}"),
	)

	m.ResolverAttempts, _ = meter.Int64Counter(
		"chicken.resolver.attempts.total",
		metric.WithDescription("Session result reads issued by the resolver"),
		metric.WithUnit("{request}"),
	)

	m.TerminalEvents, _ = meter.Int64Counter(
		"chicken.events.terminal.total",
		metric.WithDescription("Terminal events received, by disposition"),
		metric.WithUnit("{event}"),
	)

	m.HooksDropped, _ = meter.Int64Counter(
		"chicken.feedback.dropped.total",
		metric.WithDescription("Feedback hooks dropped because the dispatcher was full"),
		metric.WithUnit("{hook}"),
	)

	return m
}
