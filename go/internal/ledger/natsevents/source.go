// Package natsevents subscribes to ledger terminal events relayed over NATS,
// either as plain subject messages or from a JetStream stream.
package natsevents

import (
	"context"
	"fmt"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds the NATS connection and subject settings.
type Config struct {
	URL     string
	Subject string // e.g., "chicken.events.>"
	// StreamName selects JetStream delivery through an ordered consumer.
	// Empty means core NATS.
	StreamName    string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default NATS settings.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Subject:       "chicken.events.>",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

var _ ledger.EventSource = (*Source)(nil)

// Source implements ledger.EventSource on a NATS connection.
type Source struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// Connect dials NATS and prepares JetStream when a stream is configured.
func Connect(config Config) (*Source, error) {
	opts := []nats.Option{
		nats.Name("chicken-session-events"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	src, err := NewSource(nc, config)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return src, nil
}

// NewSource wraps an existing connection.
func NewSource(nc *nats.Conn, config Config) (*Source, error) {
	s := &Source{nc: nc, config: config}
	if config.StreamName != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		s.js = js
	}
	return s, nil
}

// SubscribeTerminalEvents delivers every SessionEnded event published after
// the call. Other event types and undecodable messages are skipped.
func (s *Source) SubscribeTerminalEvents(ctx context.Context, handler func(models.TerminalEvent)) (ledger.Subscription, error) {
	if s.js != nil {
		return s.subscribeStream(ctx, handler)
	}

	sub, err := s.nc.Subscribe(s.config.Subject, func(msg *nats.Msg) {
		dispatch(msg.Subject, msg.Data, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", s.config.Subject, err)
	}

	log.Debug().Str("subject", s.config.Subject).Msg("subscribed to terminal events")
	return subscription(sub.Unsubscribe), nil
}

func (s *Source) subscribeStream(ctx context.Context, handler func(models.TerminalEvent)) (ledger.Subscription, error) {
	consumer, err := s.js.OrderedConsumer(ctx, s.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{s.config.Subject},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		dispatch(msg.Subject(), msg.Data(), handler)
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}

	log.Debug().
		Str("stream", s.config.StreamName).
		Str("subject", s.config.Subject).
		Msg("consuming terminal events from JetStream")
	return subscription(func() error {
		cc.Stop()
		return nil
	}), nil
}

// Close shuts the NATS connection.
func (s *Source) Close() {
	log.Info().Msg("closing NATS event source")
	if s.nc != nil {
		s.nc.Close()
	}
}

func dispatch(subject string, data []byte, handler func(models.TerminalEvent)) {
	ev, ok, err := ledger.DecodeEnvelope(data)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to decode event")
		return
	}
	if !ok {
		return
	}

	log.Debug().
		Str("subject", subject).
		Str("session_id", ev.SessionID.String()).
		Msg("terminal event received")
	handler(ev)
}

type subscription func() error

func (s subscription) Unsubscribe() error { return s() }
