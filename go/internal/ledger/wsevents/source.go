// Package wsevents subscribes to ledger terminal events pushed over a
// websocket feed, reconnecting with exponential backoff.
package wsevents

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config holds websocket feed settings.
type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	MaxMessageSize   int64
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// DefaultConfig returns default feed settings for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		MaxMessageSize:   64 * 1024,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
	}
}

var _ ledger.EventSource = (*Source)(nil)

// Source implements ledger.EventSource over a websocket connection per
// subscription.
type Source struct {
	config Config
	dialer *websocket.Dialer
}

func New(config Config) *Source {
	return &Source{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// SubscribeTerminalEvents dials the feed once synchronously so an
// unreachable feed is reported to the caller. Later disconnects are retried
// in the background until the subscription ends.
func (s *Source) SubscribeTerminalEvents(ctx context.Context, handler func(models.TerminalEvent)) (ledger.Subscription, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go s.run(subCtx, conn, handler, sub.done)

	log.Debug().Str("url", s.config.URL).Msg("subscribed to websocket terminal events")
	return sub, nil
}

func (s *Source) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.config.URL, s.config.Header)
	if err != nil {
		return nil, fmt.Errorf("dial event feed: %w", err)
	}
	if s.config.MaxMessageSize > 0 {
		conn.SetReadLimit(s.config.MaxMessageSize)
	}
	return conn, nil
}

func (s *Source) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.config.InitialBackoff > 0 {
		b.InitialInterval = s.config.InitialBackoff
	}
	if s.config.MaxBackoff > 0 {
		b.MaxInterval = s.config.MaxBackoff
	}
	return b
}

func (s *Source) run(ctx context.Context, conn *websocket.Conn, handler func(models.TerminalEvent), done chan struct{}) {
	defer close(done)

	for {
		s.readLoop(ctx, conn, handler)
		if ctx.Err() != nil {
			return
		}

		var err error
		conn, err = backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return s.dial(ctx)
		},
			backoff.WithBackOff(s.newBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Warn().Err(err).Dur("retry_in", next).Msg("event feed reconnect failed")
			}),
		)
		if err != nil {
			return
		}
		log.Info().Str("url", s.config.URL).Msg("event feed reconnected")
	}
}

// readLoop consumes messages until the connection fails or ctx ends.
func (s *Source) readLoop(ctx context.Context, conn *websocket.Conn, handler func(models.TerminalEvent)) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		if s.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("url", s.config.URL).Msg("event feed disconnected")
			}
			return
		}

		ev, ok, err := ledger.DecodeEnvelope(data)
		if err != nil {
			log.Error().Err(err).Msg("failed to decode event")
			continue
		}
		if ok {
			handler(ev)
		}
	}
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Unsubscribe closes the feed and waits until no more events are delivered.
func (s *subscription) Unsubscribe() error {
	s.cancel()
	<-s.done
	return nil
}
