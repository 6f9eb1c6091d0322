package main

import (
	"context"
	"math/big"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/config"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/feedback"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger/httpledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger/natsevents"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger/wsevents"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/session"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Ledger  *httpledger.Client
	Machine *session.Machine

	nats *natsevents.Source
}

// Collaborators are the host callbacks handed to the machine.
type Collaborators struct {
	Hooks     feedback.Hooks
	OnBalance func(*big.Int)
	OnWin     session.WinCallback
}

func setupServices(cfg config.Config, collab Collaborators) *Services {
	// Wire up dependency injection chain
	// Ledger client + event feeds → Gateway → Session machine
	participant := models.Participant(cfg.Participant)

	opts := []httpledger.Option{}
	if cfg.LedgerAPIKey != "" {
		opts = append(opts, httpledger.WithAPIKey(cfg.LedgerAPIKey))
	}
	client := httpledger.New(cfg.LedgerURL, participant, opts...)

	s := &Services{Ledger: client}
	events := s.setupEvents(cfg.Events)

	s.Machine = session.New(ledger.New(client, events),
		session.WithParticipant(participant),
		session.WithTimings(cfg.Timings.Session()),
		session.WithHooks(collab.Hooks),
		session.WithBalanceRefresher(balanceRefresher(client, participant, collab.OnBalance)),
		session.WithWinCallback(collab.OnWin),
	)
	log.Info().
		Str("machine_id", s.Machine.ID()).
		Str("participant", participant.String()).
		Str("ledger_url", cfg.LedgerURL).
		Msg("session machine ready")
	return s
}

// setupEvents builds the terminal-event feeds. A feed that cannot be set up
// is skipped: the machine still resolves through its timer.
func (s *Services) setupEvents(cfg config.EventsConfig) ledger.EventSource {
	var sources ledger.FanIn

	if cfg.NATSURL != "" {
		natsCfg := natsevents.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		if cfg.Subject != "" {
			natsCfg.Subject = cfg.Subject
		}
		natsCfg.StreamName = cfg.Stream

		src, err := natsevents.Connect(natsCfg)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATSURL).Msg("NATS event feed unavailable, continuing without it")
		} else {
			s.nats = src
			sources = append(sources, src)
		}
	}

	if cfg.WebSocketURL != "" {
		sources = append(sources, wsevents.New(wsevents.DefaultConfig(cfg.WebSocketURL)))
	}

	if len(sources) == 0 {
		log.Warn().Msg("no terminal event feed configured, rounds resolve on timer expiry and eject")
		return ledger.NopEvents{}
	}
	return sources
}

func balanceRefresher(client *httpledger.Client, participant models.Participant, onBalance func(*big.Int)) session.BalanceRefresher {
	return func(ctx context.Context) {
		bal, err := client.Balance(ctx, participant)
		if err != nil {
			log.Warn().Err(err).Str("participant", participant.String()).Msg("balance refresh failed")
			return
		}
		log.Debug().Str("participant", participant.String()).Str("balance", bal.String()).Msg("balance refreshed")
		if onBalance != nil {
			onBalance(bal)
		}
	}
}

// Close tears down the machine first so no subscription outlives the feeds.
func (s *Services) Close() {
	s.Machine.Close()
	if s.nats != nil {
		s.nats.Close()
	}
}
