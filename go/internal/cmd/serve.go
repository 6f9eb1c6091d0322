package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/feedback"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/gateway"
	"github.com/rs/zerolog/log"
)

type ServeCmd struct {
	Port string `help:"Listen port, overrides the configured one."`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := globals.load()
	if err != nil {
		return err
	}
	if s.Port != "" {
		cfg.Port = s.Port
	}
	defer globals.setupMetrics(ctx, cfg)()

	cm := gateway.NewConnectionManager(gateway.DefaultConfig().ConnectionConfig)
	services := setupServices(cfg, Collaborators{
		Hooks: feedback.Multi{feedback.LogHooks{}, cm},
	})
	defer services.Close()

	if err := services.Machine.Reconcile(ctx); err != nil {
		log.Warn().Err(err).Msg("could not import the active round at startup")
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	gw := gateway.NewService(cm, services.Machine)
	gwDone := make(chan struct{})
	go func() {
		defer close(gwDone)
		if err := gw.Start(ctx); err != nil {
			log.Error().Err(err).Msg("session gateway failed")
		}
	}()

	server := setupServer(cfg.Port, gw)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	stop()
	<-gwDone
	log.Info().Msg("server stopped")
	return nil
}
