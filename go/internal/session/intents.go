package session

import (
	"context"
	"fmt"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/feedback"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/telemetry"
)

const (
	opStart     = "start session"
	opEject     = "eject"
	opPlayAgain = "play again"
	opReconcile = "reconcile"
	opConfig    = "load config"
)

// guardLocked rejects an intent that is not valid in the current state.
func (m *Machine) guardLocked(op string, allowed ...models.SessionState) error {
	if m.closed {
		return ErrClosed
	}
	for _, s := range allowed {
		if m.state == s {
			return nil
		}
	}
	return apperr.Rejected(op, m.sess.ID, fmt.Errorf("%w: %s", ErrInvalidState, m.state))
}

// Start submits a start action for the configured participant and begins
// polling for the new session id. It returns once the ledger accepted the
// submission; activation happens in the background.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if err := m.guardLocked(opStart, models.SessionStateIdle); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.importing {
		m.mu.Unlock()
		return apperr.Rejected(opStart, models.NoSession, fmt.Errorf("%w: reconciliation in progress", ErrInvalidState))
	}
	if m.participant == "" {
		m.mu.Unlock()
		return apperr.Fatal(opStart, models.NoSession, ErrNoParticipant)
	}
	m.transitionLocked(models.SessionStateStarting)
	m.lastErr = nil
	prior := m.lastKnownID
	gen := m.gen
	m.notifyLocked()
	m.mu.Unlock()

	cfg, err := m.loadConfig(ctx)
	if err != nil {
		return m.abortStart(gen, err)
	}

	handle, err := m.gw.SubmitStart(ctx, cfg.EntryFee)
	if err != nil {
		return m.abortStart(gen, apperr.Rejected(opStart, models.NoSession, err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if gen != m.gen || m.state != models.SessionStateStarting {
		return nil
	}

	telemetry.GetMetrics().SessionsStarted.Add(ctx, 1)
	m.log.Info().
		Str("action_id", handle.ID()).
		Str("participant", m.participant.String()).
		Str("prior_session_id", prior.String()).
		Msg("start action accepted")

	m.feedback.Emit(feedback.Event{Cue: feedback.CueStart})
	m.refreshBalanceLocked()

	m.newRoundLocked()
	roundCtx := m.roundCtx
	m.goLocked(func() { m.awaitStart(roundCtx, gen, handle) })
	m.goLocked(func() { m.confirmStart(roundCtx, gen, prior, cfg) })
	return nil
}

// abortStart returns a Starting machine to Idle after the submission failed.
func (m *Machine) abortStart(gen uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if gen == m.gen && m.state == models.SessionStateStarting {
		m.transitionLocked(models.SessionStateIdle)
		m.failLocked(err)
		m.notifyLocked()
	}
	return err
}

// Eject asks the ledger to end the active round early. From Active the
// machine freezes the projection, moves to AwaitingFinalization once the
// submission is accepted and starts polling for the result once it is
// confirmed. If the confirmation fails the projection resumes. From
// AwaitingFinalization it finalizes a round whose timer already ran out.
func (m *Machine) Eject(ctx context.Context) error {
	m.mu.Lock()
	if err := m.guardLocked(opEject, models.SessionStateActive, models.SessionStateAwaitingFinalization); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.ejecting {
		m.mu.Unlock()
		return apperr.Rejected(opEject, m.sess.ID, fmt.Errorf("%w: eject already in progress", ErrInvalidState))
	}
	m.ejecting = true
	gen := m.gen
	id := m.sess.ID
	m.mu.Unlock()

	handle, err := m.gw.SubmitEject(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if gen != m.gen {
		return nil
	}
	if err != nil {
		m.ejecting = false
		e := m.failLocked(apperr.Rejected(opEject, id, err))
		m.notifyLocked()
		return e
	}

	if m.state == models.SessionStateResolved || m.state == models.SessionStateFailed {
		m.ejecting = false
		return nil
	}

	m.log.Info().
		Str("action_id", handle.ID()).
		Str("session_id", id.String()).
		Msg("eject action accepted")
	m.feedback.Emit(feedback.Event{Cue: feedback.CueEject, SessionID: id, MultiplierBp: m.display.MultiplierBp})
	m.lastErr = nil

	if m.state == models.SessionStateActive || m.frameCancel != nil {
		m.stopFrameLocked()
		m.display = m.projectLocked()
		m.frozeOnEject = true
	}
	if m.state == models.SessionStateActive {
		m.transitionLocked(models.SessionStateAwaitingFinalization)
	}
	m.awaitingEject = false
	m.notifyLocked()

	roundCtx := m.roundCtx
	m.goLocked(func() { m.confirmEject(roundCtx, gen, id, handle) })
	return nil
}

// PlayAgain discards a Resolved or Failed round, returns to Idle and runs a
// fresh reconciliation so a round still open on the ledger is picked up.
func (m *Machine) PlayAgain(ctx context.Context) error {
	m.mu.Lock()
	if err := m.guardLocked(opPlayAgain, models.SessionStateResolved, models.SessionStateFailed); err != nil {
		m.mu.Unlock()
		return err
	}
	m.endRoundLocked()
	m.gen++
	m.transitionLocked(models.SessionStateIdle)
	m.sess = models.Session{State: models.SessionStateIdle}
	m.resetDisplayLocked()
	m.ticks.Reset()
	m.lastErr = nil
	m.awaitingEject = false
	m.ejecting = false
	m.ejectConfirmed = false
	m.notifyLocked()
	m.mu.Unlock()

	return m.Reconcile(ctx)
}

// Reconcile imports the participant's active session from the ledger if
// none is tracked locally. It is a no-op outside Idle.
func (m *Machine) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != models.SessionStateIdle || m.importing {
		m.mu.Unlock()
		return nil
	}
	if m.participant == "" {
		m.mu.Unlock()
		return apperr.Fatal(opReconcile, models.NoSession, ErrNoParticipant)
	}
	m.importing = true
	gen := m.gen
	m.mu.Unlock()

	err := m.reconcile(ctx, gen)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.importing = false
	if err != nil && !m.closed && gen == m.gen {
		m.failLocked(err)
		m.notifyLocked()
	}
	return err
}

func (m *Machine) reconcile(ctx context.Context, gen uint64) error {
	cfg, err := m.loadConfig(ctx)
	if err != nil {
		return err
	}

	id, err := m.gw.ActiveSession(ctx, m.participant)
	if err != nil {
		return apperr.Transient(opReconcile, models.NoSession, fmt.Errorf("read active session: %w", err))
	}

	m.mu.Lock()
	if !id.IsZero() {
		m.lastKnownID = id
	}
	skip := id.IsZero() || id == m.resolvedID
	m.mu.Unlock()
	if skip {
		m.log.Debug().
			Str("participant", m.participant.String()).
			Str("session_id", id.String()).
			Msg("no active session to import")
		return nil
	}

	info, err := m.gw.SessionInfo(ctx, id)
	if err != nil {
		return apperr.Transient(opReconcile, id, fmt.Errorf("read session info: %w", err))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if gen != m.gen || m.state != models.SessionStateIdle {
		m.mu.Unlock()
		return nil
	}
	m.newRoundLocked()
	roundCtx := m.roundCtx
	m.mu.Unlock()

	sub := m.openEvents(roundCtx, gen, id)

	m.mu.Lock()
	if m.closed || gen != m.gen || m.state != models.SessionStateIdle || roundCtx.Err() != nil {
		closed := m.closed
		m.mu.Unlock()
		m.closeEvents(sub, id)
		if closed {
			return ErrClosed
		}
		return nil
	}
	defer m.mu.Unlock()
	telemetry.GetMetrics().SessionsImported.Add(ctx, 1)
	m.log.Info().
		Str("session_id", id.String()).
		Time("start_time", info.StartTime).
		Msg("importing active session")
	m.activateLocked(info, cfg, sub)
	return nil
}

// loadConfig returns the cached round constants, fetching them on first use.
// Failures are not cached.
func (m *Machine) loadConfig(ctx context.Context) (models.GameConfig, error) {
	m.mu.Lock()
	if m.config != nil {
		cfg := *m.config
		m.mu.Unlock()
		return cfg, nil
	}
	m.mu.Unlock()

	cfg, err := m.gw.Config(ctx)
	if err != nil {
		return models.GameConfig{}, apperr.Transient(opConfig, models.NoSession, fmt.Errorf("%w: %w", ErrConfigUnavailable, err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		m.config = &cfg
		m.log.Info().
			Dur("duration", cfg.Duration()).
			Uint64("max_multiplier_bp", cfg.MaxMultiplierBp).
			Msg("game configuration loaded")
	}
	return *m.config, nil
}
