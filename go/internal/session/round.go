package session

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/feedback"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/projection"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/resolver"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	opResolve = "resolve session"

	maxEarlyEvents = 8
)

// newRoundLocked replaces the round context. Every task spawned for a
// tracked round derives from it.
func (m *Machine) newRoundLocked() {
	m.endRoundLocked()
	m.early = nil
	m.frozeOnEject = false
	m.roundCtx, m.roundCancel = context.WithCancel(m.ctx)
}

// endRoundLocked cancels the projection ticker, start poll, event
// subscription and any pending eject or resolver task of the tracked round.
func (m *Machine) endRoundLocked() {
	m.stopFrameLocked()
	if m.roundCancel != nil {
		m.roundCancel()
		m.roundCancel = nil
	}
}

func (m *Machine) stopFrameLocked() {
	if m.frameCancel != nil {
		m.frameCancel()
		m.frameCancel = nil
	}
}

func (m *Machine) projectLocked() projection.Projection {
	if m.sess.StartTime == nil {
		return projection.Projection{MultiplierBp: projection.BaseMultiplierBp}
	}
	duration := time.Duration(m.sess.DurationSeconds) * time.Second
	return projection.Project(m.clock.Now(), *m.sess.StartTime, duration, m.sess.MaxMultiplierBp)
}

// awaitStart waits for the start action to land. A failed action ends the
// attempt as Rejected instead of leaving the poll to run out its budget.
func (m *Machine) awaitStart(ctx context.Context, gen uint64, handle ledger.ActionHandle) {
	err := handle.Wait(ctx)
	if err == nil {
		m.log.Debug().Str("action_id", handle.ID()).Msg("start action confirmed")
		return
	}
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || m.state != models.SessionStateStarting {
		return
	}
	m.log.Warn().Err(err).Str("action_id", handle.ID()).Msg("start action failed")
	m.transitionLocked(models.SessionStateIdle)
	m.failLocked(apperr.Rejected(opStart, models.NoSession, fmt.Errorf("start action failed: %w", err)))
	m.endRoundLocked()
	m.notifyLocked()
}

// confirmStart polls the ledger until it reports a session id different
// from prior, or the start budget runs out.
func (m *Machine) confirmStart(ctx context.Context, gen uint64, prior models.SessionID, cfg models.GameConfig) {
	deadline := m.clock.Now().Add(m.timings.StartTimeout)
	ticker := m.clock.NewTicker(m.timings.StartPollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		id, err := m.gw.ActiveSession(ctx, m.participant)
		switch {
		case err != nil:
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("start confirmation poll failed")
		case !id.IsZero() && id != prior:
			info, err := m.gw.SessionInfo(ctx, id)
			if err == nil {
				sub := m.openEvents(ctx, gen, id)
				m.mu.Lock()
				current := !m.closed && gen == m.gen && m.state == models.SessionStateStarting
				if current {
					m.activateLocked(info, cfg, sub)
				}
				m.mu.Unlock()
				if !current {
					m.closeEvents(sub, id)
				}
				return
			}
			m.log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to load new session info")
		default:
			m.log.Debug().Int("attempt", attempt).Msg("new session not visible yet")
		}

		if !m.clock.Now().Before(deadline) {
			m.startTimedOut(ctx, gen)
			return
		}
	}
}

func (m *Machine) startTimedOut(ctx context.Context, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || m.state != models.SessionStateStarting {
		return
	}
	telemetry.GetMetrics().StartTimeouts.Add(ctx, 1)
	m.transitionLocked(models.SessionStateFailed)
	m.failLocked(apperr.Timeout(opStart, models.NoSession,
		fmt.Errorf("new session not confirmed within %s", m.timings.StartTimeout)))
	m.endRoundLocked()
	m.notifyLocked()
}

// activateLocked enters Active for info and spawns the projection ticker. sub
// was opened before the transition and stays open until the round ends.
// Events buffered while it was being opened are applied here. A round that
// already ran out goes straight to resolution.
func (m *Machine) activateLocked(info models.SessionInfo, cfg models.GameConfig, sub ledger.Subscription) {
	start := info.StartTime
	m.sess = models.Session{
		ID:              info.ID,
		StartTime:       &start,
		DurationSeconds: cfg.DurationSeconds,
		MaxMultiplierBp: cfg.MaxMultiplierBp,
		State:           m.state,
	}
	if cfg.EntryFee != nil {
		m.sess.EntryFee = new(big.Int).Set(cfg.EntryFee)
	}
	m.lastKnownID = info.ID
	if !m.transitionLocked(models.SessionStateActive) {
		m.holdEventsLocked(m.roundCtx, sub, info.ID)
		return
	}
	m.lastErr = nil
	m.ticks.Reset()
	m.display = m.projectLocked()
	m.ticks.Observe(m.display.MultiplierBp)

	gen := m.gen
	roundCtx := m.roundCtx
	m.holdEventsLocked(roundCtx, sub, info.ID)
	if m.replayEarlyLocked() {
		m.notifyLocked()
		return
	}

	if m.display.Expired() {
		m.expireLocked()
	} else {
		m.startFramesLocked(roundCtx, gen)
	}
	m.notifyLocked()
}

func (m *Machine) startFramesLocked(roundCtx context.Context, gen uint64) {
	m.stopFrameLocked()
	frameCtx, cancel := context.WithCancel(roundCtx)
	m.frameCancel = cancel
	m.goLocked(func() { m.runFrames(frameCtx, gen) })
}

func (m *Machine) runFrames(ctx context.Context, gen uint64) {
	ticker := m.clock.NewTicker(m.timings.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !m.frame(gen) {
				return
			}
		}
	}
}

// frame recomputes the projection. It reports false once the ticker should
// stop. Besides Active, it runs for a round whose eject was not confirmed;
// such a round only snaps to the maximum on expiry since the eject prompt
// is already up.
func (m *Machine) frame(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return false
	}
	switch m.state {
	case models.SessionStateActive:
	case models.SessionStateAwaitingFinalization:
		if m.frameCancel == nil {
			return false
		}
		m.display = m.projectLocked()
		if m.display.Expired() {
			m.stopFrameLocked()
			m.display.MultiplierBp = m.sess.MaxMultiplierBp
			m.display.TimeRemaining = 0
			m.notifyLocked()
			return false
		}
		m.notifyLocked()
		return true
	default:
		return false
	}

	m.display = m.projectLocked()
	if m.ticks.Observe(m.display.MultiplierBp) {
		m.feedback.Emit(feedback.Event{
			Cue:          feedback.CueMultiplierTick,
			SessionID:    m.sess.ID,
			MultiplierBp: m.display.MultiplierBp,
		})
	}
	if m.display.Expired() {
		m.expireLocked()
		m.notifyLocked()
		return false
	}
	m.notifyLocked()
	return true
}

// expireLocked handles the local timer reaching zero: the display snaps to
// the maximum and a single result read is attempted.
func (m *Machine) expireLocked() {
	m.stopFrameLocked()
	m.display.MultiplierBp = m.sess.MaxMultiplierBp
	m.display.TimeRemaining = 0
	if !m.transitionLocked(models.SessionStateResolving) {
		return
	}
	m.log.Info().Str("session_id", m.sess.ID.String()).Msg("round timer expired")
	m.spawnResolveLocked(resolver.ModeSingle)
}

func (m *Machine) spawnResolveLocked(mode resolver.Mode) {
	gen := m.gen
	id := m.sess.ID
	roundCtx := m.roundCtx
	m.goLocked(func() { m.resolve(roundCtx, gen, id, mode) })
}

func (m *Machine) resolve(ctx context.Context, gen uint64, id models.SessionID, mode resolver.Mode) {
	result, err := m.resolver.Resolve(ctx, id, mode)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || m.state != models.SessionStateResolving || ctx.Err() != nil {
		return
	}

	if err == nil {
		if m.applyResultLocked(result) {
			m.notifyLocked()
		}
		return
	}

	if mode == resolver.ModeSingle {
		if m.ejectConfirmed {
			m.spawnResolveLocked(resolver.ModePolling)
			return
		}
		m.transitionLocked(models.SessionStateAwaitingFinalization)
		m.awaitingEject = true
		m.failLocked(apperr.Transient(opResolve, id, fmt.Errorf("%w: %w", ErrAwaitingEject, err)))
		m.recordResolution("awaiting_eject")
		m.notifyLocked()
		return
	}

	m.transitionLocked(models.SessionStateFailed)
	m.failLocked(err)
	m.recordResolution("failed")
	m.endRoundLocked()
	m.notifyLocked()
}

// applyResultLocked moves the tracked round to Resolved with result. It
// reports false if the round already has a result, so every side effect
// runs once per session.
func (m *Machine) applyResultLocked(result models.Result) bool {
	if m.sess.Result != nil || m.state == models.SessionStateResolved {
		return false
	}
	switch m.state {
	case models.SessionStateActive:
		m.stopFrameLocked()
		m.transitionLocked(models.SessionStateResolving)
	case models.SessionStateAwaitingFinalization:
		m.transitionLocked(models.SessionStateResolving)
	}
	if !m.transitionLocked(models.SessionStateResolved) {
		return false
	}

	r := result
	if r.Payout != nil {
		r.Payout = new(big.Int).Set(r.Payout)
	}
	m.sess.Result = &r
	if r.FinalMultiplierBp > 0 {
		m.display.MultiplierBp = r.FinalMultiplierBp
	}
	m.resolvedID = m.sess.ID
	m.awaitingEject = false
	m.ejecting = false
	m.lastErr = nil
	m.endRoundLocked()

	id := m.sess.ID
	cue := feedback.CueLose
	outcome := "lost"
	if r.Won {
		cue = feedback.CueWin
		outcome = "won"
	}
	m.recordResolution(outcome)
	m.log.Info().
		Str("session_id", id.String()).
		Bool("won", r.Won).
		Str("multiplier", projection.FormatMultiplier(r.FinalMultiplierBp)).
		Msg("session resolved")

	m.feedback.Emit(feedback.Event{Cue: cue, SessionID: id, MultiplierBp: r.FinalMultiplierBp, Payout: r.Payout})
	m.refreshBalanceLocked()
	if m.onWin != nil {
		fn := m.onWin
		m.goLocked(func() { fn(id, r) })
	}
	return true
}

func (m *Machine) recordResolution(outcome string) {
	telemetry.GetMetrics().Resolutions.Add(m.ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// openEvents subscribes to terminal events for the round of gen. It is
// called without the lock, before the round becomes Active. It returns nil
// if the feed is unavailable; the timer path still resolves the round.
func (m *Machine) openEvents(ctx context.Context, gen uint64, id models.SessionID) ledger.Subscription {
	sub, err := m.gw.SubscribeTerminalEvents(ctx, func(ev models.TerminalEvent) {
		m.handleEvent(gen, ev)
	})
	if err != nil {
		if ctx.Err() == nil {
			m.log.Warn().Err(err).Str("session_id", id.String()).Msg("terminal event subscription failed, relying on timer")
		}
		return nil
	}
	return sub
}

// holdEventsLocked keeps sub open until ctx ends. Unsubscribing may wait for
// a handler that needs the lock, so it never happens under it.
func (m *Machine) holdEventsLocked(ctx context.Context, sub ledger.Subscription, id models.SessionID) {
	if sub == nil {
		return
	}
	m.goLocked(func() {
		<-ctx.Done()
		m.closeEvents(sub, id)
	})
}

// closeEvents must be called without the lock.
func (m *Machine) closeEvents(sub ledger.Subscription, id models.SessionID) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		m.log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to unsubscribe from terminal events")
	}
}

// replayEarlyLocked applies the first buffered event that matches the
// round. It reports whether the round resolved.
func (m *Machine) replayEarlyLocked() bool {
	early := m.early
	m.early = nil
	for _, ev := range early {
		if ev.SessionID != m.sess.ID {
			continue
		}
		if m.applyResultLocked(ev.Result()) {
			m.log.Debug().Str("session_id", ev.SessionID.String()).Msg("applied terminal event received before activation")
			return true
		}
	}
	return false
}

// handleEvent applies a terminal event if it belongs to the tracked
// participant and round and the round has no result yet.
func (m *Machine) handleEvent(gen uint64, ev models.TerminalEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	disposition := "discarded"
	defer func() {
		telemetry.GetMetrics().TerminalEvents.Add(m.ctx, 1,
			metric.WithAttributes(attribute.String("disposition", disposition)))
	}()

	if m.closed || gen != m.gen {
		return
	}
	if !ev.Participant.Equal(m.participant) {
		m.log.Debug().
			Str("event_session_id", ev.SessionID.String()).
			Str("event_participant", ev.Participant.String()).
			Msg("ignoring terminal event for another participant")
		return
	}
	// The subscription opens before activation, so the round id is not
	// known yet.
	if m.state == models.SessionStateIdle || m.state == models.SessionStateStarting {
		if len(m.early) < maxEarlyEvents {
			m.early = append(m.early, ev)
			disposition = "buffered"
		}
		return
	}
	if ev.SessionID != m.sess.ID {
		m.log.Debug().
			Str("event_session_id", ev.SessionID.String()).
			Str("event_participant", ev.Participant.String()).
			Msg("ignoring terminal event for another round")
		return
	}
	switch m.state {
	case models.SessionStateActive, models.SessionStateAwaitingFinalization, models.SessionStateResolving:
	default:
		return
	}

	if m.applyResultLocked(ev.Result()) {
		disposition = "applied"
		m.notifyLocked()
	}
}

// confirmEject waits for the eject action to land, bounded by the eject
// confirmation timeout, then starts polling for the result.
func (m *Machine) confirmEject(ctx context.Context, gen uint64, id models.SessionID, handle ledger.ActionHandle) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	timer := m.clock.AfterFunc(m.timings.EjectConfirmTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	err := handle.Wait(waitCtx)
	timer.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || ctx.Err() != nil {
		return
	}
	m.ejecting = false

	if err != nil {
		var e error
		if timedOut.Load() {
			e = apperr.Timeout(opEject, id, fmt.Errorf("confirmation not received within %s: %w", m.timings.EjectConfirmTimeout, err))
		} else {
			e = apperr.Rejected(opEject, id, err)
		}
		if m.state == models.SessionStateAwaitingFinalization {
			m.awaitingEject = true
			if m.frozeOnEject {
				m.frozeOnEject = false
				m.startFramesLocked(ctx, gen)
			}
		}
		m.failLocked(e)
		m.notifyLocked()
		return
	}
	m.frozeOnEject = false

	m.log.Info().Str("action_id", handle.ID()).Str("session_id", id.String()).Msg("eject confirmed")
	m.refreshBalanceLocked()

	switch m.state {
	case models.SessionStateAwaitingFinalization:
		m.awaitingEject = false
		m.lastErr = nil
		if m.transitionLocked(models.SessionStateResolving) {
			m.spawnResolveLocked(resolver.ModePolling)
		}
	case models.SessionStateResolving:
		m.ejectConfirmed = true
	}
	m.notifyLocked()
}
