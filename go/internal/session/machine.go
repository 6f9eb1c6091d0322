// Package session implements the client-side session state machine. It owns
// the local view of one round at a time and reconciles the optimistic clock
// projection with the ledger's authoritative but lagging state.
package session

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/feedback"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/projection"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/resolver"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Timings holds the bounded waits of the machine.
type Timings struct {
	StartPollInterval   time.Duration
	StartTimeout        time.Duration
	EjectConfirmTimeout time.Duration
	FrameInterval       time.Duration
	Resolve             resolver.Config
}

// DefaultTimings returns the production budgets.
func DefaultTimings() Timings {
	return Timings{
		StartPollInterval:   1500 * time.Millisecond,
		StartTimeout:        30 * time.Second,
		EjectConfirmTimeout: 30 * time.Second,
		FrameInterval:       16 * time.Millisecond,
		Resolve:             resolver.DefaultConfig(),
	}
}

// BalanceRefresher is invoked after start is accepted, after eject is
// confirmed and after resolution.
type BalanceRefresher func(ctx context.Context)

// WinCallback is invoked exactly once per resolved round, win or loss.
type WinCallback func(id models.SessionID, result models.Result)

// Option configures a Machine.
type Option func(*Machine)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Machine) { m.clock = clock }
}

func WithParticipant(p models.Participant) Option {
	return func(m *Machine) { m.participant = p }
}

// WithHooks sets the host's feedback hooks. They run on a dedicated
// goroutine and never block the machine.
func WithHooks(hooks feedback.Hooks) Option {
	return func(m *Machine) { m.hooks = hooks }
}

func WithBalanceRefresher(fn BalanceRefresher) Option {
	return func(m *Machine) { m.refreshBalance = fn }
}

func WithWinCallback(fn WinCallback) Option {
	return func(m *Machine) { m.onWin = fn }
}

func WithTimings(t Timings) Option {
	return func(m *Machine) { m.timings = t }
}

// Snapshot is the read-only view handed to presentation.
type Snapshot struct {
	State                models.SessionState `json:"state"`
	SessionID            models.SessionID    `json:"session_id"`
	StartTime            *time.Time          `json:"start_time,omitempty"`
	DurationSeconds      uint64              `json:"duration_seconds"`
	EntryFee             *big.Int            `json:"entry_fee,omitempty"`
	MaxMultiplierBp      uint64              `json:"max_multiplier_bp"`
	MultiplierBp         uint64              `json:"multiplier_bp"`
	Multiplier           string              `json:"multiplier"`
	TimeRemaining        time.Duration       `json:"-"`
	TimeRemainingSeconds int64               `json:"time_remaining_seconds"`
	Payout               *big.Int            `json:"payout,omitempty"`
	Result               *models.Result      `json:"result,omitempty"`
	AwaitingEject        bool                `json:"awaiting_eject"`
	Err                  error               `json:"-"`
	Error                string              `json:"error,omitempty"`
	ErrorKind            apperr.Kind         `json:"error_kind,omitempty"`
}

// Machine is the session state machine. Intents are serialized by state:
// an intent that is not valid for the current state is rejected without
// contacting the ledger.
type Machine struct {
	id             string
	log            zerolog.Logger
	gw             ledger.Gateway
	clock          clockwork.Clock
	participant    models.Participant
	timings        Timings
	resolver       *resolver.Resolver
	hooks          feedback.Hooks
	feedback       *feedback.Dispatcher
	refreshBalance BalanceRefresher
	onWin          WinCallback

	// ctx is the machine lifetime, cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	state  models.SessionState
	sess   models.Session
	// gen changes whenever the tracked round is discarded, so late
	// completions from an earlier round can be recognised and ignored.
	gen            uint64
	display        projection.Projection
	lastErr        error
	awaitingEject  bool
	importing      bool
	ejecting       bool
	ejectConfirmed bool
	config         *models.GameConfig
	lastKnownID    models.SessionID
	resolvedID     models.SessionID
	ticks          feedback.TickTracker
	// early holds terminal events that reached the round's subscription
	// before it became Active.
	early []models.TerminalEvent
	// frozeOnEject marks a round whose projection was stopped by an eject
	// that has not been confirmed yet.
	frozeOnEject bool

	// roundCancel stops every task of the tracked round; frameCancel only
	// the projection ticker.
	roundCtx    context.Context
	roundCancel context.CancelFunc
	frameCancel context.CancelFunc

	watchers  map[int]chan Snapshot
	nextWatch int
}

// New creates an idle machine on top of gw.
func New(gw ledger.Gateway, opts ...Option) *Machine {
	m := &Machine{
		id:       uuid.New().String(),
		gw:       gw,
		clock:    clockwork.NewRealClock(),
		timings:  DefaultTimings(),
		state:    models.SessionStateIdle,
		watchers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}

	def := DefaultTimings()
	if m.timings.StartPollInterval <= 0 {
		m.timings.StartPollInterval = def.StartPollInterval
	}
	if m.timings.StartTimeout <= 0 {
		m.timings.StartTimeout = def.StartTimeout
	}
	if m.timings.EjectConfirmTimeout <= 0 {
		m.timings.EjectConfirmTimeout = def.EjectConfirmTimeout
	}
	if m.timings.FrameInterval <= 0 {
		m.timings.FrameInterval = def.FrameInterval
	}

	m.log = log.With().Str("machine_id", m.id).Logger()
	m.resolver = resolver.New(gw, m.clock, m.timings.Resolve)
	m.feedback = feedback.NewDispatcher(m.hooks, feedback.DefaultBuffer)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.resetDisplayLocked()
	return m
}

// ID returns the machine instance id used in logs.
func (m *Machine) ID() string { return m.id }

// State returns the current lifecycle state.
func (m *Machine) State() models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current presentation view.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:                m.state,
		SessionID:            m.sess.ID,
		DurationSeconds:      m.sess.DurationSeconds,
		MaxMultiplierBp:      m.sess.MaxMultiplierBp,
		MultiplierBp:         m.display.MultiplierBp,
		Multiplier:           projection.FormatMultiplier(m.display.MultiplierBp),
		TimeRemaining:        m.display.TimeRemaining,
		TimeRemainingSeconds: projection.WholeSeconds(m.display.TimeRemaining),
		AwaitingEject:        m.awaitingEject,
		Err:                  m.lastErr,
	}
	if m.sess.StartTime != nil {
		t := *m.sess.StartTime
		s.StartTime = &t
	}
	if m.sess.EntryFee != nil {
		s.EntryFee = new(big.Int).Set(m.sess.EntryFee)
		s.Payout = projection.Payout(m.sess.EntryFee, m.display.MultiplierBp)
	}
	if m.sess.Result != nil {
		r := *m.sess.Result
		if r.Payout != nil {
			r.Payout = new(big.Int).Set(r.Payout)
			s.Payout = new(big.Int).Set(r.Payout)
		}
		s.Result = &r
	}
	if m.lastErr != nil {
		s.Error = m.lastErr.Error()
		s.ErrorKind = apperr.KindOf(m.lastErr)
	}
	return s
}

// Watch returns a channel that receives the latest snapshot after every
// change. A slow reader only sees the most recent one. The channel is closed
// by the returned stop function or by Close.
func (m *Machine) Watch() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = ch
	ch <- m.snapshotLocked()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if w, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(w)
		}
	}
}

func (m *Machine) notifyLocked() {
	if len(m.watchers) == 0 {
		return
	}
	s := m.snapshotLocked()
	for _, ch := range m.watchers {
		select {
		case ch <- s:
		default:
			// replace the stale frame
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Close cancels every background task, waits for them to exit and closes
// all watch channels. Intents issued afterwards fail with ErrClosed.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
	m.mu.Unlock()

	m.feedback.Close()
	m.log.Info().Msg("session machine closed")
}

var transitions = map[models.SessionState][]models.SessionState{
	models.SessionStateIdle:                 {models.SessionStateStarting, models.SessionStateActive},
	models.SessionStateStarting:             {models.SessionStateActive, models.SessionStateFailed, models.SessionStateIdle},
	models.SessionStateActive:               {models.SessionStateResolving, models.SessionStateAwaitingFinalization},
	models.SessionStateAwaitingFinalization: {models.SessionStateResolving},
	models.SessionStateResolving:            {models.SessionStateResolved, models.SessionStateFailed, models.SessionStateAwaitingFinalization},
	models.SessionStateResolved:             {models.SessionStateIdle},
	models.SessionStateFailed:               {models.SessionStateIdle},
}

func canTransition(from, to models.SessionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionLocked moves to the next state if the lifecycle graph allows it.
func (m *Machine) transitionLocked(to models.SessionState) bool {
	from := m.state
	if !canTransition(from, to) {
		m.log.Error().
			Str("from", string(from)).
			Str("to", string(to)).
			Str("session_id", m.sess.ID.String()).
			Msg("illegal state transition ignored")
		return false
	}
	m.state = to
	m.sess.State = to
	m.log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("session_id", m.sess.ID.String()).
		Msg("session state changed")
	return true
}

// goLocked runs fn on a tracked goroutine. Callers hold m.mu and have
// checked m.closed.
func (m *Machine) goLocked(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

func (m *Machine) resetDisplayLocked() {
	m.display = projection.Projection{MultiplierBp: projection.BaseMultiplierBp}
}

// failLocked records err as the surfaced error and logs it once.
func (m *Machine) failLocked(err error) error {
	m.lastErr = err
	m.log.Warn().
		Err(err).
		Str("kind", string(apperr.KindOf(err))).
		Str("state", string(m.state)).
		Str("session_id", m.sess.ID.String()).
		Msg("session error surfaced")
	return err
}

func (m *Machine) refreshBalanceLocked() {
	if m.refreshBalance == nil {
		return
	}
	fn := m.refreshBalance
	ctx := m.ctx
	m.goLocked(func() { fn(ctx) })
}
