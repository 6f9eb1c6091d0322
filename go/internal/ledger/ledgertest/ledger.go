// Package ledgertest provides a scripted in-memory ledger for tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/jonboulle/clockwork"
)

var _ ledger.Gateway = (*Ledger)(nil)

// Calls counts requests by operation.
type Calls struct {
	Config        int
	ActiveSession int
	SessionInfo   int
	SessionResult int
	SubmitStart   int
	SubmitEject   int
	Subscribe     int
}

type scriptedResult struct {
	result   models.Result
	notEnded int
	err      error
}

// Ledger is a fake remote service. Zero values behave like a healthy ledger
// that confirms every action immediately.
type Ledger struct {
	mu sync.Mutex

	clock       clockwork.Clock
	participant models.Participant
	cfg         models.GameConfig
	configErr   error

	nextID  models.SessionID
	active  map[string]models.SessionID
	infos   map[models.SessionID]models.SessionInfo
	results map[models.SessionID]*scriptedResult

	// pending is a started session that ActiveSession will not report until
	// activationDelay further polls have happened. Negative delays never activate.
	pending         models.SessionID
	activationDelay int

	startErr     error
	ejectErr     error
	confirmErr   error
	blockConfirm bool
	subscribeErr error

	// resultGate and ejectGate, when set, hold SessionResult and
	// SubmitEject until closed.
	resultGate chan struct{}
	ejectGate  chan struct{}

	handlers map[int]func(models.TerminalEvent)
	nextSub  int

	calls Calls
}

// New returns a ledger acting for participant with the given constants.
func New(clock clockwork.Clock, participant models.Participant, cfg models.GameConfig) *Ledger {
	return &Ledger{
		clock:       clock,
		participant: participant,
		cfg:         cfg,
		nextID:      1,
		active:      make(map[string]models.SessionID),
		infos:       make(map[models.SessionID]models.SessionInfo),
		results:     make(map[models.SessionID]*scriptedResult),
		handlers:    make(map[int]func(models.TerminalEvent)),
	}
}

func key(p models.Participant) string { return strings.ToLower(string(p)) }

// SeedActive registers an already running session, as after a page reload.
func (l *Ledger) SeedActive(info models.SessionInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[key(info.Participant)] = info.ID
	l.infos[info.ID] = info
	if info.ID >= l.nextID {
		l.nextID = info.ID + 1
	}
}

// SetResult scripts the outcome for id, reported after notEnded "not ended" replies.
func (l *Ledger) SetResult(id models.SessionID, result models.Result, notEnded int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[id] = &scriptedResult{result: result, notEnded: notEnded}
}

// SetResultError makes SessionResult fail with err for id.
func (l *Ledger) SetResultError(id models.SessionID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[id] = &scriptedResult{err: err}
}

// SetActivationDelay controls how many ActiveSession polls a new session
// stays invisible for. A negative value keeps it invisible forever.
func (l *Ledger) SetActivationDelay(polls int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activationDelay = polls
}

func (l *Ledger) FailConfig(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configErr = err
}

func (l *Ledger) FailStart(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startErr = err
}

func (l *Ledger) FailEject(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ejectErr = err
}

func (l *Ledger) FailConfirm(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmErr = err
}

// BlockConfirm makes ActionHandle.Wait block until its context ends.
func (l *Ledger) BlockConfirm(block bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockConfirm = block
}

func (l *Ledger) FailSubscribe(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribeErr = err
}

// Calls returns a copy of the request counters.
func (l *Ledger) Calls() Calls {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Subscribers returns the number of live event subscriptions.
func (l *Ledger) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers)
}

// Emit broadcasts ev to every subscriber synchronously.
func (l *Ledger) Emit(ev models.TerminalEvent) {
	l.mu.Lock()
	handlers := make([]func(models.TerminalEvent), 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// End removes the participant's active session, as the ledger does once a
// round is finalized.
func (l *Ledger) End(id models.SessionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.active {
		if v == id {
			delete(l.active, k)
		}
	}
}

func (l *Ledger) Config(context.Context) (models.GameConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls.Config++
	if l.configErr != nil {
		return models.GameConfig{}, l.configErr
	}
	cfg := l.cfg
	if cfg.EntryFee != nil {
		cfg.EntryFee = new(big.Int).Set(cfg.EntryFee)
	}
	return cfg, nil
}

func (l *Ledger) ActiveSession(_ context.Context, participant models.Participant) (models.SessionID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls.ActiveSession++

	if !l.pending.IsZero() && l.activationDelay >= 0 {
		if l.activationDelay == 0 {
			l.active[key(l.participant)] = l.pending
			l.pending = models.NoSession
		} else {
			l.activationDelay--
		}
	}
	return l.active[key(participant)], nil
}

func (l *Ledger) SessionInfo(_ context.Context, id models.SessionID) (models.SessionInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls.SessionInfo++
	info, ok := l.infos[id]
	if !ok {
		return models.SessionInfo{}, fmt.Errorf("session %s not found", id)
	}
	return info, nil
}

func (l *Ledger) SessionResult(ctx context.Context, id models.SessionID) (models.Result, error) {
	l.mu.Lock()
	l.calls.SessionResult++
	gate := l.resultGate
	l.mu.Unlock()
	if err := pass(ctx, gate); err != nil {
		return models.Result{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	sr, ok := l.results[id]
	if !ok {
		return models.Result{}, ledger.ErrNotEnded
	}
	if sr.err != nil {
		return models.Result{}, sr.err
	}
	if sr.notEnded > 0 {
		sr.notEnded--
		return models.Result{}, ledger.ErrNotEnded
	}
	return sr.result, nil
}

func (l *Ledger) SubmitStart(_ context.Context, entryFee *big.Int) (ledger.ActionHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls.SubmitStart++
	if l.startErr != nil {
		return nil, l.startErr
	}
	if l.cfg.EntryFee != nil && (entryFee == nil || entryFee.Cmp(l.cfg.EntryFee) != 0) {
		return nil, errors.New("incorrect entry fee")
	}
	if !l.active[key(l.participant)].IsZero() || !l.pending.IsZero() {
		return nil, errors.New("player already has an active game")
	}

	id := l.nextID
	l.nextID++
	l.infos[id] = models.SessionInfo{ID: id, Participant: l.participant, StartTime: l.clock.Now()}
	l.pending = id
	return &handle{l: l, id: fmt.Sprintf("start-%s", id)}, nil
}

func (l *Ledger) SubmitEject(ctx context.Context) (ledger.ActionHandle, error) {
	l.mu.Lock()
	l.calls.SubmitEject++
	gate := l.ejectGate
	l.mu.Unlock()
	if err := pass(ctx, gate); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ejectErr != nil {
		return nil, l.ejectErr
	}
	id := l.active[key(l.participant)]
	if id.IsZero() {
		return nil, errors.New("no active game")
	}
	return &handle{l: l, id: fmt.Sprintf("eject-%s", id)}, nil
}

func (l *Ledger) SubscribeTerminalEvents(_ context.Context, handler func(models.TerminalEvent)) (ledger.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls.Subscribe++
	if l.subscribeErr != nil {
		return nil, l.subscribeErr
	}
	id := l.nextSub
	l.nextSub++
	l.handlers[id] = handler
	return &subscription{l: l, id: id}, nil
}

// HoldResults makes SessionResult calls wait, after being counted, until
// release is called.
func (l *Ledger) HoldResults() (release func()) {
	return l.hold(&l.resultGate)
}

// HoldEject makes SubmitEject calls wait, after being counted, until release
// is called.
func (l *Ledger) HoldEject() (release func()) {
	return l.hold(&l.ejectGate)
}

func (l *Ledger) hold(gate *chan struct{}) func() {
	ch := make(chan struct{})
	l.mu.Lock()
	*gate = ch
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if *gate == ch {
				*gate = nil
			}
			l.mu.Unlock()
			close(ch)
		})
	}
}

func pass(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type handle struct {
	l  *Ledger
	id string
}

func (h *handle) ID() string { return h.id }

func (h *handle) Wait(ctx context.Context) error {
	h.l.mu.Lock()
	block, err := h.l.blockConfirm, h.l.confirmErr
	h.l.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

type subscription struct {
	l    *Ledger
	id   int
	once sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.l.mu.Lock()
		delete(s.l.handlers, s.id)
		s.l.mu.Unlock()
	})
	return nil
}
