// Package feedback delivers sound and notification cues to the host without
// ever blocking the session machine.
package feedback

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/projection"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// Cue identifies the transition a feedback event belongs to.
type Cue string

const (
	CueStart          Cue = "START"
	CueEject          Cue = "EJECT"
	CueWin            Cue = "WIN"
	CueLose           Cue = "LOSE"
	CueMultiplierTick Cue = "MULTIPLIER_TICK"
)

// Event is a single cue with the context a host may want to render.
type Event struct {
	Cue          Cue              `json:"cue"`
	SessionID    models.SessionID `json:"session_id"`
	MultiplierBp uint64           `json:"multiplier_bp,omitempty"`
	Payout       *big.Int         `json:"payout,omitempty"`
}

// Hooks is implemented by the host. Play runs on the dispatcher goroutine.
type Hooks interface {
	Play(Event)
}

// HooksFunc adapts a function to Hooks.
type HooksFunc func(Event)

func (f HooksFunc) Play(ev Event) { f(ev) }

// Multi plays every event on each of hooks in order. Nil entries are skipped.
type Multi []Hooks

func (m Multi) Play(ev Event) {
	for _, h := range m {
		if h != nil {
			h.Play(ev)
		}
	}
}

// LogHooks writes every cue to the global logger.
type LogHooks struct{}

func (LogHooks) Play(ev Event) {
	e := log.Info().
		Str("cue", string(ev.Cue)).
		Str("session_id", ev.SessionID.String())
	if ev.MultiplierBp > 0 {
		e = e.Str("multiplier", projection.FormatMultiplier(ev.MultiplierBp))
	}
	if ev.Payout != nil {
		e = e.Str("payout", ev.Payout.String())
	}
	e.Msg("feedback cue")
}

// DefaultBuffer is the dispatcher queue size used when none is given.
const DefaultBuffer = 64

// Dispatcher queues events for a single worker goroutine. Emit never blocks:
// when the queue is full the event is dropped and logged.
type Dispatcher struct {
	hooks Hooks

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewDispatcher starts a dispatcher delivering to hooks. A nil hooks value
// yields a dispatcher that discards everything.
func NewDispatcher(hooks Hooks, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	d := &Dispatcher{
		hooks:  hooks,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		d.play(ev)
	}
}

func (d *Dispatcher) play(ev Event) {
	if d.hooks == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("cue", string(ev.Cue)).
				Msg("feedback hook panicked")
		}
	}()
	d.hooks.Play(ev)
}

// Emit queues ev. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		telemetry.GetMetrics().HooksDropped.Add(context.Background(), 1)
		log.Warn().
			Str("cue", string(ev.Cue)).
			Str("session_id", ev.SessionID.String()).
			Msg("feedback queue full, dropping cue")
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events, delivers what is queued and waits for the
// worker to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	<-d.done
}

// TickTracker reports when a multiplier enters a new 0.1x bucket. The first
// observation after a reset only sets the baseline.
type TickTracker struct {
	last uint64
	seen bool
}

// Observe records bp and reports whether it crossed into a higher bucket.
func (t *TickTracker) Observe(bp uint64) bool {
	bucket := projection.TickBucket(bp)
	if !t.seen {
		t.seen = true
		t.last = bucket
		return false
	}
	if bucket > t.last {
		t.last = bucket
		return true
	}
	return false
}

func (t *TickTracker) Reset() {
	*t = TickTracker{}
}
