package feedback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Play(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) cues() []Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Cue, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Cue)
	}
	return out
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 8)

	d.Emit(Event{Cue: CueStart, SessionID: 1})
	d.Emit(Event{Cue: CueMultiplierTick, SessionID: 1, MultiplierBp: 11000})
	d.Emit(Event{Cue: CueWin, SessionID: 1})
	d.Close()

	assert.Equal(t, []Cue{CueStart, CueMultiplierTick, CueWin}, rec.cues())
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	rec := &recorder{}
	var once sync.Once
	hooks := HooksFunc(func(ev Event) {
		once.Do(func() {
			close(started)
			<-release
		})
		rec.Play(ev)
	})

	d := NewDispatcher(hooks, 1)
	d.Emit(Event{Cue: CueStart})
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("hook never ran")
	}

	d.Emit(Event{Cue: CueEject})
	d.Emit(Event{Cue: CueLose})
	close(release)
	d.Close()

	assert.Equal(t, []Cue{CueStart, CueEject}, rec.cues())
	assert.Equal(t, int64(1), d.Dropped())
}

func TestDispatcherSurvivesPanickingHook(t *testing.T) {
	rec := &recorder{}
	hooks := HooksFunc(func(ev Event) {
		if ev.Cue == CueStart {
			panic("speaker unplugged")
		}
		rec.Play(ev)
	})

	d := NewDispatcher(hooks, 4)
	d.Emit(Event{Cue: CueStart})
	d.Emit(Event{Cue: CueWin})
	d.Close()

	assert.Equal(t, []Cue{CueWin}, rec.cues())
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 0)
	d.Close()
	d.Close()

	require.NotPanics(t, func() { d.Emit(Event{Cue: CueStart}) })
	assert.Empty(t, rec.cues())
}

func TestNilHooks(t *testing.T) {
	d := NewDispatcher(nil, 1)
	d.Emit(Event{Cue: CueStart})
	d.Close()
}

func TestTickTracker(t *testing.T) {
	var tr TickTracker

	assert.False(t, tr.Observe(10000), "first observation is the baseline")
	assert.False(t, tr.Observe(10999))
	assert.True(t, tr.Observe(11000))
	assert.False(t, tr.Observe(11500))
	assert.True(t, tr.Observe(13200), "skipping buckets fires once")
	assert.False(t, tr.Observe(12000), "never fires going down")

	tr.Reset()
	assert.False(t, tr.Observe(15000))
	assert.True(t, tr.Observe(16000))
}

func TestMultiPlaysEachHook(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b}

	m.Play(Event{Cue: CueLose, SessionID: 3})

	assert.Equal(t, []Cue{CueLose}, a.cues())
	assert.Equal(t, []Cue{CueLose}, b.cues())
}
