package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/feedback"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	snap     session.Snapshot
	watch    chan session.Snapshot
	startErr error
	ejectErr error
	starts   int
}

func newFakeController() *fakeController {
	return &fakeController{
		snap:  session.Snapshot{State: models.SessionStateIdle, Multiplier: "1.00x"},
		watch: make(chan session.Snapshot, 8),
	}
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Watch() (<-chan session.Snapshot, func()) {
	return f.watch, func() {}
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.snap.State = models.SessionStateStarting
	return nil
}

func (f *fakeController) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeController) Eject(ctx context.Context) error { return f.ejectErr }

func (f *fakeController) PlayAgain(ctx context.Context) error { return nil }

func newTestServer(t *testing.T, ctrl Controller) (*httptest.Server, *ConnectionManager) {
	t.Helper()
	cm := NewConnectionManager(DefaultConnectionConfig())
	svc := NewService(cm, ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, cm
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) SessionEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev SessionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestGetSessionReturnsSnapshot(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap = session.Snapshot{State: models.SessionStateActive, SessionID: 42, MultiplierBp: 13333, Multiplier: "1.33x"}
	srv, _ := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/api/session")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ACTIVE", body["state"])
	assert.Equal(t, "1.33x", body["multiplier"])
	assert.EqualValues(t, 42, body["session_id"])
}

func TestStartIntentAccepted(t *testing.T) {
	ctrl := newFakeController()
	srv, _ := newTestServer(t, ctrl)

	resp, err := http.Post(srv.URL+"/api/session/start", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, models.SessionStateStarting, snap.State)
	assert.Equal(t, 1, ctrl.startCount())
}

func TestIntentErrorsCarryKind(t *testing.T) {
	ctrl := newFakeController()
	ctrl.ejectErr = apperr.Rejected("eject", 0, fmt.Errorf("%w: IDLE", session.ErrInvalidState))
	srv, _ := newTestServer(t, ctrl)

	resp, err := http.Post(srv.URL+"/api/session/eject", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, apperr.KindRejected, body.Kind)
	assert.Contains(t, body.Error, "not allowed")
}

func TestIntentRoutesRequirePost(t *testing.T) {
	srv, _ := newTestServer(t, newFakeController())

	resp, err := http.Get(srv.URL + "/api/session/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMultiplayerNotImplemented(t *testing.T) {
	srv, _ := newTestServer(t, newFakeController())

	resp, err := http.Get(srv.URL + "/api/multiplayer")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "multiplayer mode coming soon", body.Error)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(session.ErrClosed))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(apperr.Rejected("start session", 0, errors.New("insufficient funds"))))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(apperr.Transient("load config", 0, session.ErrConfigUnavailable)))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(apperr.Timeout("start session", 0, context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestWebSocketReceivesSnapshots(t *testing.T) {
	ctrl := newFakeController()
	srv, _ := newTestServer(t, ctrl)
	conn := dial(t, srv)

	first := readEvent(t, conn)
	assert.Equal(t, EventTypeSnapshot, first.Type)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(first.Data, &snap))
	assert.Equal(t, models.SessionStateIdle, snap.State)

	ctrl.watch <- session.Snapshot{State: models.SessionStateActive, SessionID: 7, Multiplier: "1.10x"}

	next := readEvent(t, conn)
	require.NoError(t, json.Unmarshal(next.Data, &snap))
	assert.Equal(t, models.SessionStateActive, snap.State)
	assert.Equal(t, models.SessionID(7), snap.SessionID)
}

func TestFeedbackCuesAreBroadcast(t *testing.T) {
	srv, cm := newTestServer(t, newFakeController())
	conn := dial(t, srv)
	readEvent(t, conn)

	var hooks feedback.Hooks = cm
	hooks.Play(feedback.Event{Cue: feedback.CueEject, SessionID: 9, MultiplierBp: 15000})

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeFeedbackCue, ev.Type)
	var cue feedback.Event
	require.NoError(t, json.Unmarshal(ev.Data, &cue))
	assert.Equal(t, feedback.CueEject, cue.Cue)
	assert.Equal(t, uint64(15000), cue.MultiplierBp)
}

func TestConnectionStats(t *testing.T) {
	srv, cm := newTestServer(t, newFakeController())
	conn := dial(t, srv)
	readEvent(t, conn)

	assert.Equal(t, 1, cm.GetConnectionStats()["total_connections"])

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.EqualValues(t, 1, stats["total_connections"])
}
