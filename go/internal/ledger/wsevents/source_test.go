package wsevents

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(id int, eventType string) []byte {
	return []byte(fmt.Sprintf(`{"eventId":"e%d","eventType":%q,"timestamp":"2026-01-01T12:00:00Z",
		"payload":{"session_id":%d,"participant":"0xabc","won":false,"payout":0,"final_multiplier_bp":12000}}`, id, eventType, id))
}

// feed serves one event per connection and drops the connection afterwards,
// except for the last one which stays open until the client leaves.
func feed(t *testing.T, connections int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var served atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := int(served.Add(1))
		_ = conn.WriteMessage(websocket.TextMessage, envelope(n, "SessionStarted"))
		_ = conn.WriteMessage(websocket.TextMessage, envelope(n, "SessionEnded"))
		if n < connections {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &served
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscribeReconnects(t *testing.T) {
	srv, served := feed(t, 3)
	cfg := DefaultConfig(wsURL(srv))
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond

	var mu sync.Mutex
	var got []models.SessionID
	sub, err := New(cfg).SubscribeTerminalEvents(context.Background(), func(ev models.TerminalEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.SessionID)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, int32(3), served.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.SessionID{1, 2, 3}, got)
}

func TestSubscribeFailsWhenFeedUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(DefaultConfig(wsURL(srv))).SubscribeTerminalEvents(context.Background(), func(models.TerminalEvent) {})
	require.Error(t, err)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv, _ := feed(t, 1)
	var count atomic.Int32
	sub, err := New(DefaultConfig(wsURL(srv))).SubscribeTerminalEvents(context.Background(), func(models.TerminalEvent) {
		count.Add(1)
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return count.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = sub.Unsubscribe()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe did not return")
	}
}
