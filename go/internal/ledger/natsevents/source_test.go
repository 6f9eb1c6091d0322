package natsevents

import (
	"testing"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch(t *testing.T) {
	var got []models.TerminalEvent
	handler := func(ev models.TerminalEvent) { got = append(got, ev) }

	dispatch("chicken.events.ended", []byte(`{"eventId":"e1","eventType":"SessionEnded","timestamp":"2026-01-01T12:00:00Z",
		"payload":{"session_id":42,"participant":"0xabc","won":true,"payout":150,"final_multiplier_bp":15000}}`), handler)
	dispatch("chicken.events.started", []byte(`{"eventId":"e2","eventType":"SessionStarted","payload":{}}`), handler)
	dispatch("chicken.events.ended", []byte(`not json`), handler)

	require.Len(t, got, 1)
	assert.Equal(t, models.SessionID(42), got[0].SessionID)
	assert.True(t, got[0].Participant.Equal("0xABC"))
	assert.Equal(t, "150", got[0].Payout.String())
}

func TestSubscriptionFunc(t *testing.T) {
	called := 0
	sub := subscription(func() error {
		called++
		return nil
	})
	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 1, called)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "chicken.events.>", cfg.Subject)
	assert.Empty(t, cfg.StreamName)
	assert.Equal(t, -1, cfg.MaxReconnects)
}
