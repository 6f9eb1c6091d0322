package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	data := []byte(`{"eventId":"e1","eventType":"SessionEnded","timestamp":"2025-06-01T12:00:00Z",
		"payload":{"session_id":42,"participant":"0xAbC","won":true,"payout":1500000000000000000,"final_multiplier_bp":15000}}`)

	ev, ok, err := DecodeEnvelope(data)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, models.SessionID(42), ev.SessionID)
	require.True(t, ev.Participant.Equal("0xabc"))
	require.Equal(t, "1500000000000000000", ev.Payout.String())
	require.Equal(t, uint64(15000), ev.Result().FinalMultiplierBp)
}

func TestDecodeEnvelopeIgnoresOtherTypes(t *testing.T) {
	_, ok, err := DecodeEnvelope([]byte(`{"eventType":"SessionStarted","payload":{}}`))
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

type fakeSource struct {
	err          error
	unsubscribed int
}

func (f *fakeSource) SubscribeTerminalEvents(context.Context, func(models.TerminalEvent)) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *fakeSource) Unsubscribe() error {
	f.unsubscribed++
	return nil
}

func TestFanIn(t *testing.T) {
	ok := &fakeSource{}
	broken := &fakeSource{err: errors.New("dial failed")}

	sub, err := FanIn{broken, ok}.SubscribeTerminalEvents(context.Background(), func(models.TerminalEvent) {})
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
	require.Equal(t, 1, ok.unsubscribed)

	_, err = FanIn{broken}.SubscribeTerminalEvents(context.Background(), func(models.TerminalEvent) {})
	require.ErrorContains(t, err, "dial failed")
}
