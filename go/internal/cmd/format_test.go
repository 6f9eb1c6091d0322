package main

import (
	"math/big"
	"testing"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/session"
	"github.com/stretchr/testify/assert"
)

func units(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount " + s)
	}
	return v
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5000 FLOW", FormatAmount(units("1500000000000000000")))
	assert.Equal(t, "1.2345 FLOW", FormatAmount(units("1234599999999999999")))
	assert.Equal(t, "0.0000 FLOW", FormatAmount(big.NewInt(0)))
	assert.Equal(t, "-", FormatAmount(nil))
}

func TestRenderSnapshot(t *testing.T) {
	active := session.Snapshot{
		State:                models.SessionStateActive,
		SessionID:            42,
		Multiplier:           "1.50x",
		Payout:               units("1500000000000000000"),
		TimeRemaining:        15 * time.Second,
		TimeRemainingSeconds: 15,
	}
	assert.Equal(t, "session 42  1.50x  payout 1.5000 FLOW  15s left", renderSnapshot(active))

	awaiting := session.Snapshot{
		State:         models.SessionStateAwaitingFinalization,
		SessionID:     42,
		Multiplier:    "2.00x",
		AwaitingEject: true,
		Error:         "round ended, eject to finalize",
		ErrorKind:     apperr.KindTransient,
	}
	assert.Equal(t, "session 42  2.00x  round over, eject to finalize [TRANSIENT: round ended, eject to finalize]", renderSnapshot(awaiting))

	won := session.Snapshot{
		State:     models.SessionStateResolved,
		SessionID: 42,
		Result:    &models.Result{Won: true, Payout: units("1800000000000000000"), FinalMultiplierBp: 18000},
	}
	assert.Equal(t, "session 42  WON 1.8000 FLOW at 1.80x", renderSnapshot(won))

	lost := session.Snapshot{
		State:     models.SessionStateResolved,
		SessionID: 42,
		Result:    &models.Result{Won: false, Payout: big.NewInt(0), FinalMultiplierBp: 12000},
	}
	assert.Equal(t, "session 42  lost at 1.20x", renderSnapshot(lost))

	assert.Equal(t, "idle, type start to play", renderSnapshot(session.Snapshot{State: models.SessionStateIdle}))
}
