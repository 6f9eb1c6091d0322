package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/projection"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/session"
	"github.com/shopspring/decimal"
)

// Ledger amounts are 18-decimal fixed point.
const amountDecimals = 18

// FormatAmount renders a ledger amount in whole units with four decimals,
// truncated so an estimate never reads higher than the ledger value.
func FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "-"
	}
	return decimal.NewFromBigInt(amount, -amountDecimals).Truncate(4).StringFixed(4) + " FLOW"
}

func renderSnapshot(s session.Snapshot) string {
	var b strings.Builder

	switch s.State {
	case models.SessionStateIdle:
		b.WriteString("idle, type start to play")
	case models.SessionStateStarting:
		b.WriteString("starting, waiting for the ledger to confirm")
	case models.SessionStateActive:
		fmt.Fprintf(&b, "session %s  %s  payout %s  %ds left",
			s.SessionID, s.Multiplier, FormatAmount(s.Payout), s.TimeRemainingSeconds)
	case models.SessionStateAwaitingFinalization:
		fmt.Fprintf(&b, "session %s  %s  round over", s.SessionID, s.Multiplier)
		if s.AwaitingEject {
			b.WriteString(", eject to finalize")
		}
	case models.SessionStateResolving:
		fmt.Fprintf(&b, "session %s  resolving at %s", s.SessionID, s.Multiplier)
	case models.SessionStateResolved:
		if s.Result != nil && s.Result.Won {
			fmt.Fprintf(&b, "session %s  WON %s at %s", s.SessionID,
				FormatAmount(s.Result.Payout), projection.FormatMultiplier(s.Result.FinalMultiplierBp))
		} else {
			fmt.Fprintf(&b, "session %s  lost", s.SessionID)
			if s.Result != nil {
				fmt.Fprintf(&b, " at %s", projection.FormatMultiplier(s.Result.FinalMultiplierBp))
			}
		}
	case models.SessionStateFailed:
		fmt.Fprintf(&b, "session %s  failed, type again to retry", s.SessionID)
	default:
		b.WriteString(string(s.State))
	}

	if s.Error != "" {
		fmt.Fprintf(&b, " [%s: %s]", s.ErrorKind, s.Error)
	}
	return b.String()
}
