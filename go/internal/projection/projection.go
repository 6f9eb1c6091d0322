// Package projection maps wall-clock time onto the displayed multiplier,
// payout and time remaining of a round. It performs no I/O.
package projection

import (
	"fmt"
	"math/big"
	"math/bits"
	"time"
)

// BaseMultiplierBp is 1.00x expressed in basis points.
const BaseMultiplierBp uint64 = 10000

// Projection is the locally simulated view of a running round.
type Projection struct {
	MultiplierBp  uint64
	TimeRemaining time.Duration
	Elapsed       time.Duration
	// ElapsedValid is false when now precedes the start time (clock skew or
	// a round the ledger has not started yet). Callers re-invoke later.
	ElapsedValid bool
}

// Expired reports whether the round timer has reached zero.
func (p Projection) Expired() bool {
	return p.ElapsedValid && p.TimeRemaining == 0
}

// Project computes the multiplier with linear growth from 1.00x to
// maxMultiplierBp over the round duration.
func Project(now, start time.Time, duration time.Duration, maxMultiplierBp uint64) Projection {
	if maxMultiplierBp < BaseMultiplierBp {
		maxMultiplierBp = BaseMultiplierBp
	}

	elapsed := now.Sub(start)
	if elapsed < 0 {
		return Projection{
			MultiplierBp:  BaseMultiplierBp,
			TimeRemaining: max(duration, 0),
			Elapsed:       elapsed,
		}
	}

	if duration <= 0 || elapsed >= duration {
		return Projection{
			MultiplierBp:  maxMultiplierBp,
			TimeRemaining: 0,
			Elapsed:       elapsed,
			ElapsedValid:  true,
		}
	}

	// spread*elapsed/duration <= spread, so the quotient always fits.
	spread := maxMultiplierBp - BaseMultiplierBp
	hi, lo := bits.Mul64(spread, uint64(elapsed))
	growth, _ := bits.Div64(hi, lo, uint64(duration))

	return Projection{
		MultiplierBp:  min(BaseMultiplierBp+growth, maxMultiplierBp),
		TimeRemaining: duration - elapsed,
		Elapsed:       elapsed,
		ElapsedValid:  true,
	}
}

// Payout returns entryFee * multiplierBp / 10000, truncated like the ledger.
func Payout(entryFee *big.Int, multiplierBp uint64) *big.Int {
	if entryFee == nil {
		return nil
	}
	out := new(big.Int).Mul(entryFee, new(big.Int).SetUint64(multiplierBp))
	return out.Quo(out, new(big.Int).SetUint64(BaseMultiplierBp))
}

// FormatMultiplier renders basis points as "1.50x" (truncated to cents).
func FormatMultiplier(bp uint64) string {
	return fmt.Sprintf("%d.%02dx", bp/BaseMultiplierBp, (bp%BaseMultiplierBp)/100)
}

// TickBucket groups the multiplier into 0.1x steps for tick feedback.
func TickBucket(bp uint64) uint64 {
	return bp / (BaseMultiplierBp / 10)
}

// WholeSeconds floors a remaining duration for display.
func WholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
