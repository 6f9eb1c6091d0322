package projection

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestProjectBeforeStart(t *testing.T) {
	for _, elapsed := range []time.Duration{-10 * time.Second, -time.Millisecond, 0} {
		p := Project(start.Add(elapsed), start, 30*time.Second, 20000)
		require.Equal(t, BaseMultiplierBp, p.MultiplierBp, "elapsed %s", elapsed)
		require.False(t, p.Expired(), "elapsed %s", elapsed)
	}

	p := Project(start.Add(-5*time.Second), start, 30*time.Second, 20000)
	require.False(t, p.ElapsedValid)
	require.Equal(t, 30*time.Second, p.TimeRemaining)
}

func TestProjectAfterDuration(t *testing.T) {
	for _, elapsed := range []time.Duration{30 * time.Second, 31 * time.Second, time.Hour} {
		p := Project(start.Add(elapsed), start, 30*time.Second, 20000)
		require.Equal(t, uint64(20000), p.MultiplierBp)
		require.Zero(t, p.TimeRemaining)
		require.True(t, p.Expired())
	}
}

func TestProjectMidRound(t *testing.T) {
	fee, ok := new(big.Int).SetString("1000000000000000000", 10)
	require.True(t, ok)

	p := Project(start.Add(15*time.Second), start, 30*time.Second, 20000)
	require.Equal(t, uint64(15000), p.MultiplierBp)
	require.Equal(t, 15*time.Second, p.TimeRemaining)
	require.Equal(t, "1.50x", FormatMultiplier(p.MultiplierBp))

	payout := Payout(fee, p.MultiplierBp)
	require.Equal(t, "1500000000000000000", payout.String())
}

func TestProjectMonotonic(t *testing.T) {
	prev := uint64(0)
	for ms := int64(-1000); ms <= 32000; ms += 7 {
		p := Project(start.Add(time.Duration(ms)*time.Millisecond), start, 30*time.Second, 45000)
		require.GreaterOrEqual(t, p.MultiplierBp, prev, "at %dms", ms)
		require.LessOrEqual(t, p.MultiplierBp, uint64(45000))
		prev = p.MultiplierBp
	}
}

func TestProjectDegenerateParams(t *testing.T) {
	p := Project(start.Add(time.Second), start, 0, 20000)
	assert.True(t, p.Expired())
	assert.Equal(t, uint64(20000), p.MultiplierBp)

	p = Project(start.Add(10*time.Second), start, 30*time.Second, 5000)
	assert.Equal(t, BaseMultiplierBp, p.MultiplierBp, "max below 1.00x clamps to 1.00x")
}

func TestPayoutTruncates(t *testing.T) {
	require.Equal(t, "1", Payout(big.NewInt(1), 19999).String())
	require.Equal(t, "3", Payout(big.NewInt(2), 15001).String())
	require.Nil(t, Payout(nil, 15000))
}

func TestTickBucket(t *testing.T) {
	assert.Equal(t, uint64(10), TickBucket(10000))
	assert.Equal(t, uint64(10), TickBucket(10999))
	assert.Equal(t, uint64(11), TickBucket(11000))
}

func TestWholeSeconds(t *testing.T) {
	assert.Equal(t, int64(19), WholeSeconds(19900*time.Millisecond))
	assert.Equal(t, int64(0), WholeSeconds(-time.Second))
}
