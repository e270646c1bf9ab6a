package orderbook

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestCheckFillRateExactMatch(t *testing.T) {
	require.True(t, CheckFillRate(u(100), u(200), u(100), u(200)))
}

func TestCheckFillRateWithinTolerance(t *testing.T) {
	// Filling at a rate 0.1% worse than declared is still acceptable.
	require.True(t, CheckFillRate(u(1000), u(1000), u(1000), u(999)))
}

func TestCheckFillRateOutsideTolerance(t *testing.T) {
	require.False(t, CheckFillRate(u(1000), u(1000), u(1000), u(500)))
}

func TestCheckValidExpiredOrder(t *testing.T) {
	o := &Order{AmountS: u(100), AmountB: u(100), ValidUntil: 50}
	o.CheckValid(100, u(100), u(100))
	require.False(t, o.Valid)
}

func TestCheckValidWithinDeadline(t *testing.T) {
	o := &Order{AmountS: u(100), AmountB: u(100), ValidUntil: 500}
	o.CheckValid(100, u(100), u(100))
	require.True(t, o.Valid)
}

func TestGetMaxFillNoPriorFillUnlimitedBalance(t *testing.T) {
	o := &Order{AmountS: u(1000), AmountB: u(2000), FillAmountBorS: false}
	fill := GetMaxFill(o, u(0), u(1000))
	require.Equal(t, u(1000).Cmp(fill.S), 0)
	require.Equal(t, u(2000).Cmp(fill.B), 0)
}

func TestGetMaxFillRespectsBalanceCap(t *testing.T) {
	o := &Order{AmountS: u(1000), AmountB: u(2000), FillAmountBorS: false}
	fill := GetMaxFill(o, u(0), u(100))
	require.Equal(t, uint64(100), fill.S.Uint64())
	require.Equal(t, uint64(200), fill.B.Uint64())
}

func TestGetMaxFillRespectsPriorFill(t *testing.T) {
	o := &Order{AmountS: u(1000), AmountB: u(2000), FillAmountBorS: false}
	fill := GetMaxFill(o, u(400), u(10000))
	require.Equal(t, uint64(600), fill.S.Uint64())
	require.Equal(t, uint64(1200), fill.B.Uint64())
}

func TestMatchExactCross(t *testing.T) {
	takerOrder := &Order{AmountS: u(100), AmountB: u(200)}
	makerOrder := &Order{AmountS: u(200), AmountB: u(100)}
	takerFill := Fill{S: u(100), B: u(200)}
	makerFill := Fill{S: u(200), B: u(100)}

	_, _, spread, matchable := Match(takerOrder, takerFill, makerOrder, makerFill)
	require.True(t, matchable)
	require.Equal(t, uint64(0), spread.Uint64())
}

func TestMatchUnmatchable(t *testing.T) {
	// takerFill.B == makerFill.S so the taker side is rescaled to the
	// maker's price; makerFill.B is set above what that rescaled taker
	// sell amount can cover, so the ring cannot cross.
	takerOrder := &Order{AmountS: u(100), AmountB: u(200)}
	makerOrder := &Order{AmountS: u(300), AmountB: u(100)}
	takerFill := Fill{S: u(0), B: u(300)}
	makerFill := Fill{S: u(300), B: u(200)}

	_, _, _, matchable := Match(takerOrder, takerFill, makerOrder, makerFill)
	require.False(t, matchable)
}

func TestMatchRescaledFillsPropagateToCaller(t *testing.T) {
	// takerFill.B < makerFill.S: the maker side must be rescaled down to the
	// taker's fill, and the caller must see that rescaled value, not the
	// stale pre-match makerFill it passed in.
	takerOrder := &Order{AmountS: u(100), AmountB: u(200)}
	makerOrder := &Order{AmountS: u(200), AmountB: u(100)}
	takerFill := Fill{S: u(100), B: u(150)}
	makerFill := Fill{S: u(200), B: u(100)}

	newTakerFill, newMakerFill, _, _ := Match(takerOrder, takerFill, makerOrder, makerFill)

	require.Equal(t, uint64(150), newMakerFill.S.Uint64())
	require.Equal(t, uint64(75), newMakerFill.B.Uint64())
	require.Equal(t, uint64(100), newTakerFill.S.Uint64())
	require.Equal(t, uint64(150), newTakerFill.B.Uint64())
}
