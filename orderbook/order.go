// Package orderbook implements the spot-trade order type and the matching
// logic (getMaxFill/match/checkValid in the reference implementation):
// order scaling under partial fills, the fillAmountBorS buy/sell-amount
// flag, and the fill-rate tolerance check.
package orderbook

import (
	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/internal/field"
)

// Order is one side of a spot trade: a signed commitment to trade up to
// AmountS of TokenS for up to AmountB of TokenB, addressed by
// (AccountID, StorageID) in the storage slot keyed by StorageID mod 2^D_store.
//
// FillAmountBorS selects which side of the order is the fill target: true
// means the order is filled against AmountB (a "buy" order expressed in
// terms of how much of TokenB to acquire), false means it is filled against
// AmountS. This resolves the spec's Open Question on fillAmountBorS vs. the
// legacy buy/allOrNone/walletSplitPercentage fields in favor of the former.
type Order struct {
	PublicKeyX field.F
	PublicKeyY field.F

	StorageID *uint256.Int
	AccountID uint64

	TokenS uint32
	TokenB uint32

	AmountS *uint256.Int
	AmountB *uint256.Int

	ValidUntil     uint32
	FillAmountBorS bool
	Taker          uint64
	MaxFeeBips     uint16
	FeeBips        uint16
	AMM            bool

	Valid bool
}

// Fill is the (sell, buy) amounts one order is matched for within a ring.
type Fill struct {
	S *uint256.Int
	B *uint256.Int
}

func newFill(s, b *uint256.Int) Fill {
	return Fill{S: new(uint256.Int).Set(s), B: new(uint256.Int).Set(b)}
}

// CheckFillRate reports whether the fill rate is at most 0.1% worse than the
// order's target rate: (fillAmountS/fillAmountB) <= (amountS/amountB) * 1.001,
// checked without division as
// fillAmountS * amountB * 1000 <= fillAmountB * amountS * 1001.
func CheckFillRate(amountS, amountB, fillAmountS, fillAmountB *uint256.Int) bool {
	lhs := new(uint256.Int).Mul(fillAmountS, amountB)
	lhs.Mul(lhs, uint256.NewInt(1000))
	rhs := new(uint256.Int).Mul(fillAmountB, amountS)
	rhs.Mul(rhs, uint256.NewInt(1001))
	return lhs.Cmp(rhs) <= 0
}

// CheckValid sets o.Valid: the order must not have expired by timestamp and
// must satisfy CheckFillRate against its own declared amounts.
func (o *Order) CheckValid(timestamp uint32, fillS, fillB *uint256.Int) {
	notExpired := timestamp <= o.ValidUntil
	rateOK := CheckFillRate(o.AmountS, o.AmountB, fillS, fillB)
	o.Valid = notExpired && rateOK
}

// GetMaxFill computes the maximum fill for an order given the amount
// already filled in its storage slot, scaling down AmountS/AmountB if
// balanceLimit caps the fill at the order owner's available TokenS balance.
//
// balance is the account's current TokenS balance; pass it as the order's
// own AmountS to disable the balance cap (as the reference implementation
// does when balanceLimit is false).
func GetMaxFill(o *Order, filled *uint256.Int, balance *uint256.Int) Fill {
	limit := o.AmountS
	if o.FillAmountBorS {
		limit = o.AmountB
	}

	filledLimited := new(uint256.Int).Set(limit)
	if filled.Cmp(limit) < 0 {
		filledLimited.Set(filled)
	}
	remaining := new(uint256.Int).Sub(limit, filledLimited)

	remainingS := new(uint256.Int).Set(remaining)
	if o.FillAmountBorS {
		remainingS = mulDiv(remaining, o.AmountS, o.AmountB)
	}

	fillAmountS := new(uint256.Int).Set(balance)
	if remainingS.Cmp(balance) < 0 {
		fillAmountS.Set(remainingS)
	}
	fillAmountB := mulDiv(fillAmountS, o.AmountB, o.AmountS)

	return newFill(fillAmountS, fillAmountB)
}

// Match resolves a taker/maker fill pair to a common crossing price: the
// smaller side (by sell amount in buy-terms) is kept at its computed fill,
// the other side is rescaled to match it exactly. Returns the rescaled
// (newTakerFill, newMakerFill) pair the caller must use in place of its
// inputs, the spread (takerFill.S - makerFill.B, always >= 0 for a matchable
// ring), and whether the ring is matchable at all (makerFill.B <= takerFill.S).
//
// takerFill/makerFill are passed by value, but Fill's S/B fields are
// pointers: the rescaled side is always written via a fresh mulDiv/Set result
// rather than mutated through the existing pointer, so the caller's own Fill
// values are never silently aliased into — the new values must be taken from
// the return, not read back off the arguments.
func Match(takerOrder *Order, takerFill Fill, makerOrder *Order, makerFill Fill) (newTakerFill, newMakerFill Fill, spread *uint256.Int, matchable bool) {
	if takerFill.B.Cmp(makerFill.S) < 0 {
		makerFill.S = new(uint256.Int).Set(takerFill.B)
		makerFill.B = mulDiv(takerFill.B, makerOrder.AmountB, makerOrder.AmountS)
	} else {
		takerFill.S = mulDiv(makerFill.S, takerOrder.AmountS, takerOrder.AmountB)
		takerFill.B = new(uint256.Int).Set(makerFill.S)
	}

	spread = new(uint256.Int)
	if takerFill.S.Cmp(makerFill.B) >= 0 {
		spread.Sub(takerFill.S, makerFill.B)
	}
	matchable = makerFill.B.Cmp(takerFill.S) <= 0
	return takerFill, makerFill, spread, matchable
}

// mulDiv computes floor(a*b/c) using big.Int intermediates to avoid 256-bit
// overflow in the product, mirroring Python's unbounded-integer arithmetic.
// Amounts in this engine are bounded by MaxAmount (2^96-1), so the product
// never approaches the 256-bit ceiling in practice.
func mulDiv(a, b, c *uint256.Int) *uint256.Int {
	if c.IsZero() {
		return new(uint256.Int)
	}
	ab := a.ToBig()
	ab.Mul(ab, b.ToBig())
	ab.Div(ab, c.ToBig())
	out, overflow := uint256.FromBig(ab)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}
