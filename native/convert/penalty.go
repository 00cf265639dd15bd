package convert

import (
	"math/big"

	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

// deltaBs are the deltaB readings a convert is judged by. Pool readings are
// nil when the side is not a pool.
type deltaBs struct {
	overall *big.Int
	input   *big.Int
	output  *big.Int
}

// pegMovement splits the move from before to after into the amount moved
// toward peg and the amount moved against it. Crossing peg counts the whole
// of before as toward and the whole of after as against.
func pegMovement(before, after *big.Int) (*uint256.Int, *uint256.Int) {
	towards, against := new(uint256.Int), new(uint256.Int)
	if before == nil || after == nil {
		return towards, against
	}
	absBefore, absAfter := nativecommon.Abs(before), nativecommon.Abs(after)
	if (before.Sign() < 0) == (after.Sign() < 0) {
		if absAfter.Gt(absBefore) {
			against.Sub(absAfter, absBefore)
		} else {
			towards.Sub(absBefore, absAfter)
		}
		return towards, against
	}
	return absBefore, absAfter
}

// capacity is one convert capacity bucket for the season.
type capacity struct {
	limit   *uint256.Int
	used    *uint256.Int
	towards *uint256.Int
	// against is how far this operation pushed the bucket's deltaB away
	// from peg.
	against *uint256.Int
}

// overflow is the part of this operation's toward-peg amount beyond what
// the bucket still has room for. Usage from earlier operations is only
// counted against the room, never penalized again.
func (c capacity) overflow() *uint256.Int {
	if c.towards == nil || c.towards.IsZero() {
		return new(uint256.Int)
	}
	room := nativecommon.SaturatingSub(c.limit, c.used)
	return nativecommon.SaturatingSub(c.towards, room)
}

// next is the bucket's usage after this operation.
func (c capacity) next() *uint256.Int {
	return new(uint256.Int).Add(nativecommon.OrZero(c.used), nativecommon.OrZero(c.towards))
}

// penaltyBdv is the BDV whose grown stalk the convert forfeits: the largest
// of the amounts moved against peg (overall or in either pool) and the worst
// capacity overflow, bounded by the BDV converted.
func penaltyBdv(bdvIn, overallAgainst *uint256.Int, buckets ...capacity) *uint256.Int {
	penalty := nativecommon.OrZero(overallAgainst).Clone()
	for _, b := range buckets {
		penalty = nativecommon.Max(penalty, nativecommon.OrZero(b.against))
		penalty = nativecommon.Max(penalty, b.overflow())
	}
	return nativecommon.Min(penalty, nativecommon.OrZero(bdvIn))
}

// penaltyStalk scales grown by the penalized share of bdvIn.
func penaltyStalk(grown, penalty, bdvIn *uint256.Int) (*uint256.Int, error) {
	if bdvIn == nil || bdvIn.IsZero() || penalty == nil || penalty.IsZero() {
		return new(uint256.Int), nil
	}
	stalk, err := nativecommon.MulDiv(nativecommon.OrZero(grown), penalty, bdvIn)
	if err != nil {
		return nil, err
	}
	return nativecommon.Min(stalk, nativecommon.OrZero(grown)), nil
}

// minGrownStalk is the least grown stalk a convert may end with given the
// accepted slippage at 1e18.
func minGrownStalk(initial, slippage *uint256.Int) (*uint256.Int, error) {
	slippage = nativecommon.OrZero(slippage)
	if slippage.Gt(nativecommon.Ratio) {
		slippage = nativecommon.Ratio
	}
	keep := new(uint256.Int).Sub(nativecommon.Ratio, slippage)
	return nativecommon.MulDiv(nativecommon.OrZero(initial), keep, nativecommon.Ratio)
}
