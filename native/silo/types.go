package silo

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

// StemPrecision scales stems and stalk earned per season: a deposit of bdv B
// at stem s has grown B*(tip-s)/StemPrecision stalk.
const StemPrecision = 1_000_000

// WhitelistEntry configures a depositable token.
type WhitelistEntry struct {
	Token common.Address
	// BDVPlugin names the registered plugin valuing the token in beans.
	BDVPlugin         string
	StalkIssuedPerBdv *uint256.Int
	// StalkEarnedPerSeason is grown stalk per bdv per season at StemPrecision.
	StalkEarnedPerSeason uint64
	// The stem tip was MilestoneStem at MilestoneSeason.
	MilestoneStem   int64
	MilestoneSeason uint32
	// LiquidityWeight scales the pool's liquidity in the L2SR, at 1e18.
	LiquidityWeight *uint256.Int
	// IsPool marks tokens that are LP tokens of a bean pool.
	IsPool bool
}

func (w *WhitelistEntry) normalize() *WhitelistEntry {
	w.StalkIssuedPerBdv = nativecommon.OrZero(w.StalkIssuedPerBdv)
	w.LiquidityWeight = nativecommon.OrZero(w.LiquidityWeight)
	return w
}

// Clone returns a deep copy of the entry.
func (w *WhitelistEntry) Clone() *WhitelistEntry {
	if w == nil {
		return nil
	}
	cp := *w
	return cp.normalize()
}

// Deposit is the amount and bdv an account holds at one stem.
type Deposit struct {
	Amount *uint256.Int
	BDV    *uint256.Int
}

func (d *Deposit) normalize() *Deposit {
	d.Amount = nativecommon.OrZero(d.Amount)
	d.BDV = nativecommon.OrZero(d.BDV)
	return d
}

// DepositView is a deposit together with its stem, as listed by queries.
type DepositView struct {
	Stem   int64
	Amount *uint256.Int
	BDV    *uint256.Int
}

// Totals aggregates deposits of one token.
type Totals struct {
	Deposited    *uint256.Int
	DepositedBdv *uint256.Int
}

func (t *Totals) normalize() *Totals {
	t.Deposited = nativecommon.OrZero(t.Deposited)
	t.DepositedBdv = nativecommon.OrZero(t.DepositedBdv)
	return t
}
