package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
)

// PricePrecision is the scale of PricePerPod: 1e6 is one bean per pod.
const PricePrecision uint64 = 1_000_000

// Listing offers the pods [Index+Start, Index+Start+Amount) of the lister's
// plot at Index. The listing is keyed by (FieldID, Index) and expires once
// the field's harvestable index passes MaxHarvestableIndex.
type Listing struct {
	Lister              common.Address
	FieldID             uint64
	Index               *uint256.Int
	Start               *uint256.Int
	Amount              *uint256.Int
	PricePerPod         uint32
	MaxHarvestableIndex *uint256.Int
	MinFillAmount       *uint256.Int
	Mode                bank.Mode
}

// Clone returns a deep copy with nil amounts replaced by zero.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Index = nativecommon.OrZero(l.Index)
	cp.Start = nativecommon.OrZero(l.Start)
	cp.Amount = nativecommon.OrZero(l.Amount)
	cp.MaxHarvestableIndex = nativecommon.OrZero(l.MaxHarvestableIndex)
	cp.MinFillAmount = nativecommon.OrZero(l.MinFillAmount)
	return &cp
}

// End is the plot offset one past the last listed pod.
func (l *Listing) End() *uint256.Int {
	return new(uint256.Int).Add(nativecommon.OrZero(l.Start), nativecommon.OrZero(l.Amount))
}

// Equal reports whether two listings carry identical terms.
func (l *Listing) Equal(o *Listing) bool {
	if l == nil || o == nil {
		return l == o
	}
	a, b := l.Clone(), o.Clone()
	return a.Lister == b.Lister &&
		a.FieldID == b.FieldID &&
		a.Index.Eq(b.Index) &&
		a.Start.Eq(b.Start) &&
		a.Amount.Eq(b.Amount) &&
		a.PricePerPod == b.PricePerPod &&
		a.MaxHarvestableIndex.Eq(b.MaxHarvestableIndex) &&
		a.MinFillAmount.Eq(b.MinFillAmount) &&
		a.Mode == b.Mode
}
