package field

import (
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

// Field is one pod line. Pods is the cumulative pods ever issued and doubles
// as the index of the next plot; Harvestable advances as beans are shipped to
// the field and Harvested as holders redeem.
type Field struct {
	Pods        *uint256.Int
	Harvested   *uint256.Int
	Harvestable *uint256.Int
}

// NewField returns an empty field.
func NewField() *Field {
	return &Field{Pods: new(uint256.Int), Harvested: new(uint256.Int), Harvestable: new(uint256.Int)}
}

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	return &Field{
		Pods:        nativecommon.OrZero(f.Pods),
		Harvested:   nativecommon.OrZero(f.Harvested),
		Harvestable: nativecommon.OrZero(f.Harvestable),
	}
}

// Unharvestable is the number of pods not yet redeemable.
func (f *Field) Unharvestable() *uint256.Int {
	if f == nil {
		return new(uint256.Int)
	}
	return nativecommon.SaturatingSub(f.Pods, f.Harvestable)
}

// Validate enforces harvested <= harvestable <= pods.
func (f *Field) Validate() error {
	if f == nil {
		return errNilField
	}
	pods := nativecommon.OrZero(f.Pods)
	harvestable := nativecommon.OrZero(f.Harvestable)
	if nativecommon.OrZero(f.Harvested).Gt(harvestable) || harvestable.Gt(pods) {
		return ErrInsolvent
	}
	return nil
}

// Plot is a contiguous range of pods owned by one account.
type Plot struct {
	Index *uint256.Int
	Pods  *uint256.Int
}

// End returns the first index past the plot.
func (p Plot) End() *uint256.Int {
	return new(uint256.Int).Add(nativecommon.OrZero(p.Index), nativecommon.OrZero(p.Pods))
}
