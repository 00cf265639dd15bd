package common

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow     = errors.New("math: uint256 overflow")
	ErrUnderflow    = errors.New("math: uint256 underflow")
	ErrDivideByZero = errors.New("math: division by zero")
)

// Precision used for ratios (pod rate, L2SR, slippage, coefficients).
var Ratio = uint256.NewInt(1_000_000_000_000_000_000)

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// OrZero returns a copy of x, or zero when x is nil.
func OrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}

// MaxUint256 returns 2^256-1, used as the unlimited allowance sentinel.
func MaxUint256() *uint256.Int { return new(uint256.Int).SetAllOne() }

func SafeAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(OrZero(a), OrZero(b))
	if overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

func SafeSub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(OrZero(a), OrZero(b))
	if underflow {
		return nil, ErrUnderflow
	}
	return diff, nil
}

// SaturatingSub returns a-b, or zero when b exceeds a.
func SaturatingSub(a, b *uint256.Int) *uint256.Int {
	diff, underflow := new(uint256.Int).SubOverflow(OrZero(a), OrZero(b))
	if underflow {
		return new(uint256.Int)
	}
	return diff
}

// MulDiv returns floor(a*b/d) computed with a 512-bit intermediate.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivideByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(OrZero(a), OrZero(b), d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulDivUp returns ceil(a*b/d).
func MulDivUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	floor, err := MulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	product := new(big.Int).Mul(OrZero(a).ToBig(), OrZero(b).ToBig())
	if new(big.Int).Mod(product, d.ToBig()).Sign() == 0 {
		return floor, nil
	}
	return SafeAdd(floor, uint256.NewInt(1))
}

func Min(a, b *uint256.Int) *uint256.Int {
	if OrZero(a).Cmp(OrZero(b)) <= 0 {
		return OrZero(a)
	}
	return OrZero(b)
}

func Max(a, b *uint256.Int) *uint256.Int {
	if OrZero(a).Cmp(OrZero(b)) >= 0 {
		return OrZero(a)
	}
	return OrZero(b)
}

// Abs returns |x| as a uint256. Values wider than 256 bits saturate.
func Abs(x *big.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	out, overflow := uint256.FromBig(new(big.Int).Abs(x))
	if overflow {
		return MaxUint256()
	}
	return out
}

// Signed converts an unsigned amount into a big.Int, negated when neg is set.
func Signed(x *uint256.Int, neg bool) *big.Int {
	out := OrZero(x).ToBig()
	if neg {
		out.Neg(out)
	}
	return out
}

// BigOrZero returns a copy of x, or zero when x is nil.
func BigOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
