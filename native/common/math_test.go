package common

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestMulDivRounding(t *testing.T) {
	floor, err := MulDiv(uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(4))
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if floor.Uint64() != 7 {
		t.Fatalf("expected floor 7, got %s", floor)
	}
	ceil, err := MulDivUp(uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(4))
	if err != nil {
		t.Fatalf("muldivup: %v", err)
	}
	if ceil.Uint64() != 8 {
		t.Fatalf("expected ceil 8, got %s", ceil)
	}
	exact, _ := MulDivUp(uint256.NewInt(8), uint256.NewInt(3), uint256.NewInt(4))
	if exact.Uint64() != 6 {
		t.Fatalf("expected exact 6, got %s", exact)
	}
	if _, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), Zero()); !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
}

func TestSafeArithmeticBounds(t *testing.T) {
	if _, err := SafeAdd(MaxUint256(), uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if _, err := SafeSub(uint256.NewInt(1), uint256.NewInt(2)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
	if got := SaturatingSub(uint256.NewInt(1), uint256.NewInt(2)); !got.IsZero() {
		t.Fatalf("expected saturating zero, got %s", got)
	}
	if got := Abs(big.NewInt(-42)); got.Uint64() != 42 {
		t.Fatalf("unexpected abs %s", got)
	}
}
