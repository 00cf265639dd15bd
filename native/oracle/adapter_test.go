package oracle

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

type staticSource struct {
	current, twa, capped Reserves
	ratio                *uint256.Int
	err                  error
}

func (s *staticSource) Reserves(common.Address) (Reserves, error)       { return s.current, s.err }
func (s *staticSource) TWAReserves(common.Address) (Reserves, error)    { return s.twa, s.err }
func (s *staticSource) CappedReserves(common.Address) (Reserves, error) { return s.capped, s.err }
func (s *staticSource) Ratio(common.Address) (*uint256.Int, error)      { return s.ratio, s.err }

func reserves(bean, nonBean uint64) Reserves {
	return Reserves{uint256.NewInt(bean), uint256.NewInt(nonBean)}
}

func uniform(r Reserves) *staticSource {
	return &staticSource{current: r, twa: r, capped: r, ratio: nativecommon.Ratio.Clone()}
}

var (
	poolA = common.HexToAddress("0xAAAA")
	poolB = common.HexToAddress("0xBBBB")
)

func TestDeltaBConstantProduct(t *testing.T) {
	above := DeltaB(reserves(1_000, 1_210), nativecommon.Ratio, nil)
	if above.Int64() != 100 {
		t.Fatalf("expected +100 above peg, got %s", above)
	}
	below := DeltaB(reserves(1_210, 1_000), nativecommon.Ratio, nil)
	if below.Int64() != -110 {
		t.Fatalf("expected -110 below peg, got %s", below)
	}
	if got := DeltaB(reserves(1_000, 1_000), nativecommon.Ratio, nil); got.Sign() != 0 {
		t.Fatalf("expected zero at peg, got %s", got)
	}
	if got := DeltaB(reserves(999, 1_210), nativecommon.Ratio, uint256.NewInt(1_000)); got.Sign() != 0 {
		t.Fatalf("expected zero below liquidity floor, got %s", got)
	}
}

func TestAdapterZeroesFailingPool(t *testing.T) {
	adapter := NewAdapter(uint256.NewInt(10))
	if err := adapter.Register(poolA, uniform(reserves(1_000, 1_210))); err != nil {
		t.Fatalf("register A: %v", err)
	}
	broken := uniform(reserves(1_210, 1_000))
	broken.err = errors.New("feed offline")
	if err := adapter.Register(poolB, broken); err != nil {
		t.Fatalf("register B: %v", err)
	}
	if err := adapter.Register(poolA, broken); !errors.Is(err, ErrDuplicatePool) {
		t.Fatalf("expected ErrDuplicatePool, got %v", err)
	}

	if got := adapter.TWADeltaB(poolB); got.Sign() != 0 {
		t.Fatalf("failing pool should contribute zero, got %s", got)
	}
	if got := adapter.TotalTWADeltaB(); got.Int64() != 100 {
		t.Fatalf("expected total of healthy pool only, got %s", got)
	}
	if got := adapter.TotalCurrentDeltaB(); got.Int64() != 100 {
		t.Fatalf("unexpected current total %s", got)
	}
	if got := adapter.Liquidity(poolB); !got.IsZero() {
		t.Fatalf("failing pool should report no liquidity, got %s", got)
	}
	capped, err := adapter.CappedReserves(poolB)
	if err != nil || !capped.Bean().IsZero() {
		t.Fatalf("failing pool should report empty capped reserves, got %v %v", capped, err)
	}
	if _, err := adapter.CappedReserves(common.HexToAddress("0xCCCC")); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
}

func TestLiquidityAndPrice(t *testing.T) {
	adapter := NewAdapter(nil)
	source := uniform(reserves(1_000_000, 2_000_000))
	source.ratio = uint256.NewInt(500_000_000_000_000_000)
	if err := adapter.Register(poolA, source); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := adapter.Liquidity(poolA); got.Uint64() != 1_000_000 {
		t.Fatalf("unexpected liquidity %s", got)
	}
	if got := adapter.Price(poolA); got.Uint64() != 1_000_000 {
		t.Fatalf("expected peg price, got %s", got)
	}
	if got := adapter.TWAPrice(); got.Uint64() != 1_000_000 {
		t.Fatalf("expected peg twa price, got %s", got)
	}
	if got := adapter.CurrentDeltaB(poolA); got.Sign() != 0 {
		t.Fatalf("expected zero deltaB at peg, got %s", got)
	}
}

type poolList []common.Address

func (p poolList) PoolTokens() ([]common.Address, error) { return p, nil }

func TestAdapterTotalsCountWhitelistedPoolsOnly(t *testing.T) {
	adapter := NewAdapter(nil)
	if err := adapter.Register(poolA, uniform(reserves(1_000, 1_210))); err != nil {
		t.Fatalf("register A: %v", err)
	}
	if err := adapter.Register(poolB, uniform(reserves(100, 400))); err != nil {
		t.Fatalf("register B: %v", err)
	}
	if got := adapter.TotalCurrentDeltaB(); got.Int64() != 200 {
		t.Fatalf("without a whitelist every pool counts, got %s", got)
	}

	adapter.SetWhitelist(poolList{poolA})
	if got := adapter.TotalCurrentDeltaB(); got.Int64() != 100 {
		t.Fatalf("expected only pool A in the total, got %s", got)
	}
	if got := adapter.TotalTWADeltaB(); got.Int64() != 100 {
		t.Fatalf("unexpected twa total %s", got)
	}
	if got := adapter.OverallCappedDeltaB(); got.Int64() != 100 {
		t.Fatalf("unexpected capped total %s", got)
	}
	if got := adapter.CurrentDeltaB(poolB); got.Int64() != 100 {
		t.Fatalf("per-pool readings still serve unlisted pools, got %s", got)
	}

	adapter.Unregister(poolA)
	if got := adapter.TotalCurrentDeltaB(); got.Sign() != 0 {
		t.Fatalf("unregistered pool must not count, got %s", got)
	}
	if len(adapter.Pools()) != 1 || adapter.Pools()[0] != poolB {
		t.Fatalf("unexpected pools %v", adapter.Pools())
	}
}
