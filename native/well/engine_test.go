package well

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/season"
)

type mockState struct {
	pools map[common.Address]*Pool
	order []common.Address
}

func newMockState() *mockState { return &mockState{pools: make(map[common.Address]*Pool)} }

func (m *mockState) PoolAddresses() ([]common.Address, error) {
	return append([]common.Address(nil), m.order...), nil
}

func (m *mockState) GetPool(addr common.Address) (*Pool, error) {
	if p, ok := m.pools[addr]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

func (m *mockState) PutPool(p *Pool) error {
	if _, ok := m.pools[p.Address]; !ok {
		m.order = append(m.order, p.Address)
	}
	m.pools[p.Address] = p.Clone()
	return nil
}

type balanceKey struct {
	token, account common.Address
	mode           bank.Mode
}

type ledgerState struct {
	balances map[balanceKey]*uint256.Int
	supply   map[common.Address]*uint256.Int
}

func (l *ledgerState) GetBalance(token, account common.Address, mode bank.Mode) (*uint256.Int, error) {
	return nativecommon.OrZero(l.balances[balanceKey{token, account, mode}]), nil
}

func (l *ledgerState) PutBalance(token, account common.Address, mode bank.Mode, amount *uint256.Int) error {
	l.balances[balanceKey{token, account, mode}] = amount.Clone()
	return nil
}

func (l *ledgerState) GetSupply(token common.Address) (*uint256.Int, error) {
	return nativecommon.OrZero(l.supply[token]), nil
}

func (l *ledgerState) PutSupply(token common.Address, amount *uint256.Int) error {
	l.supply[token] = amount.Clone()
	return nil
}

var (
	beanToken = common.HexToAddress("0xBEA0")
	weth      = common.HexToAddress("0xE7E7")
	poolAddr  = common.HexToAddress("0x9001")
	alice     = common.HexToAddress("0xA11CE")
)

func newTestEngine(t *testing.T) (*Engine, *bank.Ledger) {
	t.Helper()
	ledger := bank.NewLedger()
	ledger.SetState(&ledgerState{balances: make(map[balanceKey]*uint256.Int), supply: make(map[common.Address]*uint256.Int)})
	engine := NewEngine(beanToken)
	engine.SetState(newMockState())
	engine.SetBank(ledger)
	engine.SetBlock(season.Block{Height: 1, Timestamp: 1_000})
	if err := engine.CreatePool(poolAddr, weth, nativecommon.Ratio); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	_ = ledger.Mint(beanToken, alice, uint256.NewInt(10_000), bank.External)
	_ = ledger.Mint(weth, alice, uint256.NewInt(10_000), bank.External)
	return engine, ledger
}

func TestAddLiquidityAndSwap(t *testing.T) {
	engine, ledger := newTestEngine(t)

	if _, err := engine.AddLiquidity(alice, poolAddr, uint256.NewInt(1_000), nil, nil, bank.External); !errors.Is(err, ErrInitialDeposit) {
		t.Fatalf("expected ErrInitialDeposit, got %v", err)
	}
	lp, err := engine.AddLiquidity(alice, poolAddr, uint256.NewInt(1_000), uint256.NewInt(1_000), nil, bank.External)
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if lp.Uint64() != 2_000 {
		t.Fatalf("expected 2000 lp, got %s", lp)
	}
	held, _ := ledger.BalanceOf(poolAddr, alice)
	if held.Uint64() != 2_000 {
		t.Fatalf("lp not minted to account: %s", held)
	}

	out, err := engine.Swap(alice, poolAddr, beanToken, uint256.NewInt(100), nil, bank.External)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Uint64() != 90 {
		t.Fatalf("expected 90 out, got %s", out)
	}
	if _, err := engine.Swap(alice, poolAddr, beanToken, uint256.NewInt(100), uint256.NewInt(1_000), bank.External); !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	p, _ := engine.Pool(poolAddr)
	if p.BeanReserve.Uint64() != 1_100 || p.NonBeanReserve.Uint64() != 910 {
		t.Fatalf("unexpected reserves %s/%s", p.BeanReserve, p.NonBeanReserve)
	}
}

func TestRemoveLiquidityOneTokenPaysFromCurve(t *testing.T) {
	engine, ledger := newTestEngine(t)
	if _, err := engine.AddLiquidity(alice, poolAddr, uint256.NewInt(1_000), uint256.NewInt(1_000), nil, bank.External); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	quote, err := engine.QuoteRemoveLiquidityOneToken(poolAddr, uint256.NewInt(200), beanToken)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	before, _ := ledger.BalanceOf(beanToken, alice)
	out, err := engine.RemoveLiquidityOneToken(alice, poolAddr, uint256.NewInt(200), beanToken, nil, bank.External)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !out.Eq(quote) {
		t.Fatalf("remove paid %s, quoted %s", out, quote)
	}
	after, _ := ledger.BalanceOf(beanToken, alice)
	if new(uint256.Int).Sub(after, before).Cmp(out) != 0 {
		t.Fatalf("beans not paid to account")
	}
	p, _ := engine.Pool(poolAddr)
	if p.LPSupply.Uint64() != 1_800 {
		t.Fatalf("unexpected lp supply %s", p.LPSupply)
	}
	if out.Uint64() != 190 || p.BeanReserve.Uint64() != 810 {
		t.Fatalf("unexpected payout %s leaving %s beans", out, p.BeanReserve)
	}
	if got := lpSupplyFor(p.BeanReserve, p.NonBeanReserve); got.Uint64() != 1_800 {
		t.Fatalf("reserves drifted off the curve: %s", got)
	}
	if _, err := engine.RemoveLiquidityOneToken(alice, poolAddr, uint256.NewInt(1), common.HexToAddress("0xDEAD"), nil, bank.External); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCappedAndTimeWeightedReserves(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, _ = engine.AddLiquidity(alice, poolAddr, uint256.NewInt(1_000), uint256.NewInt(1_000), nil, bank.External)

	engine.SetBlock(season.Block{Height: 2, Timestamp: 1_100})
	if _, err := engine.Swap(alice, poolAddr, beanToken, uint256.NewInt(100), nil, bank.External); err != nil {
		t.Fatalf("swap: %v", err)
	}
	capped, _ := engine.CappedReserves(poolAddr)
	if capped.Bean().Uint64() != 1_000 || capped.NonBean().Uint64() != 1_000 {
		t.Fatalf("capped reserves should ignore this block's swap, got %s/%s", capped.Bean(), capped.NonBean())
	}
	engine.SetBlock(season.Block{Height: 3, Timestamp: 1_200})
	capped, _ = engine.CappedReserves(poolAddr)
	if capped.Bean().Uint64() != 1_100 {
		t.Fatalf("capped reserves should catch up next block, got %s", capped.Bean())
	}

	if err := engine.SnapshotTWA(poolAddr); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	twa, _ := engine.TWAReserves(poolAddr)
	if twa.Bean().Uint64() != 1_050 || twa.NonBean().Uint64() != 955 {
		t.Fatalf("unexpected twa reserves %s/%s", twa.Bean(), twa.NonBean())
	}
}

func TestInjectedFailure(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.SetFailure(poolAddr, errors.New("halted"))
	if _, err := engine.Reserves(poolAddr); !errors.Is(err, ErrInjectedFailure) {
		t.Fatalf("expected ErrInjectedFailure, got %v", err)
	}
	engine.SetFailure(poolAddr, nil)
	if _, err := engine.Reserves(poolAddr); err != nil {
		t.Fatalf("failure should clear: %v", err)
	}
}

func TestBDVUsesPegReserves(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, _ = engine.AddLiquidity(alice, poolAddr, uint256.NewInt(1_000), uint256.NewInt(1_000), nil, bank.External)
	engine.SetBlock(season.Block{Height: 2, Timestamp: 1_100})
	bdv, err := engine.BDV(poolAddr, uint256.NewInt(1_000))
	if err != nil {
		t.Fatalf("bdv: %v", err)
	}
	if bdv.Uint64() != 500 {
		t.Fatalf("expected half the bean reserve, got %s", bdv)
	}
	zero, err := engine.BDV(poolAddr, nil)
	if err != nil || !zero.IsZero() {
		t.Fatalf("zero lp should have zero bdv: %s %v", zero, err)
	}
}
