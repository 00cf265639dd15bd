package sun

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/events"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/field"
	"beanstalk/native/oracle"
	"beanstalk/native/season"
	"beanstalk/native/silo"
)

type mockState struct {
	season  *season.Season
	weather *season.Weather
	rain    *season.Rain
	gauges  *season.Gauges
}

func (m *mockState) GetSeason() (*season.Season, error) {
	cp := *m.season
	return &cp, nil
}

func (m *mockState) PutSeason(s *season.Season) error {
	cp := *s
	m.season = &cp
	return nil
}

func (m *mockState) GetWeather() (*season.Weather, error) {
	if m.weather == nil {
		return nil, nil
	}
	cp := *m.weather
	return &cp, nil
}

func (m *mockState) PutWeather(w *season.Weather) error {
	cp := *w
	m.weather = &cp
	return nil
}

func (m *mockState) GetRain() (*season.Rain, error) {
	if m.rain == nil {
		return nil, nil
	}
	cp := *m.rain
	return &cp, nil
}

func (m *mockState) PutRain(r *season.Rain) error {
	cp := *r
	m.rain = &cp
	return nil
}

func (m *mockState) GetGauges() (*season.Gauges, error) {
	if m.gauges == nil {
		return nil, nil
	}
	cp := *m.gauges
	return &cp, nil
}

func (m *mockState) PutGauges(g *season.Gauges) error {
	cp := *g
	m.gauges = &cp
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

type fakeOracle struct {
	twa, inst *big.Int
	price     *uint256.Int
}

func (f *fakeOracle) Pools() []common.Address               { return nil }
func (f *fakeOracle) TotalTWADeltaB() *big.Int              { return new(big.Int).Set(f.twa) }
func (f *fakeOracle) TotalCurrentDeltaB() *big.Int          { return new(big.Int).Set(f.inst) }
func (f *fakeOracle) Liquidity(common.Address) *uint256.Int { return new(uint256.Int) }
func (f *fakeOracle) TWAPrice() *uint256.Int                { return nativecommon.OrZero(f.price) }

type fakeField struct {
	fields map[uint64]*field.Field
}

func newFakeField(pods, harvestable uint64) *fakeField {
	return &fakeField{fields: map[uint64]*field.Field{0: {
		Pods:        uint256.NewInt(pods),
		Harvested:   new(uint256.Int),
		Harvestable: uint256.NewInt(harvestable),
	}}}
}

func (f *fakeField) Reserve() common.Address      { return reserveAddr }
func (f *fakeField) ActiveField() (uint64, error) { return 0, nil }

func (f *fakeField) Field(id uint64) (*field.Field, error) {
	if fl, ok := f.fields[id]; ok {
		return fl.Clone(), nil
	}
	return nil, field.ErrUnknownField
}

func (f *fakeField) TotalUnharvestable(id uint64) (*uint256.Int, error) {
	return f.fields[id].Unharvestable(), nil
}

func (f *fakeField) IncreaseHarvestable(id uint64, amount *uint256.Int) (*uint256.Int, error) {
	fl := f.fields[id]
	applied := nativecommon.Min(amount, fl.Unharvestable())
	fl.Harvestable = new(uint256.Int).Add(fl.Harvestable, applied)
	return applied, nil
}

type fakeSilo struct {
	received *uint256.Int
}

func (s *fakeSilo) Address() common.Address               { return siloAddr }
func (s *fakeSilo) PoolTokens() ([]common.Address, error) { return nil, nil }

func (s *fakeSilo) WhitelistEntry(token common.Address) (*silo.WhitelistEntry, error) {
	return nil, silo.ErrNotWhitelisted
}

func (s *fakeSilo) ReceiveShipment(beans *uint256.Int) error {
	s.received = new(uint256.Int).Add(nativecommon.OrZero(s.received), beans)
	return nil
}

var (
	beanToken   = common.HexToAddress("0xBEA0")
	reserveAddr = common.HexToAddress("0xF1E1D")
	siloAddr    = common.HexToAddress("0x5110")
	alice       = common.HexToAddress("0xA11CE")
	poolA       = common.HexToAddress("0xAAAA")
	poolB       = common.HexToAddress("0xBBBB")
)

type fixture struct {
	engine *Engine
	state  *mockState
	ledger *bank.Ledger
	field  *fakeField
	silo   *fakeSilo
	events *events.Recorder
}

func newFixture(t *testing.T, supply uint64, o Oracle) *fixture {
	t.Helper()
	f := &fixture{
		state: &mockState{
			season:  &season.Season{Period: 3_600},
			weather: &season.Weather{Temp: 1_000_000, ThisSowTime: season.NotSoldOut, LastSowTime: season.NotSoldOut},
		},
		ledger: bank.NewLedger(),
		field:  newFakeField(300, 0),
		silo:   &fakeSilo{},
		events: &events.Recorder{},
	}
	f.ledger.SetState(&ledgerState{balances: make(map[balanceKey]*uint256.Int), supply: make(map[common.Address]*uint256.Int)})
	if supply > 0 {
		_ = f.ledger.Mint(beanToken, alice, uint256.NewInt(supply), bank.External)
	}
	f.engine = NewEngine(beanToken, DefaultParams(), nil)
	f.engine.SetState(f.state)
	f.engine.SetOracle(o)
	f.engine.SetField(f.field)
	f.engine.SetSilo(f.silo)
	f.engine.SetBank(f.ledger)
	f.engine.SetEmitter(f.events)
	f.engine.SetBlock(season.Block{Height: 10, Timestamp: 3_600})
	if err := f.engine.Plans().Register("field", FieldPlan{Field: f.field}); err != nil {
		t.Fatalf("register field plan: %v", err)
	}
	if err := f.engine.Plans().Register("silo", SiloPlan{Silo: f.silo}); err != nil {
		t.Fatalf("register silo plan: %v", err)
	}
	if err := f.engine.SetRoutes([]Route{{Plan: "field", Points: 50}, {Plan: "silo", Points: 50}}); err != nil {
		t.Fatalf("set routes: %v", err)
	}
	return f
}

func TestCaseIDComponents(t *testing.T) {
	p := DefaultParams()
	if got := podRateCase(pct(400), p); got != PodRateExcessivelyLow {
		t.Fatalf("4%% pod rate: got %d", got)
	}
	if got := podRateCase(pct(1_500), p); got != PodRateReasonablyHigh {
		t.Fatalf("15%% pod rate: got %d", got)
	}
	if got := podRateCase(pct(3_000), p); got != PodRateExcessivelyHigh {
		t.Fatalf("30%% pod rate: got %d", got)
	}
	if got := l2srCase(pct(2_000), p); got != L2SRReasonablyLow {
		t.Fatalf("20%% l2sr: got %d", got)
	}
	if got := priceCase(big.NewInt(-1), uint256.NewInt(2_000_000), p); got != PriceBelowPeg {
		t.Fatalf("negative deltaB must be below peg, got %d", got)
	}
	if got := priceCase(big.NewInt(1), uint256.NewInt(1_100_000), p); got != PriceExcessivelyHigh {
		t.Fatalf("price 1.10: got %d", got)
	}
	if TemperatureDelta(0) != 3 || TemperatureDelta(36+5) != -3 || TemperatureDelta(108+18) != 3 {
		t.Fatalf("unexpected temperature table entries")
	}
	if !Raining(3) || !Raining(36+8) || Raining(9) || Raining(2) {
		t.Fatalf("rain cases are mod 36 in [3,8]")
	}
	if got := nextTemperature(15_000, 5, p); got != p.MinTemperature {
		t.Fatalf("temperature should floor at the minimum, got %d", got)
	}
}

func TestPodDemand(t *testing.T) {
	p := DefaultParams()
	cases := []struct {
		name       string
		this, last uint32
		sown, prev uint64
		want       uint8
	}{
		{"sold out fast", 300, 2_000, 0, 0, DemandIncreasing},
		{"sold out after missing last season", 5_000, season.NotSoldOut, 0, 0, DemandIncreasing},
		{"sold out in the same time", 1_030, 1_000, 0, 0, DemandSteady},
		{"sold out slower", 2_000, 1_000, 0, 0, DemandDecreasing},
		{"nothing sown", season.NotSoldOut, 1_000, 0, 50, DemandDecreasing},
		{"first sow", season.NotSoldOut, season.NotSoldOut, 10, 0, DemandIncreasing},
		{"same amount sown", season.NotSoldOut, season.NotSoldOut, 100, 100, DemandSteady},
		{"more sown", season.NotSoldOut, season.NotSoldOut, 120, 100, DemandIncreasing},
	}
	for _, tc := range cases {
		w := &season.Weather{ThisSowTime: tc.this, LastSowTime: tc.last, LastDeltaSoil: uint256.NewInt(tc.prev)}
		if got := podDemand(w, uint256.NewInt(tc.sown), p); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestSoilIssuance(t *testing.T) {
	p := DefaultParams()
	if got := podRateScalar(pct(1_500), p); !got.Eq(nativecommon.Ratio) {
		t.Fatalf("scalar at 15%% should be 1.0, got %s", got)
	}
	if got := podRateScalar(pct(100), p); !got.Eq(p.SoilCoefficientLow) {
		t.Fatalf("scalar below the lower bound should be the low coefficient, got %s", got)
	}

	p.MinSoilIssuance = uint256.NewInt(1)
	l2sr := pct(2_000)
	got := soilBelowPeg(big.NewInt(-1_000_000_000), big.NewInt(-500_000_000), l2sr, season.OneHundredTemperature, 3_600, nativecommon.Ratio, p)
	// 500e6 * 0.8 * 3600/86400
	if got.Uint64() != 16_666_666 {
		t.Fatalf("unexpected below-peg soil %s", got)
	}
	got = soilBelowPeg(big.NewInt(-1_000_000_000), big.NewInt(5), l2sr, season.OneHundredTemperature, 3_600, p.SoilCoefficientLow, p)
	// 1% of the twa excess scaled by 1.5
	if got.Uint64() != 15_000_000 {
		t.Fatalf("unexpected recovered below-peg soil %s", got)
	}
	p.MinSoilIssuance = uint256.NewInt(50_000_000)
	got = soilBelowPeg(big.NewInt(-10), big.NewInt(-10), l2sr, season.OneHundredTemperature, 3_600, nativecommon.Ratio, p)
	if !got.Eq(p.MinSoilIssuance) {
		t.Fatalf("soil should floor at the minimum issuance, got %s", got)
	}
	if got := soilAbovePeg(uint256.NewInt(2_000), 1_000_000, nativecommon.Ratio); got.Uint64() != 1_000 {
		t.Fatalf("2000 pods at 100%% need 1000 soil, got %s", got)
	}
}

func TestSunriseReward(t *testing.T) {
	p := DefaultParams()
	if got := sunriseReward(0, p); !got.Eq(p.BaseReward) {
		t.Fatalf("on-time reward should be the base, got %s", got)
	}
	if got := sunriseReward(24, p); got.Uint64() != 5_100_500 {
		t.Fatalf("two blocks late: got %s", got)
	}
	if sunriseReward(10_000, p).Cmp(sunriseReward(25*12, p)) != 0 {
		t.Fatalf("reward must stop compounding after the late-block cap")
	}
}

func TestAllocateOverflowAndDust(t *testing.T) {
	out := allocate(uint256.NewInt(10), []uint64{1, 1, 1}, []*uint256.Int{nil, uint256.NewInt(2), nil})
	if out[0].Uint64() != 4 || out[1].Uint64() != 2 || out[2].Uint64() != 4 {
		t.Fatalf("capped route should overflow to the rest, got %v", out)
	}
	out = allocate(uint256.NewInt(10), []uint64{1, 1, 1}, []*uint256.Int{nil, nil, nil})
	if out[0].Uint64() != 3 || out[1].Uint64() != 3 || out[2].Uint64() != 4 {
		t.Fatalf("dust should go to the last uncapped route, got %v", out)
	}
	out = allocate(uint256.NewInt(10), []uint64{1}, []*uint256.Int{uint256.NewInt(5)})
	if out[0].Uint64() != 5 {
		t.Fatalf("a fully capped route set takes only its cap, got %v", out)
	}
}

type brokenPlan struct{ BudgetPlan }

func (brokenPlan) Ship(Route, *uint256.Int) error { return errors.New("boom") }

func TestPlanRegistryAndRoutes(t *testing.T) {
	f := newFixture(t, 1_000, &fakeOracle{twa: new(big.Int), inst: new(big.Int)})
	if err := f.engine.Plans().Register("broken", brokenPlan{}); !errors.Is(err, ErrPlanDryRun) {
		t.Fatalf("expected ErrPlanDryRun, got %v", err)
	}
	if err := f.engine.Plans().Register("silo", SiloPlan{Silo: f.silo}); !errors.Is(err, ErrPlanExists) {
		t.Fatalf("expected ErrPlanExists, got %v", err)
	}
	if err := f.engine.SetRoutes([]Route{{Plan: "missing", Points: 1}}); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
	_ = f.engine.Plans().Register("budget", BudgetPlan{})
	if err := f.engine.SetRoutes([]Route{{Plan: "budget", Points: 1}}); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute for a budget route without recipient, got %v", err)
	}
	if err := f.engine.SetRoutes(nil); !errors.Is(err, ErrNoRoutes) {
		t.Fatalf("expected ErrNoRoutes, got %v", err)
	}
}

func TestSunriseRejectsBeforeSeasonEnds(t *testing.T) {
	f := newFixture(t, 1_000, &fakeOracle{twa: new(big.Int), inst: new(big.Int)})
	f.engine.SetBlock(season.Block{Height: 9, Timestamp: 3_599})
	if _, err := f.engine.Sunrise(context.Background(), alice, bank.External); !errors.Is(err, ErrStillCurrentSeason) {
		t.Fatalf("expected ErrStillCurrentSeason, got %v", err)
	}
	if f.state.season.Current != 0 {
		t.Fatalf("season advanced on a rejected sunrise")
	}
}

func TestZeroSupplyFallsBackToCaseNine(t *testing.T) {
	f := newFixture(t, 0, &fakeOracle{twa: new(big.Int), inst: new(big.Int)})
	f.state.weather.Temp = 42

	res, err := f.engine.Sunrise(context.Background(), alice, bank.External)
	if err != nil {
		t.Fatalf("sunrise: %v", err)
	}
	if res.CaseID != ZeroSupplyCase || res.Temperature != season.OneHundredTemperature {
		t.Fatalf("expected case 9 at 100%%, got case %d temp %d", res.CaseID, res.Temperature)
	}
	if f.state.weather.Temp != season.OneHundredTemperature {
		t.Fatalf("temperature not persisted")
	}
}

func TestAbovePegShipsAndIssuesSoil(t *testing.T) {
	f := newFixture(t, 100_000, &fakeOracle{
		twa:   big.NewInt(1_000),
		inst:  big.NewInt(1_000),
		price: uint256.NewInt(1_010_000),
	})

	res, err := f.engine.Sunrise(context.Background(), alice, bank.External)
	if err != nil {
		t.Fatalf("sunrise: %v", err)
	}
	// excessively low pod rate, P > 1, decreasing demand, low liquidity
	if res.CaseID != 3 || res.Temperature != 990_000 {
		t.Fatalf("unexpected case %d temperature %d", res.CaseID, res.Temperature)
	}
	if res.Minted.Uint64() != 1_000 {
		t.Fatalf("expected 1000 minted, got %s", res.Minted)
	}
	fl, _ := f.field.Field(0)
	if fl.Harvestable.Uint64() != 300 {
		t.Fatalf("field route should be capped at the unharvestable pods, got %s", fl.Harvestable)
	}
	if f.silo.received.Uint64() != 700 {
		t.Fatalf("silo should receive the overflow, got %s", f.silo.received)
	}
	// 300 * 1e6 / 1.99e6 = 150, scaled by the 1.5 low pod-rate coefficient
	if res.Soil.Uint64() != 225 {
		t.Fatalf("unexpected soil %s", res.Soil)
	}
	s := f.state.season
	if s.Current != 1 || !s.AbovePeg || !s.Soil.Eq(s.InitialSoil) || s.StandardMintedBeans.Uint64() != 1_000 {
		t.Fatalf("season not stepped: %+v", s)
	}
	reward, _ := f.ledger.BalanceOf(beanToken, alice)
	if reward.Uint64() != 100_000+5_000_000 {
		t.Fatalf("caller not rewarded, balance %s", reward)
	}
	if len(f.events.OfType(EventTypeSoil)) != 1 || len(f.events.OfType(EventTypeShipment)) != 2 {
		t.Fatalf("missing soil or shipment events")
	}
	if !f.state.rain.Raining || f.state.rain.RainStart != 1 {
		t.Fatalf("case 3 should start rain")
	}
}

func TestFloodAfterRainPodsHarvestable(t *testing.T) {
	f := newFixture(t, 1_000_000, &fakeOracle{
		twa:   big.NewInt(1_000),
		inst:  big.NewInt(1_000),
		price: uint256.NewInt(1_010_000),
	})
	f.field = newFakeField(1_000, 1_000)
	f.engine.SetField(f.field)
	_ = f.engine.SetRoutes([]Route{{Plan: "silo", Points: 1}})

	if _, err := f.engine.Sunrise(context.Background(), alice, bank.External); err != nil {
		t.Fatalf("first sunrise: %v", err)
	}
	if !f.state.rain.Raining || f.state.rain.Pods.Uint64() != 1_000 {
		t.Fatalf("rain should start with the pod line at 1000")
	}

	// 500 pods sown after rain started.
	f.field.fields[0].Pods = uint256.NewInt(1_500)
	f.engine.SetBlock(season.Block{Height: 20, Timestamp: 7_200})
	res, err := f.engine.Sunrise(context.Background(), alice, bank.External)
	if err != nil {
		t.Fatalf("second sunrise: %v", err)
	}
	if res.Flooded.Uint64() != 500 {
		t.Fatalf("expected the 500 new pods flooded, got %s", res.Flooded)
	}
	fl, _ := f.field.Field(0)
	if fl.Harvestable.Uint64() != 1_500 {
		t.Fatalf("flood should make pods harvestable, got %s", fl.Harvestable)
	}
	reserve, _ := f.ledger.BalanceOf(beanToken, reserveAddr)
	if reserve.Uint64() != 500 {
		t.Fatalf("flood beans should fund the field reserve, got %s", reserve)
	}
	if !f.state.rain.FloodHarvestablePods.IsZero() {
		t.Fatalf("flood pods should be consumed by soil issuance")
	}
	if len(f.events.OfType(EventTypeFlood)) != 1 {
		t.Fatalf("missing flood event")
	}
}

type failingSnapshots struct{ bad common.Address }

func (s failingSnapshots) SnapshotTWA(pool common.Address) error {
	if pool == s.bad {
		return errors.New("pool halted")
	}
	return nil
}

type staticSource struct {
	r   oracle.Reserves
	err error
}

func (s *staticSource) Reserves(common.Address) (oracle.Reserves, error)       { return s.r, s.err }
func (s *staticSource) TWAReserves(common.Address) (oracle.Reserves, error)    { return s.r, s.err }
func (s *staticSource) CappedReserves(common.Address) (oracle.Reserves, error) { return s.r, s.err }
func (s *staticSource) Ratio(common.Address) (*uint256.Int, error) {
	return nativecommon.Ratio.Clone(), s.err
}

func TestOracleFailureContributesZero(t *testing.T) {
	adapter := oracle.NewAdapter(uint256.NewInt(10))
	_ = adapter.Register(poolA, &staticSource{r: oracle.Reserves{uint256.NewInt(1_000), uint256.NewInt(1_210)}})
	_ = adapter.Register(poolB, &staticSource{err: errors.New("feed offline")})

	f := newFixture(t, 100_000, adapter)
	f.engine.SetSnapshotter(failingSnapshots{bad: poolB})
	_ = f.engine.SetRoutes([]Route{{Plan: "silo", Points: 1}})

	res, err := f.engine.Sunrise(context.Background(), alice, bank.External)
	if err != nil {
		t.Fatalf("sunrise must complete despite the failing pool: %v", err)
	}
	if res.TWADeltaB.Int64() != 100 {
		t.Fatalf("failing pool should contribute zero, got %s", res.TWADeltaB)
	}
	if res.Minted.Uint64() != 100 || f.silo.received.Uint64() != 100 {
		t.Fatalf("expected the healthy pool's excess minted, got %s", res.Minted)
	}
}
