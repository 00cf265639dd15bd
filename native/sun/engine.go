package sun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"beanstalk/core/events"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/field"
	"beanstalk/native/season"
	"beanstalk/native/silo"
	"beanstalk/observability/metrics"
)

var (
	errNilState  = errors.New("sun engine: state not configured")
	errNilOracle = errors.New("sun engine: oracle not configured")
	errNilField  = errors.New("sun engine: field not configured")
	errNilBank   = errors.New("sun engine: bank not configured")

	ErrStillCurrentSeason = errors.New("sun engine: season has not ended")
	ErrNoRoutes           = errors.New("sun engine: no shipment routes")
)

const moduleName = "sun"

type engineState interface {
	GetSeason() (*season.Season, error)
	PutSeason(s *season.Season) error
	GetWeather() (*season.Weather, error)
	PutWeather(w *season.Weather) error
	GetRain() (*season.Rain, error)
	PutRain(r *season.Rain) error
	GetGauges() (*season.Gauges, error)
	PutGauges(g *season.Gauges) error
}

// Oracle supplies the deltaB, liquidity and price readings of a season.
type Oracle interface {
	Pools() []common.Address
	TotalTWADeltaB() *big.Int
	TotalCurrentDeltaB() *big.Int
	Liquidity(pool common.Address) *uint256.Int
	TWAPrice() *uint256.Int
}

// Snapshotter closes a pool's time-weighted window at sunrise.
type Snapshotter interface {
	SnapshotTWA(pool common.Address) error
}

// Field is the pod line view the season step reads and floods.
type Field interface {
	Reserve
	ActiveField() (uint64, error)
	Field(id uint64) (*field.Field, error)
}

// Silo supplies the liquidity weights of whitelisted pools.
type Silo interface {
	PoolTokens() ([]common.Address, error)
	WhitelistEntry(token common.Address) (*silo.WhitelistEntry, error)
}

// Bank mints beans and reports their supply.
type Bank interface {
	Mint(token, to common.Address, amount *uint256.Int, mode bank.Mode) error
	TotalSupply(token common.Address) (*uint256.Int, error)
}

// Result summarises one sunrise.
type Result struct {
	Season      uint32
	CaseID      uint8
	TWADeltaB   *big.Int
	DeltaB      *big.Int
	Temperature uint64
	Soil        *uint256.Int
	Minted      *uint256.Int
	Flooded     *uint256.Int
	Reward      *uint256.Int
}

// Engine steps seasons: it reads the oracle, classifies the protocol state,
// adjusts the weather, mints and ships beans above peg and issues soil.
type Engine struct {
	state     engineState
	oracle    Oracle
	pools     Snapshotter
	field     Field
	silo      Silo
	bank      Bank
	plans     *PlanRegistry
	routes    []Route
	params    Params
	bean      common.Address
	block     season.Block
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	logger    *slog.Logger
	tracer    trace.Tracer
	telemetry *metrics.ProtocolMetrics
}

func NewEngine(bean common.Address, params Params, plans *PlanRegistry) *Engine {
	if plans == nil {
		plans = NewPlanRegistry()
	}
	return &Engine{
		bean:      bean,
		params:    params,
		plans:     plans,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default().With("component", "sun"),
		tracer:    otel.Tracer("beanstalk/sun"),
		telemetry: metrics.Protocol(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetOracle(o Oracle)           { e.oracle = o }
func (e *Engine) SetSnapshotter(s Snapshotter) { e.pools = s }
func (e *Engine) SetField(f Field)             { e.field = f }
func (e *Engine) SetSilo(s Silo)               { e.silo = s }
func (e *Engine) SetBank(b Bank)               { e.bank = b }
func (e *Engine) SetBlock(b season.Block)      { e.block = b }
func (e *Engine) Plans() *PlanRegistry         { return e.plans }
func (e *Engine) Params() Params               { return e.params }

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("component", "sun")
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetRoutes replaces the shipment routes. Every route must name a
// registered plan, carry points and resolve to a recipient.
func (e *Engine) SetRoutes(routes []Route) error {
	if err := e.ValidateRoutes(routes); err != nil {
		return err
	}
	e.routes = append([]Route(nil), routes...)
	return nil
}

// ValidateRoutes checks routes against the plan registry without applying
// them.
func (e *Engine) ValidateRoutes(routes []Route) error {
	if len(routes) == 0 {
		return ErrNoRoutes
	}
	for i, route := range routes {
		plan, err := e.plans.Lookup(route.Plan)
		if err != nil {
			return err
		}
		if route.Points == 0 {
			return fmt.Errorf("%w: route %d has no points", ErrInvalidRoute, i)
		}
		if to, _ := plan.Recipient(route); to == (common.Address{}) {
			return fmt.Errorf("%w: route %d has no recipient", ErrInvalidRoute, i)
		}
	}
	return nil
}

// Routes returns the configured shipment routes.
func (e *Engine) Routes() []Route { return append([]Route(nil), e.routes...) }

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.oracle == nil:
		return errNilOracle
	case e.field == nil:
		return errNilField
	case e.bank == nil:
		return errNilBank
	}
	return nil
}

func (e *Engine) loadSeason() (*season.Season, error) {
	s, err := e.state.GetSeason()
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &season.Season{}
	}
	return s.Normalize(), nil
}

func (e *Engine) loadWeather() (*season.Weather, error) {
	w, err := e.state.GetWeather()
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = &season.Weather{ThisSowTime: season.NotSoldOut, LastSowTime: season.NotSoldOut}
	}
	return w.Normalize(), nil
}

func (e *Engine) loadRain() (*season.Rain, error) {
	r, err := e.state.GetRain()
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = &season.Rain{}
	}
	return r.Normalize(), nil
}

func (e *Engine) loadGauges() (*season.Gauges, error) {
	g, err := e.state.GetGauges()
	if err != nil {
		return nil, err
	}
	if g == nil {
		g = &season.Gauges{CultivationFactor: e.params.CultivationFactorMax}
	}
	return g.Normalize(), nil
}

// SetSoil sets the soil available this season and the initial soil it is
// measured against.
func (e *Engine) SetSoil(amount *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	s, err := e.loadSeason()
	if err != nil {
		return err
	}
	return e.setSoil(s, amount)
}

func (e *Engine) setSoil(s *season.Season, amount *uint256.Int) error {
	amount = nativecommon.OrZero(amount)
	s.Soil = amount.Clone()
	s.InitialSoil = amount.Clone()
	if err := e.state.PutSeason(s); err != nil {
		return err
	}
	e.emitter.Emit(events.Wrap(NewSoilEvent(s.Current, amount)))
	e.telemetry.SetSoil(amount)
	return nil
}

// Sunrise advances the season once the clock has passed its end, then
// rewards the caller for the work.
func (e *Engine) Sunrise(ctx context.Context, caller common.Address, mode bank.Mode) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := e.tracer.Start(ctx, "sun.sunrise", trace.WithAttributes(
		attribute.String("caller", caller.Hex()),
		attribute.Int64("block", int64(e.block.Height)),
	))
	defer span.End()

	started := time.Now()
	res, err := e.sunrise(caller, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.telemetry.ObserveSunriseDuration(time.Since(started).Seconds())
	span.SetAttributes(
		attribute.Int64("season", int64(res.Season)),
		attribute.Int("case_id", int(res.CaseID)),
		attribute.String("soil", res.Soil.Dec()),
	)
	e.logger.Info("sun: sunrise",
		"season", res.Season,
		"caseId", res.CaseID,
		"twaDeltaB", res.TWADeltaB.String(),
		"temperature", res.Temperature,
		"soil", res.Soil.Dec(),
		"minted", res.Minted.Dec(),
	)
	return res, nil
}

func (e *Engine) sunrise(caller common.Address, mode bank.Mode) (*Result, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	s, err := e.loadSeason()
	if err != nil {
		return nil, err
	}
	if s.SeasonTime(e.block.Timestamp) <= s.Current {
		return nil, ErrStillCurrentSeason
	}
	sown := s.BeanSown.Clone()
	s.Current++
	s.SunriseTime = e.block.Timestamp
	s.SunriseBlock = e.block.Height
	expected := s.Start + uint64(s.Current)*s.Period

	e.snapshotPools()
	twa := nativecommon.BigOrZero(e.oracle.TotalTWADeltaB())
	inst := nativecommon.BigOrZero(e.oracle.TotalCurrentDeltaB())

	w, err := e.loadWeather()
	if err != nil {
		return nil, err
	}
	eval, err := e.evaluate(twa, w, sown)
	if err != nil {
		return nil, err
	}

	prevTemp := w.Temp
	if eval.BeanSupply.IsZero() {
		w.Temp = season.OneHundredTemperature
	} else {
		w.Temp = nextTemperature(w.Temp, eval.CaseID, e.params)
	}
	g, err := e.loadGauges()
	if err != nil {
		return nil, err
	}
	g.CultivationFactor = nextCultivationFactor(g.CultivationFactor, w, e.params)
	e.stepConvertBonus(g, twa)
	if w.ThisSowTime != season.NotSoldOut {
		w.LastSoldOutTemp = w.ThisSoldOutTemp
	}
	w.ThisSoldOutTemp = 0
	w.LastDeltaSoil = sown
	w.LastSowTime = w.ThisSowTime
	w.ThisSowTime = season.NotSoldOut
	if err := e.state.PutWeather(w); err != nil {
		return nil, err
	}
	if err := e.state.PutGauges(g); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Wrap(NewTemperatureChangeEvent(s.Current, eval.CaseID, prevTemp, w.Temp)))

	flooded, err := e.handleRain(s, eval)
	if err != nil {
		return nil, err
	}

	minted := new(uint256.Int)
	var soil *uint256.Int
	if twa.Sign() > 0 {
		minted, soil, err = e.stepAbovePeg(twa, w.Temp, eval, flooded)
	} else {
		soil = soilBelowPeg(twa, inst, eval.L2SR, g.CultivationFactor, s.Period, podRateScalar(eval.PodRate, e.params), e.params)
	}
	if err != nil {
		return nil, err
	}
	if flooded != nil && !flooded.IsZero() {
		r, err := e.loadRain()
		if err != nil {
			return nil, err
		}
		r.FloodHarvestablePods = new(uint256.Int)
		if err := e.state.PutRain(r); err != nil {
			return nil, err
		}
	}

	s.AbovePeg = twa.Sign() > 0
	s.StandardMintedBeans = minted
	s.BeanSown = new(uint256.Int)
	if err := e.setSoil(s, soil); err != nil {
		return nil, err
	}

	var late uint64
	if e.block.Timestamp > expected {
		late = e.block.Timestamp - expected
	}
	reward := sunriseReward(late, e.params)
	if !reward.IsZero() {
		if err := e.bank.Mint(e.bean, caller, reward, mode); err != nil {
			return nil, err
		}
		e.emitter.Emit(events.Wrap(NewIncentiveEvent(caller, reward)))
	}
	e.emitter.Emit(events.Wrap(NewSunriseEvent(s.Current, eval.CaseID, twa)))

	e.telemetry.SetSeason(s.Current)
	e.telemetry.SetCaseID(eval.CaseID)
	e.telemetry.SetTemperature(w.Temp)
	return &Result{
		Season:      s.Current,
		CaseID:      eval.CaseID,
		TWADeltaB:   twa,
		DeltaB:      inst,
		Temperature: w.Temp,
		Soil:        nativecommon.OrZero(soil),
		Minted:      minted,
		Flooded:     nativecommon.OrZero(flooded),
		Reward:      reward,
	}, nil
}

// snapshotPools closes every pool's time-weighted window. A failing pool is
// logged and skipped; the oracle then reports zero for it.
func (e *Engine) snapshotPools() {
	if e.pools == nil {
		return
	}
	for _, pool := range e.oracle.Pools() {
		if err := e.pools.SnapshotTWA(pool); err != nil {
			e.logger.Warn("sun: twa snapshot failed", "pool", pool.Hex(), "error", err)
			e.telemetry.IncOracleFailure(pool.Hex())
		}
	}
}

// Evaluate classifies the current state without stepping the season.
func (e *Engine) Evaluate() (*Evaluation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	s, err := e.loadSeason()
	if err != nil {
		return nil, err
	}
	w, err := e.loadWeather()
	if err != nil {
		return nil, err
	}
	return e.evaluate(nativecommon.BigOrZero(e.oracle.TotalTWADeltaB()), w, s.BeanSown)
}

func (e *Engine) evaluate(twa *big.Int, w *season.Weather, sown *uint256.Int) (*Evaluation, error) {
	supply, err := e.bank.TotalSupply(e.bean)
	if err != nil {
		return nil, err
	}
	supply = nativecommon.OrZero(supply)
	eval := &Evaluation{
		BeanSupply: supply,
		PodRate:    new(uint256.Int),
		L2SR:       new(uint256.Int),
		Price:      nativecommon.OrZero(e.oracle.TWAPrice()),
		Demand:     podDemand(w, sown, e.params),
	}
	if supply.IsZero() {
		eval.CaseID = ZeroSupplyCase
		return eval, nil
	}

	active, err := e.field.ActiveField()
	if err != nil {
		return nil, err
	}
	unharvestable, err := e.field.TotalUnharvestable(active)
	if err != nil {
		return nil, err
	}
	if eval.PodRate, err = nativecommon.MulDiv(unharvestable, nativecommon.Ratio, supply); err != nil {
		return nil, err
	}
	liquidity, err := e.weightedLiquidity()
	if err != nil {
		return nil, err
	}
	if eval.L2SR, err = nativecommon.MulDiv(liquidity, nativecommon.Ratio, supply); err != nil {
		return nil, err
	}
	eval.CaseID = podRateCase(eval.PodRate, e.params) +
		priceCase(twa, eval.Price, e.params) +
		eval.Demand +
		l2srCase(eval.L2SR, e.params)
	return eval, nil
}

// weightedLiquidity sums the bean value of whitelisted pool liquidity,
// each scaled by its liquidity weight.
func (e *Engine) weightedLiquidity() (*uint256.Int, error) {
	total := new(uint256.Int)
	if e.silo == nil {
		return total, nil
	}
	pools, err := e.silo.PoolTokens()
	if err != nil {
		return nil, err
	}
	for _, pool := range pools {
		entry, err := e.silo.WhitelistEntry(pool)
		if err != nil {
			return nil, err
		}
		total.Add(total, scale(e.oracle.Liquidity(pool), entry.LiquidityWeight))
	}
	return total, nil
}

func (e *Engine) stepConvertBonus(g *season.Gauges, twa *big.Int) {
	if twa.Sign() < 0 {
		g.ConvertBonusStalkPerBdv = nativecommon.Min(
			new(uint256.Int).Add(g.ConvertBonusStalkPerBdv, e.params.ConvertBonusStep),
			e.params.ConvertBonusMax,
		)
	} else {
		g.ConvertBonusStalkPerBdv = nativecommon.SaturatingSub(g.ConvertBonusStalkPerBdv, e.params.ConvertBonusStep)
	}
	g.ConvertBonusCapacity = scale(nativecommon.Abs(twa), e.params.ConvertBonusCapacityFactor)
	g.ConvertBonusUsed = new(uint256.Int)
}

// handleRain starts and stops rain and floods the active field once every
// pod that existed when rain started is harvestable. It returns the pods
// made harvestable by the flood.
func (e *Engine) handleRain(s *season.Season, eval *Evaluation) (*uint256.Int, error) {
	r, err := e.loadRain()
	if err != nil {
		return nil, err
	}
	if !Raining(eval.CaseID) {
		if r.Raining {
			r.Raining = false
			if err := e.state.PutRain(r); err != nil {
				return nil, err
			}
			e.emitter.Emit(events.Wrap(NewRainEvent(s.Current, false)))
		}
		return nil, nil
	}
	active, err := e.field.ActiveField()
	if err != nil {
		return nil, err
	}
	f, err := e.field.Field(active)
	if err != nil {
		return nil, err
	}
	if !r.Raining {
		r.Raining = true
		r.RainStart = s.Current
		r.Pods = f.Pods.Clone()
		if err := e.state.PutRain(r); err != nil {
			return nil, err
		}
		e.emitter.Emit(events.Wrap(NewRainEvent(s.Current, true)))
		return nil, nil
	}
	if r.RainStart >= s.Current || f.Harvestable.Lt(r.Pods) {
		return nil, nil
	}
	beans := nativecommon.Min(f.Unharvestable(), scale(eval.BeanSupply, e.params.FloodPercent))
	if beans.IsZero() {
		return nil, nil
	}
	if err := e.bank.Mint(e.bean, e.field.Reserve(), beans, bank.Internal); err != nil {
		return nil, err
	}
	applied, err := e.field.IncreaseHarvestable(active, beans)
	if err != nil {
		return nil, err
	}
	r.FloodHarvestablePods = applied
	if err := e.state.PutRain(r); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Wrap(NewFloodEvent(s.Current, active, applied)))
	e.telemetry.ObserveMinted(beans)
	return applied, nil
}

// stepAbovePeg mints the time-weighted excess, ships it and issues soil for
// the pods that became harvestable.
func (e *Engine) stepAbovePeg(twa *big.Int, temp uint64, eval *Evaluation, flooded *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	active, err := e.field.ActiveField()
	if err != nil {
		return nil, nil, err
	}
	before, err := e.field.Field(active)
	if err != nil {
		return nil, nil, err
	}
	minted, err := e.ship(nativecommon.Abs(twa))
	if err != nil {
		return nil, nil, err
	}
	after, err := e.field.Field(active)
	if err != nil {
		return nil, nil, err
	}
	newHarvestable := nativecommon.SaturatingSub(after.Harvestable, before.Harvestable)
	newHarvestable.Add(newHarvestable, nativecommon.OrZero(flooded))
	return minted, soilAbovePeg(newHarvestable, temp, podRateScalar(eval.PodRate, e.params)), nil
}

// ship mints beans along the shipment routes and returns the amount minted.
func (e *Engine) ship(beans *uint256.Int) (*uint256.Int, error) {
	if len(e.routes) == 0 || beans.IsZero() {
		return new(uint256.Int), nil
	}
	plans := make([]Plan, len(e.routes))
	points := make([]uint64, len(e.routes))
	caps := make([]*uint256.Int, len(e.routes))
	for i, route := range e.routes {
		plan, err := e.plans.Lookup(route.Plan)
		if err != nil {
			return nil, err
		}
		limit, err := plan.Cap(route)
		if err != nil {
			return nil, err
		}
		plans[i], points[i], caps[i] = plan, route.Points, limit
	}
	minted := new(uint256.Int)
	for i, amount := range allocate(beans, points, caps) {
		if amount.IsZero() {
			continue
		}
		to, mode := plans[i].Recipient(e.routes[i])
		if err := e.bank.Mint(e.bean, to, amount, mode); err != nil {
			return nil, err
		}
		if err := plans[i].Ship(e.routes[i], amount); err != nil {
			return nil, err
		}
		minted.Add(minted, amount)
		e.emitter.Emit(events.Wrap(NewShipmentEvent(e.routes[i], to, amount)))
	}
	e.telemetry.ObserveMinted(minted)
	return minted, nil
}
