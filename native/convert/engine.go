package convert

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"beanstalk/core/events"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/season"
	"beanstalk/native/silo"
	"beanstalk/observability/metrics"
)

var (
	errNilState  = errors.New("convert engine: state not configured")
	errNilSilo   = errors.New("convert engine: silo not configured")
	errNilOracle = errors.New("convert engine: oracle not configured")
	errNilVenue  = errors.New("convert engine: venue not configured")

	ErrNotOwner            = errors.New("convert engine: caller does not own the deposits")
	ErrInvalidToken        = errors.New("convert engine: token is neither bean nor a whitelisted pool")
	ErrInvalidKind         = errors.New("convert engine: tokens do not match convert kind")
	ErrInvalidPool         = errors.New("convert engine: pool does not match converted token")
	ErrSlippage            = errors.New("convert engine: output below minimum")
	ErrGrownStalkSlippage  = errors.New("convert engine: grown stalk lost exceeds slippage")
	ErrBDVNotDecreased     = errors.New("convert engine: anti-lambda convert must lower bdv")
	ErrDecreaseBDVNotAlone = errors.New("convert engine: bdv-decreasing convert must be the only operation")
	ErrEmptyBatch          = errors.New("convert engine: no operations")
)

const moduleName = "convert"

type engineState interface {
	GetSeason() (*season.Season, error)
	GetGauges() (*season.Gauges, error)
	PutGauges(g *season.Gauges) error
	// GetConvertCapacity returns the capacity used in season by pool. The
	// zero pool holds the overall bucket.
	GetConvertCapacity(season uint32, pool common.Address) (*uint256.Int, error)
	PutConvertCapacity(season uint32, pool common.Address, used *uint256.Int) error
	GetConvertBonus(season uint32, account common.Address) (*uint256.Int, error)
	PutConvertBonus(season uint32, account common.Address, stalk *uint256.Int) error
}

// Silo is the deposit ledger converts withdraw from and redeposit into.
type Silo interface {
	Address() common.Address
	Bean() common.Address
	WhitelistEntry(token common.Address) (*silo.WhitelistEntry, error)
	BDV(token common.Address, amount *uint256.Int) (*uint256.Int, error)
	StemTip(token common.Address) (int64, error)
	RemoveDeposits(account, token common.Address, stems []int64, amounts []*uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, error)
	AddDeposit(account, token common.Address, stem int64, amount, bdv *uint256.Int) error
}

// Oracle supplies the deltaB readings penalties and capacities are built on.
type Oracle interface {
	CurrentDeltaB(pool common.Address) *big.Int
	TotalCurrentDeltaB() *big.Int
	CappedReservesDeltaB(pool common.Address) *big.Int
	OverallCappedDeltaB() *big.Int
}

// Engine converts deposits between bean and pool tokens while keeping their
// grown stalk, less any penalty for moving deltaB away from peg.
type Engine struct {
	state     engineState
	silo      Silo
	oracle    Oracle
	venue     Venue
	pipes     *PipeRegistry
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	tracer    trace.Tracer
	telemetry *metrics.ProtocolMetrics
}

func NewEngine(pipes *PipeRegistry) *Engine {
	if pipes == nil {
		pipes = NewPipeRegistry()
	}
	return &Engine{
		pipes:     pipes,
		emitter:   events.NoopEmitter{},
		tracer:    otel.Tracer("beanstalk/convert"),
		telemetry: metrics.Protocol(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetSilo(s Silo)       { e.silo = s }
func (e *Engine) SetOracle(o Oracle)   { e.oracle = o }
func (e *Engine) SetVenue(v Venue)     { e.venue = v }
func (e *Engine) Pipes() *PipeRegistry { return e.pipes }

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

// Capacity returns the convert capacity used this season by pool and the
// capacity available to it. The zero pool is the overall bucket.
func (e *Engine) Capacity(pool common.Address) (*uint256.Int, *uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	s, err := e.season()
	if err != nil {
		return nil, nil, err
	}
	used, err := e.state.GetConvertCapacity(s.Current, pool)
	if err != nil {
		return nil, nil, err
	}
	return nativecommon.OrZero(used), e.limit(pool), nil
}

// BonusReceived is the bonus stalk the account has received this season and
// not yet given back.
func (e *Engine) BonusReceived(account common.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	s, err := e.season()
	if err != nil {
		return nil, err
	}
	bonus, err := e.state.GetConvertBonus(s.Current, account)
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(bonus), nil
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.silo == nil:
		return errNilSilo
	case e.oracle == nil:
		return errNilOracle
	}
	return nil
}

func (e *Engine) season() (*season.Season, error) {
	s, err := e.state.GetSeason()
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &season.Season{}
	}
	return s.Normalize(), nil
}

func (e *Engine) limit(pool common.Address) *uint256.Int {
	if pool == (common.Address{}) {
		return nativecommon.Abs(e.oracle.OverallCappedDeltaB())
	}
	return nativecommon.Abs(e.oracle.CappedReservesDeltaB(pool))
}

// Convert withdraws the requested deposits of req.Account, converts them and
// redeposits the result. Only the owner may convert, except for anti-lambda
// converts which anyone may trigger.
func (e *Engine) Convert(ctx context.Context, caller common.Address, req Request) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := e.tracer.Start(ctx, "convert.convert", trace.WithAttributes(
		attribute.String("kind", req.Kind.String()),
		attribute.String("from_token", req.FromToken.Hex()),
		attribute.String("to_token", req.ToToken.Hex()),
	))
	defer span.End()

	res, err := e.convert(caller, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("penalty_stalk", res.PenaltyStalk.Dec()),
		attribute.String("bonus_stalk", res.BonusStalk.Dec()),
	)
	return res, nil
}

// MultiConvert runs ops in order. A bdv-decreasing op must run on its own.
// Atomicity across ops is provided by the caller's state snapshot.
func (e *Engine) MultiConvert(ctx context.Context, caller common.Address, ops []Request) ([]*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := e.tracer.Start(ctx, "convert.multi_convert", trace.WithAttributes(
		attribute.Int("ops", len(ops)),
	))
	defer span.End()

	fail := func(err error) ([]*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(ops) == 0 {
		return fail(ErrEmptyBatch)
	}
	for _, op := range ops {
		if op.Kind.decreasesBDV() && len(ops) > 1 {
			return fail(ErrDecreaseBDVNotAlone)
		}
	}
	results := make([]*Result, 0, len(ops))
	for i, op := range ops {
		res, err := e.Convert(ctx, caller, op)
		if err != nil {
			return fail(fmt.Errorf("op %d: %w", i, err))
		}
		results = append(results, res)
	}
	return results, nil
}

// sides resolves the pool on each side of the convert. A zero address means
// the side is bean.
func (e *Engine) sides(req Request) (common.Address, common.Address, error) {
	bean := e.silo.Bean()
	isPool := func(token common.Address) (bool, error) {
		if token == bean {
			return false, nil
		}
		entry, err := e.silo.WhitelistEntry(token)
		if err != nil {
			return false, fmt.Errorf("%w: %s", ErrInvalidToken, token.Hex())
		}
		if !entry.IsPool {
			return false, fmt.Errorf("%w: %s", ErrInvalidToken, token.Hex())
		}
		return true, nil
	}
	fromPool, err := isPool(req.FromToken)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	toPool, err := isPool(req.ToToken)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	var input, output common.Address
	if fromPool {
		input = req.FromToken
	}
	if toPool {
		output = req.ToToken
	}

	switch req.Kind {
	case BeansToPool:
		if fromPool || !toPool {
			return input, output, ErrInvalidKind
		}
		if req.Pool != (common.Address{}) && req.Pool != output {
			return input, output, ErrInvalidPool
		}
	case PoolToBeans:
		if !fromPool || toPool {
			return input, output, ErrInvalidKind
		}
		if req.Pool != (common.Address{}) && req.Pool != input {
			return input, output, ErrInvalidPool
		}
	case Lambda, AntiLambda:
		if req.FromToken != req.ToToken {
			return input, output, ErrInvalidKind
		}
	case Pipeline:
		if req.FromToken == req.ToToken {
			return input, output, ErrInvalidKind
		}
	default:
		return input, output, ErrInvalidKind
	}
	return input, output, nil
}

func (e *Engine) readDeltaBs(input, output common.Address) deltaBs {
	d := deltaBs{overall: nativecommon.BigOrZero(e.oracle.TotalCurrentDeltaB())}
	if input != (common.Address{}) {
		d.input = nativecommon.BigOrZero(e.oracle.CurrentDeltaB(input))
	}
	if output != (common.Address{}) {
		d.output = nativecommon.BigOrZero(e.oracle.CurrentDeltaB(output))
	}
	return d
}

func (e *Engine) convert(caller common.Address, req Request) (*Result, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if req.Account == (common.Address{}) {
		req.Account = caller
	}
	if req.Kind != AntiLambda && req.Account != caller {
		return nil, ErrNotOwner
	}
	input, output, err := e.sides(req)
	if err != nil {
		return nil, err
	}
	var pipes []Pipe
	if req.Kind == Pipeline {
		if pipes, err = e.pipes.resolve(req.Pipes, req.FromToken, req.ToToken); err != nil {
			return nil, err
		}
	} else if (req.Kind == BeansToPool || req.Kind == PoolToBeans) && e.venue == nil {
		return nil, errNilVenue
	}

	before := e.readDeltaBs(input, output)
	amountIn, bdvIn, grown, err := e.silo.RemoveDeposits(req.Account, req.FromToken, req.Stems, req.Amounts)
	if err != nil {
		return nil, err
	}

	amountOut, err := e.execute(req, input, output, pipes, amountIn)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() || amountOut.Lt(nativecommon.OrZero(req.MinOut)) {
		return nil, ErrSlippage
	}

	bdvOut, err := e.silo.BDV(req.ToToken, amountOut)
	if err != nil {
		return nil, err
	}
	newBdv := nativecommon.Max(bdvOut, bdvIn)
	if req.Kind == AntiLambda {
		if !bdvOut.Lt(bdvIn) {
			return nil, ErrBDVNotDecreased
		}
		newBdv = bdvOut
	}

	after := e.readDeltaBs(input, output)
	penalty, bonus, err := e.settle(req.Account, bdvIn, grown, before, after, input, output)
	if err != nil {
		return nil, err
	}
	final := new(uint256.Int).Sub(grown, penalty)
	final.Add(final, bonus)
	floor, err := minGrownStalk(grown, req.GrownStalkSlippage)
	if err != nil {
		return nil, err
	}
	if final.Lt(floor) {
		return nil, fmt.Errorf("%w: kept %s of %s", ErrGrownStalkSlippage, final.Dec(), grown.Dec())
	}

	tip, err := e.silo.StemTip(req.ToToken)
	if err != nil {
		return nil, err
	}
	stem := silo.StemFromGrownStalk(tip, final, newBdv)
	if err := e.silo.AddDeposit(req.Account, req.ToToken, stem, amountOut, newBdv); err != nil {
		return nil, err
	}

	res := &Result{
		ToStem:       stem,
		FromAmount:   amountIn,
		ToAmount:     amountOut,
		FromBdv:      bdvIn,
		ToBdv:        newBdv,
		GrownStalk:   final,
		PenaltyStalk: penalty,
		BonusStalk:   bonus,
	}
	e.emitter.Emit(events.Wrap(NewConvertEvent(req.Account, req, res)))
	if !penalty.IsZero() {
		e.telemetry.ObserveConvertPenalty(req.Kind.String(), penalty)
	}
	if !bonus.IsZero() {
		e.telemetry.ObserveConvertBonus(bonus)
	}
	return res, nil
}

func (e *Engine) execute(req Request, input, output common.Address, pipes []Pipe, amountIn *uint256.Int) (*uint256.Int, error) {
	holder := e.silo.Address()
	switch req.Kind {
	case BeansToPool:
		return e.venue.AddLiquidity(holder, output, amountIn, nil, req.MinOut, bank.Internal)
	case PoolToBeans:
		return e.venue.RemoveLiquidityOneToken(holder, input, amountIn, e.silo.Bean(), req.MinOut, bank.Internal)
	case Lambda, AntiLambda:
		return amountIn.Clone(), nil
	case Pipeline:
		quoted, err := quotePipes(pipes, amountIn)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPipeDryRun, err)
		}
		if quoted.Lt(nativecommon.OrZero(req.MinOut)) {
			return nil, ErrSlippage
		}
		amount := amountIn
		for _, pipe := range pipes {
			if amount, err = pipe.Execute(holder, amount); err != nil {
				return nil, err
			}
		}
		return amount, nil
	}
	return nil, ErrInvalidKind
}

// settle charges the penalty for the deltaB move, consumes capacity and
// grants or claws back the below-peg bonus. It returns the grown stalk
// removed and the bonus stalk added.
func (e *Engine) settle(account common.Address, bdvIn, grown *uint256.Int, before, after deltaBs, input, output common.Address) (*uint256.Int, *uint256.Int, error) {
	s, err := e.season()
	if err != nil {
		return nil, nil, err
	}
	overallTowards, overallAgainst := pegMovement(before.overall, after.overall)

	bucket := func(pool common.Address, towards, against *uint256.Int) (capacity, error) {
		used, err := e.state.GetConvertCapacity(s.Current, pool)
		if err != nil {
			return capacity{}, err
		}
		return capacity{limit: e.limit(pool), used: nativecommon.OrZero(used), towards: towards, against: against}, nil
	}
	overall, err := bucket(common.Address{}, overallTowards, overallAgainst)
	if err != nil {
		return nil, nil, err
	}
	buckets := []capacity{overall}
	pools := []common.Address{{}}
	if input != (common.Address{}) {
		towards, against := pegMovement(before.input, after.input)
		b, err := bucket(input, towards, against)
		if err != nil {
			return nil, nil, err
		}
		buckets = append(buckets, b)
		pools = append(pools, input)
	}
	if output != (common.Address{}) && output != input {
		towards, against := pegMovement(before.output, after.output)
		b, err := bucket(output, towards, against)
		if err != nil {
			return nil, nil, err
		}
		buckets = append(buckets, b)
		pools = append(pools, output)
	}

	pBdv := penaltyBdv(bdvIn, overallAgainst, buckets...)
	penalty, err := penaltyStalk(grown, pBdv, bdvIn)
	if err != nil {
		return nil, nil, err
	}
	for i, b := range buckets {
		if b.towards.IsZero() {
			continue
		}
		used := b.next()
		if err := e.state.PutConvertCapacity(s.Current, pools[i], used); err != nil {
			return nil, nil, err
		}
		e.emitter.Emit(events.Wrap(NewCapacityEvent(s.Current, pools[i], used)))
	}

	received, err := e.state.GetConvertBonus(s.Current, account)
	if err != nil {
		return nil, nil, err
	}
	received = nativecommon.OrZero(received).Clone()
	recordChanged := false
	if !overallAgainst.IsZero() && !received.IsZero() {
		claw := nativecommon.Min(received, new(uint256.Int).Sub(grown, penalty))
		if !claw.IsZero() {
			penalty = new(uint256.Int).Add(penalty, claw)
			received.Sub(received, claw)
			recordChanged = true
			e.emitter.Emit(events.Wrap(NewBonusClawbackEvent(s.Current, account, claw)))
		}
	}

	bonus := new(uint256.Int)
	if before.overall.Sign() < 0 && !overallTowards.IsZero() {
		gauges, err := e.state.GetGauges()
		if err != nil {
			return nil, nil, err
		}
		if gauges == nil {
			gauges = &season.Gauges{}
		}
		gauges.Normalize()
		if !gauges.ConvertBonusStalkPerBdv.IsZero() {
			room := nativecommon.SaturatingSub(gauges.ConvertBonusCapacity, gauges.ConvertBonusUsed)
			bonusBdv := nativecommon.Min(nativecommon.Min(overallTowards, bdvIn), room)
			if !bonusBdv.IsZero() {
				if bonus, err = nativecommon.MulDiv(bonusBdv, gauges.ConvertBonusStalkPerBdv, uint256.NewInt(silo.StemPrecision)); err != nil {
					return nil, nil, err
				}
				gauges.ConvertBonusUsed = new(uint256.Int).Add(gauges.ConvertBonusUsed, bonusBdv)
				if err := e.state.PutGauges(gauges); err != nil {
					return nil, nil, err
				}
				received.Add(received, bonus)
				recordChanged = true
			}
		}
	}
	if recordChanged {
		if err := e.state.PutConvertBonus(s.Current, account, received); err != nil {
			return nil, nil, err
		}
	}
	return penalty, bonus, nil
}
