package well

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/events"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/oracle"
	"beanstalk/native/season"
)

var (
	errNilState = errors.New("well engine: state not configured")
	errNilBank  = errors.New("well engine: bank not configured")

	ErrUnknownPool     = errors.New("well engine: unknown pool")
	ErrPoolExists      = errors.New("well engine: pool already exists")
	ErrInvalidRatio    = errors.New("well engine: peg ratio must be positive")
	ErrInvalidToken    = errors.New("well engine: token not in pool")
	ErrZeroAmount      = errors.New("well engine: amount must be positive")
	ErrSlippage        = errors.New("well engine: output below minimum")
	ErrEmptyPool       = errors.New("well engine: pool has no liquidity")
	ErrInsufficientLP  = errors.New("well engine: lp amount exceeds supply")
	ErrInitialDeposit  = errors.New("well engine: first deposit must provide both tokens")
	ErrInjectedFailure = errors.New("well engine: reserves unavailable")
)

const moduleName = "well"

type engineState interface {
	PoolAddresses() ([]common.Address, error)
	GetPool(addr common.Address) (*Pool, error)
	PutPool(p *Pool) error
}

// Bank is the token collaborator moving pool tokens and minting LP.
type Bank interface {
	Mint(token, to common.Address, amount *uint256.Int, mode bank.Mode) error
	Burn(token, from common.Address, amount *uint256.Int, mode bank.Mode) error
	Transfer(token, from, to common.Address, amount *uint256.Int, fromMode, toMode bank.Mode) error
}

// Engine runs the constant-product pools and serves their reserves to the
// oracle.
type Engine struct {
	state    engineState
	bank     Bank
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	bean     common.Address
	block    season.Block
	failures map[common.Address]error
}

func NewEngine(bean common.Address) *Engine {
	return &Engine{
		bean:     bean,
		emitter:  events.NoopEmitter{},
		failures: make(map[common.Address]error),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetBank(b Bank) {
	if e == nil {
		return
	}
	e.bank = b
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

func (e *Engine) SetBlock(b season.Block) {
	if e == nil {
		return
	}
	e.block = b
}

// SetFailure makes every reserve reading of the pool fail with err until
// cleared with a nil err.
func (e *Engine) SetFailure(pool common.Address, err error) {
	if e == nil {
		return
	}
	if err == nil {
		delete(e.failures, pool)
		return
	}
	e.failures[pool] = err
}

// CreatePool registers an empty pool pairing beans with nonBean.
func (e *Engine) CreatePool(addr, nonBean common.Address, ratio *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if ratio == nil || ratio.IsZero() {
		return ErrInvalidRatio
	}
	existing, err := e.state.GetPool(addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrPoolExists, addr.Hex())
	}
	p := (&Pool{Address: addr, NonBeanToken: nonBean, Ratio: ratio.Clone()}).normalize()
	p.LastUpdate = e.block.Timestamp
	p.SnapshotTime = e.block.Timestamp
	if err := e.state.PutPool(p); err != nil {
		return err
	}
	e.emitter.Emit(events.Wrap(NewPoolCreatedEvent(addr, nonBean, ratio)))
	return nil
}

// Pool returns a copy of the pool.
func (e *Engine) Pool(addr common.Address) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.load(addr)
}

// Pools lists the pool addresses.
func (e *Engine) Pools() ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.PoolAddresses()
}

func (e *Engine) load(addr common.Address) (*Pool, error) {
	p, err := e.state.GetPool(addr)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, addr.Hex())
	}
	return p.Clone(), nil
}

// checkpoint folds elapsed time into the accumulators and latches the
// previous block's reserves before the first mutation of a block.
func (e *Engine) checkpoint(p *Pool) {
	if e.block.Timestamp > p.LastUpdate {
		dt := uint256.NewInt(e.block.Timestamp - p.LastUpdate)
		p.CumulativeBean = new(uint256.Int).Add(p.CumulativeBean, new(uint256.Int).Mul(p.BeanReserve, dt))
		p.CumulativeNonBean = new(uint256.Int).Add(p.CumulativeNonBean, new(uint256.Int).Mul(p.NonBeanReserve, dt))
		p.LastUpdate = e.block.Timestamp
	}
	if e.block.Height > p.LastBlock {
		p.CappedBean = p.BeanReserve.Clone()
		p.CappedNonBean = p.NonBeanReserve.Clone()
		p.LastBlock = e.block.Height
	}
}

// QuoteAddLiquidity returns the LP minted for the given deposit.
func (e *Engine) QuoteAddLiquidity(addr common.Address, beans, nonBeans *uint256.Int) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return quoteAdd(p, nativecommon.OrZero(beans), nativecommon.OrZero(nonBeans))
}

func quoteAdd(p *Pool, beans, nonBeans *uint256.Int) (*uint256.Int, error) {
	if beans.IsZero() && nonBeans.IsZero() {
		return nil, ErrZeroAmount
	}
	if p.LPSupply.IsZero() && (beans.IsZero() || nonBeans.IsZero()) {
		return nil, ErrInitialDeposit
	}
	next := lpSupplyFor(new(uint256.Int).Add(p.BeanReserve, beans), new(uint256.Int).Add(p.NonBeanReserve, nonBeans))
	return nativecommon.SaturatingSub(next, p.LPSupply), nil
}

// AddLiquidity deposits beans and non-bean tokens from account and mints LP.
func (e *Engine) AddLiquidity(account, addr common.Address, beans, nonBeans, minLP *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	p, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	beans, nonBeans = nativecommon.OrZero(beans), nativecommon.OrZero(nonBeans)
	lp, err := quoteAdd(p, beans, nonBeans)
	if err != nil {
		return nil, err
	}
	if lp.IsZero() || lp.Lt(nativecommon.OrZero(minLP)) {
		return nil, ErrSlippage
	}
	e.checkpoint(p)
	if err := e.bank.Transfer(e.bean, account, addr, beans, mode, bank.External); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(p.NonBeanToken, account, addr, nonBeans, mode, bank.External); err != nil {
		return nil, err
	}
	if err := e.bank.Mint(addr, account, lp, toMode(mode)); err != nil {
		return nil, err
	}
	p.BeanReserve = new(uint256.Int).Add(p.BeanReserve, beans)
	p.NonBeanReserve = new(uint256.Int).Add(p.NonBeanReserve, nonBeans)
	p.LPSupply = new(uint256.Int).Add(p.LPSupply, lp)
	if err := e.state.PutPool(p); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Wrap(NewLiquidityAddedEvent(account, addr, beans, nonBeans, lp)))
	return lp, nil
}

// QuoteRemoveLiquidityOneToken returns the amount of token paid for burning lp.
func (e *Engine) QuoteRemoveLiquidityOneToken(addr common.Address, lp *uint256.Int, token common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return e.quoteRemove(p, nativecommon.OrZero(lp), token)
}

func (e *Engine) quoteRemove(p *Pool, lp *uint256.Int, token common.Address) (*uint256.Int, error) {
	if lp.IsZero() {
		return nil, ErrZeroAmount
	}
	if lp.Gt(p.LPSupply) {
		return nil, ErrInsufficientLP
	}
	next := new(uint256.Int).Sub(p.LPSupply, lp)
	switch token {
	case e.bean:
		return nativecommon.SaturatingSub(p.BeanReserve, reserveFor(next, p.NonBeanReserve)), nil
	case p.NonBeanToken:
		return nativecommon.SaturatingSub(p.NonBeanReserve, reserveFor(next, p.BeanReserve)), nil
	default:
		return nil, ErrInvalidToken
	}
}

// RemoveLiquidityOneToken burns lp from account and pays out a single token.
func (e *Engine) RemoveLiquidityOneToken(account, addr common.Address, lp *uint256.Int, token common.Address, minOut *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	p, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	lp = nativecommon.OrZero(lp)
	out, err := e.quoteRemove(p, lp, token)
	if err != nil {
		return nil, err
	}
	if out.IsZero() || out.Lt(nativecommon.OrZero(minOut)) {
		return nil, ErrSlippage
	}
	e.checkpoint(p)
	if err := e.bank.Burn(addr, account, lp, mode); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(token, addr, account, out, bank.External, toMode(mode)); err != nil {
		return nil, err
	}
	p.LPSupply = new(uint256.Int).Sub(p.LPSupply, lp)
	if token == e.bean {
		p.BeanReserve = new(uint256.Int).Sub(p.BeanReserve, out)
	} else {
		p.NonBeanReserve = new(uint256.Int).Sub(p.NonBeanReserve, out)
	}
	if err := e.state.PutPool(p); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Wrap(NewLiquidityRemovedEvent(account, addr, token, lp, out)))
	return out, nil
}

// QuoteSwap returns the output of selling amountIn of tokenIn.
func (e *Engine) QuoteSwap(addr, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	out, _, err := e.quoteSwap(p, tokenIn, nativecommon.OrZero(amountIn))
	return out, err
}

func (e *Engine) quoteSwap(p *Pool, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, common.Address, error) {
	if amountIn.IsZero() {
		return nil, common.Address{}, ErrZeroAmount
	}
	if p.BeanReserve.IsZero() || p.NonBeanReserve.IsZero() {
		return nil, common.Address{}, ErrEmptyPool
	}
	var in, out *uint256.Int
	var tokenOut common.Address
	switch tokenIn {
	case e.bean:
		in, out, tokenOut = p.BeanReserve, p.NonBeanReserve, p.NonBeanToken
	case p.NonBeanToken:
		in, out, tokenOut = p.NonBeanReserve, p.BeanReserve, e.bean
	default:
		return nil, common.Address{}, ErrInvalidToken
	}
	next, err := nativecommon.MulDivUp(in, out, new(uint256.Int).Add(in, amountIn))
	if err != nil {
		return nil, common.Address{}, err
	}
	return nativecommon.SaturatingSub(out, next), tokenOut, nil
}

// Swap sells amountIn of tokenIn for the pool's other token.
func (e *Engine) Swap(account, addr, tokenIn common.Address, amountIn, minOut *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	p, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	amountIn = nativecommon.OrZero(amountIn)
	out, tokenOut, err := e.quoteSwap(p, tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	if out.IsZero() || out.Lt(nativecommon.OrZero(minOut)) {
		return nil, ErrSlippage
	}
	e.checkpoint(p)
	if err := e.bank.Transfer(tokenIn, account, addr, amountIn, mode, bank.External); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(tokenOut, addr, account, out, bank.External, toMode(mode)); err != nil {
		return nil, err
	}
	if tokenIn == e.bean {
		p.BeanReserve = new(uint256.Int).Add(p.BeanReserve, amountIn)
		p.NonBeanReserve = new(uint256.Int).Sub(p.NonBeanReserve, out)
	} else {
		p.NonBeanReserve = new(uint256.Int).Add(p.NonBeanReserve, amountIn)
		p.BeanReserve = new(uint256.Int).Sub(p.BeanReserve, out)
	}
	if err := e.state.PutPool(p); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Wrap(NewSwapEvent(account, addr, tokenIn, amountIn, out)))
	return out, nil
}

// SnapshotTWA closes the time-weighted window opened by the previous
// snapshot and stores its average reserves.
func (e *Engine) SnapshotTWA(addr common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	p, err := e.load(addr)
	if err != nil {
		return err
	}
	e.checkpoint(p)
	if e.block.Timestamp > p.SnapshotTime {
		dt := uint256.NewInt(e.block.Timestamp - p.SnapshotTime)
		p.TWABean = new(uint256.Int).Div(nativecommon.SaturatingSub(p.CumulativeBean, p.SnapshotBean), dt)
		p.TWANonBean = new(uint256.Int).Div(nativecommon.SaturatingSub(p.CumulativeNonBean, p.SnapshotNonBean), dt)
	} else {
		p.TWABean = p.BeanReserve.Clone()
		p.TWANonBean = p.NonBeanReserve.Clone()
	}
	p.SnapshotBean = p.CumulativeBean.Clone()
	p.SnapshotNonBean = p.CumulativeNonBean.Clone()
	p.SnapshotTime = e.block.Timestamp
	return e.state.PutPool(p)
}

// BDV values lp at the bean reserve the pool would hold at peg, using the
// previous block's reserves so it cannot be moved within a block.
func (e *Engine) BDV(addr common.Address, lp *uint256.Int) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	lp = nativecommon.OrZero(lp)
	if lp.IsZero() {
		return new(uint256.Int), nil
	}
	p, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	if p.LPSupply.IsZero() {
		return new(uint256.Int), nil
	}
	r := e.capped(p)
	return nativecommon.MulDiv(lp, beansAtPeg(r.Bean(), r.NonBean(), p.Ratio), p.LPSupply)
}

func (e *Engine) capped(p *Pool) oracle.Reserves {
	if e.block.Height > p.LastBlock {
		return oracle.Reserves{p.BeanReserve.Clone(), p.NonBeanReserve.Clone()}
	}
	return oracle.Reserves{p.CappedBean.Clone(), p.CappedNonBean.Clone()}
}

func (e *Engine) source(addr common.Address) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err, ok := e.failures[addr]; ok {
		return nil, fmt.Errorf("%w: %v", ErrInjectedFailure, err)
	}
	return e.load(addr)
}

// Reserves implements oracle.Source.
func (e *Engine) Reserves(addr common.Address) (oracle.Reserves, error) {
	p, err := e.source(addr)
	if err != nil {
		return oracle.Reserves{}, err
	}
	return oracle.Reserves{p.BeanReserve, p.NonBeanReserve}, nil
}

// TWAReserves implements oracle.Source. Before the first snapshot the
// current reserves are reported.
func (e *Engine) TWAReserves(addr common.Address) (oracle.Reserves, error) {
	p, err := e.source(addr)
	if err != nil {
		return oracle.Reserves{}, err
	}
	if p.TWABean.IsZero() && p.TWANonBean.IsZero() {
		return oracle.Reserves{p.BeanReserve, p.NonBeanReserve}, nil
	}
	return oracle.Reserves{p.TWABean, p.TWANonBean}, nil
}

// CappedReserves implements oracle.Source.
func (e *Engine) CappedReserves(addr common.Address) (oracle.Reserves, error) {
	p, err := e.source(addr)
	if err != nil {
		return oracle.Reserves{}, err
	}
	return e.capped(p), nil
}

// Ratio implements oracle.Source.
func (e *Engine) Ratio(addr common.Address) (*uint256.Int, error) {
	p, err := e.source(addr)
	if err != nil {
		return nil, err
	}
	return p.Ratio, nil
}

// toMode maps a source mode onto the mode outputs are credited to.
func toMode(mode bank.Mode) bank.Mode {
	if mode == bank.ExternalInternal {
		return bank.External
	}
	return mode
}
