package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/events"
	"beanstalk/core/state"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/convert"
	"beanstalk/native/field"
	"beanstalk/native/market"
	"beanstalk/native/oracle"
	"beanstalk/native/season"
	"beanstalk/native/silo"
	"beanstalk/native/sun"
	"beanstalk/native/well"
)

// BDV plugin and shipment plan names every protocol registers.
const (
	BeanPlugin = "bean"
	WellPlugin = "well"

	FieldPlanName  = "field"
	SiloPlanName   = "silo"
	BudgetPlanName = "budget"
)

var (
	ErrZeroBean    = errors.New("protocol: bean token not configured")
	ErrZeroAccount = errors.New("protocol: system account not configured")
)

// Options configures the protocol's fixed accounts and parameters.
type Options struct {
	Bean common.Address
	// Reserve holds the beans the field pays harvests from.
	Reserve common.Address
	// Silo holds deposited tokens and receives silo shipments.
	Silo           common.Address
	Params         sun.Params
	MinBeanReserve *uint256.Int
	Pauses         nativecommon.PauseView
	// Emitter receives events of calls that succeed.
	Emitter events.Emitter
	Logger  *slog.Logger
}

// Protocol wires the native engines over one state manager. Every mutating
// entry point runs behind the reentrancy guard inside a state snapshot: a
// failing call reverts all of its writes and drops its events.
//
// Only one mutating call may be in flight at a time; a second one fails with
// ErrReentrant. Read queries wait for the call in flight to finish.
type Protocol struct {
	mu    sync.Mutex
	guard nativecommon.ReentrancyGuard

	state  *state.Manager
	bean   common.Address
	block  season.Block
	buffer events.Buffer
	sink   events.Emitter
	logger *slog.Logger
	// undo reverses in-memory registrations made by the call in flight.
	undo []func()

	ledger  *bank.Ledger
	oracle  *oracle.Adapter
	field   *field.Engine
	well    *well.Engine
	silo    *silo.Engine
	convert *convert.Engine
	sun     *sun.Engine
	market  *market.Engine
}

// NewProtocol builds the engines, wires them to manager and restores the
// pools, pipes and shipment routes found in state.
func NewProtocol(manager *state.Manager, opts Options) (*Protocol, error) {
	if manager == nil {
		return nil, fmt.Errorf("protocol: nil state manager")
	}
	if opts.Bean == (common.Address{}) {
		return nil, ErrZeroBean
	}
	if opts.Reserve == (common.Address{}) || opts.Silo == (common.Address{}) {
		return nil, ErrZeroAccount
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Emitter
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	minReserve := opts.MinBeanReserve
	if minReserve == nil {
		minReserve = new(uint256.Int)
	}

	p := &Protocol{
		state:  manager,
		bean:   opts.Bean,
		sink:   sink,
		logger: logger.With("component", "protocol"),
		ledger: bank.NewLedger(),
		oracle: oracle.NewAdapter(minReserve),
	}
	p.ledger.SetState(manager)

	p.well = well.NewEngine(opts.Bean)
	p.well.SetState(manager)
	p.well.SetBank(p.ledger)

	registry := silo.NewRegistry()
	if err := registry.Register(BeanPlugin, silo.BeanBDV); err != nil {
		return nil, err
	}
	if err := registry.Register(WellPlugin, silo.BDVFunc(p.well.BDV)); err != nil {
		return nil, err
	}
	p.silo = silo.NewEngine(opts.Silo, opts.Bean, registry)
	p.silo.SetState(manager)
	p.silo.SetBank(p.ledger)
	p.oracle.SetWhitelist(p.silo)

	p.market = market.NewEngine(opts.Bean)
	p.market.SetState(manager)
	p.market.SetBank(p.ledger)

	p.field = field.NewEngine(opts.Bean, opts.Reserve)
	p.field.SetState(manager)
	p.field.SetBank(p.ledger)
	p.field.SetListingCanceller(p.market)
	p.market.SetField(p.field)

	p.convert = convert.NewEngine(convert.NewPipeRegistry())
	p.convert.SetState(manager)
	p.convert.SetSilo(p.silo)
	p.convert.SetOracle(p.oracle)
	p.convert.SetVenue(p.well)

	plans := sun.NewPlanRegistry()
	for name, plan := range map[string]sun.Plan{
		FieldPlanName:  sun.FieldPlan{Field: p.field},
		SiloPlanName:   sun.SiloPlan{Silo: p.silo},
		BudgetPlanName: sun.BudgetPlan{},
	} {
		if err := plans.Register(name, plan); err != nil {
			return nil, err
		}
	}
	p.sun = sun.NewEngine(opts.Bean, opts.Params, plans)
	p.sun.SetState(manager)
	p.sun.SetOracle(p.oracle)
	p.sun.SetSnapshotter(p.well)
	p.sun.SetField(p.field)
	p.sun.SetSilo(p.silo)
	p.sun.SetBank(p.ledger)
	p.sun.SetLogger(logger)

	for _, e := range []interface{ SetEmitter(events.Emitter) }{p.well, p.silo, p.market, p.field, p.convert, p.sun} {
		e.SetEmitter(&p.buffer)
	}
	for _, e := range []interface {
		SetPauses(nativecommon.PauseView)
	}{p.well, p.silo, p.market, p.field, p.convert, p.sun} {
		e.SetPauses(opts.Pauses)
	}

	if err := p.restore(); err != nil {
		return nil, err
	}
	return p, nil
}

// restore re-registers in-memory collaborators from persisted state.
func (p *Protocol) restore() error {
	pools, err := p.well.Pools()
	if err != nil {
		return err
	}
	for _, pool := range pools {
		if err := p.registerPool(pool); err != nil {
			return err
		}
	}
	routes, err := p.state.ShipmentRoutes()
	if err != nil {
		return err
	}
	if len(routes) > 0 {
		if err := p.sun.SetRoutes(routes); err != nil {
			return fmt.Errorf("protocol: stored shipment routes: %w", err)
		}
	}
	return nil
}

// AddLiquidityPipeName and RemoveLiquidityPipeName name the pipes registered
// for a pool.
func AddLiquidityPipeName(pool common.Address) string    { return "add:" + pool.Hex() }
func RemoveLiquidityPipeName(pool common.Address) string { return "remove:" + pool.Hex() }

func (p *Protocol) registerPool(pool common.Address) error {
	err := p.oracle.Register(pool, p.well)
	switch {
	case err == nil:
		p.onRevert(func() { p.oracle.Unregister(pool) })
	case !errors.Is(err, oracle.ErrDuplicatePool):
		return err
	}
	pipes := p.convert.Pipes()
	for name, pipe := range map[string]convert.Pipe{
		AddLiquidityPipeName(pool):    convert.AddLiquidityPipe{Venue: p.well, Bean: p.bean, Pool: pool},
		RemoveLiquidityPipeName(pool): convert.RemoveLiquidityPipe{Venue: p.well, Bean: p.bean, Pool: pool},
	} {
		err := pipes.Register(name, pipe)
		switch {
		case err == nil:
			p.onRevert(func() { pipes.Unregister(name) })
		case !errors.Is(err, convert.ErrPipeExists):
			return err
		}
	}
	return nil
}

// onRevert records fn to run if the call in flight fails.
func (p *Protocol) onRevert(fn func()) {
	p.undo = append(p.undo, fn)
}

// run executes fn as one atomic call.
func (p *Protocol) run(op string, fn func() error) error {
	release, err := p.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.state.Snapshot()
	p.undo = p.undo[:0]
	defer func() { p.undo = p.undo[:0] }()
	if err := fn(); err != nil {
		p.state.Revert(snap)
		for i := len(p.undo) - 1; i >= 0; i-- {
			p.undo[i]()
		}
		dropped := p.buffer.Len()
		p.buffer.Discard()
		p.logger.Debug("protocol: call reverted", "op", op, "droppedEvents", dropped, "error", err)
		return err
	}
	p.buffer.Flush(p.sink)
	return nil
}

// SetBlock sets the execution context of subsequent calls.
func (p *Protocol) SetBlock(height, timestamp uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = season.Block{Height: height, Timestamp: timestamp}
	p.field.SetBlock(p.block)
	p.well.SetBlock(p.block)
	p.sun.SetBlock(p.block)
}

func (p *Protocol) Block() season.Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.block
}

// Commit persists the state of the current block and returns its root.
func (p *Protocol) Commit() (common.Hash, error) {
	release, err := p.guard.Enter()
	if err != nil {
		return common.Hash{}, err
	}
	defer release()
	p.mu.Lock()
	defer p.mu.Unlock()
	root, err := p.state.Commit(p.block.Height)
	if err != nil {
		return common.Hash{}, err
	}
	if err := writeHead(p.state.Store(), Head{Height: p.block.Height, Root: root}); err != nil {
		return common.Hash{}, err
	}
	p.logger.Info("protocol: committed", "height", p.block.Height, "root", root.Hex())
	return root, nil
}

func (p *Protocol) Bean() common.Address { return p.bean }

// Pipes lists the registered convert pipes.
func (p *Protocol) Pipes() []string { return p.convert.Pipes().Names() }

// Mint credits freshly minted tokens. It is used to seed balances at genesis.
func (p *Protocol) Mint(token, to common.Address, amount *uint256.Int, mode bank.Mode) error {
	return p.run("mint", func() error {
		return p.ledger.Mint(token, to, amount, mode)
	})
}

// InitSeason writes the season clock and starting weather.
func (p *Protocol) InitSeason(s season.Season, w season.Weather, g season.Gauges) error {
	return p.run("init_season", func() error {
		if err := p.state.PutSeason(&s); err != nil {
			return err
		}
		if err := p.state.PutWeather(&w); err != nil {
			return err
		}
		return p.state.PutGauges(&g)
	})
}

func (p *Protocol) AddField() (uint64, error) {
	var id uint64
	err := p.run("add_field", func() error {
		var err error
		id, err = p.field.AddField()
		return err
	})
	return id, err
}

func (p *Protocol) SetActiveField(id, temperature uint64) error {
	return p.run("set_active_field", func() error {
		return p.field.SetActiveField(id, temperature)
	})
}

// Sow burns beans for pods in the active field.
func (p *Protocol) Sow(account common.Address, beans *uint256.Int, minTemperature uint64, minSoil *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	var pods *uint256.Int
	err := p.run("sow", func() error {
		var err error
		pods, err = p.field.Sow(account, beans, minTemperature, minSoil, mode)
		return err
	})
	return pods, err
}

func (p *Protocol) Harvest(account common.Address, fieldID uint64, indexes []*uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	var beans *uint256.Int
	err := p.run("harvest", func() error {
		var err error
		beans, err = p.field.Harvest(account, fieldID, indexes, mode)
		return err
	})
	return beans, err
}

func (p *Protocol) CombinePlots(account common.Address, fieldID uint64, indexes []*uint256.Int) error {
	return p.run("combine_plots", func() error {
		return p.field.CombinePlots(account, fieldID, indexes)
	})
}

func (p *Protocol) TransferPlot(operator, sender, recipient common.Address, fieldID uint64, index, start, end *uint256.Int) error {
	return p.run("transfer_plot", func() error {
		return p.field.TransferPlot(operator, sender, recipient, fieldID, index, start, end)
	})
}

func (p *Protocol) TransferPlots(operator, sender, recipient common.Address, fieldID uint64, ids, starts, ends []*uint256.Int) error {
	return p.run("transfer_plots", func() error {
		return p.field.TransferPlots(operator, sender, recipient, fieldID, ids, starts, ends)
	})
}

func (p *Protocol) ApprovePods(owner, spender common.Address, fieldID uint64, amount *uint256.Int) error {
	return p.run("approve_pods", func() error {
		return p.field.ApprovePods(owner, spender, fieldID, amount)
	})
}

// Sunrise advances the season once the clock allows it and pays the caller.
func (p *Protocol) Sunrise(ctx context.Context, caller common.Address, mode bank.Mode) (*sun.Result, error) {
	var res *sun.Result
	err := p.run("sunrise", func() error {
		var err error
		res, err = p.sun.Sunrise(ctx, caller, mode)
		return err
	})
	return res, err
}

// SetSoil overrides the soil of the current season.
func (p *Protocol) SetSoil(amount *uint256.Int) error {
	return p.run("set_soil", func() error {
		return p.sun.SetSoil(amount)
	})
}

// SetShipmentRoutes replaces and persists the routes minted beans ship along.
func (p *Protocol) SetShipmentRoutes(routes []sun.Route) error {
	return p.run("set_shipment_routes", func() error {
		if err := p.sun.ValidateRoutes(routes); err != nil {
			return err
		}
		if err := p.state.PutShipmentRoutes(routes); err != nil {
			return err
		}
		return p.sun.SetRoutes(routes)
	})
}

func (p *Protocol) Convert(ctx context.Context, caller common.Address, req convert.Request) (*convert.Result, error) {
	var res *convert.Result
	err := p.run("convert", func() error {
		var err error
		res, err = p.convert.Convert(ctx, caller, req)
		return err
	})
	return res, err
}

// ConvertWithSlippage converts while bounding the share of grown stalk the
// account accepts to lose, at 1e18.
func (p *Protocol) ConvertWithSlippage(ctx context.Context, caller common.Address, req convert.Request, grownStalkSlippage *uint256.Int) (*convert.Result, error) {
	req.GrownStalkSlippage = grownStalkSlippage
	return p.Convert(ctx, caller, req)
}

func (p *Protocol) MultiConvert(ctx context.Context, caller common.Address, reqs []convert.Request) ([]*convert.Result, error) {
	var res []*convert.Result
	err := p.run("multi_convert", func() error {
		var err error
		res, err = p.convert.MultiConvert(ctx, caller, reqs)
		return err
	})
	return res, err
}

// RegisterPipe adds a custom convert pipe.
func (p *Protocol) RegisterPipe(name string, pipe convert.Pipe) error {
	return p.convert.Pipes().Register(name, pipe)
}

func (p *Protocol) CreatePodListing(caller common.Address, listing market.Listing) error {
	return p.run("create_pod_listing", func() error {
		return p.market.CreatePodListing(caller, listing)
	})
}

func (p *Protocol) MultiCreatePodListing(caller common.Address, listings []market.Listing) error {
	return p.run("multi_create_pod_listing", func() error {
		return p.market.MultiCreatePodListing(caller, listings)
	})
}

func (p *Protocol) CancelPodListing(caller common.Address, fieldID uint64, index *uint256.Int) error {
	return p.run("cancel_pod_listing", func() error {
		return p.market.CancelPodListing(caller, fieldID, index)
	})
}

func (p *Protocol) FillPodListing(buyer common.Address, listing market.Listing, beans *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	var pods *uint256.Int
	err := p.run("fill_pod_listing", func() error {
		var err error
		pods, err = p.market.FillPodListing(buyer, listing, beans, mode)
		return err
	})
	return pods, err
}

func (p *Protocol) Whitelist(entry silo.WhitelistEntry) error {
	return p.run("whitelist", func() error {
		return p.silo.Whitelist(entry)
	})
}

// Deposit moves tokens into the silo and returns the deposit's bdv and stem.
func (p *Protocol) Deposit(account, token common.Address, amount *uint256.Int, mode bank.Mode) (*uint256.Int, int64, error) {
	var (
		bdv  *uint256.Int
		stem int64
	)
	err := p.run("deposit", func() error {
		var err error
		bdv, stem, err = p.silo.Deposit(account, token, amount, mode)
		return err
	})
	return bdv, stem, err
}

func (p *Protocol) Withdraw(account, token common.Address, stems []int64, amounts []*uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.run("withdraw", func() error {
		var err error
		out, err = p.silo.Withdraw(account, token, stems, amounts, mode)
		return err
	})
	return out, err
}

// CreatePool creates a bean pool and registers it with the oracle and the
// convert pipes.
func (p *Protocol) CreatePool(pool, nonBean common.Address, ratio *uint256.Int) error {
	return p.run("create_pool", func() error {
		if err := p.well.CreatePool(pool, nonBean, ratio); err != nil {
			return err
		}
		return p.registerPool(pool)
	})
}

func (p *Protocol) AddLiquidity(account, pool common.Address, beans, nonBeans, minLP *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	var lp *uint256.Int
	err := p.run("add_liquidity", func() error {
		var err error
		lp, err = p.well.AddLiquidity(account, pool, beans, nonBeans, minLP, mode)
		return err
	})
	return lp, err
}

func (p *Protocol) RemoveLiquidityOneToken(account, pool common.Address, lp *uint256.Int, token common.Address, minOut *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.run("remove_liquidity", func() error {
		var err error
		out, err = p.well.RemoveLiquidityOneToken(account, pool, lp, token, minOut, mode)
		return err
	})
	return out, err
}

func (p *Protocol) Swap(account, pool, tokenIn common.Address, amountIn, minOut *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.run("swap", func() error {
		var err error
		out, err = p.well.Swap(account, pool, tokenIn, amountIn, minOut, mode)
		return err
	})
	return out, err
}
