package core_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"beanstalk/core"
	"beanstalk/core/events"
	"beanstalk/core/genesis"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/convert"
	"beanstalk/native/field"
	"beanstalk/native/market"
	"beanstalk/native/silo"
	"beanstalk/native/sun"
	"beanstalk/storage"
)

var (
	beanToken = common.HexToAddress("0x000000000000000000000000000000000000bea0")
	wethToken = common.HexToAddress("0x000000000000000000000000000000000000e770")
	beanWeth  = common.HexToAddress("0x0000000000000000000000000000000000009001")
	reserve   = common.HexToAddress("0x00000000000000000000000000000000000f1e1d")
	siloAcct  = common.HexToAddress("0x0000000000000000000000000000000000005170")
	provider  = common.HexToAddress("0x000000000000000000000000000000000000a11a")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const (
	genesisUnix = 1_767_225_600 // 2026-01-01T00:00:00Z
	period      = 3_600
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func genesisYAML() string {
	return fmt.Sprintf(`
genesisTime: "2026-01-01T00:00:00Z"
period: %d
temperature: 1000000
soil: "1000"
alloc:
  "%s":
    "%s": "1000"
  "%s":
    "%s": "900000"
    "%s": "1600000"
pools:
  - address: "%s"
    nonBeanToken: "%s"
    ratio: "1000000000000000000"
    provider: "%s"
    beans: "900000"
    nonBeans: "1600000"
whitelist:
  - token: "%s"
    bdvPlugin: bean
    stalkEarnedPerSeason: 2000000
  - token: "%s"
    bdvPlugin: well
    stalkEarnedPerSeason: 4000000
    isPool: true
fields: 1
routes:
  - plan: field
    points: 1
  - plan: silo
    points: 1
`, period,
		alice.Hex(), beanToken.Hex(),
		provider.Hex(), beanToken.Hex(), wethToken.Hex(),
		beanWeth.Hex(), wethToken.Hex(), provider.Hex(),
		beanToken.Hex(), beanWeth.Hex())
}

type fixture struct {
	p        *core.Protocol
	db       storage.Database
	recorder *events.Recorder
	opts     core.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	spec, err := genesis.ParseSpec([]byte(genesisYAML()))
	require.NoError(t, err)
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	recorder := &events.Recorder{}
	opts := core.Options{
		Bean:    beanToken,
		Reserve: reserve,
		Silo:    siloAcct,
		Params:  sun.DefaultParams(),
		Emitter: recorder,
	}
	p, head, err := genesis.Build(spec, db, opts)
	require.NoError(t, err)
	require.Equal(t, uint64(0), head.Height)
	// Past the morning so sows receive the full temperature.
	p.SetBlock(field.MorningBlocks, genesisUnix+60)
	return &fixture{p: p, db: db, recorder: recorder, opts: opts}
}

func TestGenesisSeedsProtocol(t *testing.T) {
	f := newFixture(t)

	s, err := f.p.Season()
	require.NoError(t, err)
	require.Equal(t, uint64(genesisUnix), s.Start)
	require.Equal(t, uint64(period), s.Period)
	require.Equal(t, uint64(1_000), s.Soil.Uint64())

	w, err := f.p.Weather()
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), w.Temp)

	pool, err := f.p.Pool(beanWeth)
	require.NoError(t, err)
	require.Equal(t, uint64(900_000), pool.BeanReserve.Uint64())
	require.Equal(t, uint64(1_600_000), pool.NonBeanReserve.Uint64())

	tokens, err := f.p.WhitelistedTokens()
	require.NoError(t, err)
	require.Equal(t, []common.Address{beanToken, beanWeth}, tokens)
	require.Len(t, f.p.Routes(), 2)
	require.Contains(t, f.p.Pipes(), core.AddLiquidityPipeName(beanWeth))

	current, twa := f.p.DeltaB()
	require.Equal(t, int64(300_000), current.Int64())
	require.Equal(t, int64(300_000), twa.Int64(), "no snapshot yet, so the current reserves stand in")

	head, ok := core.ReadHead(f.db)
	require.True(t, ok)
	require.Equal(t, f.p.Root(), head.Root)
}

func TestSowSunriseHarvest(t *testing.T) {
	f := newFixture(t)

	pods, err := f.p.Sow(alice, u(500), 0, u(0), bank.External)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), pods.Uint64())
	plots, err := f.p.Plots(alice, 0)
	require.NoError(t, err)
	require.Len(t, plots, 1)
	require.True(t, plots[0].Index.IsZero())
	require.Len(t, f.recorder.OfType(field.EventTypeSow), 1)

	_, err = f.p.Sunrise(context.Background(), bob, bank.External)
	require.ErrorIs(t, err, sun.ErrStillCurrentSeason)

	f.p.SetBlock(field.MorningBlocks+1, genesisUnix+period)
	res, err := f.p.Sunrise(context.Background(), bob, bank.External)
	require.NoError(t, err)
	require.Equal(t, uint32(1), res.Season)
	require.Equal(t, int64(300_000), res.TWADeltaB.Int64())
	require.Equal(t, uint64(300_000), res.Minted.Uint64())

	fld, err := f.p.Field(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), fld.Harvestable.Uint64())
	require.Len(t, f.recorder.OfType(sun.EventTypeShipment), 2)
	require.Len(t, f.recorder.OfType(silo.EventTypeShipmentReceived), 1)

	beans, err := f.p.Harvest(alice, 0, []*uint256.Int{u(0)}, bank.External)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), beans.Uint64())
	balance, err := f.p.BalanceOf(beanToken, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1_500), balance.Uint64())

	fld, err = f.p.Field(0)
	require.NoError(t, err)
	require.NoError(t, fld.Validate())
	require.Equal(t, uint64(1_000), fld.Harvested.Uint64())
}

func TestMultiCreatePodListingIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Sow(alice, u(500), 0, u(0), bank.External)
	require.NoError(t, err)

	valid := market.Listing{
		Lister:              alice,
		Index:               u(0),
		Start:               u(0),
		Amount:              u(100),
		PricePerPod:         500_000,
		MaxHarvestableIndex: u(5_000),
		Mode:                bank.External,
	}
	invalid := valid
	invalid.Amount = u(2_000)

	err = f.p.MultiCreatePodListing(alice, []market.Listing{valid, invalid})
	require.ErrorIs(t, err, market.ErrInvalidListing)
	got, err := f.p.Listing(0, u(0))
	require.NoError(t, err)
	require.Nil(t, got)
	require.Empty(t, f.recorder.OfType(market.EventTypeListingCreated))

	require.NoError(t, f.p.MultiCreatePodListing(alice, []market.Listing{valid}))
	got, err = f.p.Listing(0, u(0))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, f.recorder.OfType(market.EventTypeListingCreated), 1)

	require.NoError(t, f.p.Mint(beanToken, bob, u(50), bank.External))
	bought, err := f.p.FillPodListing(bob, valid, u(50), bank.External)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bought.Uint64())
	bobPlots, err := f.p.Plots(bob, 0)
	require.NoError(t, err)
	require.Len(t, bobPlots, 1)
}

// reenteringPipe calls back into the protocol while a convert is running.
type reenteringPipe struct {
	p      *core.Protocol
	nested error
}

func (r *reenteringPipe) TokenIn() common.Address  { return beanToken }
func (r *reenteringPipe) TokenOut() common.Address { return beanWeth }
func (r *reenteringPipe) Quote(amount *uint256.Int) (*uint256.Int, error) {
	return nativecommon.OrZero(amount).Clone(), nil
}

func (r *reenteringPipe) Execute(holder common.Address, amount *uint256.Int) (*uint256.Int, error) {
	_, r.nested = r.p.Convert(context.Background(), holder, convert.Request{Kind: convert.Lambda, FromToken: beanToken, ToToken: beanToken})
	if r.nested != nil {
		return nil, r.nested
	}
	return amount, nil
}

func TestReentrantCallRevertsWholeConvert(t *testing.T) {
	f := newFixture(t)
	bdv, stem, err := f.p.Deposit(alice, beanToken, u(100), bank.External)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bdv.Uint64())

	pipe := &reenteringPipe{p: f.p}
	require.NoError(t, f.p.RegisterPipe("reenter", pipe))
	recorded := len(f.recorder.Events)

	_, err = f.p.Convert(context.Background(), alice, convert.Request{
		Kind:      convert.Pipeline,
		FromToken: beanToken,
		ToToken:   beanWeth,
		Stems:     []int64{stem},
		Amounts:   []*uint256.Int{u(100)},
		Pipes:     []string{"reenter"},
	})
	require.ErrorIs(t, err, nativecommon.ErrReentrant)
	require.ErrorIs(t, pipe.nested, nativecommon.ErrReentrant)

	deposits, err := f.p.Deposits(alice, beanToken)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.Equal(t, uint64(100), deposits[0].Amount.Uint64())
	require.Equal(t, stem, deposits[0].Stem)
	require.Len(t, f.recorder.Events, recorded, "reverted call must not publish events")

	// The guard is released once the outer call returns.
	_, _, err = f.p.Deposit(alice, beanToken, u(1), bank.External)
	require.NoError(t, err)
}

func TestCommitAndReopen(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Sow(alice, u(500), 0, u(0), bank.External)
	require.NoError(t, err)
	f.p.SetBlock(7, genesisUnix+120)
	root, err := f.p.Commit()
	require.NoError(t, err)

	spec, err := genesis.ParseSpec([]byte(genesisYAML()))
	require.NoError(t, err)
	reopened, head, err := genesis.Open(spec, f.db, f.opts)
	require.NoError(t, err)
	require.Equal(t, uint64(7), head.Height)
	require.Equal(t, root, head.Root)

	plots, err := reopened.Plots(alice, 0)
	require.NoError(t, err)
	require.Len(t, plots, 1)
	require.Equal(t, uint64(1_000), plots[0].Pods.Uint64())
	require.Len(t, reopened.Routes(), 2)
	require.Contains(t, reopened.Pipes(), core.RemoveLiquidityPipeName(beanWeth))
}

func TestPausedModuleRejectsSow(t *testing.T) {
	spec, err := genesis.ParseSpec([]byte(genesisYAML()))
	require.NoError(t, err)
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	p, _, err := genesis.Build(spec, db, core.Options{
		Bean:    beanToken,
		Reserve: reserve,
		Silo:    siloAcct,
		Params:  sun.DefaultParams(),
		Pauses:  nativecommon.StaticPauses{"field": true},
	})
	require.NoError(t, err)
	p.SetBlock(field.MorningBlocks, genesisUnix+60)

	_, err = p.Sow(alice, u(500), 0, u(0), bank.External)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	balance, err := p.BalanceOf(beanToken, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), balance.Uint64())
}

func TestUnlistedPoolLeavesAggregateDeltaBUnchanged(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0x0000000000000000000000000000000000009002")
	require.NoError(t, f.p.CreatePool(other, wethToken, nativecommon.Ratio))
	require.NoError(t, f.p.Mint(beanToken, bob, u(100), bank.External))
	require.NoError(t, f.p.Mint(wethToken, bob, u(400), bank.External))
	_, err := f.p.AddLiquidity(bob, other, u(100), u(400), u(0), bank.External)
	require.NoError(t, err)

	current, twa := f.p.DeltaB()
	require.Equal(t, int64(300_000), current.Int64(), "a pool off the whitelist must not move the aggregate")
	require.Equal(t, int64(300_000), twa.Int64())

	f.p.SetBlock(field.MorningBlocks+1, genesisUnix+period)
	res, err := f.p.Sunrise(context.Background(), bob, bank.External)
	require.NoError(t, err)
	require.Equal(t, int64(300_000), res.TWADeltaB.Int64())
	require.Equal(t, uint64(300_000), res.Minted.Uint64())

	require.NoError(t, f.p.Whitelist(silo.WhitelistEntry{
		Token:                other,
		BDVPlugin:            core.WellPlugin,
		StalkEarnedPerSeason: 4_000_000,
		IsPool:               true,
	}))
	current, _ = f.p.DeltaB()
	require.Equal(t, int64(300_100), current.Int64())
}

func TestRejectedShipmentRoutesKeepPrevious(t *testing.T) {
	f := newFixture(t)
	before := f.p.Routes()

	err := f.p.SetShipmentRoutes([]sun.Route{{Plan: "field", Points: 1}, {Plan: "nowhere", Points: 1}})
	require.ErrorIs(t, err, sun.ErrUnknownPlan)
	require.Equal(t, before, f.p.Routes())

	routes := []sun.Route{{Plan: "silo", Points: 3}}
	require.NoError(t, f.p.SetShipmentRoutes(routes))
	require.Equal(t, routes, f.p.Routes())

	_, err = f.p.Commit()
	require.NoError(t, err)
	spec, err := genesis.ParseSpec([]byte(genesisYAML()))
	require.NoError(t, err)
	reopened, _, err := genesis.Open(spec, f.db, f.opts)
	require.NoError(t, err)
	require.Equal(t, routes, reopened.Routes())
}
