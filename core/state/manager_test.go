package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/field"
	"beanstalk/native/market"
	"beanstalk/native/season"
	"beanstalk/native/silo"
	"beanstalk/storage"
	"beanstalk/storage/trie"
)

var (
	alice = common.HexToAddress("0xA11CE")
	bob   = common.HexToAddress("0xB0B")
	bean  = common.HexToAddress("0xBEA0")
	lp    = common.HexToAddress("0x9001")
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	return NewManager(tr)
}

func TestKeyFormats(t *testing.T) {
	require.Equal(t, "field/3", string(FieldKey(3)))
	require.Equal(t, "capacity/7", string(ConvertCapacityKey(7, common.Address{})))
	require.Equal(t, "capacity/7/"+lp.Hex(), string(ConvertCapacityKey(7, lp)))
	require.Equal(t, "listing/0/0x64", string(ListingKey(0, uint256.NewInt(100))))
	require.Equal(t, "deposit/"+alice.Hex()+"/"+bean.Hex()+"/-5", string(DepositKey(alice, bean, -5)))
	require.Equal(t, "balance/"+bean.Hex()+"/"+alice.Hex()+"/internal", string(BalanceKey(bean, alice, bank.Internal)))
}

func TestFieldAndPlots(t *testing.T) {
	m := newManager(t)

	f, err := m.GetField(0)
	require.NoError(t, err)
	require.Nil(t, f)

	require.NoError(t, m.PutField(0, &field.Field{Pods: uint256.NewInt(1_000), Harvestable: uint256.NewInt(400)}))
	require.NoError(t, m.PutField(0, &field.Field{Pods: uint256.NewInt(1_500), Harvestable: uint256.NewInt(400)}))
	require.NoError(t, m.PutField(1, field.NewField()))
	ids, err := m.FieldIDs()
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, ids)

	f, err = m.GetField(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1_500), f.Pods.Uint64())
	require.True(t, f.Harvested.IsZero())

	require.NoError(t, m.SetActiveFieldID(1))
	active, err := m.ActiveFieldID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), active)

	idx := m.PlotIndexes(alice, 0)
	for _, i := range []uint64{0, 500, 900} {
		require.NoError(t, m.PutPlot(alice, 0, uint256.NewInt(i), uint256.NewInt(10)))
		require.NoError(t, nativecommon.Push(idx, *uint256.NewInt(i)))
	}
	require.NoError(t, m.DeletePlot(alice, 0, uint256.NewInt(0)))
	require.NoError(t, nativecommon.SwapRemove(idx, *uint256.NewInt(0)))

	n, err := idx.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
	first, err := idx.At(0)
	require.NoError(t, err)
	require.Equal(t, uint64(900), first.Uint64())
	pos, ok, err := idx.Position(*uint256.NewInt(900))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), pos)
	_, ok, err = idx.Position(*uint256.NewInt(0))
	require.NoError(t, err)
	require.False(t, ok)

	pods, err := m.GetPlot(alice, 0, uint256.NewInt(0))
	require.NoError(t, err)
	require.Nil(t, pods)
	pods, err = m.GetPlot(alice, 0, uint256.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, uint64(10), pods.Uint64())

	require.NoError(t, m.PutPodAllowance(alice, bob, 0, uint256.NewInt(7)))
	allowance, err := m.GetPodAllowance(alice, bob, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(7), allowance.Uint64())
}

func TestSeasonSingletonsAndConvertRecords(t *testing.T) {
	m := newManager(t)

	s, err := m.GetSeason()
	require.NoError(t, err)
	require.Nil(t, s)

	require.NoError(t, m.PutSeason(&season.Season{Current: 4, Period: 3_600, AbovePeg: true, Soil: uint256.NewInt(55)}))
	s, err = m.GetSeason()
	require.NoError(t, err)
	require.Equal(t, uint32(4), s.Current)
	require.True(t, s.AbovePeg)
	require.Equal(t, uint64(55), s.Soil.Uint64())
	require.True(t, s.InitialSoil.IsZero())

	require.NoError(t, m.PutWeather(&season.Weather{Temp: 990_000, ThisSowTime: season.NotSoldOut}))
	w, err := m.GetWeather()
	require.NoError(t, err)
	require.Equal(t, uint64(990_000), w.Temp)
	require.Equal(t, season.NotSoldOut, w.ThisSowTime)

	require.NoError(t, m.PutRain(&season.Rain{Raining: true, RainStart: 3, Pods: uint256.NewInt(9)}))
	r, err := m.GetRain()
	require.NoError(t, err)
	require.True(t, r.Raining)
	require.Equal(t, uint64(9), r.Pods.Uint64())

	require.NoError(t, m.PutGauges(&season.Gauges{CultivationFactor: 20_000}))
	g, err := m.GetGauges()
	require.NoError(t, err)
	require.Equal(t, uint64(20_000), g.CultivationFactor)

	require.NoError(t, m.PutConvertCapacity(4, common.Address{}, uint256.NewInt(100)))
	require.NoError(t, m.PutConvertCapacity(4, lp, uint256.NewInt(30)))
	overall, err := m.GetConvertCapacity(4, common.Address{})
	require.NoError(t, err)
	require.Equal(t, uint64(100), overall.Uint64())
	pool, err := m.GetConvertCapacity(4, lp)
	require.NoError(t, err)
	require.Equal(t, uint64(30), pool.Uint64())
	next, err := m.GetConvertCapacity(5, lp)
	require.NoError(t, err)
	require.True(t, next.IsZero())

	require.NoError(t, m.PutConvertBonus(4, alice, uint256.NewInt(12)))
	bonus, err := m.GetConvertBonus(4, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(12), bonus.Uint64())
	require.NoError(t, m.PutConvertBonus(4, alice, nil))
	bonus, err = m.GetConvertBonus(4, alice)
	require.NoError(t, err)
	require.True(t, bonus.IsZero())
}

func TestSiloRecordsKeepNegativeStems(t *testing.T) {
	m := newManager(t)

	require.NoError(t, m.PutWhitelistEntry(&silo.WhitelistEntry{
		Token:                lp,
		BDVPlugin:            "well",
		StalkEarnedPerSeason: 4_000_000,
		MilestoneStem:        -12_000_000,
		MilestoneSeason:      9,
		LiquidityWeight:      nativecommon.Ratio,
		IsPool:               true,
	}))
	entry, err := m.GetWhitelistEntry(lp)
	require.NoError(t, err)
	require.Equal(t, int64(-12_000_000), entry.MilestoneStem)
	require.True(t, entry.IsPool)
	require.True(t, entry.LiquidityWeight.Eq(nativecommon.Ratio))
	tokens, err := m.WhitelistedTokens()
	require.NoError(t, err)
	require.Equal(t, []common.Address{lp}, tokens)

	stems := m.DepositStems(alice, lp)
	for _, stem := range []int64{-3, 0, 7} {
		require.NoError(t, m.PutDeposit(alice, lp, stem, &silo.Deposit{Amount: uint256.NewInt(uint64(10 + stem)), BDV: uint256.NewInt(5)}))
		require.NoError(t, nativecommon.Push(stems, stem))
	}
	items, err := stems.(*trieIndex[int64]).items()
	require.NoError(t, err)
	require.Equal(t, []int64{-3, 0, 7}, items)

	d, err := m.GetDeposit(alice, lp, -3)
	require.NoError(t, err)
	require.Equal(t, uint64(7), d.Amount.Uint64())
	require.NoError(t, m.DeleteDeposit(alice, lp, -3))
	d, err = m.GetDeposit(alice, lp, -3)
	require.NoError(t, err)
	require.Nil(t, d)

	require.NoError(t, m.PutSiloTotals(lp, &silo.Totals{Deposited: uint256.NewInt(17)}))
	totals, err := m.GetSiloTotals(lp)
	require.NoError(t, err)
	require.Equal(t, uint64(17), totals.Deposited.Uint64())
	require.True(t, totals.DepositedBdv.IsZero())
}

func TestListingsAndBalances(t *testing.T) {
	m := newManager(t)

	l := &market.Listing{
		Lister:              alice,
		FieldID:             0,
		Index:               uint256.NewInt(100),
		Amount:              uint256.NewInt(50),
		PricePerPod:         250_000,
		MaxHarvestableIndex: uint256.NewInt(1_000),
		Mode:                bank.Internal,
	}
	require.NoError(t, m.PutListing(l))
	got, err := m.GetListing(0, uint256.NewInt(100))
	require.NoError(t, err)
	require.True(t, got.Equal(l))
	require.NoError(t, m.DeleteListing(0, uint256.NewInt(100)))
	got, err = m.GetListing(0, uint256.NewInt(100))
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, m.PutBalance(bean, alice, bank.Internal, uint256.NewInt(8)))
	ext, err := m.GetBalance(bean, alice, bank.External)
	require.NoError(t, err)
	require.True(t, ext.IsZero())
	internal, err := m.GetBalance(bean, alice, bank.Internal)
	require.NoError(t, err)
	require.Equal(t, uint64(8), internal.Uint64())

	require.NoError(t, m.PutSupply(bean, uint256.NewInt(8)))
	supply, err := m.GetSupply(bean)
	require.NoError(t, err)
	require.Equal(t, uint64(8), supply.Uint64())
}

func TestSnapshotRevertAndCommit(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.PutSupply(bean, uint256.NewInt(1)))
	root, err := m.Commit(1)
	require.NoError(t, err)
	require.Equal(t, root, m.Root())

	snap := m.Snapshot()
	require.NoError(t, m.PutSupply(bean, uint256.NewInt(2)))
	require.NoError(t, m.PutField(0, field.NewField()))
	require.NotEqual(t, root, m.Hash())

	m.Revert(snap)
	require.Equal(t, root, m.Hash())
	supply, err := m.GetSupply(bean)
	require.NoError(t, err)
	require.Equal(t, uint64(1), supply.Uint64())
	ids, err := m.FieldIDs()
	require.NoError(t, err)
	require.Empty(t, ids)
}
