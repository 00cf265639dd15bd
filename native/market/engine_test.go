package market

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/events"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
)

type listingKey struct {
	field uint64
	index string
}

type mockState struct {
	listings map[listingKey]*Listing
}

func newMockState() *mockState {
	return &mockState{listings: make(map[listingKey]*Listing)}
}

func (m *mockState) GetListing(fieldID uint64, index *uint256.Int) (*Listing, error) {
	if l, ok := m.listings[listingKey{fieldID, index.Dec()}]; ok {
		return l.Clone(), nil
	}
	return nil, nil
}

func (m *mockState) PutListing(l *Listing) error {
	m.listings[listingKey{l.FieldID, l.Index.Dec()}] = l.Clone()
	return nil
}

func (m *mockState) DeleteListing(fieldID uint64, index *uint256.Int) error {
	delete(m.listings, listingKey{fieldID, index.Dec()})
	return nil
}

type plotKey struct {
	account common.Address
	index   uint64
}

// fakeField keeps plots of field 0 and splits them on transfer the way the
// field ledger does, including the listing cancel callback.
type fakeField struct {
	plots       map[plotKey]uint64
	harvestable uint64
	listings    interface {
		CancelListing(common.Address, uint64, *uint256.Int) error
	}
}

func (f *fakeField) Plot(account common.Address, _ uint64, index *uint256.Int) (*uint256.Int, error) {
	return uint256.NewInt(f.plots[plotKey{account, index.Uint64()}]), nil
}

func (f *fakeField) MaxHarvestableIndex(uint64) (*uint256.Int, error) {
	return uint256.NewInt(f.harvestable), nil
}

func (f *fakeField) TransferPlot(_, sender, recipient common.Address, fieldID uint64, index, start, end *uint256.Int) error {
	idx := index.Uint64()
	pods := f.plots[plotKey{sender, idx}]
	s, e := start.Uint64(), end.Uint64()
	if pods == 0 || e <= s || pods < e {
		return errors.New("invalid range")
	}
	if f.listings != nil {
		if err := f.listings.CancelListing(sender, fieldID, index); err != nil {
			return err
		}
	}
	delete(f.plots, plotKey{sender, idx})
	if s > 0 {
		f.plots[plotKey{sender, idx}] = s
	}
	f.plots[plotKey{recipient, idx + s}] = e - s
	if pods > e {
		f.plots[plotKey{sender, idx + e}] = pods - e
	}
	return nil
}

type transfer struct {
	from, to common.Address
	amount   uint64
	toMode   bank.Mode
}

type fakeBank struct {
	transfers []transfer
	err       error
}

func (b *fakeBank) Transfer(_, from, to common.Address, amount *uint256.Int, _, toMode bank.Mode) error {
	if b.err != nil {
		return b.err
	}
	b.transfers = append(b.transfers, transfer{from, to, amount.Uint64(), toMode})
	return nil
}

var (
	beanToken = common.HexToAddress("0xBEA0")
	alice     = common.HexToAddress("0xA11CE")
	bob       = common.HexToAddress("0xB0B")
)

func newTestEngine() (*Engine, *mockState, *fakeField, *fakeBank, *events.Recorder) {
	state := newMockState()
	field := &fakeField{plots: map[plotKey]uint64{
		{alice, 0}:     1_000,
		{alice, 1_000}: 500,
		{alice, 2_000}: 300,
		{bob, 1_500}:   500,
	}}
	bk := &fakeBank{}
	rec := &events.Recorder{}
	engine := NewEngine(beanToken)
	engine.SetState(state)
	engine.SetField(field)
	engine.SetBank(bk)
	engine.SetEmitter(rec)
	field.listings = engine
	return engine, state, field, bk, rec
}

func listing(lister common.Address, index, start, amount uint64) Listing {
	return Listing{
		Lister:              lister,
		Index:               uint256.NewInt(index),
		Start:               uint256.NewInt(start),
		Amount:              uint256.NewInt(amount),
		PricePerPod:         500_000,
		MaxHarvestableIndex: uint256.NewInt(10_000),
		Mode:                bank.Internal,
	}
}

func TestCreatePodListingValidation(t *testing.T) {
	engine, state, field, _, _ := newTestEngine()

	if err := engine.CreatePodListing(bob, listing(alice, 0, 0, 100)); !errors.Is(err, ErrNotLister) {
		t.Fatalf("expected ErrNotLister, got %v", err)
	}
	if err := engine.CreatePodListing(alice, listing(alice, 0, 900, 200)); !errors.Is(err, ErrInvalidListing) {
		t.Fatalf("listing past the plot end should fail, got %v", err)
	}
	if err := engine.CreatePodListing(alice, listing(alice, 0, 0, 0)); !errors.Is(err, ErrInvalidListing) {
		t.Fatalf("empty listing should fail, got %v", err)
	}
	free := listing(alice, 0, 0, 100)
	free.PricePerPod = 0
	if err := engine.CreatePodListing(alice, free); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	field.harvestable = 20_000
	if err := engine.CreatePodListing(alice, listing(alice, 0, 0, 100)); !errors.Is(err, ErrListingExpired) {
		t.Fatalf("expected ErrListingExpired, got %v", err)
	}
	field.harvestable = 0
	if err := engine.CreatePodListing(alice, listing(alice, 0, 100, 900)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(state.listings) != 1 {
		t.Fatalf("expected one listing, got %d", len(state.listings))
	}
}

func TestMultiCreatePodListingIsAllOrNothing(t *testing.T) {
	engine, state, _, _, rec := newTestEngine()
	batch := []Listing{
		listing(alice, 0, 0, 100),
		listing(alice, 1_000, 0, 500),
		listing(alice, 2_000, 0, 300),
		listing(bob, 1_500, 0, 500),
	}
	if err := engine.MultiCreatePodListing(alice, batch); !errors.Is(err, ErrNotLister) {
		t.Fatalf("expected ErrNotLister, got %v", err)
	}
	if len(state.listings) != 0 || len(rec.OfType(EventTypeListingCreated)) != 0 {
		t.Fatalf("a failed batch must create nothing")
	}
	if err := engine.MultiCreatePodListing(alice, batch[:3]); err != nil {
		t.Fatalf("valid batch: %v", err)
	}
	if len(state.listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(state.listings))
	}
	if err := engine.MultiCreatePodListing(alice, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestCancelPodListing(t *testing.T) {
	engine, state, _, _, rec := newTestEngine()
	_ = engine.CreatePodListing(alice, listing(alice, 0, 0, 100))

	if err := engine.CancelPodListing(bob, 0, uint256.NewInt(0)); !errors.Is(err, ErrNotLister) {
		t.Fatalf("expected ErrNotLister, got %v", err)
	}
	if err := engine.CancelPodListing(alice, 0, uint256.NewInt(0)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(state.listings) != 0 || len(rec.OfType(EventTypeListingCancelled)) != 1 {
		t.Fatalf("listing not cancelled")
	}
	if err := engine.CancelPodListing(alice, 0, uint256.NewInt(0)); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	if err := engine.CancelListing(alice, 0, uint256.NewInt(42)); err != nil {
		t.Fatalf("callback on a missing listing should be a no-op: %v", err)
	}
}

func TestPlotTransferCancelsListing(t *testing.T) {
	engine, state, field, _, _ := newTestEngine()
	_ = engine.CreatePodListing(alice, listing(alice, 1_000, 0, 500))
	if err := field.TransferPlot(alice, alice, bob, 0, uint256.NewInt(1_000), uint256.NewInt(0), uint256.NewInt(100)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(state.listings) != 0 {
		t.Fatalf("transferring the plot must drop its listing")
	}
}

func TestFillPodListingPartial(t *testing.T) {
	engine, state, field, bk, rec := newTestEngine()
	l := listing(alice, 0, 100, 600)
	l.MinFillAmount = uint256.NewInt(50)
	if err := engine.CreatePodListing(alice, l); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 100 beans at 0.5 per pod buys 200 pods.
	pods, err := engine.FillPodListing(bob, l, uint256.NewInt(100), bank.External)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if pods.Uint64() != 200 {
		t.Fatalf("expected 200 pods, got %s", pods)
	}
	if len(bk.transfers) != 1 || bk.transfers[0] != (transfer{bob, alice, 100, bank.Internal}) {
		t.Fatalf("unexpected payment %+v", bk.transfers)
	}
	if field.plots[plotKey{bob, 100}] != 200 || field.plots[plotKey{alice, 0}] != 100 || field.plots[plotKey{alice, 300}] != 700 {
		t.Fatalf("unexpected plots after fill %v", field.plots)
	}
	next, _ := engine.Listing(0, uint256.NewInt(300))
	if next == nil || next.Amount.Uint64() != 400 || !next.Start.IsZero() {
		t.Fatalf("remainder should be listed at the tail plot, got %+v", next)
	}
	if old, _ := engine.Listing(0, uint256.NewInt(0)); old != nil {
		t.Fatalf("filled listing should be removed")
	}
	if len(state.listings) != 1 || len(rec.OfType(EventTypeListingFilled)) != 1 {
		t.Fatalf("unexpected listing state after fill")
	}

	if _, err := engine.FillPodListing(bob, *next, uint256.NewInt(10), bank.External); !errors.Is(err, ErrBelowMinFill) {
		t.Fatalf("expected ErrBelowMinFill, got %v", err)
	}
	if _, err := engine.FillPodListing(bob, *next, uint256.NewInt(201), bank.External); !errors.Is(err, ErrFillTooLarge) {
		t.Fatalf("expected ErrFillTooLarge, got %v", err)
	}
	if _, err := engine.FillPodListing(bob, *next, uint256.NewInt(200), bank.External); err != nil {
		t.Fatalf("full fill: %v", err)
	}
	if len(state.listings) != 0 || field.plots[plotKey{bob, 300}] != 400 {
		t.Fatalf("full fill should clear the listing, plots %v", field.plots)
	}
}

func TestFillPodListingChargesOnlyWholePods(t *testing.T) {
	engine, _, field, bk, _ := newTestEngine()
	l := listing(alice, 0, 0, 100)
	l.PricePerPod = 3_000_000
	if err := engine.CreatePodListing(alice, l); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 10 beans at 3 per pod buys 3 pods for 9 beans.
	pods, err := engine.FillPodListing(bob, l, uint256.NewInt(10), bank.External)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if pods.Uint64() != 3 {
		t.Fatalf("expected 3 pods, got %s", pods)
	}
	if len(bk.transfers) != 1 || bk.transfers[0] != (transfer{bob, alice, 9, bank.Internal}) {
		t.Fatalf("buyer should pay 9 beans, got %+v", bk.transfers)
	}
	if field.plots[plotKey{bob, 0}] != 3 {
		t.Fatalf("unexpected plots after fill %v", field.plots)
	}
}

func TestFillPodListingRejectsChangedTerms(t *testing.T) {
	engine, _, field, bk, _ := newTestEngine()
	l := listing(alice, 0, 0, 500)
	_ = engine.CreatePodListing(alice, l)

	cheaper := l
	cheaper.PricePerPod = 1
	if _, err := engine.FillPodListing(bob, cheaper, uint256.NewInt(10), bank.External); !errors.Is(err, ErrListingMismatch) {
		t.Fatalf("expected ErrListingMismatch, got %v", err)
	}
	field.harvestable = 20_000
	if _, err := engine.FillPodListing(bob, l, uint256.NewInt(10), bank.External); !errors.Is(err, ErrListingExpired) {
		t.Fatalf("expected ErrListingExpired, got %v", err)
	}
	field.harvestable = 0
	if _, err := engine.FillPodListing(bob, listing(alice, 2_000, 0, 10), uint256.NewInt(1), bank.External); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	if len(bk.transfers) != 0 {
		t.Fatalf("rejected fills must not move beans")
	}
}

func TestListingPausedModule(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	engine.SetPauses(nativecommon.StaticPauses{moduleName: true})
	if err := engine.CreatePodListing(alice, listing(alice, 0, 0, 100)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}
