package market

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/events"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
)

var (
	errNilState = errors.New("market engine: state not configured")
	errNilField = errors.New("market engine: field not configured")
	errNilBank  = errors.New("market engine: bank not configured")

	ErrNotLister       = errors.New("market engine: caller is not the lister")
	ErrInvalidListing  = errors.New("market engine: invalid plot or amount")
	ErrInvalidPrice    = errors.New("market engine: price per pod must be positive")
	ErrInvalidMode     = errors.New("market engine: invalid proceeds mode")
	ErrListingExpired  = errors.New("market engine: listing expired")
	ErrListingNotFound = errors.New("market engine: listing not found")
	ErrListingMismatch = errors.New("market engine: listing terms changed")
	ErrFillTooLarge    = errors.New("market engine: fill exceeds listed pods")
	ErrBelowMinFill    = errors.New("market engine: fill below minimum")
	ErrZeroFill        = errors.New("market engine: fill buys no pods")
	ErrEmptyBatch      = errors.New("market engine: no listings")
)

const moduleName = "market"

type engineState interface {
	GetListing(fieldID uint64, index *uint256.Int) (*Listing, error)
	PutListing(l *Listing) error
	DeleteListing(fieldID uint64, index *uint256.Int) error
}

// Field is the pod ledger listings are backed by.
type Field interface {
	Plot(account common.Address, fieldID uint64, index *uint256.Int) (*uint256.Int, error)
	MaxHarvestableIndex(fieldID uint64) (*uint256.Int, error)
	TransferPlot(operator, sender, recipient common.Address, fieldID uint64, index, start, end *uint256.Int) error
}

// Bank moves the beans paid for filled listings.
type Bank interface {
	Transfer(token, from, to common.Address, amount *uint256.Int, fromMode, toMode bank.Mode) error
}

// Engine keeps pod listings against plots on the field ledger.
type Engine struct {
	state   engineState
	field   Field
	bank    Bank
	bean    common.Address
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

func NewEngine(bean common.Address) *Engine {
	return &Engine{bean: bean, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetField(f Field) { e.field = f }
func (e *Engine) SetBank(b Bank)   { e.bank = b }

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

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.field == nil:
		return errNilField
	}
	return nil
}

// Listing returns the listing at (fieldID, index), nil when none.
func (e *Engine) Listing(fieldID uint64, index *uint256.Int) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	l, err := e.state.GetListing(fieldID, nativecommon.OrZero(index))
	if err != nil || l == nil {
		return nil, err
	}
	return l.Clone(), nil
}

// CreatePodListing lists pods of the caller's plot. An existing listing on
// the same plot is replaced.
func (e *Engine) CreatePodListing(caller common.Address, listing Listing) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	l, err := e.validate(caller, &listing)
	if err != nil {
		return err
	}
	return e.put(l)
}

// MultiCreatePodListing creates every listing or none. All listings are
// validated before the first is written.
func (e *Engine) MultiCreatePodListing(caller common.Address, listings []Listing) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if len(listings) == 0 {
		return ErrEmptyBatch
	}
	valid := make([]*Listing, len(listings))
	for i := range listings {
		l, err := e.validate(caller, &listings[i])
		if err != nil {
			return fmt.Errorf("listing %d: %w", i, err)
		}
		valid[i] = l
	}
	for _, l := range valid {
		if err := e.put(l); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) validate(caller common.Address, listing *Listing) (*Listing, error) {
	l := listing.Clone()
	if l.Lister != caller || caller == (common.Address{}) {
		return nil, ErrNotLister
	}
	if l.PricePerPod == 0 {
		return nil, ErrInvalidPrice
	}
	if l.Mode != bank.External && l.Mode != bank.Internal {
		return nil, ErrInvalidMode
	}
	pods, err := e.field.Plot(caller, l.FieldID, l.Index)
	if err != nil {
		return nil, err
	}
	if l.Amount.IsZero() || nativecommon.OrZero(pods).Lt(l.End()) {
		return nil, ErrInvalidListing
	}
	harvestable, err := e.field.MaxHarvestableIndex(l.FieldID)
	if err != nil {
		return nil, err
	}
	if harvestable.Gt(l.MaxHarvestableIndex) {
		return nil, ErrListingExpired
	}
	return l, nil
}

func (e *Engine) put(l *Listing) error {
	if err := e.state.PutListing(l); err != nil {
		return err
	}
	e.emitter.Emit(events.Wrap(NewListingCreatedEvent(l)))
	return nil
}

// CancelPodListing removes the caller's listing on the plot at index.
func (e *Engine) CancelPodListing(caller common.Address, fieldID uint64, index *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	index = nativecommon.OrZero(index)
	l, err := e.state.GetListing(fieldID, index)
	if err != nil {
		return err
	}
	if l == nil {
		return ErrListingNotFound
	}
	if l.Lister != caller {
		return ErrNotLister
	}
	return e.remove(l.Lister, fieldID, index)
}

// CancelListing drops any listing on the plot at index. The field ledger
// calls it before a plot is harvested or transferred. Missing listings are
// not an error.
func (e *Engine) CancelListing(account common.Address, fieldID uint64, index *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	index = nativecommon.OrZero(index)
	l, err := e.state.GetListing(fieldID, index)
	if err != nil || l == nil {
		return err
	}
	return e.remove(account, fieldID, index)
}

func (e *Engine) remove(lister common.Address, fieldID uint64, index *uint256.Int) error {
	if err := e.state.DeleteListing(fieldID, index); err != nil {
		return err
	}
	e.emitter.Emit(events.Wrap(NewListingCancelledEvent(lister, fieldID, index)))
	return nil
}

// FillPodListing buys pods from a listing with beans. The terms passed in
// must match the stored listing. Pods bought are beans / price and the buyer
// pays only for those pods; the lister is paid and any unsold remainder is
// listed again at the plot's new index.
func (e *Engine) FillPodListing(buyer common.Address, listing Listing, beans *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	want := listing.Clone()
	stored, err := e.state.GetListing(want.FieldID, want.Index)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrListingNotFound
	}
	if !stored.Equal(want) {
		return nil, ErrListingMismatch
	}
	l := stored.Clone()
	harvestable, err := e.field.MaxHarvestableIndex(l.FieldID)
	if err != nil {
		return nil, err
	}
	if harvestable.Gt(l.MaxHarvestableIndex) {
		return nil, ErrListingExpired
	}

	beans = nativecommon.OrZero(beans)
	pods, err := nativecommon.MulDiv(beans, uint256.NewInt(PricePrecision), uint256.NewInt(uint64(l.PricePerPod)))
	if err != nil {
		return nil, err
	}
	switch {
	case pods.IsZero():
		return nil, ErrZeroFill
	case pods.Gt(l.Amount):
		return nil, ErrFillTooLarge
	case pods.Lt(l.MinFillAmount):
		return nil, ErrBelowMinFill
	}

	// Never more than beans since pods was rounded down.
	cost, err := nativecommon.MulDivUp(pods, uint256.NewInt(uint64(l.PricePerPod)), uint256.NewInt(PricePrecision))
	if err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.bean, buyer, l.Lister, cost, mode, l.Mode); err != nil {
		return nil, err
	}
	if err := e.state.DeleteListing(l.FieldID, l.Index); err != nil {
		return nil, err
	}
	end := new(uint256.Int).Add(l.Start, pods)
	if err := e.field.TransferPlot(l.Lister, l.Lister, buyer, l.FieldID, l.Index, l.Start, end); err != nil {
		return nil, err
	}
	if rest := new(uint256.Int).Sub(l.Amount, pods); !rest.IsZero() {
		next := l.Clone()
		next.Index = new(uint256.Int).Add(l.Index, end)
		next.Start = new(uint256.Int)
		next.Amount = rest
		if err := e.state.PutListing(next); err != nil {
			return nil, err
		}
		e.emitter.Emit(events.Wrap(NewListingCreatedEvent(next)))
	}
	bought := new(uint256.Int).Add(l.Index, l.Start)
	e.emitter.Emit(events.Wrap(NewListingFilledEvent(l.Lister, buyer, l.FieldID, bought, pods, cost)))
	return pods, nil
}
