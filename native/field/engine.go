package field

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/events"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/season"
	"beanstalk/observability/metrics"
)

var (
	errNilState = errors.New("field engine: state not configured")
	errNilField = errors.New("field engine: field is nil")
	errNilBank  = errors.New("field engine: bank not configured")

	ErrUnknownField        = errors.New("field engine: unknown field")
	ErrInsolvent           = errors.New("field engine: harvested exceeds harvestable or harvestable exceeds pods")
	ErrZeroAmount          = errors.New("field engine: amount must be positive")
	ErrSoilTooLow          = errors.New("field engine: soil below minimum")
	ErrTemperatureTooLow   = errors.New("field engine: temperature below minimum")
	ErrPlotNotOwned        = errors.New("field engine: plot not owned by account")
	ErrPlotNotHarvestable  = errors.New("field engine: plot not harvestable")
	ErrTooFewPlots         = errors.New("field engine: need at least two plots to combine")
	ErrPlotsNotAdjacent    = errors.New("field engine: plots are not adjacent")
	ErrInvalidRange        = errors.New("field engine: invalid pod range")
	ErrArrayLengthMismatch = errors.New("field engine: array length mismatch")
	ErrZeroAddress         = errors.New("field engine: zero address")
	ErrAllowanceExceeded   = errors.New("field engine: insufficient pod allowance")
)

const moduleName = "field"

// SoldOutThreshold is the soil level below which the season counts as sold out.
var SoldOutThreshold = uint256.NewInt(1_000_000)

type engineState interface {
	FieldIDs() ([]uint64, error)
	GetField(id uint64) (*Field, error)
	PutField(id uint64, f *Field) error
	ActiveFieldID() (uint64, error)
	SetActiveFieldID(id uint64) error
	GetPlot(account common.Address, fieldID uint64, index *uint256.Int) (*uint256.Int, error)
	PutPlot(account common.Address, fieldID uint64, index, pods *uint256.Int) error
	DeletePlot(account common.Address, fieldID uint64, index *uint256.Int) error
	PlotIndexes(account common.Address, fieldID uint64) nativecommon.IndexStore[uint256.Int]
	GetPodAllowance(owner, spender common.Address, fieldID uint64) (*uint256.Int, error)
	PutPodAllowance(owner, spender common.Address, fieldID uint64, amount *uint256.Int) error
	GetSeason() (*season.Season, error)
	PutSeason(s *season.Season) error
	GetWeather() (*season.Weather, error)
	PutWeather(w *season.Weather) error
}

// Bank is the token collaborator sowing burns from and harvesting pays out of.
type Bank interface {
	Burn(token, from common.Address, amount *uint256.Int, mode bank.Mode) error
	Transfer(token, from, to common.Address, amount *uint256.Int, fromMode, toMode bank.Mode) error
}

// ListingCanceller removes any pod listing starting at index. Missing
// listings are not an error.
type ListingCanceller interface {
	CancelListing(account common.Address, fieldID uint64, index *uint256.Int) error
}

// Engine maintains the pod lines, their plots and the soil sold into them.
type Engine struct {
	state     engineState
	bank      Bank
	listings  ListingCanceller
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	bean      common.Address
	reserve   common.Address
	block     season.Block
	telemetry *metrics.ProtocolMetrics
}

// NewEngine constructs a field engine. bean is the token sown and harvested;
// reserve holds the beans shipped to fields until they are harvested.
func NewEngine(bean, reserve common.Address) *Engine {
	return &Engine{
		bean:      bean,
		reserve:   reserve,
		emitter:   events.NoopEmitter{},
		telemetry: metrics.Protocol(),
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

func (e *Engine) SetListingCanceller(c ListingCanceller) {
	if e == nil {
		return
	}
	e.listings = c
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

// SetBlock records the execution context used for the morning curve and sow times.
func (e *Engine) SetBlock(b season.Block) {
	if e == nil {
		return
	}
	e.block = b
}

// Reserve returns the account holding beans owed to pod holders.
func (e *Engine) Reserve() common.Address { return e.reserve }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// AddField creates a new empty pod line and returns its id.
func (e *Engine) AddField() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	ids, err := e.state.FieldIDs()
	if err != nil {
		return 0, err
	}
	id := uint64(len(ids))
	if err := e.state.PutField(id, NewField()); err != nil {
		return 0, err
	}
	e.emit(events.Wrap(NewFieldAddedEvent(id)))
	return id, nil
}

// SetActiveField selects the field receiving soil and shipments and resets the
// maximum temperature.
func (e *Engine) SetActiveField(id uint64, temperature uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, err := e.loadField(id); err != nil {
		return err
	}
	if err := e.state.SetActiveFieldID(id); err != nil {
		return err
	}
	weather, err := e.weather()
	if err != nil {
		return err
	}
	weather.Temp = temperature
	if err := e.state.PutWeather(weather); err != nil {
		return err
	}
	e.emit(events.Wrap(NewActiveFieldSetEvent(id, temperature)))
	return nil
}

// ActiveField returns the id of the field receiving issuance.
func (e *Engine) ActiveField() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.ActiveFieldID()
}

// Field returns a copy of the field's counters.
func (e *Engine) Field(id uint64) (*Field, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadField(id)
}

func (e *Engine) loadField(id uint64) (*Field, error) {
	f, err := e.state.GetField(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownField, id)
	}
	return f.Clone(), nil
}

func (e *Engine) storeField(id uint64, f *Field) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return e.state.PutField(id, f)
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

func (e *Engine) weather() (*season.Weather, error) {
	w, err := e.state.GetWeather()
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = &season.Weather{ThisSowTime: season.NotSoldOut, LastSowTime: season.NotSoldOut}
	}
	return w.Normalize(), nil
}

// MaxTemperature is the temperature reached at the end of the morning.
func (e *Engine) MaxTemperature() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	w, err := e.weather()
	if err != nil {
		return 0, err
	}
	return w.Temp, nil
}

// MorningTemperature is the temperature a sow would receive in the current block.
func (e *Engine) MorningTemperature() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	s, err := e.season()
	if err != nil {
		return 0, err
	}
	w, err := e.weather()
	if err != nil {
		return 0, err
	}
	return e.morningTemperature(s, w), nil
}

func (e *Engine) morningTemperature(s *season.Season, w *season.Weather) uint64 {
	var delta uint64
	if e.block.Height > s.SunriseBlock {
		delta = e.block.Height - s.SunriseBlock
	}
	return MorningTemperature(w.Temp, delta)
}

// TotalSoil is the number of beans that can be sown in the current block.
// Above peg the soil grows through the morning so the pods issued for the
// season stay fixed.
func (e *Engine) TotalSoil() (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, err := e.season()
	if err != nil {
		return nil, err
	}
	w, err := e.weather()
	if err != nil {
		return nil, err
	}
	return scaledSoil(s, w.Temp, e.morningTemperature(s, w))
}

func scaledSoil(s *season.Season, maxTemp, morningTemp uint64) (*uint256.Int, error) {
	if !s.AbovePeg {
		return s.Soil.Clone(), nil
	}
	return nativecommon.MulDiv(
		s.Soil,
		uint256.NewInt(season.TemperaturePrecision+maxTemp),
		uint256.NewInt(season.TemperaturePrecision+morningTemp),
	)
}

// InitialSoil is the soil issued at the start of the season.
func (e *Engine) InitialSoil() (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, err := e.season()
	if err != nil {
		return nil, err
	}
	return s.InitialSoil, nil
}

// SoilSoldOutPercent is the share of the season's initial soil already sown,
// at 1e18 precision.
func (e *Engine) SoilSoldOutPercent() (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, err := e.season()
	if err != nil {
		return nil, err
	}
	if s.InitialSoil.IsZero() {
		return new(uint256.Int), nil
	}
	sold := nativecommon.SaturatingSub(s.InitialSoil, s.Soil)
	return nativecommon.MulDiv(sold, nativecommon.Ratio, s.InitialSoil)
}

// TotalUnharvestable returns the pods in the field that are not yet harvestable.
func (e *Engine) TotalUnharvestable(fieldID uint64) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	f, err := e.loadField(fieldID)
	if err != nil {
		return nil, err
	}
	return f.Unharvestable(), nil
}

// MaxHarvestableIndex is the harvestable index of the field; listings whose
// expiry falls below it are stale.
func (e *Engine) MaxHarvestableIndex(fieldID uint64) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	f, err := e.loadField(fieldID)
	if err != nil {
		return nil, err
	}
	return f.Harvestable, nil
}

// Plot returns the pods in the account's plot at index, zero when none.
func (e *Engine) Plot(account common.Address, fieldID uint64, index *uint256.Int) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pods, err := e.state.GetPlot(account, fieldID, index)
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(pods), nil
}

// Plots lists the account's plots in the field.
func (e *Engine) Plots(account common.Address, fieldID uint64) ([]Plot, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	store := e.state.PlotIndexes(account, fieldID)
	n, err := store.Len()
	if err != nil {
		return nil, err
	}
	plots := make([]Plot, 0, n)
	for i := uint64(0); i < n; i++ {
		idx, err := store.At(i)
		if err != nil {
			return nil, err
		}
		index := idx
		pods, err := e.state.GetPlot(account, fieldID, &index)
		if err != nil {
			return nil, err
		}
		plots = append(plots, Plot{Index: index.Clone(), Pods: nativecommon.OrZero(pods)})
	}
	return plots, nil
}

func (e *Engine) addPlot(account common.Address, fieldID uint64, index, pods *uint256.Int) error {
	if err := e.state.PutPlot(account, fieldID, index, pods); err != nil {
		return err
	}
	return nativecommon.Push(e.state.PlotIndexes(account, fieldID), *index)
}

func (e *Engine) removePlot(account common.Address, fieldID uint64, index *uint256.Int) error {
	if err := e.state.DeletePlot(account, fieldID, index); err != nil {
		return err
	}
	return nativecommon.SwapRemove(e.state.PlotIndexes(account, fieldID), *index)
}

func (e *Engine) ownedPlot(account common.Address, fieldID uint64, index *uint256.Int) (*uint256.Int, error) {
	if index == nil {
		return nil, ErrPlotNotOwned
	}
	pods, err := e.state.GetPlot(account, fieldID, index)
	if err != nil {
		return nil, err
	}
	if pods == nil || pods.IsZero() {
		return nil, fmt.Errorf("%w: index %s", ErrPlotNotOwned, index.Dec())
	}
	return pods.Clone(), nil
}

func (e *Engine) cancelListing(account common.Address, fieldID uint64, index *uint256.Int) error {
	if e.listings == nil {
		return nil
	}
	return e.listings.CancelListing(account, fieldID, index)
}

// Sow burns beans from the account in exchange for a plot at the end of the
// active field's pod line. At most the available soil is consumed; the number
// of pods issued is returned.
func (e *Engine) Sow(account common.Address, beans *uint256.Int, minTemperature uint64, minSoil *uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if account == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if beans == nil || beans.IsZero() {
		return nil, ErrZeroAmount
	}
	minSoil = nativecommon.OrZero(minSoil)

	s, err := e.season()
	if err != nil {
		return nil, err
	}
	w, err := e.weather()
	if err != nil {
		return nil, err
	}
	morning := e.morningTemperature(s, w)
	if morning < minTemperature {
		return nil, ErrTemperatureTooLow
	}
	soil, err := scaledSoil(s, w.Temp, morning)
	if err != nil {
		return nil, err
	}
	if soil.Lt(minSoil) || beans.Lt(minSoil) {
		return nil, ErrSoilTooLow
	}
	sown := nativecommon.Min(beans, soil)
	if sown.IsZero() {
		return nil, ErrSoilTooLow
	}

	pods, err := nativecommon.MulDiv(sown, uint256.NewInt(season.TemperaturePrecision+morning), uint256.NewInt(season.TemperaturePrecision))
	if err != nil {
		return nil, err
	}
	used := sown
	if s.AbovePeg {
		used, err = nativecommon.MulDivUp(sown, uint256.NewInt(season.TemperaturePrecision+morning), uint256.NewInt(season.TemperaturePrecision+w.Temp))
		if err != nil {
			return nil, err
		}
	}

	fieldID, err := e.state.ActiveFieldID()
	if err != nil {
		return nil, err
	}
	f, err := e.loadField(fieldID)
	if err != nil {
		return nil, err
	}
	index := f.Pods.Clone()
	if f.Pods, err = nativecommon.SafeAdd(f.Pods, pods); err != nil {
		return nil, err
	}

	if err := e.bank.Burn(e.bean, account, sown, mode); err != nil {
		return nil, err
	}

	s.Soil = nativecommon.SaturatingSub(s.Soil, used)
	if s.BeanSown, err = nativecommon.SafeAdd(s.BeanSown, sown); err != nil {
		return nil, err
	}
	if s.Soil.Lt(SoldOutThreshold) && w.ThisSowTime == season.NotSoldOut {
		var elapsed uint64
		if e.block.Timestamp > s.SunriseTime {
			elapsed = e.block.Timestamp - s.SunriseTime
		}
		if elapsed >= uint64(season.NotSoldOut) {
			elapsed = uint64(season.NotSoldOut) - 1
		}
		w.ThisSowTime = uint32(elapsed)
		w.ThisSoldOutTemp = morning
		if err := e.state.PutWeather(w); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutSeason(s); err != nil {
		return nil, err
	}
	if err := e.storeField(fieldID, f); err != nil {
		return nil, err
	}
	if err := e.addPlot(account, fieldID, index, pods); err != nil {
		return nil, err
	}
	e.telemetry.ObserveSown(sown)
	e.emit(events.Wrap(NewSowEvent(account, fieldID, index, sown, pods)))
	return pods, nil
}

// Harvest redeems the harvestable part of each listed plot for beans paid from
// the field reserve. Partially harvestable plots leave their remainder at
// index + harvested.
func (e *Engine) Harvest(account common.Address, fieldID uint64, indexes []*uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	f, err := e.loadField(fieldID)
	if err != nil {
		return nil, err
	}
	total := new(uint256.Int)
	for _, index := range indexes {
		harvested, err := e.harvestPlot(account, fieldID, f, index)
		if err != nil {
			return nil, err
		}
		if total, err = nativecommon.SafeAdd(total, harvested); err != nil {
			return nil, err
		}
	}
	if f.Harvested, err = nativecommon.SafeAdd(f.Harvested, total); err != nil {
		return nil, err
	}
	if err := e.storeField(fieldID, f); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.bean, e.reserve, account, total, bank.Internal, mode); err != nil {
		return nil, err
	}
	e.telemetry.ObserveHarvested(total)
	e.emit(events.Wrap(NewHarvestEvent(account, fieldID, indexes, total)))
	return total, nil
}

func (e *Engine) harvestPlot(account common.Address, fieldID uint64, f *Field, index *uint256.Int) (*uint256.Int, error) {
	pods, err := e.ownedPlot(account, fieldID, index)
	if err != nil {
		return nil, err
	}
	if !index.Lt(f.Harvestable) {
		return nil, fmt.Errorf("%w: index %s", ErrPlotNotHarvestable, index.Dec())
	}
	harvestable := nativecommon.Min(pods, new(uint256.Int).Sub(f.Harvestable, index))
	if err := e.cancelListing(account, fieldID, index); err != nil {
		return nil, err
	}
	if err := e.removePlot(account, fieldID, index); err != nil {
		return nil, err
	}
	if pods.Gt(harvestable) {
		rest := new(uint256.Int).Add(index, harvestable)
		if err := e.addPlot(account, fieldID, rest, new(uint256.Int).Sub(pods, harvestable)); err != nil {
			return nil, err
		}
	}
	return harvestable, nil
}

// CombinePlots merges adjacent plots of one account into the first index. Any
// caller may combine; ownership of the pods does not change.
func (e *Engine) CombinePlots(account common.Address, fieldID uint64, indexes []*uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if len(indexes) < 2 {
		return ErrTooFewPlots
	}
	if _, err := e.loadField(fieldID); err != nil {
		return err
	}
	total := new(uint256.Int)
	var next *uint256.Int
	for i, index := range indexes {
		pods, err := e.ownedPlot(account, fieldID, index)
		if err != nil {
			return err
		}
		if i > 0 && !index.Eq(next) {
			return fmt.Errorf("%w: expected %s, got %s", ErrPlotsNotAdjacent, next.Dec(), index.Dec())
		}
		next = new(uint256.Int).Add(index, pods)
		if total, err = nativecommon.SafeAdd(total, pods); err != nil {
			return err
		}
	}
	for _, index := range indexes[1:] {
		if err := e.cancelListing(account, fieldID, index); err != nil {
			return err
		}
		if err := e.removePlot(account, fieldID, index); err != nil {
			return err
		}
	}
	if err := e.state.PutPlot(account, fieldID, indexes[0], total); err != nil {
		return err
	}
	e.emit(events.Wrap(NewPlotCombinedEvent(account, fieldID, indexes, total)))
	return nil
}

// TransferPlot moves the pods in [index+start, index+end) of sender's plot to
// recipient. operator spends sender's pod allowance unless it is the sender.
func (e *Engine) TransferPlot(operator, sender, recipient common.Address, fieldID uint64, index, start, end *uint256.Int) error {
	return e.TransferPlots(operator, sender, recipient, fieldID, []*uint256.Int{index}, []*uint256.Int{start}, []*uint256.Int{end})
}

// TransferPlots applies TransferPlot to each (id, start, end) triple.
func (e *Engine) TransferPlots(operator, sender, recipient common.Address, fieldID uint64, ids, starts, ends []*uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if sender == (common.Address{}) || recipient == (common.Address{}) {
		return ErrZeroAddress
	}
	if len(ids) != len(starts) || len(ids) != len(ends) {
		return ErrArrayLengthMismatch
	}
	if _, err := e.loadField(fieldID); err != nil {
		return err
	}
	for i := range ids {
		if err := e.transferPlot(operator, sender, recipient, fieldID, ids[i], starts[i], ends[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) transferPlot(operator, sender, recipient common.Address, fieldID uint64, index, start, end *uint256.Int) error {
	pods, err := e.ownedPlot(sender, fieldID, index)
	if err != nil {
		return err
	}
	start, end = nativecommon.OrZero(start), nativecommon.OrZero(end)
	if !end.Gt(start) || pods.Lt(end) {
		return ErrInvalidRange
	}
	amount := new(uint256.Int).Sub(end, start)
	if operator != sender {
		if err := e.spendAllowance(sender, operator, fieldID, amount); err != nil {
			return err
		}
	}
	if err := e.cancelListing(sender, fieldID, index); err != nil {
		return err
	}
	if err := e.removePlot(sender, fieldID, index); err != nil {
		return err
	}
	if !start.IsZero() {
		if err := e.addPlot(sender, fieldID, index, start); err != nil {
			return err
		}
	}
	moved := new(uint256.Int).Add(index, start)
	if err := e.addPlot(recipient, fieldID, moved, amount); err != nil {
		return err
	}
	if pods.Gt(end) {
		tail := new(uint256.Int).Add(index, end)
		if err := e.addPlot(sender, fieldID, tail, new(uint256.Int).Sub(pods, end)); err != nil {
			return err
		}
	}
	e.emit(events.Wrap(NewPlotTransferEvent(sender, recipient, fieldID, moved, amount)))
	return nil
}

func (e *Engine) spendAllowance(owner, spender common.Address, fieldID uint64, amount *uint256.Int) error {
	allowance, err := e.state.GetPodAllowance(owner, spender, fieldID)
	if err != nil {
		return err
	}
	allowance = nativecommon.OrZero(allowance)
	if allowance.Eq(nativecommon.MaxUint256()) {
		return nil
	}
	if allowance.Lt(amount) {
		return ErrAllowanceExceeded
	}
	return e.state.PutPodAllowance(owner, spender, fieldID, new(uint256.Int).Sub(allowance, amount))
}

// ApprovePods sets the number of pods spender may transfer on owner's behalf.
// MaxUint256 never decreases.
func (e *Engine) ApprovePods(owner, spender common.Address, fieldID uint64, amount *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	amount = nativecommon.OrZero(amount)
	if err := e.state.PutPodAllowance(owner, spender, fieldID, amount); err != nil {
		return err
	}
	e.emit(events.Wrap(NewPodApprovalEvent(owner, spender, fieldID, amount)))
	return nil
}

// IncreasePodAllowance adds to the existing allowance.
func (e *Engine) IncreasePodAllowance(owner, spender common.Address, fieldID uint64, amount *uint256.Int) error {
	current, err := e.Allowance(owner, spender, fieldID)
	if err != nil {
		return err
	}
	next, err := nativecommon.SafeAdd(current, amount)
	if err != nil {
		return err
	}
	return e.ApprovePods(owner, spender, fieldID, next)
}

// DecreasePodAllowance subtracts from the existing allowance, failing when it
// would go negative.
func (e *Engine) DecreasePodAllowance(owner, spender common.Address, fieldID uint64, amount *uint256.Int) error {
	current, err := e.Allowance(owner, spender, fieldID)
	if err != nil {
		return err
	}
	if current.Lt(nativecommon.OrZero(amount)) {
		return ErrAllowanceExceeded
	}
	return e.ApprovePods(owner, spender, fieldID, new(uint256.Int).Sub(current, nativecommon.OrZero(amount)))
}

// Allowance returns the pods spender may still transfer for owner.
func (e *Engine) Allowance(owner, spender common.Address, fieldID uint64) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	allowance, err := e.state.GetPodAllowance(owner, spender, fieldID)
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(allowance), nil
}

// IncreaseHarvestable makes up to amount more pods of the field harvestable,
// bounded by the unharvestable pods. It returns the amount applied; the
// caller is responsible for funding the reserve.
func (e *Engine) IncreaseHarvestable(fieldID uint64, amount *uint256.Int) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	f, err := e.loadField(fieldID)
	if err != nil {
		return nil, err
	}
	applied := nativecommon.Min(amount, f.Unharvestable())
	if applied.IsZero() {
		return applied, nil
	}
	f.Harvestable = new(uint256.Int).Add(f.Harvestable, applied)
	if err := e.storeField(fieldID, f); err != nil {
		return nil, err
	}
	return applied, nil
}
