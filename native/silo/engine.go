package silo

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/events"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/season"
)

var (
	errNilState    = errors.New("silo engine: state not configured")
	errNilBank     = errors.New("silo engine: bank not configured")
	errNilRegistry = errors.New("silo engine: bdv registry not configured")

	ErrNotWhitelisted       = errors.New("silo engine: token not whitelisted")
	ErrAlreadyWhitelisted   = errors.New("silo engine: token already whitelisted")
	ErrZeroAmount           = errors.New("silo engine: amount must be positive")
	ErrZeroBDV              = errors.New("silo engine: deposit has zero bdv")
	ErrArrayLengthMismatch  = errors.New("silo engine: array length mismatch")
	ErrInsufficientDeposit  = errors.New("silo engine: amount exceeds deposit")
	ErrStemAboveTip         = errors.New("silo engine: stem above stem tip")
	ErrZeroAddress          = errors.New("silo engine: zero address")
	ErrInvalidWhitelistData = errors.New("silo engine: invalid whitelist entry")
)

const moduleName = "silo"

type engineState interface {
	WhitelistedTokens() ([]common.Address, error)
	GetWhitelistEntry(token common.Address) (*WhitelistEntry, error)
	PutWhitelistEntry(entry *WhitelistEntry) error
	GetDeposit(account, token common.Address, stem int64) (*Deposit, error)
	PutDeposit(account, token common.Address, stem int64, d *Deposit) error
	DeleteDeposit(account, token common.Address, stem int64) error
	DepositStems(account, token common.Address) nativecommon.IndexStore[int64]
	GetSiloTotals(token common.Address) (*Totals, error)
	PutSiloTotals(token common.Address, t *Totals) error
	GetSeason() (*season.Season, error)
}

// Bank moves deposited tokens between accounts and the silo.
type Bank interface {
	Transfer(token, from, to common.Address, amount *uint256.Int, fromMode, toMode bank.Mode) error
}

// Engine keeps deposits and the stalk they grow.
type Engine struct {
	state    engineState
	bank     Bank
	registry *Registry
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	address  common.Address
	bean     common.Address
}

// NewEngine constructs a silo engine. address holds deposited tokens.
func NewEngine(address, bean common.Address, registry *Registry) *Engine {
	return &Engine{address: address, bean: bean, registry: registry, emitter: events.NoopEmitter{}}
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

// Address is the account holding deposited tokens.
func (e *Engine) Address() common.Address { return e.address }

// Bean is the base asset of the silo.
func (e *Engine) Bean() common.Address { return e.bean }

// Registry returns the BDV plugin allow-list.
func (e *Engine) Registry() *Registry { return e.registry }

// Whitelist makes token depositable. The plugin must be registered and must
// value zero of the token without failing.
func (e *Engine) Whitelist(entry WhitelistEntry) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if entry.Token == (common.Address{}) {
		return ErrZeroAddress
	}
	if entry.IsPool && entry.Token == e.bean {
		return fmt.Errorf("%w: bean cannot be a pool token", ErrInvalidWhitelistData)
	}
	existing, err := e.state.GetWhitelistEntry(entry.Token)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyWhitelisted, entry.Token.Hex())
	}
	plugin, err := e.registry.Lookup(entry.BDVPlugin)
	if err != nil {
		return err
	}
	if err := dryRun(plugin, entry.Token); err != nil {
		return err
	}
	s, err := e.season()
	if err != nil {
		return err
	}
	if entry.MilestoneSeason == 0 {
		entry.MilestoneSeason = s.Current
	}
	if err := e.state.PutWhitelistEntry(entry.Clone()); err != nil {
		return err
	}
	e.emitter.Emit(events.Wrap(NewWhitelistEvent(&entry)))
	return nil
}

// WhitelistEntry returns the configuration of token.
func (e *Engine) WhitelistEntry(token common.Address) (*WhitelistEntry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.entry(token)
}

// WhitelistedTokens lists depositable tokens.
func (e *Engine) WhitelistedTokens() ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.WhitelistedTokens()
}

// IsWhitelisted reports whether token may be deposited.
func (e *Engine) IsWhitelisted(token common.Address) bool {
	if e == nil || e.state == nil {
		return false
	}
	entry, err := e.state.GetWhitelistEntry(token)
	return err == nil && entry != nil
}

// PoolTokens lists the whitelisted LP tokens.
func (e *Engine) PoolTokens() ([]common.Address, error) {
	tokens, err := e.WhitelistedTokens()
	if err != nil {
		return nil, err
	}
	var pools []common.Address
	for _, token := range tokens {
		entry, err := e.entry(token)
		if err != nil {
			return nil, err
		}
		if entry.IsPool {
			pools = append(pools, token)
		}
	}
	return pools, nil
}

func (e *Engine) entry(token common.Address) (*WhitelistEntry, error) {
	entry, err := e.state.GetWhitelistEntry(token)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotWhitelisted, token.Hex())
	}
	return entry.Clone(), nil
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

// BDV values amount of token in beans with the token's plugin.
func (e *Engine) BDV(token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	entry, err := e.entry(token)
	if err != nil {
		return nil, err
	}
	plugin, err := e.registry.Lookup(entry.BDVPlugin)
	if err != nil {
		return nil, err
	}
	return plugin.BDV(token, nativecommon.OrZero(amount))
}

// StemTip is the stem a deposit of token made now receives.
func (e *Engine) StemTip(token common.Address) (int64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	entry, err := e.entry(token)
	if err != nil {
		return 0, err
	}
	s, err := e.season()
	if err != nil {
		return 0, err
	}
	return stemTip(entry, s.Current), nil
}

func stemTip(entry *WhitelistEntry, current uint32) int64 {
	if current <= entry.MilestoneSeason {
		return entry.MilestoneStem
	}
	return entry.MilestoneStem + int64(current-entry.MilestoneSeason)*int64(entry.StalkEarnedPerSeason)
}

// GrownStalk is the stalk grown by bdv deposited at stem given the stem tip.
func GrownStalk(bdv *uint256.Int, tip, stem int64) *uint256.Int {
	if stem >= tip {
		return new(uint256.Int)
	}
	delta := new(big.Int).Sub(big.NewInt(tip), big.NewInt(stem))
	grown := new(big.Int).Mul(nativecommon.OrZero(bdv).ToBig(), delta)
	grown.Quo(grown, big.NewInt(StemPrecision))
	return nativecommon.Abs(grown)
}

// StemFromGrownStalk is the stem at which bdv carries exactly grown stalk.
// A zero bdv lands at the tip.
func StemFromGrownStalk(tip int64, grown, bdv *uint256.Int) int64 {
	bdv = nativecommon.OrZero(bdv)
	if bdv.IsZero() {
		return tip
	}
	delta := new(big.Int).Mul(nativecommon.OrZero(grown).ToBig(), big.NewInt(StemPrecision))
	delta.Quo(delta, bdv.ToBig())
	stem := new(big.Int).Sub(big.NewInt(tip), delta)
	if !stem.IsInt64() {
		return math.MinInt64
	}
	return stem.Int64()
}

// StemFromGrownStalk resolves the stem tip of token and applies the package
// level StemFromGrownStalk.
func (e *Engine) StemFromGrownStalk(token common.Address, grown, bdv *uint256.Int) (int64, error) {
	tip, err := e.StemTip(token)
	if err != nil {
		return 0, err
	}
	return StemFromGrownStalk(tip, grown, bdv), nil
}

// GrownStalkOf sums the grown stalk of the account's deposits of token.
func (e *Engine) GrownStalkOf(account, token common.Address) (*uint256.Int, error) {
	deposits, err := e.Deposits(account, token)
	if err != nil {
		return nil, err
	}
	tip, err := e.StemTip(token)
	if err != nil {
		return nil, err
	}
	total := new(uint256.Int)
	for _, d := range deposits {
		total.Add(total, GrownStalk(d.BDV, tip, d.Stem))
	}
	return total, nil
}

// Deposits lists the account's deposits of token.
func (e *Engine) Deposits(account, token common.Address) ([]DepositView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	store := e.state.DepositStems(account, token)
	n, err := store.Len()
	if err != nil {
		return nil, err
	}
	out := make([]DepositView, 0, n)
	for i := uint64(0); i < n; i++ {
		stem, err := store.At(i)
		if err != nil {
			return nil, err
		}
		d, err := e.state.GetDeposit(account, token, stem)
		if err != nil {
			return nil, err
		}
		if d == nil {
			continue
		}
		d.normalize()
		out = append(out, DepositView{Stem: stem, Amount: d.Amount, BDV: d.BDV})
	}
	return out, nil
}

// Deposit moves amount of token from the account into the silo at the
// current stem tip and returns the deposit's bdv and stem.
func (e *Engine) Deposit(account, token common.Address, amount *uint256.Int, mode bank.Mode) (*uint256.Int, int64, error) {
	if e == nil || e.state == nil {
		return nil, 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, 0, err
	}
	if e.bank == nil {
		return nil, 0, errNilBank
	}
	if amount == nil || amount.IsZero() {
		return nil, 0, ErrZeroAmount
	}
	bdv, err := e.BDV(token, amount)
	if err != nil {
		return nil, 0, err
	}
	if bdv.IsZero() {
		return nil, 0, ErrZeroBDV
	}
	stem, err := e.StemTip(token)
	if err != nil {
		return nil, 0, err
	}
	if err := e.bank.Transfer(token, account, e.address, amount, mode, bank.Internal); err != nil {
		return nil, 0, err
	}
	if err := e.AddDeposit(account, token, stem, amount, bdv); err != nil {
		return nil, 0, err
	}
	return bdv, stem, nil
}

// AddDeposit credits a deposit whose tokens are already held by the silo.
// Stems above the tip are rejected.
func (e *Engine) AddDeposit(account, token common.Address, stem int64, amount, bdv *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	tip, err := e.StemTip(token)
	if err != nil {
		return err
	}
	if stem > tip {
		return ErrStemAboveTip
	}
	amount, bdv = nativecommon.OrZero(amount), nativecommon.OrZero(bdv)
	if amount.IsZero() {
		return ErrZeroAmount
	}
	d, err := e.state.GetDeposit(account, token, stem)
	if err != nil {
		return err
	}
	if d == nil {
		d = &Deposit{}
	}
	d.normalize()
	if d.Amount, err = nativecommon.SafeAdd(d.Amount, amount); err != nil {
		return err
	}
	if d.BDV, err = nativecommon.SafeAdd(d.BDV, bdv); err != nil {
		return err
	}
	if err := e.state.PutDeposit(account, token, stem, d); err != nil {
		return err
	}
	if err := nativecommon.Push(e.state.DepositStems(account, token), stem); err != nil {
		return err
	}
	if err := e.adjustTotals(token, amount, bdv, true); err != nil {
		return err
	}
	e.emitter.Emit(events.Wrap(NewAddDepositEvent(account, token, stem, amount, bdv)))
	return nil
}

// RemoveDeposits removes amounts[i] of token from the deposit at stems[i]
// and returns the totals removed together with the stalk they had grown.
// Partial removals take bdv pro rata.
func (e *Engine) RemoveDeposits(account, token common.Address, stems []int64, amounts []*uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, nil, errNilState
	}
	if len(stems) != len(amounts) {
		return nil, nil, nil, ErrArrayLengthMismatch
	}
	if len(stems) == 0 {
		return nil, nil, nil, ErrZeroAmount
	}
	tip, err := e.StemTip(token)
	if err != nil {
		return nil, nil, nil, err
	}
	totalAmount, totalBdv, totalGrown := new(uint256.Int), new(uint256.Int), new(uint256.Int)
	for i, stem := range stems {
		amount := nativecommon.OrZero(amounts[i])
		if amount.IsZero() {
			return nil, nil, nil, ErrZeroAmount
		}
		d, err := e.state.GetDeposit(account, token, stem)
		if err != nil {
			return nil, nil, nil, err
		}
		if d == nil {
			return nil, nil, nil, fmt.Errorf("%w: stem %d", ErrInsufficientDeposit, stem)
		}
		d.normalize()
		if d.Amount.Lt(amount) {
			return nil, nil, nil, fmt.Errorf("%w: stem %d", ErrInsufficientDeposit, stem)
		}
		bdv := d.BDV.Clone()
		if amount.Lt(d.Amount) {
			if bdv, err = nativecommon.MulDiv(d.BDV, amount, d.Amount); err != nil {
				return nil, nil, nil, err
			}
		}
		d.Amount = new(uint256.Int).Sub(d.Amount, amount)
		d.BDV = new(uint256.Int).Sub(d.BDV, bdv)
		if d.Amount.IsZero() {
			if err := e.state.DeleteDeposit(account, token, stem); err != nil {
				return nil, nil, nil, err
			}
			if err := nativecommon.SwapRemove(e.state.DepositStems(account, token), stem); err != nil {
				return nil, nil, nil, err
			}
		} else if err := e.state.PutDeposit(account, token, stem, d); err != nil {
			return nil, nil, nil, err
		}
		totalAmount.Add(totalAmount, amount)
		totalBdv.Add(totalBdv, bdv)
		totalGrown.Add(totalGrown, GrownStalk(bdv, tip, stem))
		e.emitter.Emit(events.Wrap(NewRemoveDepositEvent(account, token, stem, amount, bdv)))
	}
	if err := e.adjustTotals(token, totalAmount, totalBdv, false); err != nil {
		return nil, nil, nil, err
	}
	return totalAmount, totalBdv, totalGrown, nil
}

// Withdraw removes deposits and returns the tokens to the account. The
// grown stalk is forfeited.
func (e *Engine) Withdraw(account, token common.Address, stems []int64, amounts []*uint256.Int, mode bank.Mode) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	amount, _, _, err := e.RemoveDeposits(account, token, stems, amounts)
	if err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(token, e.address, account, amount, bank.Internal, mode); err != nil {
		return nil, err
	}
	return amount, nil
}

func (e *Engine) adjustTotals(token common.Address, amount, bdv *uint256.Int, add bool) error {
	t, err := e.state.GetSiloTotals(token)
	if err != nil {
		return err
	}
	if t == nil {
		t = &Totals{}
	}
	t.normalize()
	if add {
		t.Deposited = new(uint256.Int).Add(t.Deposited, amount)
		t.DepositedBdv = new(uint256.Int).Add(t.DepositedBdv, bdv)
	} else {
		t.Deposited = nativecommon.SaturatingSub(t.Deposited, amount)
		t.DepositedBdv = nativecommon.SaturatingSub(t.DepositedBdv, bdv)
	}
	return e.state.PutSiloTotals(token, t)
}

// Totals returns the aggregate deposits of token.
func (e *Engine) Totals(token common.Address) (*Totals, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	t, err := e.state.GetSiloTotals(token)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = &Totals{}
	}
	return t.normalize(), nil
}

// ReceiveShipment records beans shipped to the silo at sunrise. The beans
// are already held by the silo address; they are counted as deposited bean.
func (e *Engine) ReceiveShipment(beans *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	beans = nativecommon.OrZero(beans)
	if beans.IsZero() {
		return nil
	}
	if err := e.adjustTotals(e.bean, beans, beans, true); err != nil {
		return err
	}
	e.emitter.Emit(events.Wrap(NewShipmentReceivedEvent(beans)))
	return nil
}
