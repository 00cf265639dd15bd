package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

// Mode selects which balance an amount is drawn from or credited to.
type Mode uint8

const (
	// External balances are held in the account's wallet.
	External Mode = iota
	// Internal balances are held by the protocol on the account's behalf.
	Internal
	// ExternalInternal draws from the internal balance first and the external
	// balance for the remainder. Only valid as a source mode.
	ExternalInternal
)

func (m Mode) String() string {
	switch m {
	case External:
		return "external"
	case Internal:
		return "internal"
	case ExternalInternal:
		return "external_internal"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

var (
	errNilState            = errors.New("bank: state not configured")
	ErrZeroAddress         = errors.New("bank: zero address")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidMode         = errors.New("bank: invalid balance mode")
)

type engineState interface {
	GetBalance(token, account common.Address, mode Mode) (*uint256.Int, error)
	PutBalance(token, account common.Address, mode Mode, amount *uint256.Int) error
	GetSupply(token common.Address) (*uint256.Int, error)
	PutSupply(token common.Address, amount *uint256.Int) error
}

// Ledger is the token balance book the protocol moves beans and pool tokens
// through. Transfers never create or destroy supply; Mint and Burn do.
type Ledger struct {
	state engineState
}

func NewLedger() *Ledger { return &Ledger{} }

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state engineState) { l.state = state }

// Mint credits amount of token to the account and grows total supply.
func (l *Ledger) Mint(token, to common.Address, amount *uint256.Int, mode Mode) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if mode == ExternalInternal {
		return ErrInvalidMode
	}
	supply, err := l.state.GetSupply(token)
	if err != nil {
		return err
	}
	next, err := nativecommon.SafeAdd(supply, amount)
	if err != nil {
		return err
	}
	if err := l.credit(token, to, amount, mode); err != nil {
		return err
	}
	return l.state.PutSupply(token, next)
}

// Burn debits amount of token from the account and shrinks total supply.
func (l *Ledger) Burn(token, from common.Address, amount *uint256.Int, mode Mode) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := l.debit(token, from, amount, mode); err != nil {
		return err
	}
	supply, err := l.state.GetSupply(token)
	if err != nil {
		return err
	}
	next, err := nativecommon.SafeSub(supply, amount)
	if err != nil {
		return err
	}
	return l.state.PutSupply(token, next)
}

// Transfer moves amount of token between accounts and balance modes.
func (l *Ledger) Transfer(token, from, to common.Address, amount *uint256.Int, fromMode, toMode Mode) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if toMode == ExternalInternal {
		return ErrInvalidMode
	}
	if err := l.debit(token, from, amount, fromMode); err != nil {
		return err
	}
	return l.credit(token, to, amount, toMode)
}

// BalanceOf returns the combined internal and external balance.
func (l *Ledger) BalanceOf(token, account common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	ext, err := l.state.GetBalance(token, account, External)
	if err != nil {
		return nil, err
	}
	internal, err := l.state.GetBalance(token, account, Internal)
	if err != nil {
		return nil, err
	}
	return nativecommon.SafeAdd(ext, internal)
}

// TotalSupply returns the outstanding supply of token.
func (l *Ledger) TotalSupply(token common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	supply, err := l.state.GetSupply(token)
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(supply), nil
}

func (l *Ledger) credit(token, to common.Address, amount *uint256.Int, mode Mode) error {
	balance, err := l.state.GetBalance(token, to, mode)
	if err != nil {
		return err
	}
	next, err := nativecommon.SafeAdd(balance, amount)
	if err != nil {
		return err
	}
	return l.state.PutBalance(token, to, mode, next)
}

func (l *Ledger) debit(token, from common.Address, amount *uint256.Int, mode Mode) error {
	switch mode {
	case External, Internal:
		balance, err := l.state.GetBalance(token, from, mode)
		if err != nil {
			return err
		}
		if nativecommon.OrZero(balance).Lt(amount) {
			return ErrInsufficientBalance
		}
		return l.state.PutBalance(token, from, mode, new(uint256.Int).Sub(balance, amount))
	case ExternalInternal:
		internal, err := l.state.GetBalance(token, from, Internal)
		if err != nil {
			return err
		}
		ext, err := l.state.GetBalance(token, from, External)
		if err != nil {
			return err
		}
		total, err := nativecommon.SafeAdd(internal, ext)
		if err != nil {
			return err
		}
		if total.Lt(amount) {
			return ErrInsufficientBalance
		}
		fromInternal := nativecommon.Min(internal, amount)
		rest := new(uint256.Int).Sub(amount, fromInternal)
		if err := l.state.PutBalance(token, from, Internal, new(uint256.Int).Sub(nativecommon.OrZero(internal), fromInternal)); err != nil {
			return err
		}
		return l.state.PutBalance(token, from, External, new(uint256.Int).Sub(nativecommon.OrZero(ext), rest))
	default:
		return ErrInvalidMode
	}
}
