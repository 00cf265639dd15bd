package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/native/bank"
	"beanstalk/native/field"
	"beanstalk/native/market"
	"beanstalk/native/season"
	"beanstalk/native/silo"
	"beanstalk/native/sun"
	"beanstalk/native/well"
)

// Read queries. They never mutate state and wait for any call in flight.

func (p *Protocol) Season() (*season.Season, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.state.GetSeason()
	if err != nil || s == nil {
		return &season.Season{}, err
	}
	return s, nil
}

func (p *Protocol) Weather() (*season.Weather, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, err := p.state.GetWeather()
	if err != nil || w == nil {
		return &season.Weather{}, err
	}
	return w, nil
}

// Soil is the soil remaining this season at the current morning temperature.
func (p *Protocol) Soil() (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.field.TotalSoil()
}

func (p *Protocol) Temperature() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.field.MorningTemperature()
}

// FieldInfo is a field together with its id.
type FieldInfo struct {
	ID     uint64
	Active bool
	*field.Field
}

func (p *Protocol) Fields() ([]FieldInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids, err := p.state.FieldIDs()
	if err != nil {
		return nil, err
	}
	active, err := p.state.ActiveFieldID()
	if err != nil {
		return nil, err
	}
	out := make([]FieldInfo, 0, len(ids))
	for _, id := range ids {
		f, err := p.field.Field(id)
		if err != nil {
			return nil, err
		}
		out = append(out, FieldInfo{ID: id, Active: id == active, Field: f})
	}
	return out, nil
}

func (p *Protocol) Field(id uint64) (*field.Field, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.field.Field(id)
}

func (p *Protocol) Plots(account common.Address, fieldID uint64) ([]field.Plot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.field.Plots(account, fieldID)
}

func (p *Protocol) Listing(fieldID uint64, index *uint256.Int) (*market.Listing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.market.Listing(fieldID, index)
}

func (p *Protocol) Deposits(account, token common.Address) ([]silo.DepositView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.silo.Deposits(account, token)
}

func (p *Protocol) GrownStalk(account, token common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.silo.GrownStalkOf(account, token)
}

func (p *Protocol) WhitelistedTokens() ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.silo.WhitelistedTokens()
}

func (p *Protocol) Pool(addr common.Address) (*well.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.well.Pool(addr)
}

// Pools lists the registered pool addresses.
func (p *Protocol) Pools() ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.well.Pools()
}

// DeltaB returns the instantaneous and time-weighted deltaB over all pools.
func (p *Protocol) DeltaB() (current, twa *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.TotalCurrentDeltaB(), p.oracle.TotalTWADeltaB()
}

// Evaluate classifies the current state without stepping the season.
func (p *Protocol) Evaluate() (*sun.Evaluation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sun.Evaluate()
}

func (p *Protocol) Routes() []sun.Route {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sun.Routes()
}

func (p *Protocol) BalanceOf(token, account common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.BalanceOf(token, account)
}

// InternalBalance is the account's balance held inside the protocol.
func (p *Protocol) InternalBalance(token, account common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.GetBalance(token, account, bank.Internal)
}

func (p *Protocol) TotalSupply(token common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.TotalSupply(token)
}

// Root returns the last committed state root.
func (p *Protocol) Root() common.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Root()
}
