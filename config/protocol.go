package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/genesis"
	"beanstalk/native/sun"
)

// ResolvedProtocol is the protocol section parsed into runtime values.
type ResolvedProtocol struct {
	Bean           common.Address
	Reserve        common.Address
	Silo           common.Address
	Keeper         common.Address
	MinBeanReserve *uint256.Int
	Params         sun.Params
}

// Resolve parses the accounts and applies the overrides on top of
// sun.DefaultParams. The result is validated.
func (p Protocol) Resolve() (ResolvedProtocol, error) {
	var (
		out ResolvedProtocol
		err error
	)
	if out.Bean, err = genesis.ParseAccount(p.BeanToken); err != nil {
		return out, fmt.Errorf("BeanToken: %w", err)
	}
	if out.Reserve, err = genesis.ParseAccount(p.ReserveAccount); err != nil {
		return out, fmt.Errorf("ReserveAccount: %w", err)
	}
	if out.Silo, err = genesis.ParseAccount(p.SiloAccount); err != nil {
		return out, fmt.Errorf("SiloAccount: %w", err)
	}
	if out.Keeper, err = genesis.ParseAccount(p.KeeperAccount); err != nil {
		return out, fmt.Errorf("KeeperAccount: %w", err)
	}
	if out.Bean == out.Reserve || out.Bean == out.Silo || out.Reserve == out.Silo {
		return out, fmt.Errorf("BeanToken, ReserveAccount and SiloAccount must differ")
	}
	if out.MinBeanReserve, err = parseUintAmount(p.MinBeanReserve); err != nil {
		return out, fmt.Errorf("MinBeanReserve: %w", err)
	}

	params := sun.DefaultParams()
	overrides := []struct {
		name  string
		raw   string
		field **uint256.Int
	}{
		{"BaseReward", p.BaseReward, &params.BaseReward},
		{"MinSoilIssuance", p.MinSoilIssuance, &params.MinSoilIssuance},
		{"FloodPercent", p.FloodPercent, &params.FloodPercent},
	}
	for _, o := range overrides {
		if strings.TrimSpace(o.raw) == "" {
			continue
		}
		v, err := parseUintAmount(o.raw)
		if err != nil {
			return out, fmt.Errorf("%s: %w", o.name, err)
		}
		*o.field = v
	}
	if p.BlockTime != 0 {
		params.BlockTime = p.BlockTime
	}
	if p.MaxLateBlocks != 0 {
		params.MaxLateBlocks = p.MaxLateBlocks
	}
	if p.MinTemperature != 0 {
		params.MinTemperature = p.MinTemperature
	}
	if p.DistributionPeriod != 0 {
		params.DistributionPeriod = p.DistributionPeriod
	}
	if err := params.Validate(); err != nil {
		return out, err
	}
	out.Params = params
	return out, nil
}

func parseUintAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
