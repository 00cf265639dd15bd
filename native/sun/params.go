package sun

import (
	"errors"

	"github.com/holiman/uint256"

	"beanstalk/native/season"
)

var errInvalidParams = errors.New("sun engine: invalid parameters")

// Params are the controller constants of the season step. Ratios are at
// 1e18, temperatures and the cultivation factor at TemperaturePrecision and
// the convert bonus at the silo's stem precision.
type Params struct {
	BaseReward    *uint256.Int
	BlockTime     uint64
	MaxLateBlocks uint64

	PodRateLowerBound *uint256.Int
	PodRateOptimal    *uint256.Int
	PodRateUpperBound *uint256.Int
	L2SRLowerBound    *uint256.Int
	L2SROptimal       *uint256.Int
	L2SRUpperBound    *uint256.Int
	// ExcessivePrice is the bean price, at 1e6, above which the price is
	// treated as excessively high.
	ExcessivePrice *uint256.Int

	MinTemperature uint64

	SowTimeDemandIncrease uint32
	SowTimeSteady         uint32
	DemandUpperBound      *uint256.Int
	DemandLowerBound      *uint256.Int

	SoilCoefficientLow  *uint256.Int
	SoilCoefficientHigh *uint256.Int
	AbovePegSoilScalar  *uint256.Int
	MinSoilIssuance     *uint256.Int
	DistributionPeriod  uint64

	FloodPercent *uint256.Int

	CultivationFactorStep uint64
	CultivationFactorMin  uint64
	CultivationFactorMax  uint64

	ConvertBonusStep           *uint256.Int
	ConvertBonusMax            *uint256.Int
	ConvertBonusCapacityFactor *uint256.Int
}

func pct(n uint64) *uint256.Int {
	// n hundredths of a percent at 1e18
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(100_000_000_000_000))
}

// DefaultParams returns the mainnet controller constants.
func DefaultParams() Params {
	return Params{
		BaseReward:    uint256.NewInt(5_000_000),
		BlockTime:     12,
		MaxLateBlocks: 25,

		PodRateLowerBound: pct(500),
		PodRateOptimal:    pct(1_500),
		PodRateUpperBound: pct(2_500),
		L2SRLowerBound:    pct(1_200),
		L2SROptimal:       pct(4_000),
		L2SRUpperBound:    pct(8_000),
		ExcessivePrice:    uint256.NewInt(1_050_000),

		MinTemperature: season.OnePercentTemperature,

		SowTimeDemandIncrease: 600,
		SowTimeSteady:         60,
		DemandUpperBound:      pct(10_500),
		DemandLowerBound:      pct(9_500),

		SoilCoefficientLow:  pct(15_000),
		SoilCoefficientHigh: pct(5_000),
		AbovePegSoilScalar:  pct(100),
		MinSoilIssuance:     uint256.NewInt(50_000_000),
		DistributionPeriod:  86_400,

		FloodPercent: pct(10),

		CultivationFactorStep: 2 * season.OnePercentTemperature,
		CultivationFactorMin:  season.OnePercentTemperature,
		CultivationFactorMax:  season.OneHundredTemperature,

		ConvertBonusStep:           uint256.NewInt(10_000),
		ConvertBonusMax:            uint256.NewInt(1_000_000),
		ConvertBonusCapacityFactor: pct(5_000),
	}
}

// Validate checks the bounds are ordered and the scalars usable.
func (p Params) Validate() error {
	for _, v := range []*uint256.Int{
		p.BaseReward, p.PodRateLowerBound, p.PodRateOptimal, p.PodRateUpperBound,
		p.L2SRLowerBound, p.L2SROptimal, p.L2SRUpperBound, p.ExcessivePrice,
		p.DemandUpperBound, p.DemandLowerBound, p.SoilCoefficientLow, p.SoilCoefficientHigh,
		p.AbovePegSoilScalar, p.MinSoilIssuance, p.FloodPercent,
		p.ConvertBonusStep, p.ConvertBonusMax, p.ConvertBonusCapacityFactor,
	} {
		if v == nil {
			return errInvalidParams
		}
	}
	switch {
	case p.BlockTime == 0 || p.DistributionPeriod == 0:
		return errInvalidParams
	case p.PodRateLowerBound.Gt(p.PodRateOptimal) || p.PodRateOptimal.Gt(p.PodRateUpperBound):
		return errInvalidParams
	case p.PodRateLowerBound.Eq(p.PodRateUpperBound):
		return errInvalidParams
	case p.L2SRLowerBound.Gt(p.L2SROptimal) || p.L2SROptimal.Gt(p.L2SRUpperBound):
		return errInvalidParams
	case p.DemandLowerBound.Gt(p.DemandUpperBound):
		return errInvalidParams
	case p.MinTemperature == 0:
		return errInvalidParams
	case p.CultivationFactorMin > p.CultivationFactorMax:
		return errInvalidParams
	}
	return nil
}
