package sun

import (
	"math/big"

	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
	"beanstalk/native/season"
)

// podRateScalar interpolates the soil coefficient linearly from
// SoilCoefficientLow at the lower pod-rate bound to SoilCoefficientHigh at
// the upper one.
func podRateScalar(podRate *uint256.Int, p Params) *uint256.Int {
	switch {
	case !podRate.Gt(p.PodRateLowerBound):
		return p.SoilCoefficientLow.Clone()
	case !podRate.Lt(p.PodRateUpperBound):
		return p.SoilCoefficientHigh.Clone()
	}
	span := new(big.Int).Sub(p.PodRateUpperBound.ToBig(), p.PodRateLowerBound.ToBig())
	offset := new(big.Int).Sub(podRate.ToBig(), p.PodRateLowerBound.ToBig())
	slope := new(big.Int).Sub(p.SoilCoefficientHigh.ToBig(), p.SoilCoefficientLow.ToBig())
	delta := new(big.Int).Mul(slope, offset)
	delta.Quo(delta, span)
	out := new(big.Int).Add(p.SoilCoefficientLow.ToBig(), delta)
	return nativecommon.Abs(out)
}

func scale(v, scalar *uint256.Int) *uint256.Int {
	out, err := nativecommon.MulDiv(nativecommon.OrZero(v), nativecommon.OrZero(scalar), nativecommon.Ratio)
	if err != nil {
		return nativecommon.MaxUint256()
	}
	return out
}

// soilAbovePeg is the soil that issues newHarvestable pods at temp, scaled
// by the pod-rate scalar.
func soilAbovePeg(newHarvestable *uint256.Int, temp uint64, scalar *uint256.Int) *uint256.Int {
	denom := new(uint256.Int).Add(uint256.NewInt(season.TemperaturePrecision), uint256.NewInt(temp))
	soil, err := nativecommon.MulDiv(nativecommon.OrZero(newHarvestable), uint256.NewInt(season.TemperaturePrecision), denom)
	if err != nil {
		return new(uint256.Int)
	}
	return scale(soil, scalar)
}

// soilBelowPeg issues soil against the bean excess. When the price has
// already recovered within the season only a slice of the time-weighted
// excess is offered; otherwise the smaller of the two excesses is offered,
// reduced by the liquidity ratio and spread over the distribution period.
func soilBelowPeg(twaDeltaB, instDeltaB *big.Int, l2sr *uint256.Int, cultivation, period uint64, scalar *uint256.Int, p Params) *uint256.Int {
	twa := nativecommon.Abs(twaDeltaB)
	if instDeltaB != nil && instDeltaB.Sign() > 0 {
		return scale(scale(twa, p.AbovePegSoilScalar), scalar)
	}
	soil := nativecommon.Min(twa, nativecommon.Abs(instDeltaB))
	liquidity := nativecommon.Min(nativecommon.OrZero(l2sr), nativecommon.Ratio)
	soil = scale(soil, new(uint256.Int).Sub(nativecommon.Ratio, liquidity))
	if spread, err := nativecommon.MulDiv(soil, uint256.NewInt(period), uint256.NewInt(p.DistributionPeriod)); err == nil {
		soil = spread
	}
	if cultivated, err := nativecommon.MulDiv(soil, uint256.NewInt(cultivation), uint256.NewInt(season.TemperaturePrecision)); err == nil {
		soil = cultivated
	}
	return nativecommon.Max(soil, p.MinSoilIssuance)
}

// sunriseReward compounds BaseReward by 1% per block late, up to MaxLateBlocks.
func sunriseReward(secondsLate uint64, p Params) *uint256.Int {
	blocks := secondsLate / p.BlockTime
	if blocks > p.MaxLateBlocks {
		blocks = p.MaxLateBlocks
	}
	reward := nativecommon.OrZero(p.BaseReward).Clone()
	hundred, hundredOne := uint256.NewInt(100), uint256.NewInt(101)
	for i := uint64(0); i < blocks; i++ {
		reward.Mul(reward, hundredOne)
		reward.Div(reward, hundred)
	}
	return reward
}
