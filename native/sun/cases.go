package sun

import (
	"math/big"

	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
	"beanstalk/native/season"
)

// Case id components. A case id is the sum of one offset from each group,
// giving 144 cases.
const (
	PodRateExcessivelyLow  uint8 = 0
	PodRateReasonablyLow   uint8 = 9
	PodRateReasonablyHigh  uint8 = 18
	PodRateExcessivelyHigh uint8 = 27

	PriceBelowPeg        uint8 = 0
	PriceAbovePeg        uint8 = 3
	PriceExcessivelyHigh uint8 = 6

	DemandDecreasing uint8 = 0
	DemandSteady     uint8 = 1
	DemandIncreasing uint8 = 2

	L2SRExcessivelyLow  uint8 = 0
	L2SRReasonablyLow   uint8 = 36
	L2SRReasonablyHigh  uint8 = 72
	L2SRExcessivelyHigh uint8 = 108

	// ZeroSupplyCase is used when there is no bean supply to measure against.
	ZeroSupplyCase uint8 = 9
)

// temperatureDeltas holds the temperature change in percentage points for
// case id mod 36. The liquidity groups share one table.
var temperatureDeltas = [36]int8{
	// pod rate excessively low
	3, 1, 0, // P < 1
	-1, -3, -3, // P > 1
	-1, -3, -3, // P > Q
	// pod rate reasonably low
	3, 1, 0,
	-1, -3, -3,
	-1, -3, -3,
	// pod rate reasonably high
	3, 3, 1,
	0, -1, -3,
	0, -1, -3,
	// pod rate excessively high
	3, 3, 1,
	0, -1, -3,
	0, -1, -3,
}

// TemperatureDelta is the change in percentage points for caseID.
func TemperatureDelta(caseID uint8) int8 {
	return temperatureDeltas[caseID%36]
}

// Raining reports whether caseID is a rain case: above peg with an
// excessively low pod rate.
func Raining(caseID uint8) bool {
	m := caseID % 36
	return m >= 3 && m <= 8
}

// Evaluation is the state the evaluator classified into a case id.
type Evaluation struct {
	CaseID     uint8
	BeanSupply *uint256.Int
	PodRate    *uint256.Int
	L2SR       *uint256.Int
	Price      *uint256.Int
	Demand     uint8
}

func podRateCase(podRate *uint256.Int, p Params) uint8 {
	switch {
	case !podRate.Lt(p.PodRateUpperBound):
		return PodRateExcessivelyHigh
	case !podRate.Lt(p.PodRateOptimal):
		return PodRateReasonablyHigh
	case !podRate.Lt(p.PodRateLowerBound):
		return PodRateReasonablyLow
	}
	return PodRateExcessivelyLow
}

func l2srCase(l2sr *uint256.Int, p Params) uint8 {
	switch {
	case !l2sr.Lt(p.L2SRUpperBound):
		return L2SRExcessivelyHigh
	case !l2sr.Lt(p.L2SROptimal):
		return L2SRReasonablyHigh
	case !l2sr.Lt(p.L2SRLowerBound):
		return L2SRReasonablyLow
	}
	return L2SRExcessivelyLow
}

// priceCase buckets the price. Above peg is read from the time-weighted
// deltaB; the excessive threshold from the time-weighted price.
func priceCase(twaDeltaB *big.Int, price *uint256.Int, p Params) uint8 {
	if twaDeltaB == nil || twaDeltaB.Sign() <= 0 {
		return PriceBelowPeg
	}
	if price != nil && price.Gt(p.ExcessivePrice) {
		return PriceExcessivelyHigh
	}
	return PriceAbovePeg
}

// podDemand classifies the change in demand for soil from last season to
// the season just ended. Sell-out timing decides when soil sold out;
// otherwise the ratio of beans sown does.
func podDemand(w *season.Weather, sown *uint256.Int, p Params) uint8 {
	if w.ThisSowTime != season.NotSoldOut {
		switch {
		case w.LastSowTime == season.NotSoldOut,
			w.ThisSowTime < p.SowTimeDemandIncrease,
			w.LastSowTime > p.SowTimeSteady && w.ThisSowTime < w.LastSowTime-p.SowTimeSteady:
			return DemandIncreasing
		case uint64(w.ThisSowTime) <= uint64(w.LastSowTime)+uint64(p.SowTimeSteady):
			return DemandSteady
		}
		return DemandDecreasing
	}
	sown = nativecommon.OrZero(sown)
	last := nativecommon.OrZero(w.LastDeltaSoil)
	if sown.IsZero() {
		return DemandDecreasing
	}
	if last.IsZero() {
		return DemandIncreasing
	}
	ratio, err := nativecommon.MulDiv(sown, nativecommon.Ratio, last)
	if err != nil {
		return DemandIncreasing
	}
	switch {
	case !ratio.Lt(p.DemandUpperBound):
		return DemandIncreasing
	case !ratio.Lt(p.DemandLowerBound):
		return DemandSteady
	}
	return DemandDecreasing
}

// nextTemperature applies the case's change, floored at the minimum.
func nextTemperature(temp uint64, caseID uint8, p Params) uint64 {
	delta := int64(TemperatureDelta(caseID)) * int64(season.OnePercentTemperature)
	if delta >= 0 {
		return temp + uint64(delta)
	}
	drop := uint64(-delta)
	if temp < drop+p.MinTemperature {
		return p.MinTemperature
	}
	return temp - drop
}

// nextCultivationFactor raises the factor when soil sold out at no higher a
// temperature than last time, holds it when it sold out higher and lowers
// it when soil did not sell out.
func nextCultivationFactor(factor uint64, w *season.Weather, p Params) uint64 {
	switch {
	case w.ThisSowTime == season.NotSoldOut:
		if factor < p.CultivationFactorStep+p.CultivationFactorMin {
			factor = p.CultivationFactorMin
		} else {
			factor -= p.CultivationFactorStep
		}
	case w.LastSoldOutTemp == 0 || w.ThisSoldOutTemp <= w.LastSoldOutTemp:
		factor += p.CultivationFactorStep
	}
	if factor > p.CultivationFactorMax {
		factor = p.CultivationFactorMax
	}
	if factor < p.CultivationFactorMin {
		factor = p.CultivationFactorMin
	}
	return factor
}
