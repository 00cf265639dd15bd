package season

import (
	"math"

	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

const (
	// TemperaturePrecision is the fixed-point scale of temperatures: a
	// temperature of 1e6 is 100%.
	TemperaturePrecision uint64 = 1_000_000
	// OneHundredTemperature is 100% expressed at TemperaturePrecision.
	OneHundredTemperature uint64 = TemperaturePrecision
	// OnePercentTemperature is 1% expressed at TemperaturePrecision.
	OnePercentTemperature uint64 = TemperaturePrecision / 100

	// NotSoldOut marks a sow time for a season in which soil did not sell out.
	NotSoldOut uint32 = math.MaxUint32
)

// Season is the epoch counter together with the issuance available during it.
type Season struct {
	Current             uint32
	Start               uint64 // unix time of season 0
	Period              uint64 // seconds per season
	SunriseTime         uint64 // unix time of the current season's sunrise
	SunriseBlock        uint64
	AbovePeg            bool
	StandardMintedBeans *uint256.Int
	Soil                *uint256.Int
	InitialSoil         *uint256.Int
	BeanSown            *uint256.Int
}

// SeasonTime is the season the clock says it should be at now.
func (s *Season) SeasonTime(now uint64) uint32 {
	if s == nil || s.Period == 0 || now < s.Start {
		return 0
	}
	elapsed := (now - s.Start) / s.Period
	if elapsed > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(elapsed)
}

// Normalize replaces nil amounts with zero.
func (s *Season) Normalize() *Season {
	s.StandardMintedBeans = nativecommon.OrZero(s.StandardMintedBeans)
	s.Soil = nativecommon.OrZero(s.Soil)
	s.InitialSoil = nativecommon.OrZero(s.InitialSoil)
	s.BeanSown = nativecommon.OrZero(s.BeanSown)
	return s
}

// Weather holds the interest rate and the demand signals derived from sowing.
type Weather struct {
	Temp            uint64
	ThisSowTime     uint32
	LastSowTime     uint32
	ThisSoldOutTemp uint64
	LastSoldOutTemp uint64
	LastDeltaSoil   *uint256.Int
}

func (w *Weather) Normalize() *Weather {
	w.LastDeltaSoil = nativecommon.OrZero(w.LastDeltaSoil)
	return w
}

// Rain tracks the flood state machine. Pods is the field's pod line at the
// start of rain; a flood requires all of them to be harvestable.
type Rain struct {
	Raining              bool
	RainStart            uint32
	Pods                 *uint256.Int
	FloodHarvestablePods *uint256.Int
}

func (r *Rain) Normalize() *Rain {
	r.Pods = nativecommon.OrZero(r.Pods)
	r.FloodHarvestablePods = nativecommon.OrZero(r.FloodHarvestablePods)
	return r
}

// Gauges are the slowly moving controller values updated once per season.
type Gauges struct {
	// CultivationFactor scales below-peg soil issuance, at TemperaturePrecision.
	CultivationFactor uint64
	// ConvertBonusStalkPerBdv is the grown stalk granted per unit of BDV
	// converted toward peg while below peg, at StemPrecision.
	ConvertBonusStalkPerBdv *uint256.Int
	// ConvertBonusCapacity is the BDV that may earn the bonus this season.
	ConvertBonusCapacity *uint256.Int
	ConvertBonusUsed     *uint256.Int
}

func (g *Gauges) Normalize() *Gauges {
	g.ConvertBonusStalkPerBdv = nativecommon.OrZero(g.ConvertBonusStalkPerBdv)
	g.ConvertBonusCapacity = nativecommon.OrZero(g.ConvertBonusCapacity)
	g.ConvertBonusUsed = nativecommon.OrZero(g.ConvertBonusUsed)
	return g
}

// Block is the execution context of the current call.
type Block struct {
	Height    uint64
	Timestamp uint64
}
