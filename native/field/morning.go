package field

import (
	"github.com/holiman/uint256"

	"beanstalk/native/season"
)

// MorningBlocks is the number of blocks after sunrise during which the
// temperature ramps up to its maximum.
const MorningBlocks = 25

const morningPrecision uint64 = 1_000_000_000_000

// morningCurve[d] = log51(2d+1) scaled by 1e12.
var morningCurve = [MorningBlocks]uint64{
	0,
	279415312704,
	409336034395,
	494912626048,
	558830625409,
	609868162219,
	652355825780,
	688751347100,
	720584687295,
	748873234524,
	774327938752,
	797465225780,
	818672068791,
	838245938114,
	856420437864,
	873382373802,
	889283474924,
	904248660443,
	918382006208,
	931771138485,
	944490527707,
	956603996980,
	968166659804,
	979226436102,
	989825252096,
}

// MorningTemperature scales maxTemp along the morning curve for a call made
// delta blocks after sunrise. The result never drops below 1% and never
// exceeds maxTemp.
func MorningTemperature(maxTemp, delta uint64) uint64 {
	if delta >= MorningBlocks {
		return maxTemp
	}
	scaled := new(uint256.Int).Mul(uint256.NewInt(maxTemp), uint256.NewInt(morningCurve[delta]))
	scaled.Div(scaled, uint256.NewInt(morningPrecision))
	temp := scaled.Uint64()
	if temp < season.OnePercentTemperature {
		temp = season.OnePercentTemperature
	}
	if temp > maxTemp {
		temp = maxTemp
	}
	return temp
}
