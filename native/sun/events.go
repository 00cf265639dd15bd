package sun

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/types"
)

const (
	EventTypeSunrise           = "sun.sunrise"
	EventTypeSoil              = "sun.soil"
	EventTypeTemperatureChange = "sun.temperature_change"
	EventTypeRain              = "sun.rain"
	EventTypeFlood             = "sun.flood"
	EventTypeShipment          = "sun.shipment"
	EventTypeIncentive         = "sun.incentive"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func seasonString(s uint32) string { return strconv.FormatUint(uint64(s), 10) }

func NewSunriseEvent(season uint32, caseID uint8, twaDeltaB *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSunrise,
		Attributes: map[string]string{
			"season":    seasonString(season),
			"caseId":    strconv.Itoa(int(caseID)),
			"twaDeltaB": twaDeltaB.String(),
		},
	}
}

// NewSoilEvent reports the soil set for a season.
func NewSoilEvent(season uint32, soil *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSoil,
		Attributes: map[string]string{
			"season": seasonString(season),
			"soil":   amountString(soil),
		},
	}
}

func NewTemperatureChangeEvent(season uint32, caseID uint8, from, to uint64) *types.Event {
	return &types.Event{
		Type: EventTypeTemperatureChange,
		Attributes: map[string]string{
			"season": seasonString(season),
			"caseId": strconv.Itoa(int(caseID)),
			"from":   strconv.FormatUint(from, 10),
			"to":     strconv.FormatUint(to, 10),
		},
	}
}

func NewRainEvent(season uint32, raining bool) *types.Event {
	return &types.Event{
		Type: EventTypeRain,
		Attributes: map[string]string{
			"season":  seasonString(season),
			"raining": strconv.FormatBool(raining),
		},
	}
}

func NewFloodEvent(season uint32, fieldID uint64, pods *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeFlood,
		Attributes: map[string]string{
			"season":  seasonString(season),
			"fieldId": strconv.FormatUint(fieldID, 10),
			"pods":    amountString(pods),
		},
	}
}

func NewShipmentEvent(route Route, recipient common.Address, beans *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeShipment,
		Attributes: map[string]string{
			"plan":      route.Plan,
			"recipient": recipient.Hex(),
			"beans":     amountString(beans),
		},
	}
}

func NewIncentiveEvent(caller common.Address, beans *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeIncentive,
		Attributes: map[string]string{
			"account": caller.Hex(),
			"beans":   amountString(beans),
		},
	}
}
