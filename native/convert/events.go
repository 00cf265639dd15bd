package convert

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/types"
)

const (
	EventTypeConvert        = "convert.convert"
	EventTypeBonusClawback  = "convert.bonus_clawback"
	EventTypeCapacityUpdate = "convert.capacity"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func NewConvertEvent(account common.Address, req Request, res *Result) *types.Event {
	return &types.Event{
		Type: EventTypeConvert,
		Attributes: map[string]string{
			"account":      account.Hex(),
			"kind":         req.Kind.String(),
			"fromToken":    req.FromToken.Hex(),
			"toToken":      req.ToToken.Hex(),
			"fromAmount":   amountString(res.FromAmount),
			"toAmount":     amountString(res.ToAmount),
			"fromBdv":      amountString(res.FromBdv),
			"toBdv":        amountString(res.ToBdv),
			"toStem":       strconv.FormatInt(res.ToStem, 10),
			"penaltyStalk": amountString(res.PenaltyStalk),
			"bonusStalk":   amountString(res.BonusStalk),
		},
	}
}

func NewBonusClawbackEvent(season uint32, account common.Address, stalk *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBonusClawback,
		Attributes: map[string]string{
			"season":  strconv.FormatUint(uint64(season), 10),
			"account": account.Hex(),
			"stalk":   amountString(stalk),
		},
	}
}

// NewCapacityEvent reports a bucket's usage. A zero pool is the overall bucket.
func NewCapacityEvent(season uint32, pool common.Address, used *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCapacityUpdate,
		Attributes: map[string]string{
			"season": strconv.FormatUint(uint64(season), 10),
			"pool":   pool.Hex(),
			"used":   amountString(used),
		},
	}
}
