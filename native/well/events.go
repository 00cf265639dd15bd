package well

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/types"
)

const (
	EventTypePoolCreated      = "well.created"
	EventTypeLiquidityAdded   = "well.liquidity_added"
	EventTypeLiquidityRemoved = "well.liquidity_removed"
	EventTypeSwap             = "well.swap"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func NewPoolCreatedEvent(pool, nonBean common.Address, ratio *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypePoolCreated,
		Attributes: map[string]string{
			"pool":    pool.Hex(),
			"nonBean": nonBean.Hex(),
			"ratio":   amountString(ratio),
		},
	}
}

func NewLiquidityAddedEvent(account, pool common.Address, beans, nonBeans, lp *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidityAdded,
		Attributes: map[string]string{
			"account":  account.Hex(),
			"pool":     pool.Hex(),
			"beans":    amountString(beans),
			"nonBeans": amountString(nonBeans),
			"lp":       amountString(lp),
		},
	}
}

func NewLiquidityRemovedEvent(account, pool, token common.Address, lp, out *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidityRemoved,
		Attributes: map[string]string{
			"account": account.Hex(),
			"pool":    pool.Hex(),
			"token":   token.Hex(),
			"lp":      amountString(lp),
			"out":     amountString(out),
		},
	}
}

func NewSwapEvent(account, pool, tokenIn common.Address, amountIn, amountOut *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSwap,
		Attributes: map[string]string{
			"account":   account.Hex(),
			"pool":      pool.Hex(),
			"tokenIn":   tokenIn.Hex(),
			"amountIn":  amountString(amountIn),
			"amountOut": amountString(amountOut),
		},
	}
}
