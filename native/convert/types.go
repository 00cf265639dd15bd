package convert

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind selects how the withdrawn deposit is turned into the new one.
type Kind uint8

const (
	// BeansToPool adds deposited beans to a pool as single-sided liquidity.
	BeansToPool Kind = iota + 1
	// PoolToBeans removes deposited LP from a pool as beans.
	PoolToBeans
	// Lambda re-deposits a token to itself, refreshing its BDV upward.
	Lambda
	// AntiLambda re-deposits a token to itself at a lower BDV. Any caller may
	// trigger it on any account.
	AntiLambda
	// Pipeline runs the withdrawn tokens through a sequence of registered pipes.
	Pipeline
)

func (k Kind) String() string {
	switch k {
	case BeansToPool:
		return "beans_to_pool"
	case PoolToBeans:
		return "pool_to_beans"
	case Lambda:
		return "lambda"
	case AntiLambda:
		return "anti_lambda"
	case Pipeline:
		return "pipeline"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// decreasesBDV reports whether the kind may lower a deposit's BDV.
func (k Kind) decreasesBDV() bool { return k == AntiLambda }

// Request describes one convert of an account's deposits.
type Request struct {
	Kind      Kind
	Account   common.Address
	FromToken common.Address
	ToToken   common.Address
	Stems     []int64
	Amounts   []*uint256.Int
	// Pool is the pool used by formulaic kinds. When zero it is derived from
	// the pool-side token.
	Pool   common.Address
	MinOut *uint256.Int
	// GrownStalkSlippage is the share of grown stalk the account accepts to
	// lose, at 1e18. Nil means none.
	GrownStalkSlippage *uint256.Int
	Pipes              []string
}

// Result summarises an executed convert.
type Result struct {
	ToStem       int64
	FromAmount   *uint256.Int
	ToAmount     *uint256.Int
	FromBdv      *uint256.Int
	ToBdv        *uint256.Int
	GrownStalk   *uint256.Int
	PenaltyStalk *uint256.Int
	BonusStalk   *uint256.Int
}
