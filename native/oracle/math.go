package oracle

import (
	"math/big"

	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

// Reserves are a pool's balances ordered [bean, nonBean].
type Reserves [2]*uint256.Int

func (r Reserves) Bean() *uint256.Int    { return nativecommon.OrZero(r[0]) }
func (r Reserves) NonBean() *uint256.Int { return nativecommon.OrZero(r[1]) }

// DeltaB returns the beans a constant-product pool must gain (negative) or
// shed (positive) to trade at peg: sqrt(B*O*ratio/1e18) - B. Pools whose bean
// reserve is below minBean report zero.
func DeltaB(r Reserves, ratio, minBean *uint256.Int) *big.Int {
	bean := r.Bean()
	if bean.IsZero() || bean.Lt(nativecommon.OrZero(minBean)) {
		return new(big.Int)
	}
	ratio = nativecommon.OrZero(ratio)
	if ratio.IsZero() {
		return new(big.Int)
	}
	product := new(big.Int).Mul(bean.ToBig(), r.NonBean().ToBig())
	product.Mul(product, ratio.ToBig())
	product.Quo(product, nativecommon.Ratio.ToBig())
	atPeg := new(big.Int).Sqrt(product)
	return atPeg.Sub(atPeg, bean.ToBig())
}

// ValueInBeans converts a non-bean amount into beans at the peg ratio.
func ValueInBeans(nonBean, ratio *uint256.Int) *uint256.Int {
	out, err := nativecommon.MulDiv(nonBean, ratio, nativecommon.Ratio)
	if err != nil {
		return new(uint256.Int)
	}
	return out
}

// pricePrecision expresses prices with six decimals; 1e6 is peg.
var pricePrecision = uint256.NewInt(1_000_000)

// PoolPrice is the value of one bean in the pool, at 1e6 precision.
func PoolPrice(r Reserves, ratio *uint256.Int) *uint256.Int {
	bean := r.Bean()
	if bean.IsZero() {
		return new(uint256.Int)
	}
	out, err := nativecommon.MulDiv(ValueInBeans(r.NonBean(), ratio), pricePrecision, bean)
	if err != nil {
		return new(uint256.Int)
	}
	return out
}
