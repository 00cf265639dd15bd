package well

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

// Pool is a two-token constant-product pool pairing beans with one other
// token. The pool address doubles as its LP token.
type Pool struct {
	Address        common.Address
	NonBeanToken   common.Address
	BeanReserve    *uint256.Int
	NonBeanReserve *uint256.Int
	LPSupply       *uint256.Int
	// Ratio is beans per non-bean unit at peg, at 1e18.
	Ratio *uint256.Int

	// Reserves at the close of LastBlock's predecessor.
	CappedBean    *uint256.Int
	CappedNonBean *uint256.Int
	LastBlock     uint64

	// Time-weighted accumulators: reserve * seconds since creation.
	CumulativeBean    *uint256.Int
	CumulativeNonBean *uint256.Int
	LastUpdate        uint64

	SnapshotBean    *uint256.Int
	SnapshotNonBean *uint256.Int
	SnapshotTime    uint64
	TWABean         *uint256.Int
	TWANonBean      *uint256.Int
}

func (p *Pool) normalize() *Pool {
	p.BeanReserve = nativecommon.OrZero(p.BeanReserve)
	p.NonBeanReserve = nativecommon.OrZero(p.NonBeanReserve)
	p.LPSupply = nativecommon.OrZero(p.LPSupply)
	p.Ratio = nativecommon.OrZero(p.Ratio)
	p.CappedBean = nativecommon.OrZero(p.CappedBean)
	p.CappedNonBean = nativecommon.OrZero(p.CappedNonBean)
	p.CumulativeBean = nativecommon.OrZero(p.CumulativeBean)
	p.CumulativeNonBean = nativecommon.OrZero(p.CumulativeNonBean)
	p.SnapshotBean = nativecommon.OrZero(p.SnapshotBean)
	p.SnapshotNonBean = nativecommon.OrZero(p.SnapshotNonBean)
	p.TWABean = nativecommon.OrZero(p.TWABean)
	p.TWANonBean = nativecommon.OrZero(p.TWANonBean)
	return p
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	cp := *p
	return cp.normalize()
}

// lpSupplyFor is the LP supply matching a pair of reserves: 2*sqrt(B*O).
func lpSupplyFor(bean, nonBean *uint256.Int) *uint256.Int {
	product := new(big.Int).Mul(bean.ToBig(), nonBean.ToBig())
	root := new(big.Int).Sqrt(product)
	root.Lsh(root, 1)
	out, overflow := uint256.FromBig(root)
	if overflow {
		return nativecommon.MaxUint256()
	}
	return out
}

// reserveFor solves 2*sqrt(x*other) = supply for x, rounding up so the pool
// never pays out more than the curve allows.
func reserveFor(supply, other *uint256.Int) *uint256.Int {
	if other.IsZero() {
		return new(uint256.Int)
	}
	half := new(big.Int).Add(supply.ToBig(), big.NewInt(1))
	half.Rsh(half, 1)
	sq := new(big.Int).Mul(half, half)
	q, r := new(big.Int).QuoRem(sq, other.ToBig(), new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	out, overflow := uint256.FromBig(q)
	if overflow {
		return nativecommon.MaxUint256()
	}
	return out
}

// beansAtPeg is the bean reserve the pool would hold when trading at peg:
// sqrt(B*O*ratio/1e18).
func beansAtPeg(bean, nonBean, ratio *uint256.Int) *uint256.Int {
	product := new(big.Int).Mul(bean.ToBig(), nonBean.ToBig())
	product.Mul(product, ratio.ToBig())
	product.Quo(product, nativecommon.Ratio.ToBig())
	out, overflow := uint256.FromBig(new(big.Int).Sqrt(product))
	if overflow {
		return nativecommon.MaxUint256()
	}
	return out
}
