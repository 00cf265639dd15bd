package oracle

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
	"beanstalk/observability/metrics"
)

var (
	ErrUnknownPool    = errors.New("oracle: unknown pool")
	ErrDuplicatePool  = errors.New("oracle: pool already registered")
	ErrZeroPool       = errors.New("oracle: zero pool address")
	errNilSource      = errors.New("oracle: nil source")
	errSourceNotReady = errors.New("oracle: source returned empty reserves")
)

// Source reports the reserves of one or more pools. Implementations are
// external price feeds or pools; any error is treated as "no signal".
type Source interface {
	Reserves(pool common.Address) (Reserves, error)
	// TWAReserves are the reserves time-weighted over the last season.
	TWAReserves(pool common.Address) (Reserves, error)
	// CappedReserves are the reserves at the end of the previous block.
	CappedReserves(pool common.Address) (Reserves, error)
	// Ratio is the number of beans per non-bean unit at peg, at 1e18.
	Ratio(pool common.Address) (*uint256.Int, error)
}

// Whitelist names the pools that count toward the aggregate readings.
type Whitelist interface {
	PoolTokens() ([]common.Address, error)
}

// Adapter turns pool reserves into deltaB readings. A pool whose source fails
// contributes zero; callers never see the error.
type Adapter struct {
	pools          []common.Address
	sources        map[common.Address]Source
	whitelist      Whitelist
	minBeanReserve *uint256.Int
	logger         *slog.Logger
	telemetry      *metrics.ProtocolMetrics
}

// NewAdapter returns an adapter that ignores pools holding fewer than
// minBeanReserve beans.
func NewAdapter(minBeanReserve *uint256.Int) *Adapter {
	return &Adapter{
		sources:        make(map[common.Address]Source),
		minBeanReserve: nativecommon.OrZero(minBeanReserve),
		logger:         slog.Default().With(slog.String("component", "oracle")),
		telemetry:      metrics.Protocol(),
	}
}

func (a *Adapter) SetLogger(logger *slog.Logger) {
	if a == nil || logger == nil {
		return
	}
	a.logger = logger.With(slog.String("component", "oracle"))
}

// SetWhitelist limits the totals and TWAPrice to whitelisted pools. Without
// one every registered pool counts.
func (a *Adapter) SetWhitelist(w Whitelist) {
	if a == nil {
		return
	}
	a.whitelist = w
}

// Register adds a pool and its reserve source.
func (a *Adapter) Register(pool common.Address, source Source) error {
	if pool == (common.Address{}) {
		return ErrZeroPool
	}
	if source == nil {
		return errNilSource
	}
	if _, ok := a.sources[pool]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePool, pool.Hex())
	}
	a.sources[pool] = source
	a.pools = append(a.pools, pool)
	return nil
}

// Unregister drops pool and its source. Unknown pools are ignored.
func (a *Adapter) Unregister(pool common.Address) {
	if _, ok := a.sources[pool]; !ok {
		return
	}
	delete(a.sources, pool)
	for i, registered := range a.pools {
		if registered == pool {
			a.pools = append(a.pools[:i], a.pools[i+1:]...)
			break
		}
	}
}

// Pools lists the registered pools in registration order.
func (a *Adapter) Pools() []common.Address {
	return append([]common.Address(nil), a.pools...)
}

// MinBeanReserve is the liquidity floor below which a pool reports zero.
func (a *Adapter) MinBeanReserve() *uint256.Int { return a.minBeanReserve.Clone() }

type readFn func(Source, common.Address) (Reserves, error)

func (a *Adapter) read(pool common.Address, kind string, fn readFn) (Reserves, *uint256.Int, bool) {
	source, ok := a.sources[pool]
	if !ok {
		return Reserves{}, nil, false
	}
	reserves, err := fn(source, pool)
	if err == nil && (reserves[0] == nil || reserves[1] == nil) {
		err = errSourceNotReady
	}
	var ratio *uint256.Int
	if err == nil {
		ratio, err = source.Ratio(pool)
	}
	if err != nil {
		a.logger.Warn("oracle read failed; pool contributes zero",
			slog.String("pool", pool.Hex()),
			slog.String("reading", kind),
			slog.Any("error", err))
		a.telemetry.IncOracleFailure(pool.Hex())
		return Reserves{}, nil, false
	}
	return reserves, ratio, true
}

func (a *Adapter) deltaB(pool common.Address, kind string, fn readFn) *big.Int {
	reserves, ratio, ok := a.read(pool, kind, fn)
	if !ok {
		return new(big.Int)
	}
	return DeltaB(reserves, ratio, a.minBeanReserve)
}

func currentReserves(s Source, pool common.Address) (Reserves, error) { return s.Reserves(pool) }
func twaReserves(s Source, pool common.Address) (Reserves, error)     { return s.TWAReserves(pool) }
func cappedReserves(s Source, pool common.Address) (Reserves, error)  { return s.CappedReserves(pool) }

// CurrentDeltaB is the pool's instantaneous deltaB.
func (a *Adapter) CurrentDeltaB(pool common.Address) *big.Int {
	return a.deltaB(pool, "current", currentReserves)
}

// TWADeltaB is the pool's deltaB over the last season's time-weighted reserves.
func (a *Adapter) TWADeltaB(pool common.Address) *big.Int {
	return a.deltaB(pool, "twa", twaReserves)
}

// CappedReservesDeltaB is the pool's deltaB at the previous block's reserves.
// It cannot be moved within a block and bounds convert capacity.
func (a *Adapter) CappedReservesDeltaB(pool common.Address) *big.Int {
	return a.deltaB(pool, "capped", cappedReserves)
}

// aggregated lists the registered pools that count toward the totals, in
// whitelist order. A whitelist that cannot be read yields no pools.
func (a *Adapter) aggregated() []common.Address {
	if a.whitelist == nil {
		return a.pools
	}
	tokens, err := a.whitelist.PoolTokens()
	if err != nil {
		a.logger.Warn("oracle whitelist read failed; totals are zero", slog.Any("error", err))
		return nil
	}
	out := make([]common.Address, 0, len(tokens))
	for _, pool := range tokens {
		if _, ok := a.sources[pool]; ok {
			out = append(out, pool)
		}
	}
	return out
}

func (a *Adapter) total(fn func(common.Address) *big.Int) *big.Int {
	sum := new(big.Int)
	for _, pool := range a.aggregated() {
		sum.Add(sum, fn(pool))
	}
	return sum
}

func (a *Adapter) TotalCurrentDeltaB() *big.Int { return a.total(a.CurrentDeltaB) }
func (a *Adapter) TotalTWADeltaB() *big.Int     { return a.total(a.TWADeltaB) }
func (a *Adapter) OverallCappedDeltaB() *big.Int {
	return a.total(a.CappedReservesDeltaB)
}

// CappedReserves returns the pool's previous-block reserves.
func (a *Adapter) CappedReserves(pool common.Address) (Reserves, error) {
	if _, ok := a.sources[pool]; !ok {
		return Reserves{}, fmt.Errorf("%w: %s", ErrUnknownPool, pool.Hex())
	}
	reserves, _, ok := a.read(pool, "capped", cappedReserves)
	if !ok {
		return Reserves{new(uint256.Int), new(uint256.Int)}, nil
	}
	return reserves, nil
}

// Liquidity is the non-bean side of the pool's time-weighted reserves valued
// in beans.
func (a *Adapter) Liquidity(pool common.Address) *uint256.Int {
	reserves, ratio, ok := a.read(pool, "liquidity", twaReserves)
	if !ok || reserves.Bean().Lt(a.minBeanReserve) {
		return new(uint256.Int)
	}
	return ValueInBeans(reserves.NonBean(), ratio)
}

// Price is the pool's instantaneous bean price at 1e6 precision.
func (a *Adapter) Price(pool common.Address) *uint256.Int {
	reserves, ratio, ok := a.read(pool, "price", currentReserves)
	if !ok {
		return new(uint256.Int)
	}
	return PoolPrice(reserves, ratio)
}

// TWAPrice is the liquidity-weighted average bean price across pools over
// the last season, at 1e6 precision. Zero when no pool reports.
func (a *Adapter) TWAPrice() *uint256.Int {
	var beans, value uint256.Int
	for _, pool := range a.aggregated() {
		reserves, ratio, ok := a.read(pool, "twa-price", twaReserves)
		if !ok || reserves.Bean().Lt(a.minBeanReserve) {
			continue
		}
		beans.Add(&beans, reserves.Bean())
		value.Add(&value, ValueInBeans(reserves.NonBean(), ratio))
	}
	if beans.IsZero() {
		return new(uint256.Int)
	}
	out, err := nativecommon.MulDiv(&value, pricePrecision, &beans)
	if err != nil {
		return new(uint256.Int)
	}
	return out
}
