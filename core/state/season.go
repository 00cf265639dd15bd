package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
	"beanstalk/native/season"
)

// GetSeason returns the season singleton, nil before genesis writes it.
func (m *Manager) GetSeason() (*season.Season, error) {
	return getRecord[season.Season](m, seasonKey)
}

func (m *Manager) PutSeason(s *season.Season) error {
	cp := *s
	return m.KVPut(seasonKey, cp.Normalize())
}

func (m *Manager) GetWeather() (*season.Weather, error) {
	return getRecord[season.Weather](m, weatherKey)
}

func (m *Manager) PutWeather(w *season.Weather) error {
	cp := *w
	return m.KVPut(weatherKey, cp.Normalize())
}

func (m *Manager) GetRain() (*season.Rain, error) {
	return getRecord[season.Rain](m, rainKey)
}

func (m *Manager) PutRain(r *season.Rain) error {
	cp := *r
	return m.KVPut(rainKey, cp.Normalize())
}

func (m *Manager) GetGauges() (*season.Gauges, error) {
	return getRecord[season.Gauges](m, gaugesKey)
}

func (m *Manager) PutGauges(g *season.Gauges) error {
	cp := *g
	return m.KVPut(gaugesKey, cp.Normalize())
}

// GetConvertCapacity returns the capacity used by pool in season; the zero
// pool holds the overall bucket.
func (m *Manager) GetConvertCapacity(season uint32, pool common.Address) (*uint256.Int, error) {
	used, err := getRecord[uint256.Int](m, ConvertCapacityKey(season, pool))
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(used), nil
}

func (m *Manager) PutConvertCapacity(season uint32, pool common.Address, used *uint256.Int) error {
	return m.KVPut(ConvertCapacityKey(season, pool), nativecommon.OrZero(used))
}

func (m *Manager) GetConvertBonus(season uint32, account common.Address) (*uint256.Int, error) {
	stalk, err := getRecord[uint256.Int](m, ConvertBonusKey(season, account))
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(stalk), nil
}

func (m *Manager) PutConvertBonus(season uint32, account common.Address, stalk *uint256.Int) error {
	key := ConvertBonusKey(season, account)
	if stalk == nil || stalk.IsZero() {
		return m.KVDelete(key)
	}
	return m.KVPut(key, stalk)
}
