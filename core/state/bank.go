package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/well"
)

func (m *Manager) GetBalance(token, account common.Address, mode bank.Mode) (*uint256.Int, error) {
	amount, err := getRecord[uint256.Int](m, BalanceKey(token, account, mode))
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(amount), nil
}

func (m *Manager) PutBalance(token, account common.Address, mode bank.Mode, amount *uint256.Int) error {
	key := BalanceKey(token, account, mode)
	if amount == nil || amount.IsZero() {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}

func (m *Manager) GetSupply(token common.Address) (*uint256.Int, error) {
	amount, err := getRecord[uint256.Int](m, SupplyKey(token))
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(amount), nil
}

func (m *Manager) PutSupply(token common.Address, amount *uint256.Int) error {
	return m.KVPut(SupplyKey(token), nativecommon.OrZero(amount))
}

func (m *Manager) PoolAddresses() ([]common.Address, error) {
	var pools []common.Address
	if err := m.KVGetList(poolListKey, &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

func (m *Manager) GetPool(addr common.Address) (*well.Pool, error) {
	return getRecord[well.Pool](m, PoolKey(addr))
}

// PutPool stores p, appending it to the pool list on first write.
func (m *Manager) PutPool(p *well.Pool) error {
	existing, err := m.GetPool(p.Address)
	if err != nil {
		return err
	}
	if existing == nil {
		pools, err := m.PoolAddresses()
		if err != nil {
			return err
		}
		if err := m.KVPut(poolListKey, append(pools, p.Address)); err != nil {
			return err
		}
	}
	return m.KVPut(PoolKey(p.Address), p.Clone())
}
