package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
	"beanstalk/native/field"
)

func (m *Manager) FieldIDs() ([]uint64, error) {
	var ids []uint64
	if err := m.KVGetList(fieldListKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetField returns the field with id, nil when it was never added.
func (m *Manager) GetField(id uint64) (*field.Field, error) {
	return getRecord[field.Field](m, FieldKey(id))
}

// PutField stores f, registering id in the field list on first write.
func (m *Manager) PutField(id uint64, f *field.Field) error {
	existing, err := m.GetField(id)
	if err != nil {
		return err
	}
	if existing == nil {
		ids, err := m.FieldIDs()
		if err != nil {
			return err
		}
		if err := m.KVPut(fieldListKey, append(ids, id)); err != nil {
			return err
		}
	}
	return m.KVPut(FieldKey(id), f.Clone())
}

func (m *Manager) ActiveFieldID() (uint64, error) {
	var id uint64
	if _, err := m.KVGet(fieldActiveKey, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (m *Manager) SetActiveFieldID(id uint64) error {
	return m.KVPut(fieldActiveKey, id)
}

// GetPlot returns the pods of the plot at index, nil when there is none.
func (m *Manager) GetPlot(account common.Address, fieldID uint64, index *uint256.Int) (*uint256.Int, error) {
	return getRecord[uint256.Int](m, PlotKey(account, fieldID, index))
}

func (m *Manager) PutPlot(account common.Address, fieldID uint64, index, pods *uint256.Int) error {
	return m.KVPut(PlotKey(account, fieldID, index), nativecommon.OrZero(pods))
}

func (m *Manager) DeletePlot(account common.Address, fieldID uint64, index *uint256.Int) error {
	return m.KVDelete(PlotKey(account, fieldID, index))
}

// PlotIndexes is the account's ordered plot index list in a field.
func (m *Manager) PlotIndexes(account common.Address, fieldID uint64) nativecommon.IndexStore[uint256.Int] {
	return newTrieIndex(m, PlotIndexKey(account, fieldID), uint256Codec)
}

func (m *Manager) GetPodAllowance(owner, spender common.Address, fieldID uint64) (*uint256.Int, error) {
	amount, err := getRecord[uint256.Int](m, PodAllowanceKey(owner, spender, fieldID))
	if err != nil {
		return nil, err
	}
	return nativecommon.OrZero(amount), nil
}

func (m *Manager) PutPodAllowance(owner, spender common.Address, fieldID uint64, amount *uint256.Int) error {
	key := PodAllowanceKey(owner, spender, fieldID)
	if amount == nil || amount.IsZero() {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}
