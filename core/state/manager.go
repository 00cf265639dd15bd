package state

import (
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"beanstalk/storage"
	"beanstalk/storage/trie"
)

// Manager owns the persisted protocol state. Every engine reads and writes
// through it; values are rlp encoded under keccak256-hashed keys.
//
// Manager is not safe for concurrent use.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

// Snapshot is a point-in-time copy of the state trie.
type Snapshot struct {
	trie *trie.Trie
}

// Snapshot captures the current state so a failing call can be undone.
func (m *Manager) Snapshot() *Snapshot {
	return &Snapshot{trie: m.trie.Copy()}
}

// Revert restores the state captured by s. The snapshot stays usable.
func (m *Manager) Revert(s *Snapshot) {
	if s == nil || s.trie == nil {
		return
	}
	m.trie = s.trie.Copy()
}

// Hash returns the root hash including uncommitted writes.
func (m *Manager) Hash() common.Hash { return m.trie.Hash() }

// Root returns the last committed root.
func (m *Manager) Root() common.Hash { return m.trie.Root() }

// Commit persists pending writes as the state of block height.
func (m *Manager) Commit(height uint64) (common.Hash, error) {
	return m.trie.Commit(m.trie.Root(), height)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 to match the requirements of the trie.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key. Missing keys are ignored.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.trie.Delete(kvKey(key))
}

// KVGetList decodes an rlp list stored under key into the slice pointed to by
// out. Missing keys yield an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	ok, err := m.KVGet(key, out)
	if err != nil || ok {
		return err
	}
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	return nil
}

// getRecord loads the value under key into a fresh T, returning nil when the
// key is absent.
func getRecord[T any](m *Manager, key []byte) (*T, error) {
	out := new(T)
	ok, err := m.KVGet(key, out)
	if err != nil || !ok {
		return nil, err
	}
	return out, nil
}

// Store returns the database backing the trie.
func (m *Manager) Store() storage.Database { return m.trie.Store() }
