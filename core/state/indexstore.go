package state

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
)

// codec converts list elements to and from their stored bytes.
type codec[K any] struct {
	encode func(K) []byte
	decode func([]byte) (K, error)
}

var uint256Codec = codec[uint256.Int]{
	encode: func(v uint256.Int) []byte {
		b := v.Bytes32()
		return b[:]
	},
	decode: func(b []byte) (uint256.Int, error) {
		var v uint256.Int
		if len(b) > 32 {
			return v, fmt.Errorf("index store: %d byte element", len(b))
		}
		v.SetBytes(b)
		return v, nil
	},
}

// Stems are signed; rlp only carries unsigned integers, so they are stored
// as the big-endian bytes of their two's complement.
var stemCodec = codec[int64]{
	encode: func(v int64) []byte {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		return b[:]
	},
	decode: func(b []byte) (int64, error) {
		if len(b) != 8 {
			return 0, fmt.Errorf("index store: %d byte stem", len(b))
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	},
}

// trieIndex is an IndexStore laid out in the trie as a length, one slot per
// position and a reverse lookup per element, all under a common prefix.
type trieIndex[K any] struct {
	m      *Manager
	prefix string
	codec  codec[K]
}

var (
	_ nativecommon.IndexStore[uint256.Int] = (*trieIndex[uint256.Int])(nil)
	_ nativecommon.IndexStore[int64]       = (*trieIndex[int64])(nil)
)

func newTrieIndex[K any](m *Manager, prefix []byte, c codec[K]) *trieIndex[K] {
	return &trieIndex[K]{m: m, prefix: string(prefix), codec: c}
}

func (s *trieIndex[K]) lenKey() []byte { return []byte(s.prefix + "/len") }

func (s *trieIndex[K]) slotKey(pos uint64) []byte {
	return []byte(fmt.Sprintf("%s/at/%d", s.prefix, pos))
}

func (s *trieIndex[K]) posKey(k K) []byte {
	return []byte(s.prefix + "/pos/" + hex.EncodeToString(s.codec.encode(k)))
}

func (s *trieIndex[K]) Len() (uint64, error) {
	var n uint64
	if _, err := s.m.KVGet(s.lenKey(), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *trieIndex[K]) At(pos uint64) (K, error) {
	var (
		raw  []byte
		zero K
	)
	ok, err := s.m.KVGet(s.slotKey(pos), &raw)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("%w: position %d", nativecommon.ErrIndexNotFound, pos)
	}
	return s.codec.decode(raw)
}

func (s *trieIndex[K]) Set(pos uint64, k K) error {
	n, err := s.Len()
	if err != nil {
		return err
	}
	if pos > n {
		return fmt.Errorf("index store: position %d beyond length %d", pos, n)
	}
	if err := s.m.KVPut(s.slotKey(pos), s.codec.encode(k)); err != nil {
		return err
	}
	if pos == n {
		return s.m.KVPut(s.lenKey(), n+1)
	}
	return nil
}

func (s *trieIndex[K]) Truncate(n uint64) error {
	cur, err := s.Len()
	if err != nil {
		return err
	}
	for pos := n; pos < cur; pos++ {
		if err := s.m.KVDelete(s.slotKey(pos)); err != nil {
			return err
		}
	}
	if n == 0 {
		return s.m.KVDelete(s.lenKey())
	}
	return s.m.KVPut(s.lenKey(), n)
}

func (s *trieIndex[K]) Position(k K) (uint64, bool, error) {
	var pos uint64
	ok, err := s.m.KVGet(s.posKey(k), &pos)
	if err != nil {
		return 0, false, err
	}
	return pos, ok, nil
}

func (s *trieIndex[K]) SetPosition(k K, pos uint64) error {
	return s.m.KVPut(s.posKey(k), pos)
}

func (s *trieIndex[K]) DeletePosition(k K) error {
	return s.m.KVDelete(s.posKey(k))
}

// items lists the elements in position order.
func (s *trieIndex[K]) items() ([]K, error) {
	n, err := s.Len()
	if err != nil {
		return nil, err
	}
	out := make([]K, 0, n)
	for pos := uint64(0); pos < n; pos++ {
		k, err := s.At(pos)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
