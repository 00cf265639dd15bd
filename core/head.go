package core

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"beanstalk/storage"
)

var headKey = []byte("beanstalk/head")

// Head is the last committed block.
type Head struct {
	Height uint64
	Root   common.Hash
}

// ReadHead returns the last committed head, false when none was written.
func ReadHead(db storage.Database) (Head, bool) {
	raw, err := db.Get(headKey)
	if err != nil || len(raw) != 8+common.HashLength {
		return Head{}, false
	}
	return Head{
		Height: binary.BigEndian.Uint64(raw[:8]),
		Root:   common.BytesToHash(raw[8:]),
	}, true
}

func writeHead(db storage.Database, h Head) error {
	raw := make([]byte, 8+common.HashLength)
	binary.BigEndian.PutUint64(raw[:8], h.Height)
	copy(raw[8:], h.Root[:])
	if err := db.Put(headKey, raw); err != nil {
		return fmt.Errorf("write head: %w", err)
	}
	return nil
}
