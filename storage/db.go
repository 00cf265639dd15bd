package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
)

// Database is a generic interface for a key-value store that can also back the
// state trie. This allows the protocol to run against an in-memory store in
// tests and a persistent one in the daemon.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

type kvDatabase struct {
	db     ethdb.Database
	trieDB *triedb.Database
}

func newKVDatabase(db ethdb.Database) *kvDatabase {
	return &kvDatabase{db: db, trieDB: triedb.NewDatabase(db, triedb.HashDefaults)}
}

func (d *kvDatabase) Put(key []byte, value []byte) error {
	return d.db.Put(key, value)
}

func (d *kvDatabase) Get(key []byte) ([]byte, error) {
	value, err := d.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("key not found")
	}
	return value, nil
}

func (d *kvDatabase) TrieDB() *triedb.Database {
	return d.trieDB
}

func (d *kvDatabase) Close() {
	if d.trieDB != nil {
		_ = d.trieDB.Close()
	}
	_ = d.db.Close()
}

// --- In-Memory DB (for testing) ---

// MemDB is an in-memory database. All data is lost when the process exits.
type MemDB struct {
	*kvDatabase
}

func NewMemDB() *MemDB {
	return &MemDB{kvDatabase: newKVDatabase(rawdb.NewMemoryDatabase())}
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	*kvDatabase
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	store, err := leveldb.New(path, 16, 16, "beanstalk/db/", false)
	if err != nil {
		return nil, err
	}
	return &LevelDB{kvDatabase: newKVDatabase(rawdb.NewDatabase(store))}, nil
}
