package store

import (
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	ds "github.com/ipfs/go-datastore"
	ktds "github.com/ipfs/go-datastore/keytransform"
	badger3 "github.com/ipfs/go-ds-badger3"
)

// KV is the datastore a node runs on: batched writes for chain data and
// transactions for atomic state transitions.
type KV interface {
	ds.Batching
	ds.TxnDatastore
}

// ReadWriter is implemented by both datastores and datastore transactions.
type ReadWriter interface {
	ds.Read
	ds.Write
}

// NewDefaultInMemoryKVStore builds KVStore that works in-memory (without accessing disk).
func NewDefaultInMemoryKVStore() (KV, error) {
	inMemoryOptions := &badger3.Options{
		GcDiscardRatio: 0.2,
		GcInterval:     15 * time.Minute,
		GcSleep:        10 * time.Second,
		Options:        badger.DefaultOptions("").WithInMemory(true),
	}
	return badger3.NewDatastore("", inMemoryOptions)
}

// NewDefaultKVStore creates instance of default key-value store.
func NewDefaultKVStore(rootDir, dbPath, dbName string) (KV, error) {
	path := filepath.Join(rootify(rootDir, dbPath), dbName)
	return badger3.NewDatastore(path, nil)
}

// NewPrefixKV wraps kv so that every key is stored under prefix.
func NewPrefixKV(kv ds.Batching, prefix string) ds.Batching {
	return ktds.Wrap(kv, ktds.PrefixTransform{Prefix: ds.NewKey(prefix)})
}

// rootify works just like in cosmos-sdk
func rootify(rootDir, dbPath string) string {
	if filepath.IsAbs(dbPath) {
		return dbPath
	}
	return filepath.Join(rootDir, dbPath)
}
