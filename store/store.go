package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ds "github.com/ipfs/go-datastore"

	"github.com/rollkit/poe/types"
)

// Store is minimal interface for storing and retrieving blocks, chain state
// and transaction results.
type Store interface {
	// Height returns height of the highest block in store.
	Height() uint64

	// SaveBlock saves block along with the results of its transactions.
	// Stored height is updated if block height is greater than stored value.
	SaveBlock(ctx context.Context, block *types.Block, results []*types.TxResult) error

	// LoadBlock returns block at given height, or error if it's not found in Store.
	LoadBlock(ctx context.Context, height uint64) (*types.Block, error)
	// LoadBlockByHash returns block with given block header hash, or error if it's not found in Store.
	LoadBlockByHash(ctx context.Context, hash types.Hash) (*types.Block, error)

	// LoadTxResult returns the result of an included transaction.
	LoadTxResult(ctx context.Context, hash types.Hash) (*types.TxResult, error)

	// UpdateState updates state saved in Store. Only one State is stored.
	UpdateState(ctx context.Context, state types.State) error
	// LoadState returns last state saved with UpdateState.
	LoadState(ctx context.Context) (types.State, error)

	Close() error
}

// DefaultStore is a default store implementation.
type DefaultStore struct {
	db ds.Batching

	height uint64

	// mtx protects height
	mtx sync.RWMutex
}

var _ Store = &DefaultStore{}

// New returns new, default store. Chain data is kept under ChainPrefix, so kv
// may be shared with application state.
func New(ctx context.Context, kv ds.Batching) (*DefaultStore, error) {
	s := &DefaultStore{db: NewPrefixKV(kv, ChainPrefix)}
	blob, err := s.db.Get(ctx, ds.NewKey(getHeightKey()))
	switch {
	case errors.Is(err, ds.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load height: %w", err)
	default:
		if s.height, err = decodeHeight(blob); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close safely closes underlying data storage, to ensure that data is actually saved.
func (s *DefaultStore) Close() error {
	return s.db.Close()
}

// Height returns height of the highest block saved in the Store.
func (s *DefaultStore) Height() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.height
}

// SaveBlock adds block and the results of its transactions to the store in a single batch.
func (s *DefaultStore) SaveBlock(ctx context.Context, block *types.Block, results []*types.TxResult) error {
	height := block.Header.Height
	blockBlob, err := block.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal Block to binary: %w", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	batch, err := s.db.Batch(ctx)
	if err != nil {
		return fmt.Errorf("failed to create a new batch: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(getBlockKey(height)), blockBlob); err != nil {
		return fmt.Errorf("failed to put block blob in batch: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(getIndexKey(block.Hash())), encodeHeight(height)); err != nil {
		return fmt.Errorf("failed to put index key in batch: %w", err)
	}
	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		// a replayed transaction keeps the result of its first inclusion
		key := ds.NewKey(getTxResultKey(res.Hash))
		if _, ok := seen[key.String()]; ok {
			continue
		}
		seen[key.String()] = struct{}{}
		exists, err := s.db.Has(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to check tx result: %w", err)
		}
		if exists {
			continue
		}
		resBlob, err := res.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal TxResult to binary: %w", err)
		}
		if err := batch.Put(ctx, key, resBlob); err != nil {
			return fmt.Errorf("failed to put tx result in batch: %w", err)
		}
	}
	if height > s.height {
		if err := batch.Put(ctx, ds.NewKey(getHeightKey()), encodeHeight(height)); err != nil {
			return fmt.Errorf("failed to put height in batch: %w", err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	if height > s.height {
		s.height = height
	}
	return nil
}

// LoadBlock returns block at given height, or error if it's not found in Store.
func (s *DefaultStore) LoadBlock(ctx context.Context, height uint64) (*types.Block, error) {
	blob, err := s.db.Get(ctx, ds.NewKey(getBlockKey(height)))
	if err != nil {
		return nil, fmt.Errorf("failed to load block %d: %w", height, err)
	}
	block := new(types.Block)
	if err := block.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block: %w", err)
	}
	return block, nil
}

// LoadBlockByHash returns block with given block header hash, or error if it's not found in Store.
func (s *DefaultStore) LoadBlockByHash(ctx context.Context, hash types.Hash) (*types.Block, error) {
	heightBytes, err := s.db.Get(ctx, ds.NewKey(getIndexKey(hash)))
	if err != nil {
		return nil, fmt.Errorf("failed to get height for hash %v: %w", hash, err)
	}
	height, err := decodeHeight(heightBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode height: %w", err)
	}
	return s.LoadBlock(ctx, height)
}

// LoadTxResult returns the result of the transaction with given hash.
func (s *DefaultStore) LoadTxResult(ctx context.Context, hash types.Hash) (*types.TxResult, error) {
	blob, err := s.db.Get(ctx, ds.NewKey(getTxResultKey(hash)))
	if err != nil {
		return nil, fmt.Errorf("failed to load tx result %v: %w", hash, err)
	}
	res := new(types.TxResult)
	if err := res.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tx result: %w", err)
	}
	return res, nil
}

// UpdateState updates state saved in Store. Only one State is stored.
// If there is no State in Store, state will be saved.
func (s *DefaultStore) UpdateState(ctx context.Context, state types.State) error {
	blob, err := state.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return s.db.Put(ctx, ds.NewKey(getStateKey()), blob)
}

// LoadState returns last state saved with UpdateState.
func (s *DefaultStore) LoadState(ctx context.Context) (types.State, error) {
	var state types.State
	blob, err := s.db.Get(ctx, ds.NewKey(getStateKey()))
	if err != nil {
		return state, fmt.Errorf("failed to retrieve state: %w", err)
	}
	if err := state.UnmarshalBinary(blob); err != nil {
		return state, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, nil
}
