// Package indexer maintains secondary indexes over application state that
// are not part of the state root.
package indexer

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"

	"github.com/rollkit/poe/store"
	"github.com/rollkit/poe/types"
)

// ErrEmptyOwner is returned when looking up claims without an owner.
var ErrEmptyOwner = errors.New("owner cannot be empty")

// ClaimIndex maps owners to the proofs they hold.
type ClaimIndex struct {
	store ds.Batching
}

// NewClaimIndex creates new claims-by-owner index on top of kv.
func NewClaimIndex(kv ds.Batching) *ClaimIndex {
	return &ClaimIndex{store: kv}
}

func keyForClaim(owner types.AccountID, proof types.Proof) ds.Key {
	return ds.NewKey(store.GenerateKey([]string{hex.EncodeToString(owner), hex.EncodeToString(store.ClaimDigest(proof))}))
}

// Add records that owner holds proof.
func (idx *ClaimIndex) Add(ctx context.Context, owner types.AccountID, proof types.Proof) error {
	return idx.store.Put(ctx, keyForClaim(owner, proof), proof)
}

// Remove forgets that owner holds proof.
func (idx *ClaimIndex) Remove(ctx context.Context, owner types.AccountID, proof types.Proof) error {
	return idx.store.Delete(ctx, keyForClaim(owner, proof))
}

// ByOwner returns the proofs held by owner, in byte order.
func (idx *ClaimIndex) ByOwner(ctx context.Context, owner types.AccountID) ([]types.Proof, error) {
	if len(owner) == 0 {
		return nil, ErrEmptyOwner
	}
	results, err := idx.store.Query(ctx, query.Query{
		Prefix: store.GenerateKey([]string{hex.EncodeToString(owner)}),
	})
	if err != nil {
		return nil, err
	}
	defer results.Close()

	proofs := []types.Proof{}
	for res := range results.Next() {
		if res.Error != nil {
			return nil, res.Error
		}
		proofs = append(proofs, append(types.Proof{}, res.Value...))
	}
	sort.Slice(proofs, func(i, j int) bool {
		return bytes.Compare(proofs[i], proofs[j]) < 0
	})
	return proofs, nil
}

// Rebuild replaces the whole index with the claims found in claims.
func (idx *ClaimIndex) Rebuild(ctx context.Context, claims *store.ClaimStore) error {
	results, err := idx.store.Query(ctx, query.Query{KeysOnly: true})
	if err != nil {
		return err
	}
	keys, err := results.Rest()
	if err != nil {
		return err
	}

	batch, err := idx.store.Batch(ctx)
	if err != nil {
		return fmt.Errorf("failed to create a new batch: %w", err)
	}
	for _, e := range keys {
		if err := batch.Delete(ctx, ds.RawKey(e.Key)); err != nil {
			return err
		}
	}
	err = claims.Iterate(ctx, func(proof types.Proof, claim types.Claim) error {
		return batch.Put(ctx, keyForClaim(claim.Owner, proof), proof)
	})
	if err != nil {
		return err
	}
	return batch.Commit(ctx)
}
