package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rollkit/poe/types"
)

// ClaimStore keeps the claim registry under AppPrefix. Claims are keyed by
// ClaimDigest of their proof; the proof itself is stored with the claim so
// that every proof within MaxProofLengthLimit fits the datastore key limits.
type ClaimStore struct {
	rw ReadWriter
}

// NewClaimStore returns a ClaimStore reading and writing through rw, usually
// a datastore transaction.
func NewClaimStore(rw ReadWriter) *ClaimStore {
	return &ClaimStore{rw: rw}
}

// Has reports whether proof is claimed.
func (s *ClaimStore) Has(ctx context.Context, proof types.Proof) (bool, error) {
	return s.rw.Has(ctx, getClaimKey(proof))
}

// Get returns the claim on proof. found is false if proof is not claimed.
func (s *ClaimStore) Get(ctx context.Context, proof types.Proof) (claim types.Claim, found bool, err error) {
	blob, err := s.rw.Get(ctx, getClaimKey(proof))
	if errors.Is(err, ds.ErrNotFound) {
		return types.Claim{}, false, nil
	}
	if err != nil {
		return types.Claim{}, false, fmt.Errorf("failed to load claim: %w", err)
	}
	stored, claim, err := decodeClaimRecord(blob)
	if err != nil {
		return types.Claim{}, false, err
	}
	if !bytes.Equal(stored, proof) {
		return types.Claim{}, false, fmt.Errorf("claim key %X holds a different proof", ClaimDigest(proof))
	}
	return claim, true, nil
}

// Set stores claim under proof.
func (s *ClaimStore) Set(ctx context.Context, proof types.Proof, claim types.Claim) error {
	blob, err := encodeClaimRecord(proof, claim)
	if err != nil {
		return err
	}
	return s.rw.Put(ctx, getClaimKey(proof), blob)
}

// Delete removes the claim on proof.
func (s *ClaimStore) Delete(ctx context.Context, proof types.Proof) error {
	return s.rw.Delete(ctx, getClaimKey(proof))
}

// Iterate calls fn for every claim in key order. Iteration stops at the
// first error returned by fn.
func (s *ClaimStore) Iterate(ctx context.Context, fn func(types.Proof, types.Claim) error) error {
	results, err := s.rw.Query(ctx, query.Query{
		Prefix: ds.NewKey(AppPrefix).ChildString(claimsPrefix).String(),
		Orders: []query.Order{query.OrderByKey{}},
	})
	if err != nil {
		return fmt.Errorf("failed to query claims: %w", err)
	}
	defer results.Close()

	for res := range results.Next() {
		if res.Error != nil {
			return res.Error
		}
		proof, claim, err := decodeClaimRecord(res.Value)
		if err != nil {
			return fmt.Errorf("claim %s: %w", res.Key, err)
		}
		if err := fn(proof, claim); err != nil {
			return err
		}
	}
	return nil
}

func encodeClaimRecord(proof types.Proof, claim types.Claim) ([]byte, error) {
	bz, err := claim.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal claim: %w", err)
	}
	b := make([]byte, 0, len(proof)+len(bz)+16)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, proof)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, bz)
	return b, nil
}

func decodeClaimRecord(bz []byte) (types.Proof, types.Claim, error) {
	var (
		proof    types.Proof
		claimBz  []byte
		hasProof bool
	)
	for len(bz) > 0 {
		num, typ, n := protowire.ConsumeTag(bz)
		if n < 0 || typ != protowire.BytesType {
			return nil, types.Claim{}, errors.New("malformed claim record")
		}
		bz = bz[n:]
		v, n := protowire.ConsumeBytes(bz)
		if n < 0 {
			return nil, types.Claim{}, errors.New("malformed claim record")
		}
		bz = bz[n:]
		switch num {
		case 1:
			proof, hasProof = append(types.Proof{}, v...), true
		case 2:
			claimBz = v
		}
	}
	if !hasProof {
		return nil, types.Claim{}, errors.New("claim record without proof")
	}
	var claim types.Claim
	if err := claim.UnmarshalBinary(claimBz); err != nil {
		return nil, types.Claim{}, fmt.Errorf("failed to unmarshal claim: %w", err)
	}
	return proof, claim, nil
}

// AccountStore keeps account balances under AppPrefix.
type AccountStore struct {
	rw ReadWriter
}

// NewAccountStore returns an AccountStore reading and writing through rw.
func NewAccountStore(rw ReadWriter) *AccountStore {
	return &AccountStore{rw: rw}
}

// GetAccount returns the account of id. Unknown accounts are empty.
func (s *AccountStore) GetAccount(ctx context.Context, id types.AccountID) (types.Account, error) {
	var acc types.Account
	blob, err := s.rw.Get(ctx, getAccountKey(id))
	if errors.Is(err, ds.ErrNotFound) {
		return acc, nil
	}
	if err != nil {
		return acc, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	if err := acc.UnmarshalBinary(blob); err != nil {
		return acc, fmt.Errorf("failed to unmarshal account %s: %w", id, err)
	}
	return acc, nil
}

// SetAccount stores acc. Empty accounts are removed from the store.
func (s *AccountStore) SetAccount(ctx context.Context, id types.AccountID, acc types.Account) error {
	if acc.IsZero() {
		return s.rw.Delete(ctx, getAccountKey(id))
	}
	blob, err := acc.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	return s.rw.Put(ctx, getAccountKey(id), blob)
}

// LoadParams returns the chain parameters written at genesis.
func LoadParams(ctx context.Context, r ds.Read) (types.Params, error) {
	var params types.Params
	blob, err := r.Get(ctx, getParamsKey())
	if err != nil {
		return params, fmt.Errorf("failed to load params: %w", err)
	}
	if err := params.UnmarshalBinary(blob); err != nil {
		return params, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return params, nil
}

// SaveParams writes the chain parameters.
func SaveParams(ctx context.Context, w ds.Write, params types.Params) error {
	blob, err := params.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	return w.Put(ctx, getParamsKey(), blob)
}
