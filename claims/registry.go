// Package claims implements the proof-of-existence registry: accounts claim
// exclusive ownership of opaque proofs by reserving a fixed deposit, and
// release it by revoking the claim.
package claims

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rollkit/poe/log"
	"github.com/rollkit/poe/types"
)

var (
	// ErrProofAlreadyClaimed is returned when creating a claim on a proof that is already claimed.
	ErrProofAlreadyClaimed = errors.New("proof already claimed")
	// ErrNoSuchProof is returned when revoking a claim on a proof that is not claimed.
	ErrNoSuchProof = errors.New("no such proof")
	// ErrNotProofOwner is returned when revoking a claim owned by another account.
	ErrNotProofOwner = errors.New("not proof owner")
)

// Store is the key-value view of the registry: a mapping from proof to claim.
type Store interface {
	Has(ctx context.Context, proof types.Proof) (bool, error)
	// Get returns found=false if proof is not a key.
	Get(ctx context.Context, proof types.Proof) (claim types.Claim, found bool, err error)
	Set(ctx context.Context, proof types.Proof, claim types.Claim) error
	Delete(ctx context.Context, proof types.Proof) error
}

// Ledger moves balance between the free and reserved parts of an account.
type Ledger interface {
	// Reserve locks amount of who's free balance, or fails leaving the
	// account untouched.
	Reserve(ctx context.Context, who types.AccountID, amount uint64) error
	// Unreserve releases up to amount of who's reserved balance and returns
	// how much was released.
	Unreserve(ctx context.Context, who types.AccountID, amount uint64) (uint64, error)
}

// EventSink receives the events emitted by the registry.
type EventSink interface {
	Emit(ev types.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ev types.Event)

// Emit calls f(ev).
func (f EventSinkFunc) Emit(ev types.Event) { f(ev) }

// Registry executes claim operations for a single block.
//
// Registry is not safe for concurrent use; operations are expected to be
// applied one at a time in transaction order.
type Registry struct {
	store  Store
	ledger Ledger
	sink   EventSink
	params types.Params
	height uint64
	logger log.Logger
}

// NewRegistry returns a Registry operating at block height, charging
// params.ClaimDeposit per claim.
func NewRegistry(store Store, ledger Ledger, sink EventSink, params types.Params, height uint64, logger log.Logger) *Registry {
	if sink == nil {
		sink = EventSinkFunc(func(types.Event) {})
	}
	if logger == nil {
		logger = log.NopLogger{}
	}
	return &Registry{
		store:  store,
		ledger: ledger,
		sink:   sink,
		params: params,
		height: height,
		logger: logger,
	}
}

// CreateClaim records caller as the owner of proof and reserves the claim
// deposit from caller's free balance. Nothing is written if the proof is
// already claimed or the reservation fails.
func (r *Registry) CreateClaim(ctx context.Context, caller types.AccountID, proof types.Proof) error {
	claimed, err := r.store.Has(ctx, proof)
	if err != nil {
		return fmt.Errorf("failed to check claim: %w", err)
	}
	if claimed {
		return ErrProofAlreadyClaimed
	}

	deposit := r.params.ClaimDeposit
	if err := r.ledger.Reserve(ctx, caller, deposit); err != nil {
		return err
	}

	claim := types.Claim{Owner: caller, ClaimedAt: r.height}
	if err := r.store.Set(ctx, proof, claim); err != nil {
		return fmt.Errorf("failed to store claim: %w", err)
	}

	r.logger.Debug("claim created", "proof", proof, "owner", caller, "height", r.height)
	r.sink.Emit(types.EventDataClaim{Type: types.EventClaimCreated, Account: caller, Proof: proof})
	return nil
}

// RevokeClaim removes caller's claim on proof and releases the deposit.
//
// A reserved balance smaller than the deposit does not block revocation:
// whatever the ledger can release is released and the claim is removed.
func (r *Registry) RevokeClaim(ctx context.Context, caller types.AccountID, proof types.Proof) error {
	claimed, err := r.store.Has(ctx, proof)
	if err != nil {
		return fmt.Errorf("failed to check claim: %w", err)
	}
	if !claimed {
		return ErrNoSuchProof
	}

	claim, err := r.mustGetClaim(ctx, proof)
	if err != nil {
		return err
	}
	if !bytes.Equal(claim.Owner, caller) {
		return ErrNotProofOwner
	}

	deposit := r.params.ClaimDeposit
	released, err := r.ledger.Unreserve(ctx, claim.Owner, deposit)
	if err != nil {
		return fmt.Errorf("failed to release deposit: %w", err)
	}
	if released < deposit {
		r.logger.Error("claim deposit shortfall", "proof", proof, "owner", claim.Owner,
			"deposit", deposit, "released", released)
	}

	if err := r.store.Delete(ctx, proof); err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}

	r.logger.Debug("claim revoked", "proof", proof, "owner", caller, "height", r.height)
	r.sink.Emit(types.EventDataClaim{Type: types.EventClaimRevoked, Account: caller, Proof: proof})
	return nil
}

// mustGetClaim loads a claim whose presence the caller has already checked.
// A missing claim means the store is inconsistent with itself.
func (r *Registry) mustGetClaim(ctx context.Context, proof types.Proof) (types.Claim, error) {
	claim, found, err := r.store.Get(ctx, proof)
	if err != nil {
		return types.Claim{}, fmt.Errorf("failed to load claim: %w", err)
	}
	if !found {
		panic(fmt.Sprintf("claim on proof %s vanished after presence check", proof))
	}
	return claim, nil
}
