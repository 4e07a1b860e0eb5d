package state

import (
	"context"

	"github.com/rollkit/poe/store"
	"github.com/rollkit/poe/types"
)

// Claim returns the committed claim on proof.
func (e *Executor) Claim(ctx context.Context, proof types.Proof) (types.Claim, bool, error) {
	return store.NewClaimStore(e.kv).Get(ctx, proof)
}

// Account returns the committed state of account id.
func (e *Executor) Account(ctx context.Context, id types.AccountID) (types.Account, error) {
	return store.NewAccountStore(e.kv).GetAccount(ctx, id)
}

// StateRoot returns the root over the committed application state.
func (e *Executor) StateRoot(ctx context.Context) ([]byte, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.computeStateRoot(ctx)
}

// NumPendingTxs returns the number of transactions in the mempool.
func (e *Executor) NumPendingTxs() int {
	e.poolMtx.Lock()
	defer e.poolMtx.Unlock()
	n := len(e.txChan)
	if e.next != nil {
		n++
	}
	return n
}
