package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/poe/events"
	"github.com/rollkit/poe/store"
	"github.com/rollkit/poe/types"
)

func newIndex(t *testing.T) (*ClaimIndex, store.KV) {
	t.Helper()
	kv, err := store.NewDefaultInMemoryKVStore()
	require.NoError(t, err)
	return NewClaimIndex(store.NewPrefixKV(kv, "/index")), kv
}

func TestClaimIndex(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	idx, _ := newIndex(t)
	alice := ed25519.GenPrivKey().PubKey().Address()
	bob := ed25519.GenPrivKey().PubKey().Address()

	proofs, err := idx.ByOwner(ctx, alice)
	require.NoError(err)
	assert.Empty(proofs)

	require.NoError(idx.Add(ctx, alice, types.Proof("b")))
	require.NoError(idx.Add(ctx, alice, types.Proof("a")))
	require.NoError(idx.Add(ctx, alice, types.Proof{}))
	require.NoError(idx.Add(ctx, bob, types.Proof("c")))

	proofs, err = idx.ByOwner(ctx, alice)
	require.NoError(err)
	assert.Equal([]types.Proof{{}, types.Proof("a"), types.Proof("b")}, proofs)

	require.NoError(idx.Remove(ctx, alice, types.Proof("a")))
	proofs, err = idx.ByOwner(ctx, alice)
	require.NoError(err)
	assert.Equal([]types.Proof{{}, types.Proof("b")}, proofs)

	proofs, err = idx.ByOwner(ctx, bob)
	require.NoError(err)
	assert.Equal([]types.Proof{types.Proof("c")}, proofs)

	_, err = idx.ByOwner(ctx, nil)
	assert.ErrorIs(err, ErrEmptyOwner)
}

func TestRebuild(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	idx, kv := newIndex(t)
	claims := store.NewClaimStore(kv)
	alice := ed25519.GenPrivKey().PubKey().Address()
	bob := ed25519.GenPrivKey().PubKey().Address()

	// stale entry
	require.NoError(idx.Add(ctx, bob, types.Proof("gone")))

	require.NoError(claims.Set(ctx, types.Proof("a"), types.Claim{Owner: alice, ClaimedAt: 1}))
	require.NoError(claims.Set(ctx, types.Proof("b"), types.Claim{Owner: bob, ClaimedAt: 2}))
	require.NoError(idx.Rebuild(ctx, claims))

	proofs, err := idx.ByOwner(ctx, alice)
	require.NoError(err)
	assert.Equal([]types.Proof{types.Proof("a")}, proofs)
	proofs, err = idx.ByOwner(ctx, bob)
	require.NoError(err)
	assert.Equal([]types.Proof{types.Proof("b")}, proofs)
}

func TestIndexerServiceIndexesClaims(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	eventBus := events.NewEventBus()
	eventBus.SetLogger(log.TestingLogger())
	require.NoError(eventBus.Start())
	t.Cleanup(func() {
		if err := eventBus.Stop(); err != nil {
			t.Error(err)
		}
	})

	idx, kv := newIndex(t)
	alice := ed25519.GenPrivKey().PubKey().Address()
	require.NoError(store.NewClaimStore(kv).Set(ctx, types.Proof("genesis"), types.Claim{Owner: alice}))

	service := NewIndexerService(idx, store.NewClaimStore(kv), eventBus)
	service.SetLogger(log.TestingLogger())
	require.NoError(service.Start())
	t.Cleanup(func() {
		if err := service.Stop(); err != nil {
			t.Error(err)
		}
	})

	txHash := types.Tx("tx").Hash()
	require.NoError(eventBus.PublishTxEvents(ctx, 1, txHash, []types.Event{
		types.EventDataClaim{Type: types.EventClaimCreated, Account: alice, Proof: types.Proof("a")},
		types.EventDataClaim{Type: types.EventClaimCreated, Account: alice, Proof: types.Proof("b")},
		types.EventDataClaim{Type: types.EventClaimRevoked, Account: alice, Proof: types.Proof("genesis")},
	}))

	require.Eventually(func() bool {
		proofs, err := idx.ByOwner(ctx, alice)
		return err == nil && assert.ObjectsAreEqual([]types.Proof{types.Proof("a"), types.Proof("b")}, proofs)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIndexerServiceCatchesUpAfterOverflow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	eventBus := events.NewEventBus()
	eventBus.SetLogger(log.TestingLogger())
	require.NoError(eventBus.Start())
	t.Cleanup(func() {
		if err := eventBus.Stop(); err != nil {
			t.Error(err)
		}
	})

	idx, kv := newIndex(t)
	claims := store.NewClaimStore(kv)
	service := NewIndexerService(idx, claims, eventBus)
	service.SetLogger(log.TestingLogger())
	require.NoError(service.Start())
	t.Cleanup(func() {
		if err := service.Stop(); err != nil {
			t.Error(err)
		}
	})

	alice := ed25519.GenPrivKey().PubKey().Address()
	claim := func(height uint64, proof types.Proof) types.Event {
		require.NoError(claims.Set(ctx, proof, types.Claim{Owner: alice, ClaimedAt: height}))
		return types.EventDataClaim{Type: types.EventClaimCreated, Account: alice, Proof: proof}
	}

	const n = 20 * subscriptionCapacity
	evs := make([]types.Event, 0, n)
	for i := 0; i < n; i++ {
		evs = append(evs, claim(1, types.Proof(fmt.Sprintf("proof-%05d", i))))
	}
	require.NoError(eventBus.PublishTxEvents(ctx, 1, types.Tx("tx1").Hash(), evs))

	require.Eventually(func() bool {
		proofs, err := idx.ByOwner(ctx, alice)
		return err == nil && len(proofs) == n
	}, 10*time.Second, 20*time.Millisecond)

	last := claim(2, types.Proof("later"))
	require.NoError(eventBus.PublishTxEvents(ctx, 2, types.Tx("tx2").Hash(), []types.Event{last}))
	require.Eventually(func() bool {
		proofs, err := idx.ByOwner(ctx, alice)
		return err == nil && len(proofs) == n+1
	}, 10*time.Second, 20*time.Millisecond)
}
