package bank

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"

	"github.com/rollkit/poe/store"
	"github.com/rollkit/poe/types"
)

func newTestKeeper(t *testing.T) *Keeper {
	t.Helper()
	kv, err := store.NewDefaultInMemoryKVStore()
	require.NoError(t, err)
	return NewKeeper(store.NewAccountStore(kv))
}

func newAccountID() types.AccountID {
	return ed25519.GenPrivKey().PubKey().Address()
}

func TestReserve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		free        uint64
		amount      uint64
		expectedErr error
		expected    types.Account
	}{
		{"exact balance", 1000, 1000, nil, types.Account{Free: 0, Reserved: 1000}},
		{"partial", 1500, 1000, nil, types.Account{Free: 500, Reserved: 1000}},
		{"zero amount", 10, 0, nil, types.Account{Free: 10}},
		{"insufficient", 999, 1000, ErrInsufficientBalance, types.Account{Free: 999}},
		{"empty account", 0, 1, ErrInsufficientBalance, types.Account{}},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			k := newTestKeeper(t)
			who := newAccountID()
			require.NoError(t, k.Credit(ctx, who, c.free))

			err := k.Reserve(ctx, who, c.amount)
			if c.expectedErr != nil {
				assert.ErrorIs(t, err, c.expectedErr)
			} else {
				assert.NoError(t, err)
			}

			acc, err := k.Account(ctx, who)
			require.NoError(t, err)
			assert.Equal(t, c.expected, acc)
		})
	}
}

func TestUnreserve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		reserved uint64
		amount   uint64
		released uint64
		expected types.Account
	}{
		{"full", 1000, 1000, 1000, types.Account{Free: 1000}},
		{"more reserved than asked", 1500, 1000, 1000, types.Account{Free: 1000, Reserved: 500}},
		{"shortfall", 400, 1000, 400, types.Account{Free: 400}},
		{"nothing reserved", 0, 1000, 0, types.Account{}},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			k := newTestKeeper(t)
			who := newAccountID()
			require.NoError(t, k.Credit(ctx, who, c.reserved))
			require.NoError(t, k.Reserve(ctx, who, c.reserved))

			released, err := k.Unreserve(ctx, who, c.amount)
			require.NoError(t, err)
			assert.Equal(t, c.released, released)

			acc, err := k.Account(ctx, who)
			require.NoError(t, err)
			assert.Equal(t, c.expected, acc)
		})
	}
}

func TestTransfer(t *testing.T) {
	t.Parallel()

	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	k := newTestKeeper(t)
	alice, bob := newAccountID(), newAccountID()
	require.NoError(k.Credit(ctx, alice, 100))
	require.NoError(k.Reserve(ctx, alice, 60))

	// reserved balance cannot be spent
	assert.ErrorIs(k.Transfer(ctx, alice, bob, 50), ErrInsufficientBalance)

	require.NoError(k.Transfer(ctx, alice, bob, 40))
	acc, err := k.Account(ctx, alice)
	require.NoError(err)
	assert.Equal(types.Account{Free: 0, Reserved: 60}, acc)
	acc, err = k.Account(ctx, bob)
	require.NoError(err)
	assert.Equal(types.Account{Free: 40}, acc)

	require.NoError(k.Transfer(ctx, bob, bob, 40))
	acc, err = k.Account(ctx, bob)
	require.NoError(err)
	assert.Equal(types.Account{Free: 40}, acc)
}

func TestCreditOverflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	k := newTestKeeper(t)
	who := newAccountID()
	require.NoError(t, k.Credit(ctx, who, math.MaxUint64))
	assert.ErrorIs(t, k.Credit(ctx, who, 1), ErrBalanceOverflow)
}

func TestNonce(t *testing.T) {
	t.Parallel()

	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	k := newTestKeeper(t)
	who := newAccountID()

	require.NoError(k.CheckNonce(ctx, who, 0))
	assert.ErrorIs(k.CheckNonce(ctx, who, 1), ErrInvalidNonce)

	require.NoError(k.IncrementNonce(ctx, who))
	require.NoError(k.CheckNonce(ctx, who, 1))
	assert.ErrorIs(k.CheckNonce(ctx, who, 0), ErrInvalidNonce)
}
