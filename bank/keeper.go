// Package bank keeps account balances. Every account has a free part that can
// be spent and a reserved part that is locked until it is explicitly released.
package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/rollkit/poe/types"
)

var (
	// ErrInsufficientBalance is returned when an account's free balance cannot cover an amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBalanceOverflow is returned when a credit would overflow an account.
	ErrBalanceOverflow = errors.New("balance overflow")
	// ErrInvalidNonce is returned when a transaction nonce does not match the account nonce.
	ErrInvalidNonce = errors.New("invalid nonce")
)

// AccountStore persists accounts.
type AccountStore interface {
	GetAccount(ctx context.Context, id types.AccountID) (types.Account, error)
	SetAccount(ctx context.Context, id types.AccountID, acc types.Account) error
}

// Keeper implements balance transitions on top of an AccountStore.
type Keeper struct {
	accounts AccountStore
}

// NewKeeper returns a Keeper backed by accounts.
func NewKeeper(accounts AccountStore) *Keeper {
	return &Keeper{accounts: accounts}
}

// Account returns the account of id.
func (k *Keeper) Account(ctx context.Context, id types.AccountID) (types.Account, error) {
	return k.accounts.GetAccount(ctx, id)
}

// Reserve moves amount from the free to the reserved balance of who.
func (k *Keeper) Reserve(ctx context.Context, who types.AccountID, amount uint64) error {
	acc, err := k.accounts.GetAccount(ctx, who)
	if err != nil {
		return err
	}
	if acc.Free < amount {
		return fmt.Errorf("%w: free %d, need %d", ErrInsufficientBalance, acc.Free, amount)
	}
	if acc.Reserved+amount < acc.Reserved {
		return ErrBalanceOverflow
	}
	acc.Free -= amount
	acc.Reserved += amount
	return k.accounts.SetAccount(ctx, who, acc)
}

// Unreserve moves up to amount from the reserved to the free balance of who
// and returns the amount moved. It is not an error for the reserved balance
// to be smaller than amount.
func (k *Keeper) Unreserve(ctx context.Context, who types.AccountID, amount uint64) (uint64, error) {
	acc, err := k.accounts.GetAccount(ctx, who)
	if err != nil {
		return 0, err
	}
	released := amount
	if acc.Reserved < released {
		released = acc.Reserved
	}
	if released == 0 {
		return 0, nil
	}
	acc.Reserved -= released
	acc.Free += released
	if err := k.accounts.SetAccount(ctx, who, acc); err != nil {
		return 0, err
	}
	return released, nil
}

// Transfer moves amount of free balance from one account to another.
func (k *Keeper) Transfer(ctx context.Context, from, to types.AccountID, amount uint64) error {
	src, err := k.accounts.GetAccount(ctx, from)
	if err != nil {
		return err
	}
	if src.Free < amount {
		return fmt.Errorf("%w: free %d, need %d", ErrInsufficientBalance, src.Free, amount)
	}
	src.Free -= amount
	if err := k.accounts.SetAccount(ctx, from, src); err != nil {
		return err
	}
	return k.Credit(ctx, to, amount)
}

// Credit adds amount to the free balance of who. It is used to fund accounts
// at genesis and by Transfer.
func (k *Keeper) Credit(ctx context.Context, who types.AccountID, amount uint64) error {
	acc, err := k.accounts.GetAccount(ctx, who)
	if err != nil {
		return err
	}
	if acc.Total()+amount < acc.Total() {
		return ErrBalanceOverflow
	}
	acc.Free += amount
	return k.accounts.SetAccount(ctx, who, acc)
}

// CheckNonce fails with ErrInvalidNonce unless nonce is the next nonce of who.
func (k *Keeper) CheckNonce(ctx context.Context, who types.AccountID, nonce uint64) error {
	acc, err := k.accounts.GetAccount(ctx, who)
	if err != nil {
		return err
	}
	if acc.Nonce != nonce {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, acc.Nonce, nonce)
	}
	return nil
}

// IncrementNonce bumps the nonce of who.
func (k *Keeper) IncrementNonce(ctx context.Context, who types.AccountID) error {
	acc, err := k.accounts.GetAccount(ctx, who)
	if err != nil {
		return err
	}
	acc.Nonce++
	return k.accounts.SetAccount(ctx, who, acc)
}
