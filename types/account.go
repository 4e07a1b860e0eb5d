package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tendermint/tendermint/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidAccountID is returned for malformed account identifiers.
var ErrInvalidAccountID = errors.New("invalid account id")

// AccountID identifies a signer. It is the address of the signer's public key.
type AccountID = crypto.Address

// ParseAccountID decodes a hex encoded account address.
func ParseAccountID(s string) (AccountID, error) {
	bz, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountID, err)
	}
	if err := ValidateAccountID(bz); err != nil {
		return nil, err
	}
	return AccountID(bz), nil
}

// ValidateAccountID checks the length of an address.
func ValidateAccountID(id []byte) error {
	if len(id) != crypto.AddressSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAccountID, crypto.AddressSize, len(id))
	}
	return nil
}

// Account holds the balance of a single account.
type Account struct {
	// Free balance can be transferred or reserved.
	Free uint64 `json:"free"`
	// Reserved balance is locked, e.g. as a claim deposit.
	Reserved uint64 `json:"reserved"`
	// Nonce is the number of transactions included from this account.
	Nonce uint64 `json:"nonce"`
}

// Total returns free plus reserved balance.
func (a Account) Total() uint64 {
	return a.Free + a.Reserved
}

// IsZero is true for accounts that hold nothing and never sent a transaction.
func (a Account) IsZero() bool {
	return a.Free == 0 && a.Reserved == 0 && a.Nonce == 0
}

// MarshalBinary encodes Account into binary form and returns it.
func (a *Account) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendVarintField(b, 1, a.Free)
	b = appendVarintField(b, 2, a.Reserved)
	b = appendVarintField(b, 3, a.Nonce)
	return b, nil
}

// UnmarshalBinary decodes binary form of Account into object.
func (a *Account) UnmarshalBinary(bz []byte) error {
	*a = Account{}
	return decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			n   int
			err error
		)
		switch num {
		case 1, 2, 3:
			v, n, err = consumeVarint(typ, b)
		default:
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		switch num {
		case 1:
			a.Free = v
		case 2:
			a.Reserved = v
		case 3:
			a.Nonce = v
		}
		return n, nil
	})
}
