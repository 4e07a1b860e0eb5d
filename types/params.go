package types

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// DefaultClaimDeposit is the stake locked for every claim unless genesis overrides it.
	DefaultClaimDeposit uint64 = 1000

	// DefaultMaxProofLength is the proof length bound unless genesis overrides it.
	DefaultMaxProofLength uint32 = 256

	// MaxProofLengthLimit caps MaxProofLength so that a single proof always fits a block.
	MaxProofLengthLimit uint32 = 64 * 1024
)

var (
	// ErrMaxProofLengthZero indicates that MaxProofLength cannot be 0.
	ErrMaxProofLengthZero = errors.New("params.MaxProofLength cannot be 0")

	// ErrMaxProofLengthTooBig indicates that MaxProofLength exceeds MaxProofLengthLimit.
	ErrMaxProofLengthTooBig = errors.New("params.MaxProofLength is bigger than the maximum permitted proof length")
)

// Params are chain-wide parameters fixed at genesis.
type Params struct {
	// ClaimDeposit is reserved from the claimant for the lifetime of every claim.
	ClaimDeposit uint64 `json:"claim_deposit,string"`
	// MaxProofLength bounds the size of a proof in bytes.
	MaxProofLength uint32 `json:"max_proof_length"`
}

// DefaultParams returns the parameters used when genesis does not set them.
func DefaultParams() Params {
	return Params{
		ClaimDeposit:   DefaultClaimDeposit,
		MaxProofLength: DefaultMaxProofLength,
	}
}

// ValidateBasic checks parameter bounds.
func (p Params) ValidateBasic() error {
	if p.MaxProofLength == 0 {
		return ErrMaxProofLengthZero
	}
	if p.MaxProofLength > MaxProofLengthLimit {
		return fmt.Errorf("%w: %d > %d", ErrMaxProofLengthTooBig, p.MaxProofLength, MaxProofLengthLimit)
	}
	return nil
}

// MarshalBinary encodes Params into binary form and returns it.
func (p *Params) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendVarintField(b, 1, p.ClaimDeposit)
	b = appendVarintField(b, 2, uint64(p.MaxProofLength))
	return b, nil
}

// UnmarshalBinary decodes binary form of Params into object.
func (p *Params) UnmarshalBinary(bz []byte) error {
	*p = Params{}
	return decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			p.ClaimDeposit = v
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			p.MaxProofLength = uint32(v)
			return n, err
		}
		return 0, nil
	})
}
