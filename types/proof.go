package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProofTooLong is returned when a proof exceeds the configured maximum length.
	ErrProofTooLong = errors.New("proof exceeds maximum length")
	// ErrInvalidProof is returned when a proof cannot be parsed from its text form.
	ErrInvalidProof = errors.New("invalid proof encoding")
)

// Proof is an opaque byte string whose ownership can be claimed.
//
// Proofs are compared byte for byte. A Proof obtained from NewProof or
// ParseProof is guaranteed to respect the length bound it was built with.
type Proof []byte

// NewProof copies bz into a Proof, failing if it is longer than maxLen.
func NewProof(bz []byte, maxLen uint32) (Proof, error) {
	if uint64(len(bz)) > uint64(maxLen) {
		return nil, fmt.Errorf("%w: %d > %d", ErrProofTooLong, len(bz), maxLen)
	}
	p := make(Proof, len(bz))
	copy(p, bz)
	return p, nil
}

// ParseProof decodes a hex encoded proof (an optional 0x prefix is accepted)
// and checks it against maxLen.
func ParseProof(s string, maxLen uint32) (Proof, error) {
	bz, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return NewProof(bz, maxLen)
}

// Equal reports whether both proofs hold the same bytes.
func (p Proof) Equal(other Proof) bool {
	return string(p) == string(other)
}

// String returns lower-case hex encoding of the proof.
func (p Proof) String() string {
	return hex.EncodeToString(p)
}

// MarshalJSON encodes the proof as a hex string.
func (p Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a hex string. The length bound is not checked here;
// callers that accept external input must go through NewProof.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	bz, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	*p = bz
	return nil
}
