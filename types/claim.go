package types

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// Claim records who owns a proof and the block height at which it was claimed.
type Claim struct {
	Owner     AccountID `json:"owner"`
	ClaimedAt uint64    `json:"claimed_at"`
}

// MarshalBinary encodes Claim into binary form and returns it.
func (c *Claim) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendBytesField(b, 1, c.Owner)
	b = appendVarintField(b, 2, c.ClaimedAt)
	return b, nil
}

// UnmarshalBinary decodes binary form of Claim into object.
func (c *Claim) UnmarshalBinary(bz []byte) error {
	*c = Claim{}
	err := decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			c.Owner = v
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			c.ClaimedAt = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return err
	}
	if len(c.Owner) == 0 {
		return errors.New("claim without owner")
	}
	return nil
}
