package types

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// CodeTypeOK is the result code of a successful transaction.
const CodeTypeOK uint32 = 0

// TxResult is the outcome of executing a transaction that made it into a block.
type TxResult struct {
	Height uint64 `json:"height,string"`
	Index  uint32 `json:"index"`
	Hash   Hash   `json:"hash"`
	Code   uint32 `json:"code"`
	Log    string `json:"log,omitempty"`
	// Events holds the JSON form of every event emitted by the transaction.
	Events []json.RawMessage `json:"events,omitempty"`
}

// IsOK returns true if the transaction succeeded.
func (r *TxResult) IsOK() bool {
	return r.Code == CodeTypeOK
}

// MarshalBinary encodes TxResult into binary form and returns it.
func (r *TxResult) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendVarintField(b, 1, r.Height)
	b = appendVarintField(b, 2, uint64(r.Index))
	b = appendBytesField(b, 3, r.Hash)
	b = appendVarintField(b, 4, uint64(r.Code))
	b = appendBytesField(b, 5, []byte(r.Log))
	for _, ev := range r.Events {
		b = appendBytesField(b, 6, ev)
	}
	return b, nil
}

// UnmarshalBinary decodes binary form of TxResult into object.
func (r *TxResult) UnmarshalBinary(bz []byte) error {
	*r = TxResult{}
	return decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2, 4:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			switch num {
			case 1:
				r.Height = v
			case 2:
				r.Index = uint32(v)
			case 4:
				r.Code = uint32(v)
			}
			return n, nil
		case 3, 5, 6:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			switch num {
			case 3:
				r.Hash = v
			case 5:
				r.Log = string(v)
			case 6:
				if !json.Valid(v) {
					return 0, fmt.Errorf("%w: event is not valid JSON", ErrInvalidEncoding)
				}
				r.Events = append(r.Events, v)
			}
			return n, nil
		}
		return 0, nil
	})
}
