package types

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"google.golang.org/protobuf/encoding/protowire"
)

// Hash is a 32 byte digest.
type Hash = tmbytes.HexBytes

// Header of a block.
type Header struct {
	ChainID       string    `json:"chain_id"`
	Height        uint64    `json:"height,string"`
	Time          time.Time `json:"time"`
	LastBlockHash Hash      `json:"last_block_hash"`
	// DataHash is the merkle root of the hashes of all transactions in the block.
	DataHash Hash `json:"data_hash"`
	// StateRoot is the application state after executing this block.
	StateRoot Hash `json:"state_root"`
}

// Block is a header and the transactions it orders.
type Block struct {
	Header Header `json:"header"`
	Txs    Txs    `json:"txs"`
}

// Hash returns hash of the header.
func (h *Header) Hash() Hash {
	bz, err := h.MarshalBinary()
	if err != nil {
		return nil
	}
	return tmhash.Sum(bz)
}

// ValidateBasic performs stateless checks of the header.
func (h *Header) ValidateBasic() error {
	if h.ChainID == "" {
		return errors.New("empty chain id")
	}
	if h.Height == 0 {
		return errors.New("zero height")
	}
	if len(h.LastBlockHash) != 0 && len(h.LastBlockHash) != tmhash.Size {
		return fmt.Errorf("invalid last block hash length %d", len(h.LastBlockHash))
	}
	return nil
}

// Hash returns the merkle root of the transaction hashes.
func (txs Txs) Hash() Hash {
	hashes := make([][]byte, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return merkle.HashFromByteSlices(hashes)
}

// Hash returns the hash of the block header.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// ValidateBasic checks that the header is sane and commits to the block's transactions.
func (b *Block) ValidateBasic() error {
	if err := b.Header.ValidateBasic(); err != nil {
		return err
	}
	if !bytes.Equal(b.Txs.Hash(), b.Header.DataHash) {
		return errors.New("data hash does not match transactions")
	}
	return nil
}

// MarshalBinary encodes Header into binary form and returns it.
func (h *Header) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendBytesField(b, 1, []byte(h.ChainID))
	b = appendVarintField(b, 2, h.Height)
	b = appendVarintField(b, 3, uint64(h.Time.UnixNano()))
	b = appendBytesField(b, 4, h.LastBlockHash)
	b = appendBytesField(b, 5, h.DataHash)
	b = appendBytesField(b, 6, h.StateRoot)
	return b, nil
}

// UnmarshalBinary decodes binary form of Header into object.
func (h *Header) UnmarshalBinary(bz []byte) error {
	*h = Header{}
	return decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			h.ChainID = string(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			h.Height = v
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, b)
			h.Time = time.Unix(0, int64(v)).UTC()
			return n, err
		case 4:
			v, n, err := consumeBytes(typ, b)
			h.LastBlockHash = v
			return n, err
		case 5:
			v, n, err := consumeBytes(typ, b)
			h.DataHash = v
			return n, err
		case 6:
			v, n, err := consumeBytes(typ, b)
			h.StateRoot = v
			return n, err
		}
		return 0, nil
	})
}

// MarshalBinary encodes Block into binary form and returns it.
func (b *Block) MarshalBinary() ([]byte, error) {
	header, err := b.Header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := appendBytesField(nil, 1, header)
	for _, tx := range b.Txs {
		out = appendBytesField(out, 2, tx)
	}
	return out, nil
}

// UnmarshalBinary decodes binary form of Block into object.
func (b *Block) UnmarshalBinary(bz []byte) error {
	*b = Block{}
	return decodeFields(bz, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, data)
			if err != nil {
				return 0, err
			}
			return n, b.Header.UnmarshalBinary(v)
		case 2:
			v, n, err := consumeBytes(typ, data)
			b.Txs = append(b.Txs, v)
			return n, err
		}
		return 0, nil
	})
}
