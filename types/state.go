package types

import (
	"errors"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// State contains information about current state of the blockchain.
type State struct {
	// immutable
	ChainID       string
	InitialHeight uint64

	// LastBlockHeight=0 at genesis (ie. block(H=0) does not exist)
	LastBlockHeight uint64
	LastBlockTime   time.Time
	LastBlockHash   Hash

	// StateRoot returned by the executor for LastBlockHeight.
	StateRoot Hash
}

// NewState returns the state of a chain that has not produced a block yet.
func NewState(chainID string, initialHeight uint64, genesisTime time.Time, stateRoot []byte) (State, error) {
	if initialHeight == 0 {
		return State{}, errors.New("initial height must be 1 when starting a new app")
	}
	return State{
		ChainID:         chainID,
		InitialHeight:   initialHeight,
		LastBlockHeight: initialHeight - 1,
		LastBlockTime:   genesisTime,
		StateRoot:       stateRoot,
	}, nil
}

// NextHeight returns the height of the block to be produced after this state.
func (s State) NextHeight() uint64 {
	return s.LastBlockHeight + 1
}

// NextState returns the state after applying block.
func (s State) NextState(block *Block) State {
	s.LastBlockHeight = block.Header.Height
	s.LastBlockTime = block.Header.Time
	s.LastBlockHash = block.Hash()
	s.StateRoot = block.Header.StateRoot
	return s
}

// MarshalBinary encodes State into binary form and returns it.
func (s *State) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendBytesField(b, 1, []byte(s.ChainID))
	b = appendVarintField(b, 2, s.InitialHeight)
	b = appendVarintField(b, 3, s.LastBlockHeight)
	b = appendVarintField(b, 4, uint64(s.LastBlockTime.UnixNano()))
	b = appendBytesField(b, 5, s.LastBlockHash)
	b = appendBytesField(b, 6, s.StateRoot)
	return b, nil
}

// UnmarshalBinary decodes binary form of State into object.
func (s *State) UnmarshalBinary(bz []byte) error {
	*s = State{}
	return decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			s.ChainID = string(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			s.InitialHeight = v
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, b)
			s.LastBlockHeight = v
			return n, err
		case 4:
			v, n, err := consumeVarint(typ, b)
			s.LastBlockTime = time.Unix(0, int64(v)).UTC()
			return n, err
		case 5:
			v, n, err := consumeBytes(typ, b)
			s.LastBlockHash = v
			return n, err
		case 6:
			v, n, err := consumeBytes(typ, b)
			s.StateRoot = v
			return n, err
		}
		return 0, nil
	})
}
