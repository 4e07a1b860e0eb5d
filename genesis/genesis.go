// Package genesis reads and writes the genesis document of a poe chain. The
// chain-specific part of the document is AppState: the chain parameters and
// the initial balances.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/rollkit/poe/types"
)

// ErrDuplicateBalance is returned when an account is funded twice in genesis.
var ErrDuplicateBalance = errors.New("duplicate genesis balance")

// Balance funds an account at genesis.
type Balance struct {
	Address types.AccountID `json:"address"`
	Amount  uint64          `json:"amount,string"`
}

// AppState is the application part of the genesis document.
type AppState struct {
	Params   types.Params `json:"params"`
	Balances []Balance    `json:"balances"`
}

// DefaultAppState returns default parameters and no balances.
func DefaultAppState() AppState {
	return AppState{Params: types.DefaultParams()}
}

// ValidateBasic checks the parameters and balances.
func (s AppState) ValidateBasic() error {
	if err := s.Params.ValidateBasic(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.Balances))
	var total uint64
	for _, b := range s.Balances {
		if err := types.ValidateAccountID(b.Address); err != nil {
			return err
		}
		if _, ok := seen[string(b.Address)]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateBalance, b.Address)
		}
		seen[string(b.Address)] = struct{}{}
		if total+b.Amount < total {
			return errors.New("total genesis balance overflows")
		}
		total += b.Amount
	}
	return nil
}

// AppStateFromGenesisDoc decodes and validates the app state of doc. An empty
// app state yields DefaultAppState.
func AppStateFromGenesisDoc(doc *tmtypes.GenesisDoc) (AppState, error) {
	state := DefaultAppState()
	if len(doc.AppState) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(doc.AppState, &state); err != nil {
		return AppState{}, fmt.Errorf("failed to decode app state: %w", err)
	}
	if err := state.ValidateBasic(); err != nil {
		return AppState{}, fmt.Errorf("invalid app state: %w", err)
	}
	return state, nil
}

// LoadGenesisDoc reads the genesis document at path together with its app state.
func LoadGenesisDoc(path string) (*tmtypes.GenesisDoc, AppState, error) {
	doc, err := tmtypes.GenesisDocFromFile(path)
	if err != nil {
		return nil, AppState{}, err
	}
	state, err := AppStateFromGenesisDoc(doc)
	if err != nil {
		return nil, AppState{}, err
	}
	return doc, state, nil
}

// NewGenesisDoc builds a complete genesis document starting at height 1.
func NewGenesisDoc(chainID string, genesisTime time.Time, state AppState) (*tmtypes.GenesisDoc, error) {
	if err := state.ValidateBasic(); err != nil {
		return nil, err
	}
	appState, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	doc := &tmtypes.GenesisDoc{
		ChainID:       chainID,
		GenesisTime:   genesisTime,
		InitialHeight: 1,
		AppState:      appState,
	}
	if err := doc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return doc, nil
}
