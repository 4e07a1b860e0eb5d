package client

import (
	"time"

	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/rollkit/poe/types"
)

// ResultHealth is returned by Health.
type ResultHealth struct{}

// NodeInfo describes the node.
type NodeInfo struct {
	ChainID string `json:"chain_id"`
	Version string `json:"version"`
}

// SyncInfo describes the tip of the chain.
type SyncInfo struct {
	LatestBlockHash   types.Hash `json:"latest_block_hash"`
	LatestStateRoot   types.Hash `json:"latest_state_root"`
	LatestBlockHeight uint64     `json:"latest_block_height,string"`
	LatestBlockTime   time.Time  `json:"latest_block_time"`
}

// ResultStatus is returned by Status.
type ResultStatus struct {
	NodeInfo NodeInfo `json:"node_info"`
	SyncInfo SyncInfo `json:"sync_info"`
}

// ResultGenesis is returned by Genesis.
type ResultGenesis struct {
	Genesis *tmtypes.GenesisDoc `json:"genesis"`
}

// ResultBlock is returned by Block and BlockByHash.
type ResultBlock struct {
	BlockID types.Hash   `json:"block_id"`
	Block   *types.Block `json:"block"`
}

// ResultTx is returned by Tx.
type ResultTx struct {
	*types.TxResult
}

// ResultBroadcastTx is returned by BroadcastTxSync and BroadcastTxAsync.
type ResultBroadcastTx struct {
	Code uint32     `json:"code"`
	Log  string     `json:"log,omitempty"`
	Hash types.Hash `json:"hash"`
}

// ResultBroadcastTxCommit is returned by BroadcastTxCommit.
type ResultBroadcastTxCommit struct {
	CheckTx   ResultBroadcastTx `json:"check_tx"`
	DeliverTx *types.TxResult   `json:"deliver_tx,omitempty"`
	Hash      types.Hash        `json:"hash"`
	Height    uint64            `json:"height,string"`
}

// ResultClaim is returned by Claim.
type ResultClaim struct {
	Proof     types.Proof     `json:"proof"`
	Found     bool            `json:"found"`
	Owner     types.AccountID `json:"owner,omitempty"`
	ClaimedAt uint64          `json:"claimed_at,string,omitempty"`
}

// ResultClaims is returned by ClaimsByOwner.
type ResultClaims struct {
	Owner  types.AccountID `json:"owner"`
	Proofs []types.Proof   `json:"proofs"`
}

// ResultAccount is returned by Account.
type ResultAccount struct {
	Address  types.AccountID `json:"address"`
	Free     uint64          `json:"free,string"`
	Reserved uint64          `json:"reserved,string"`
	Nonce    uint64          `json:"nonce,string"`
}

// ResultParams is returned by Params.
type ResultParams struct {
	Params types.Params `json:"params"`
}

// ResultUnconfirmedTxs is returned by NumUnconfirmedTxs.
type ResultUnconfirmedTxs struct {
	Count int `json:"n_txs"`
}

// ResultEvent is delivered to subscribers.
type ResultEvent struct {
	Query  string              `json:"query"`
	Data   types.Event         `json:"data"`
	Events map[string][]string `json:"events"`
}
