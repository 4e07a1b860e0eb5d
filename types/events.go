package types

import "strconv"

// Reserved event types.
const (
	EventClaimCreated = "ClaimCreated"
	EventClaimRevoked = "ClaimRevoked"
	EventTransfer     = "Transfer"
	EventNewBlock     = "NewBlock"
)

// Event attribute keys, usable in subscription queries, e.g.
// "poe.event = 'ClaimCreated' AND claim.account = '0A1B...'".
const (
	EventTypeKey    = "poe.event"
	ClaimAccountKey = "claim.account"
	ClaimProofKey   = "claim.proof"
	TransferFromKey = "transfer.from"
	TransferToKey   = "transfer.to"
	BlockHeightKey  = "block.height"
	TxHashKey       = "tx.hash"
)

// Event is a notification emitted by a state transition.
type Event interface {
	// EventType is one of the reserved event types.
	EventType() string
	// Attributes are indexed by the event bus for query matching.
	Attributes() map[string]string
}

// EventDataClaim is emitted on ClaimCreated and ClaimRevoked.
type EventDataClaim struct {
	Type    string    `json:"type"`
	Account AccountID `json:"account"`
	Proof   Proof     `json:"proof"`
}

// EventType implements Event.
func (e EventDataClaim) EventType() string { return e.Type }

// Attributes implements Event.
func (e EventDataClaim) Attributes() map[string]string {
	return map[string]string{
		ClaimAccountKey: e.Account.String(),
		ClaimProofKey:   e.Proof.String(),
	}
}

// EventDataTransfer is emitted when free balance moves between accounts.
type EventDataTransfer struct {
	From   AccountID `json:"from"`
	To     AccountID `json:"to"`
	Amount uint64    `json:"amount,string"`
}

// EventType implements Event.
func (e EventDataTransfer) EventType() string { return EventTransfer }

// Attributes implements Event.
func (e EventDataTransfer) Attributes() map[string]string {
	return map[string]string{
		TransferFromKey: e.From.String(),
		TransferToKey:   e.To.String(),
	}
}

// EventDataNewBlock is emitted after a block is committed.
type EventDataNewBlock struct {
	Header Header `json:"header"`
	NumTxs int    `json:"num_txs"`
}

// EventType implements Event.
func (e EventDataNewBlock) EventType() string { return EventNewBlock }

// Attributes implements Event.
func (e EventDataNewBlock) Attributes() map[string]string {
	return map[string]string{
		BlockHeightKey: strconv.FormatUint(e.Header.Height, 10),
	}
}
