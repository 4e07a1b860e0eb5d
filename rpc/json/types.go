package json

import (
	"encoding/json"

	"github.com/gorilla/rpc/v2/json2"
)

type healthArgs struct {
}
type statusArgs struct {
}
type genesisArgs struct {
}
type paramsArgs struct {
}
type numUnconfirmedTxsArgs struct {
}

type blockArgs struct {
	// Height of the block, the latest block if omitted.
	Height uint64 `json:"height,omitempty"`
}
type blockByHashArgs struct {
	Hash string `json:"hash"`
}
type txArgs struct {
	Hash string `json:"hash"`
}
type broadcastTxArgs struct {
	Tx []byte `json:"tx"`
}

type claimArgs struct {
	Proof string `json:"proof"`
}
type claimsByOwnerArgs struct {
	Owner string `json:"owner"`
}
type accountArgs struct {
	Address string `json:"address"`
}

type subscribeArgs struct {
	Query string `json:"query"`
}
type unsubscribeArgs struct {
	Query string `json:"query"`
}
type unsubscribeAllArgs struct {
}

type emptyResult struct{}

// response is a JSON-RPC 2.0 response, used where the gorilla codec is not
// involved: URI requests and WebSocket event notifications.
type response struct {
	Version string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *json2.Error    `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}
