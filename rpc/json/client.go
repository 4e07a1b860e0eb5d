package json

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/rollkit/poe/rpc/client"
	"github.com/rollkit/poe/types"
)

// HTTPClient calls the JSON-RPC API of a remote node.
type HTTPClient struct {
	endpoint string
	http     *http.Client
}

// NewHTTPClient returns a client for the node listening on addr. Both
// "tcp://host:port" and "http://host:port" forms are accepted.
func NewHTTPClient(addr string) *HTTPClient {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		addr = "http://" + strings.TrimPrefix(addr, "tcp://")
	case !strings.Contains(addr, "://"):
		addr = "http://" + addr
	}
	return &HTTPClient{
		endpoint: addr,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Call invokes method with args and decodes the result into reply.
func (c *HTTPClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Status returns the chain tip of the remote node.
func (c *HTTPClient) Status(ctx context.Context) (*client.ResultStatus, error) {
	res := new(client.ResultStatus)
	return res, c.Call(ctx, "status", &statusArgs{}, res)
}

// Params returns the chain parameters.
func (c *HTTPClient) Params(ctx context.Context) (*client.ResultParams, error) {
	res := new(client.ResultParams)
	return res, c.Call(ctx, "params", &paramsArgs{}, res)
}

// Account returns the balances and nonce of id.
func (c *HTTPClient) Account(ctx context.Context, id types.AccountID) (*client.ResultAccount, error) {
	res := new(client.ResultAccount)
	return res, c.Call(ctx, "account", &accountArgs{Address: id.String()}, res)
}

// Claim returns the claim on proof.
func (c *HTTPClient) Claim(ctx context.Context, proof types.Proof) (*client.ResultClaim, error) {
	res := new(client.ResultClaim)
	return res, c.Call(ctx, "claim", &claimArgs{Proof: proof.String()}, res)
}

// ClaimsByOwner returns the proofs held by owner.
func (c *HTTPClient) ClaimsByOwner(ctx context.Context, owner types.AccountID) (*client.ResultClaims, error) {
	res := new(client.ResultClaims)
	return res, c.Call(ctx, "claims_by_owner", &claimsByOwnerArgs{Owner: owner.String()}, res)
}

// BroadcastTxCommit submits tx and waits for the block including it.
func (c *HTTPClient) BroadcastTxCommit(ctx context.Context, tx types.Tx) (*client.ResultBroadcastTxCommit, error) {
	res := new(client.ResultBroadcastTxCommit)
	return res, c.Call(ctx, "broadcast_tx_commit", &broadcastTxArgs{Tx: tx}, res)
}
