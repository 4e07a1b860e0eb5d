package json

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/poe/rpc/client"
	"github.com/rollkit/poe/state"
	"github.com/rollkit/poe/types"
)

func newTestServer(t *testing.T, funded ...ed25519.PrivKey) *httptest.Server {
	t.Helper()
	local := getRPC(t, funded...)
	handler, err := GetHTTPHandler(local, log.TestingLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClaimLifecycleOverHTTP(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	alice := ed25519.GenPrivKey()
	aliceID := alice.PubKey().Address()
	srv := newTestServer(t, alice)
	c := NewHTTPClient(srv.URL)
	proof := types.Proof("contract.pdf")

	res, err := c.BroadcastTxCommit(ctx, signedTx(t, alice, 0, types.MsgCreateClaim{Proof: proof}))
	require.NoError(err)
	require.NotNil(res.DeliverTx)
	assert.Equal(state.CodeTypeOK, res.DeliverTx.Code)
	assert.NotZero(res.Height)

	claim, err := c.Claim(ctx, proof)
	require.NoError(err)
	assert.True(claim.Found)
	assert.Equal(aliceID, claim.Owner)
	assert.Equal(res.Height, claim.ClaimedAt)

	acc, err := c.Account(ctx, aliceID)
	require.NoError(err)
	assert.Equal(uint64(4000), acc.Free)
	assert.Equal(uint64(1000), acc.Reserved)
	assert.Equal(uint64(1), acc.Nonce)

	require.Eventually(func() bool {
		claims, err := c.ClaimsByOwner(ctx, aliceID)
		return err == nil && len(claims.Proofs) == 1 && claims.Proofs[0].Equal(proof)
	}, 5*time.Second, 10*time.Millisecond)

	res, err = c.BroadcastTxCommit(ctx, signedTx(t, alice, 1, types.MsgRevokeClaim{Proof: proof}))
	require.NoError(err)
	require.NotNil(res.DeliverTx)
	assert.Equal(state.CodeTypeOK, res.DeliverTx.Code)

	claim, err = c.Claim(ctx, proof)
	require.NoError(err)
	assert.False(claim.Found)

	res, err = c.BroadcastTxCommit(ctx, signedTx(t, alice, 2, types.MsgRevokeClaim{Proof: proof}))
	require.NoError(err)
	require.NotNil(res.DeliverTx)
	assert.Equal(state.CodeNoSuchProof, res.DeliverTx.Code)
}

func TestHTTPClientErrors(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	srv := newTestServer(t)
	c := NewHTTPClient(srv.URL)

	_, err := c.Account(ctx, types.AccountID("short"))
	require.Error(err)
	var rpcErr *json2.Error
	require.True(errors.As(err, &rpcErr))
	assert.Equal(json2.E_SERVER, rpcErr.Code)

	err = c.Call(ctx, "no_such_method", &emptyResult{}, &emptyResult{})
	require.Error(err)
	require.True(errors.As(err, &rpcErr))
	assert.Equal(json2.E_NO_METHOD, rpcErr.Code)

	err = c.Call(ctx, "subscribe", &subscribeArgs{Query: "poe.event = 'NewBlock'"}, &emptyResult{})
	assert.Error(err)

	params, err := c.Params(ctx)
	require.NoError(err)
	assert.Equal(uint64(1000), params.Params.ClaimDeposit)
	assert.Equal(uint32(64), params.Params.MaxProofLength)
}

func TestURIRequests(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newTestServer(t)

	get := func(path string) response {
		resp, err := http.Get(srv.URL + path)
		require.NoError(err)
		defer resp.Body.Close() //nolint:errcheck
		body, err := io.ReadAll(resp.Body)
		require.NoError(err)
		var r response
		require.NoError(json.Unmarshal(body, &r))
		return r
	}

	require.Eventually(func() bool {
		r := get("/status")
		if r.Error != nil {
			return false
		}
		bz, err := json.Marshal(r.Result)
		require.NoError(err)
		var status client.ResultStatus
		require.NoError(json.Unmarshal(bz, &status))
		return status.SyncInfo.LatestBlockHeight >= 1
	}, 5*time.Second, 20*time.Millisecond)

	r := get("/block?height=1")
	require.Nil(r.Error)
	bz, err := json.Marshal(r.Result)
	require.NoError(err)
	var block client.ResultBlock
	require.NoError(json.Unmarshal(bz, &block))
	assert.Equal(uint64(1), block.Block.Header.Height)
	assert.Equal(testChainID, block.Block.Header.ChainID)

	r = get("/claim?proof=%22abcd%22")
	require.Nil(r.Error)
	bz, err = json.Marshal(r.Result)
	require.NoError(err)
	var claim client.ResultClaim
	require.NoError(json.Unmarshal(bz, &claim))
	assert.False(claim.Found)
	assert.Equal(types.Proof{0xab, 0xcd}, claim.Proof)

	r = get("/claim?proof=" + strings.Repeat("ab", 65))
	require.NotNil(r.Error)

	r = get("/claim")
	require.NotNil(r.Error)
	assert.Equal(json2.E_INVALID_REQ, r.Error.Code)

	r = get("/block?height=abc")
	require.NotNil(r.Error)
	assert.Equal(json2.E_PARSE, r.Error.Code)

	r = get("/subscribe?query=x")
	assert.NotNil(r.Error)
}
