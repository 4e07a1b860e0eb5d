package json

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"

	"github.com/rollkit/poe/types"
)

type wsMessage struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *json2.Error    `json:"error"`
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(strings.Replace(url, "http://", "ws://", 1)+"/websocket", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// readUntil reads messages until match accepts one or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(wsMessage) bool) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		typ, bz, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.TextMessage, typ)
		var msg wsMessage
		require.NoError(t, json.Unmarshal(bz, &msg))
		if match(msg) {
			return msg
		}
	}
}

func TestWebSockets(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newTestServer(t)
	conn := dialWS(t, srv.URL)

	err := conn.WriteMessage(websocket.TextMessage, []byte(`
{
"jsonrpc": "2.0",
"method": "subscribe",
"id": 7,
"params": {
"query": "poe.event = 'NewBlock'"
}
}
`))
	require.NoError(err)

	var (
		acked bool
		ev    struct {
			Query string `json:"query"`
			Data  struct {
				Header types.Header `json:"header"`
			} `json:"data"`
		}
	)
	readUntil(t, conn, 3*time.Second, func(msg wsMessage) bool {
		require.Nil(msg.Error)
		assert.Equal("7", string(msg.ID))
		if string(msg.Result) == "{}" {
			acked = true
			return false
		}
		require.NoError(json.Unmarshal(msg.Result, &ev))
		return acked
	})
	assert.Equal("poe.event = 'NewBlock'", ev.Query)
	assert.GreaterOrEqual(ev.Data.Header.Height, uint64(1))
	assert.Equal(testChainID, ev.Data.Header.ChainID)

	req, err := json2.EncodeClientRequest("unsubscribe_all", &unsubscribeAllArgs{})
	require.NoError(err)
	require.NoError(conn.WriteMessage(websocket.TextMessage, req))

	var reqID struct {
		ID json.RawMessage `json:"id"`
	}
	require.NoError(json.Unmarshal(req, &reqID))
	msg := readUntil(t, conn, 3*time.Second, func(msg wsMessage) bool {
		return string(msg.ID) == string(reqID.ID)
	})
	assert.Nil(msg.Error)
	assert.Equal("{}", string(msg.Result))
}

func TestWebSocketClaimEvents(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	alice := ed25519.GenPrivKey()
	srv := newTestServer(t, alice)
	conn := dialWS(t, srv.URL)

	query := "poe.event = 'ClaimCreated' AND claim.account = '" + alice.PubKey().Address().String() + "'"
	sub, err := json2.EncodeClientRequest("subscribe", &subscribeArgs{Query: query})
	require.NoError(err)
	require.NoError(conn.WriteMessage(websocket.TextMessage, sub))
	readUntil(t, conn, 3*time.Second, func(msg wsMessage) bool {
		require.Nil(msg.Error)
		return string(msg.Result) == "{}"
	})

	c := NewHTTPClient(srv.URL)
	tx := signedTx(t, alice, 0, types.MsgCreateClaim{Proof: types.Proof("memo")})
	go func() {
		_, _ = c.BroadcastTxCommit(context.Background(), tx)
	}()

	var ev struct {
		Data types.EventDataClaim `json:"data"`
	}
	readUntil(t, conn, 5*time.Second, func(msg wsMessage) bool {
		require.Nil(msg.Error)
		require.NoError(json.Unmarshal(msg.Result, &ev))
		return ev.Data.Type != ""
	})
	assert.Equal(types.EventClaimCreated, ev.Data.Type)
	assert.Equal(alice.PubKey().Address(), ev.Data.Account)
	assert.Equal(types.Proof("memo"), ev.Data.Proof)
}
