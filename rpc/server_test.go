package rpc

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/genesis"
	"github.com/rollkit/poe/node"
	"github.com/rollkit/poe/rpc/client"
	"github.com/rollkit/poe/rpc/json"
)

func getClient(t *testing.T) *client.Client {
	t.Helper()
	doc, err := genesis.NewGenesisDoc("poe-server-test", time.Now().UTC(), genesis.DefaultAppState())
	require.NoError(t, err)

	conf := config.DefaultNodeConfig()
	conf.DBPath = ""
	conf.BlockTime = 20 * time.Millisecond
	conf.Instrumentation.Prometheus = false

	n, err := node.NewNode(context.Background(), conf, doc, nil, log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() {
		require.NoError(t, n.Stop())
	})
	return client.NewClient(n)
}

func TestServerServesJSONRPC(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	cfg := config.DefaultNodeConfig().RPC
	cfg.ListenAddress = "tcp://127.0.0.1:0"
	cfg.CORSAllowedOrigins = []string{"*"}
	srv := NewServer(getClient(t), cfg, log.TestingLogger())
	require.NoError(srv.Start())
	defer func() {
		require.NoError(srv.Stop())
	}()
	require.NotNil(srv.Addr())

	c := json.NewHTTPClient(srv.Addr().String())
	status, err := c.Status(context.Background())
	require.NoError(err)
	assert.Equal("poe-server-test", status.NodeInfo.ChainID)

	req, err := http.NewRequest(http.MethodOptions, "http://"+srv.Addr().String()+"/", nil)
	require.NoError(err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(err)
	_ = resp.Body.Close()
	assert.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServerWithoutListenAddress(t *testing.T) {
	require := require.New(t)

	srv := NewServer(getClient(t), config.RPCConfig{}, log.TestingLogger())
	require.NoError(srv.Start())
	require.Nil(srv.Addr())
	require.NoError(srv.Stop())
}

func TestServerInvalidListenAddress(t *testing.T) {
	srv := NewServer(getClient(t), config.RPCConfig{ListenAddress: "127.0.0.1:0"}, log.TestingLogger())
	assert.Error(t, srv.Start())
}
