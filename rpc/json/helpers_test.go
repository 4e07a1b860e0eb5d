package json

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/genesis"
	"github.com/rollkit/poe/node"
	"github.com/rollkit/poe/rpc/client"
	"github.com/rollkit/poe/types"
)

const testChainID = "poe-json-test"

func getRPC(t *testing.T, funded ...ed25519.PrivKey) *client.Client {
	t.Helper()
	balances := make([]genesis.Balance, len(funded))
	for i, priv := range funded {
		balances[i] = genesis.Balance{Address: priv.PubKey().Address(), Amount: 5000}
	}
	doc, err := genesis.NewGenesisDoc(testChainID, time.Now().Add(-time.Minute).UTC(), genesis.AppState{
		Params:   types.Params{ClaimDeposit: 1000, MaxProofLength: 64},
		Balances: balances,
	})
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

func signedTx(t *testing.T, priv ed25519.PrivKey, nonce uint64, msg types.Msg) types.Tx {
	t.Helper()
	stx, err := types.SignTx(priv, types.Body{ChainID: testChainID, Nonce: nonce, Msg: msg})
	require.NoError(t, err)
	bz, err := stx.MarshalBinary()
	require.NoError(t, err)
	return bz
}
