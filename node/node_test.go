package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/genesis"
	"github.com/rollkit/poe/types"
)

const testChainID = "poe-node-test"

func testGenesis(t *testing.T, funded types.AccountID) *tmtypes.GenesisDoc {
	t.Helper()
	doc, err := genesis.NewGenesisDoc(testChainID, time.Now().Add(-time.Minute).UTC(), genesis.AppState{
		Params:   types.DefaultParams(),
		Balances: []genesis.Balance{{Address: funded, Amount: 10000}},
	})
	require.NoError(t, err)
	return doc
}

func testConfig(rootDir string) config.NodeConfig {
	conf := config.DefaultNodeConfig()
	conf.RootDir = rootDir
	if rootDir == "" {
		conf.DBPath = ""
	}
	conf.BlockTime = 20 * time.Millisecond
	conf.Instrumentation.Prometheus = false
	return conf
}

func claimTx(t *testing.T, priv ed25519.PrivKey, nonce uint64, proof string) types.Tx {
	t.Helper()
	stx, err := types.SignTx(priv, types.Body{ChainID: testChainID, Nonce: nonce, Msg: types.MsgCreateClaim{Proof: types.Proof(proof)}})
	require.NoError(t, err)
	bz, err := stx.MarshalBinary()
	require.NoError(t, err)
	return bz
}

func TestStartup(t *testing.T) {
	require := require.New(t)
	priv := ed25519.GenPrivKey()

	node, err := NewNode(context.Background(), testConfig(""), testGenesis(t, priv.PubKey().Address()), nil, log.TestingLogger())
	require.NoError(err)
	require.NotNil(node)
	assert.False(t, node.IsRunning())

	require.NoError(node.Start())
	assert.True(t, node.IsRunning())

	require.Eventually(func() bool {
		return node.Store.Height() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(node.Stop())
	assert.False(t, node.IsRunning())
}

func TestClaimThroughNode(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	priv := ed25519.GenPrivKey()
	owner := priv.PubKey().Address()

	node, err := NewNode(ctx, testConfig(""), testGenesis(t, owner), nil, log.TestingLogger())
	require.NoError(err)
	require.NoError(node.Start())
	defer func() {
		require.NoError(node.Stop())
	}()

	require.NoError(node.Executor.InjectTx(claimTx(t, priv, 0, "hash0")))
	node.BlockManager().NotifyNewTransactions()

	require.Eventually(func() bool {
		proofs, err := node.ClaimIndex.ByOwner(ctx, owner)
		return err == nil && len(proofs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	claim, found, err := node.Executor.Claim(ctx, types.Proof("hash0"))
	require.NoError(err)
	require.True(found)
	assert.Equal(owner, claim.Owner)

	acc, err := node.Executor.Account(ctx, owner)
	require.NoError(err)
	assert.Equal(uint64(10000-types.DefaultClaimDeposit), acc.Free)
	assert.Equal(types.DefaultClaimDeposit, acc.Reserved)
}

func TestRestartFromDisk(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	priv := ed25519.GenPrivKey()
	doc := testGenesis(t, priv.PubKey().Address())
	conf := testConfig(t.TempDir())

	node, err := NewNode(ctx, conf, doc, nil, log.TestingLogger())
	require.NoError(err)
	require.NoError(node.Start())
	require.NoError(node.Executor.InjectTx(claimTx(t, priv, 0, "hash0")))
	require.Eventually(func() bool {
		_, found, err := node.Executor.Claim(ctx, types.Proof("hash0"))
		return err == nil && found
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(node.Stop())
	height := node.Store.Height()

	restarted, err := NewNode(ctx, conf, doc, nil, log.TestingLogger())
	require.NoError(err)
	assert.Equal(t, height, restarted.Store.Height())
	assert.Equal(t, height, restarted.BlockManager().GetLastState().LastBlockHeight)

	require.NoError(restarted.Start())
	defer func() {
		require.NoError(restarted.Stop())
	}()
	proofs, err := restarted.ClaimIndex.ByOwner(ctx, priv.PubKey().Address())
	require.NoError(err)
	assert.Equal(t, []types.Proof{types.Proof("hash0")}, proofs)
}
