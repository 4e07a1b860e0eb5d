package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/p2p"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/genesis"
	"github.com/rollkit/poe/rpc/client"
	"github.com/rollkit/poe/types"
)

func execute(ctx context.Context, args ...string) (string, error) {
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestInit(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	home := t.TempDir()
	other := ed25519.GenPrivKey().PubKey().Address()
	out, err := execute(context.Background(), "init", "--home", home,
		"--chain-id", "poe-cmd-test", "--claim-deposit", "7", "--balance", other.String()+"=10")
	require.NoError(err)
	assert.Contains(out, "Generated genesis file")

	key, err := p2p.LoadNodeKey(filepath.Join(home, config.DefaultConfigDir, config.DefaultKeyName))
	require.NoError(err)

	doc, appState, err := genesis.LoadGenesisDoc(filepath.Join(home, config.DefaultConfigDir, config.DefaultGenesisName))
	require.NoError(err)
	assert.Equal("poe-cmd-test", doc.ChainID)
	assert.Equal(uint64(7), appState.Params.ClaimDeposit)
	assert.Equal(types.DefaultMaxProofLength, appState.Params.MaxProofLength)
	require.Len(appState.Balances, 2)
	assert.Equal(key.PubKey().Address(), appState.Balances[0].Address)
	assert.Equal(defaultNodeFunds, appState.Balances[0].Amount)
	assert.Equal(other, appState.Balances[1].Address)
	assert.Equal(uint64(10), appState.Balances[1].Amount)

	_, err = os.Stat(filepath.Join(home, config.DefaultConfigDir, config.DefaultConfigName))
	require.NoError(err)

	out, err = execute(context.Background(), "init", "--home", home, "--chain-id", "ignored")
	require.NoError(err)
	assert.Contains(out, "Found genesis file")
	assert.Contains(out, "Found config file")
	doc, _, err = genesis.LoadGenesisDoc(filepath.Join(home, config.DefaultConfigDir, config.DefaultGenesisName))
	require.NoError(err)
	assert.Equal("poe-cmd-test", doc.ChainID)

	out, err = execute(context.Background(), "keys", "show", "--home", home)
	require.NoError(err)
	assert.Contains(out, key.PubKey().Address().String())
}

func TestInitInvalidBalance(t *testing.T) {
	for _, balance := range []string{"nope", "00=1", strings.Repeat("AB", 20) + "=x"} {
		_, err := execute(context.Background(), "init", "--home", t.TempDir(), "--balance", balance)
		assert.Error(t, err, balance)
	}
}

func TestProofCmd(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "doc.txt")
	content := []byte("hello poe")
	require.NoError(os.WriteFile(path, content, 0o600))

	sum, err := multihash.Sum(content, multihash.SHA2_256, -1)
	require.NoError(err)
	expected := cid.NewCidV1(cid.Raw, sum)

	out, err := execute(context.Background(), "proof", path)
	require.NoError(err)
	assert.Contains(out, expected.String())
	assert.Contains(out, types.Proof(expected.Bytes()).String())

	_, err = execute(context.Background(), "proof", filepath.Join(t.TempDir(), "missing"))
	assert.Error(err)
}

func TestParseProof(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	proof, err := parseProof("0xabcd")
	require.NoError(err)
	assert.Equal(types.Proof{0xab, 0xcd}, proof)

	sum, err := multihash.Sum([]byte("x"), multihash.SHA2_256, -1)
	require.NoError(err)
	c := cid.NewCidV1(cid.Raw, sum)
	proof, err = parseProof(c.String())
	require.NoError(err)
	assert.Equal(types.Proof(c.Bytes()), proof)

	_, err = parseProof("not a proof")
	assert.Error(err)
}

func TestVersion(t *testing.T) {
	out, err := execute(context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, config.Version)
}

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestStartAndClaim(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	home := t.TempDir()
	_, err := execute(context.Background(), "init", "--home", home, "--chain-id", "poe-start-test")
	require.NoError(err)

	addr := freeAddress(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "start", "--home", home, "--rpc.laddr", "tcp://"+addr, "--poe.block_time", "50ms")
		done <- err
	}()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(err)
		case <-time.After(10 * time.Second):
			t.Error("node did not stop")
		}
	}()

	require.Eventually(func() bool {
		out, err := execute(context.Background(), "query", "status", "--home", home, "--node", addr)
		if err != nil {
			return false
		}
		var status client.ResultStatus
		return json.Unmarshal([]byte(out), &status) == nil && status.SyncInfo.LatestBlockHeight >= 1
	}, 10*time.Second, 50*time.Millisecond)

	file := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(os.WriteFile(file, []byte("claimed document"), 0o600))

	_, err = execute(context.Background(), "tx", "create-claim", "--file", file, "--home", home, "--node", addr)
	require.NoError(err)

	out, err := execute(context.Background(), "query", "claim", "--file", file, "--home", home, "--node", addr)
	require.NoError(err)
	var claim client.ResultClaim
	require.NoError(json.Unmarshal([]byte(out), &claim))
	assert.True(claim.Found)

	out, err = execute(context.Background(), "query", "account", "--home", home, "--node", addr)
	require.NoError(err)
	var acc client.ResultAccount
	require.NoError(json.Unmarshal([]byte(out), &acc))
	assert.Equal(types.DefaultClaimDeposit, acc.Reserved)
	assert.Equal(defaultNodeFunds-types.DefaultClaimDeposit, acc.Free)

	_, err = execute(context.Background(), "tx", "create-claim", "--file", file, "--home", home, "--node", addr)
	assert.Error(err)

	_, err = execute(context.Background(), "tx", "revoke-claim", "--file", file, "--home", home, "--node", addr)
	require.NoError(err)

	out, err = execute(context.Background(), "query", "claim", "--file", file, "--home", home, "--node", addr)
	require.NoError(err)
	require.NoError(json.Unmarshal([]byte(out), &claim))
	assert.False(claim.Found)
}
