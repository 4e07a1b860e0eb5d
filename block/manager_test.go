package block

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmlog "github.com/tendermint/tendermint/libs/log"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/events"
	"github.com/rollkit/poe/genesis"
	logtest "github.com/rollkit/poe/log/test"
	"github.com/rollkit/poe/state"
	"github.com/rollkit/poe/store"
	"github.com/rollkit/poe/types"
)

const testChainID = "poe-block-test"

type testNode struct {
	kv      store.KV
	store   *store.DefaultStore
	exec    *state.Executor
	manager *Manager
	genesis *tmtypes.GenesisDoc
	priv    ed25519.PrivKey
}

func testGenesis(t *testing.T, funded types.AccountID) (*tmtypes.GenesisDoc, genesis.AppState) {
	t.Helper()
	appState := genesis.AppState{
		Params:   types.Params{ClaimDeposit: 100, MaxProofLength: 32},
		Balances: []genesis.Balance{{Address: funded, Amount: 1000}},
	}
	doc, err := genesis.NewGenesisDoc(testChainID, time.Now().Add(-time.Hour).UTC(), appState)
	require.NoError(t, err)
	return doc, appState
}

func newTestNode(t *testing.T, kv store.KV, priv ed25519.PrivKey, conf config.BlockManagerConfig, eventBus *events.EventBus) *testNode {
	t.Helper()
	ctx := context.Background()
	doc, appState := testGenesis(t, priv.PubKey().Address())

	s, err := store.New(ctx, kv)
	require.NoError(t, err)
	exec, err := state.NewExecutor(kv, testChainID, appState, 16, eventBus, nil, nil)
	require.NoError(t, err)
	m, err := NewManager(ctx, conf, doc, s, exec, eventBus, &logtest.TestLogger{T: t}, nil)
	require.NoError(t, err)
	return &testNode{kv: kv, store: s, exec: exec, manager: m, genesis: doc, priv: priv}
}

func (n *testNode) injectClaim(t *testing.T, nonce uint64, proof string) types.Tx {
	t.Helper()
	stx, err := types.SignTx(n.priv, types.Body{ChainID: testChainID, Nonce: nonce, Msg: types.MsgCreateClaim{Proof: types.Proof(proof)}})
	require.NoError(t, err)
	tx, err := stx.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, n.exec.InjectTx(tx))
	return tx
}

func defaultConf() config.BlockManagerConfig {
	return config.BlockManagerConfig{BlockTime: 20 * time.Millisecond, LazyBlockTime: time.Hour}
}

func newInMemoryKV(t *testing.T) store.KV {
	t.Helper()
	kv, err := store.NewDefaultInMemoryKVStore()
	require.NoError(t, err)
	return kv
}

func TestInitialState(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	n := newTestNode(t, newInMemoryKV(t), ed25519.GenPrivKey(), defaultConf(), nil)
	s := n.manager.GetLastState()

	assert.Equal(testChainID, s.ChainID)
	assert.Equal(uint64(1), s.InitialHeight)
	assert.Equal(uint64(0), s.LastBlockHeight)
	assert.Equal(uint64(1), s.NextHeight())
	assert.Empty(s.LastBlockHash)

	root, err := n.exec.StateRoot(context.Background())
	require.NoError(err)
	assert.Equal(types.Hash(root), s.StateRoot)
	assert.Equal(uint64(0), n.manager.GetStoreHeight())
}

func TestNewManagerRejectsZeroBlockTime(t *testing.T) {
	kv := newInMemoryKV(t)
	priv := ed25519.GenPrivKey()
	doc, appState := testGenesis(t, priv.PubKey().Address())
	s, err := store.New(context.Background(), kv)
	require.NoError(t, err)
	exec, err := state.NewExecutor(kv, testChainID, appState, 16, nil, nil, nil)
	require.NoError(t, err)

	_, err = NewManager(context.Background(), config.BlockManagerConfig{}, doc, s, exec, nil, nil, nil)
	assert.Error(t, err)
}

func TestPublishBlock(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	n := newTestNode(t, newInMemoryKV(t), ed25519.GenPrivKey(), defaultConf(), nil)
	tx := n.injectClaim(t, 0, "hash0")

	require.NoError(n.manager.publishBlock(ctx))
	assert.Equal(uint64(1), n.manager.GetStoreHeight())

	block1, err := n.store.LoadBlock(ctx, 1)
	require.NoError(err)
	assert.Equal(testChainID, block1.Header.ChainID)
	assert.Equal(types.Txs{tx}, block1.Txs)
	assert.Empty(block1.Header.LastBlockHash)
	assert.Equal(types.Txs{tx}.Hash(), block1.Header.DataHash)
	assert.NoError(block1.ValidateBasic())

	root, err := n.exec.StateRoot(ctx)
	require.NoError(err)
	assert.Equal(types.Hash(root), block1.Header.StateRoot)

	res, err := n.store.LoadTxResult(ctx, tx.Hash())
	require.NoError(err)
	assert.True(res.IsOK())
	assert.Equal(uint64(1), res.Height)

	claim, found, err := n.exec.Claim(ctx, types.Proof("hash0"))
	require.NoError(err)
	require.True(found)
	assert.Equal(uint64(1), claim.ClaimedAt)

	// empty block chains to the previous one
	require.NoError(n.manager.publishBlock(ctx))
	block2, err := n.store.LoadBlock(ctx, 2)
	require.NoError(err)
	assert.Empty(block2.Txs)
	assert.Equal(block1.Hash(), block2.Header.LastBlockHash)
	assert.False(block2.Header.Time.Before(block1.Header.Time))
	assert.Equal(block1.Header.StateRoot, block2.Header.StateRoot)

	s := n.manager.GetLastState()
	assert.Equal(uint64(2), s.LastBlockHeight)
	assert.Equal(block2.Hash(), s.LastBlockHash)

	stored, err := n.store.LoadState(ctx)
	require.NoError(err)
	assert.Equal(s, stored)
}

func TestPublishBlockCanceledContext(t *testing.T) {
	n := newTestNode(t, newInMemoryKV(t), ed25519.GenPrivKey(), defaultConf(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, n.manager.publishBlock(ctx), context.Canceled)
	assert.Equal(t, uint64(0), n.manager.GetStoreHeight())
}

func TestRestartResumesState(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	kv := newInMemoryKV(t)
	priv := ed25519.GenPrivKey()
	n := newTestNode(t, kv, priv, defaultConf(), nil)
	n.injectClaim(t, 0, "hash0")
	require.NoError(n.manager.publishBlock(ctx))
	require.NoError(n.manager.publishBlock(ctx))
	before := n.manager.GetLastState()

	restarted := newTestNode(t, kv, priv, defaultConf(), nil)
	assert.Equal(t, before, restarted.manager.GetLastState())
	assert.Equal(t, uint64(2), restarted.manager.GetStoreHeight())

	restarted.injectClaim(t, 1, "hash1")
	require.NoError(restarted.manager.publishBlock(ctx))
	block3, err := restarted.store.LoadBlock(ctx, 3)
	require.NoError(err)
	assert.Equal(t, before.LastBlockHash, block3.Header.LastBlockHash)
}

type fakeExecutor struct {
	root []byte
}

func (f *fakeExecutor) InitChain(context.Context, time.Time, uint64, string) ([]byte, error) {
	return f.root, nil
}

func (f *fakeExecutor) GetTxs(context.Context) (types.Txs, error) {
	return nil, nil
}

func (f *fakeExecutor) ExecuteTxs(context.Context, types.Txs, uint64, time.Time, []byte) ([]byte, []*types.TxResult, error) {
	return f.root, nil, nil
}

func (f *fakeExecutor) SetFinal(context.Context, uint64) error {
	return nil
}

func TestStateRootMismatch(t *testing.T) {
	ctx := context.Background()
	kv := newInMemoryKV(t)
	doc, _ := testGenesis(t, ed25519.GenPrivKey().PubKey().Address())
	s, err := store.New(ctx, kv)
	require.NoError(t, err)

	_, err = NewManager(ctx, defaultConf(), doc, s, &fakeExecutor{root: []byte{1}}, nil, nil, nil)
	require.NoError(t, err)

	_, err = NewManager(ctx, defaultConf(), doc, s, &fakeExecutor{root: []byte{2}}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrStateRootMismatch)
}

func TestWrongChainState(t *testing.T) {
	ctx := context.Background()
	kv := newInMemoryKV(t)
	s, err := store.New(ctx, kv)
	require.NoError(t, err)
	st, err := types.NewState("other-chain", 1, time.Now(), nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateState(ctx, st))

	doc, _ := testGenesis(t, ed25519.GenPrivKey().PubKey().Address())
	_, err = NewManager(ctx, defaultConf(), doc, s, &fakeExecutor{}, nil, nil, nil)
	assert.Error(t, err)
}

type failingStore struct {
	store.Store
}

func (failingStore) SaveBlock(context.Context, *types.Block, []*types.TxResult) error {
	return errors.New("disk full")
}

func TestPublishBlockSaveError(t *testing.T) {
	ctx := context.Background()
	kv := newInMemoryKV(t)
	doc, _ := testGenesis(t, ed25519.GenPrivKey().PubKey().Address())
	s, err := store.New(ctx, kv)
	require.NoError(t, err)

	m, err := NewManager(ctx, defaultConf(), doc, failingStore{s}, &fakeExecutor{root: []byte{1}}, nil, nil, nil)
	require.NoError(t, err)

	err = m.publishBlock(ctx)
	var saveErr SaveBlockError
	assert.True(t, errors.As(err, &saveErr))
	assert.Equal(t, uint64(0), m.GetLastState().LastBlockHeight)
	stored, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.LastBlockHeight)
}

func TestPublishBlockSaveErrorPublishesNoClaimEvents(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	bus := events.NewEventBus()
	bus.SetLogger(tmlog.TestingLogger())
	require.NoError(bus.Start())
	t.Cleanup(func() {
		if err := bus.Stop(); err != nil {
			t.Error(err)
		}
	})

	priv := ed25519.GenPrivKey()
	kv := newInMemoryKV(t)
	doc, appState := testGenesis(t, priv.PubKey().Address())
	s, err := store.New(ctx, kv)
	require.NoError(err)
	exec, err := state.NewExecutor(kv, testChainID, appState, 16, bus, nil, nil)
	require.NoError(err)
	m, err := NewManager(ctx, defaultConf(), doc, failingStore{s}, exec, bus, &logtest.TestLogger{T: t}, nil)
	require.NoError(err)
	n := &testNode{kv: kv, store: s, exec: exec, manager: m, genesis: doc, priv: priv}

	sub, err := bus.Subscribe(ctx, "test", fmt.Sprintf("%s EXISTS", types.ClaimProofKey), 10)
	require.NoError(err)

	n.injectClaim(t, 0, "hash0")
	var saveErr SaveBlockError
	require.True(errors.As(m.publishBlock(ctx), &saveErr))

	select {
	case msg := <-sub.Out():
		t.Fatalf("claim event published for an unsaved block: %v", msg.Data())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishBlockEmitsNewBlock(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	bus := events.NewEventBus()
	bus.SetLogger(tmlog.TestingLogger())
	require.NoError(bus.Start())
	defer func() {
		require.NoError(bus.Stop())
	}()

	n := newTestNode(t, newInMemoryKV(t), ed25519.GenPrivKey(), defaultConf(), bus)
	sub, err := bus.Subscribe(ctx, "test", fmt.Sprintf("%s = '%s'", types.EventTypeKey, types.EventNewBlock), 1)
	require.NoError(err)

	n.injectClaim(t, 0, "hash0")
	require.NoError(n.manager.publishBlock(ctx))

	select {
	case msg := <-sub.Out():
		data, ok := msg.Data().(types.EventDataNewBlock)
		require.True(ok)
		assert.Equal(t, uint64(1), data.Header.Height)
		assert.Equal(t, 1, data.NumTxs)
		assert.Equal(t, []string{"1"}, msg.Events()[types.BlockHeightKey])
	case <-time.After(time.Second):
		t.Fatal("did not receive NewBlock event")
	}
}

func runAggregation(t *testing.T, m *Manager) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.AggregationLoop(ctx, errCh)
	}()
	return func() {
		cancel()
		wg.Wait()
		select {
		case err := <-errCh:
			t.Errorf("aggregation loop failed: %v", err)
		default:
		}
	}
}

func TestAggregationLoop(t *testing.T) {
	n := newTestNode(t, newInMemoryKV(t), ed25519.GenPrivKey(), defaultConf(), nil)
	stop := runAggregation(t, n.manager)

	require.Eventually(t, func() bool {
		return n.manager.GetStoreHeight() >= 3
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	height := n.manager.GetStoreHeight()
	for h := uint64(2); h <= height; h++ {
		prev, err := n.store.LoadBlock(context.Background(), h-1)
		require.NoError(t, err)
		cur, err := n.store.LoadBlock(context.Background(), h)
		require.NoError(t, err)
		assert.Equal(t, prev.Hash(), cur.Header.LastBlockHash)
	}
}

func TestLazyAggregationLoop(t *testing.T) {
	conf := defaultConf()
	conf.LazyAggregator = true
	n := newTestNode(t, newInMemoryKV(t), ed25519.GenPrivKey(), conf, nil)
	stop := runAggregation(t, n.manager)
	defer stop()

	// the lazy timer produces the first block right away
	require.Eventually(t, func() bool {
		return n.manager.GetStoreHeight() == 1
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(10 * conf.BlockTime)
	assert.Equal(t, uint64(1), n.manager.GetStoreHeight())

	n.injectClaim(t, 0, "hash0")
	n.manager.NotifyNewTransactions()
	require.Eventually(t, func() bool {
		return n.manager.GetStoreHeight() == 2
	}, 5*time.Second, 10*time.Millisecond)

	block, err := n.store.LoadBlock(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, block.Txs, 1)
}

func TestGetRemainingSleep(t *testing.T) {
	assert.Equal(t, time.Millisecond, getRemainingSleep(time.Now().Add(-time.Second), 100*time.Millisecond))
	assert.InDelta(t, float64(time.Second), float64(getRemainingSleep(time.Now(), time.Second)), float64(100*time.Millisecond))
}
