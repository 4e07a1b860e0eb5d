package block

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/events"
	"github.com/rollkit/poe/log"
	"github.com/rollkit/poe/store"
	"github.com/rollkit/poe/types"
)

// Executor executes the transactions of produced blocks.
type Executor interface {
	// InitChain prepares the application for genesis and returns the initial state root.
	InitChain(ctx context.Context, genesisTime time.Time, initialHeight uint64, chainID string) ([]byte, error)
	// GetTxs returns the transactions to include in the next block.
	GetTxs(ctx context.Context) (types.Txs, error)
	// ExecuteTxs applies txs on top of prevStateRoot and returns the new state root.
	ExecuteTxs(ctx context.Context, txs types.Txs, blockHeight uint64, timestamp time.Time, prevStateRoot []byte) ([]byte, []*types.TxResult, error)
	// SetFinal marks the block at blockHeight as final.
	SetFinal(ctx context.Context, blockHeight uint64) error
}

type pendingTxsCounter interface {
	NumPendingTxs() int
}

// Manager is responsible for producing blocks and persisting them together
// with the chain state.
type Manager struct {
	lastState types.State
	// lastStateMtx is used by lastState
	lastStateMtx *sync.RWMutex
	store        store.Store

	conf    config.BlockManagerConfig
	genesis *tmtypes.GenesisDoc

	exec     Executor
	eventBus *events.EventBus

	logger  log.Logger
	metrics *Metrics

	// For usage by Lazy Aggregator mode
	txsAvailable bool
	txNotifyCh   chan struct{}
}

// getInitialState tries to load lastState from Store, and if it's not available it initializes the chain.
func getInitialState(ctx context.Context, genesis *tmtypes.GenesisDoc, s store.Store, exec Executor, logger log.Logger) (types.State, error) {
	state, err := s.LoadState(ctx)
	if errors.Is(err, ds.ErrNotFound) {
		logger.Info("No state found in store, initializing new state")
		stateRoot, err := exec.InitChain(ctx, genesis.GenesisTime, uint64(genesis.InitialHeight), genesis.ChainID)
		if err != nil {
			return types.State{}, fmt.Errorf("failed to initialize chain: %w", err)
		}
		state, err := types.NewState(genesis.ChainID, uint64(genesis.InitialHeight), genesis.GenesisTime.UTC(), stateRoot)
		if err != nil {
			return types.State{}, err
		}
		return state, s.UpdateState(ctx, state)
	}
	if err != nil {
		return types.State{}, err
	}

	if state.ChainID != genesis.ChainID {
		return types.State{}, fmt.Errorf("stored state is for chain %q, genesis is for %q", state.ChainID, genesis.ChainID)
	}
	stateRoot, err := exec.InitChain(ctx, genesis.GenesisTime, uint64(genesis.InitialHeight), genesis.ChainID)
	if err != nil {
		return types.State{}, fmt.Errorf("failed to load chain: %w", err)
	}
	if !bytes.Equal(stateRoot, state.StateRoot) {
		return types.State{}, fmt.Errorf("%w at height %d: stored %X, application %X",
			ErrStateRootMismatch, state.LastBlockHeight, []byte(state.StateRoot), stateRoot)
	}
	return state, nil
}

// NewManager creates new block Manager.
func NewManager(
	ctx context.Context,
	conf config.BlockManagerConfig,
	genesis *tmtypes.GenesisDoc,
	s store.Store,
	exec Executor,
	eventBus *events.EventBus,
	logger log.Logger,
	metrics *Metrics,
) (*Manager, error) {
	if genesis.InitialHeight == 0 {
		genesis.InitialHeight = 1
	}
	if logger == nil {
		logger = log.NopLogger{}
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if conf.BlockTime <= 0 {
		return nil, errors.New("block time must be positive")
	}
	if conf.LazyBlockTime <= 0 {
		conf.LazyBlockTime = 60 * conf.BlockTime
	}
	s0, err := getInitialState(ctx, genesis, s, exec, logger)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		lastState:    s0,
		lastStateMtx: new(sync.RWMutex),
		store:        s,
		conf:         conf,
		genesis:      genesis,
		exec:         exec,
		eventBus:     eventBus,
		logger:       logger,
		metrics:      metrics,
		txNotifyCh:   make(chan struct{}, 1),
	}
	metrics.Height.Set(float64(s0.LastBlockHeight))
	return m, nil
}

// GetLastState returns the last recorded state.
func (m *Manager) GetLastState() types.State {
	m.lastStateMtx.RLock()
	defer m.lastStateMtx.RUnlock()
	return m.lastState
}

// SetLastState is used to set lastState used by Manager.
func (m *Manager) SetLastState(state types.State) {
	m.lastStateMtx.Lock()
	defer m.lastStateMtx.Unlock()
	m.lastState = state
}

// GetStoreHeight returns the manager's store height
func (m *Manager) GetStoreHeight() uint64 {
	return m.store.Height()
}

// NotifyNewTransactions signals the aggregation loop that transactions are available.
func (m *Manager) NotifyNewTransactions() {
	select {
	case m.txNotifyCh <- struct{}{}:
	default:
		// a notification is already pending
	}
}

func (m *Manager) getLastBlockTime() time.Time {
	return m.GetLastState().LastBlockTime
}

// publishBlock executes pending transactions in a new block and commits it.
func (m *Manager) publishBlock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	lastState := m.GetLastState()
	newHeight := lastState.NextHeight()

	txs, err := m.exec.GetTxs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get txs from executor: %w", err)
	}

	now := time.Now().Round(0).UTC()
	if now.Before(lastState.LastBlockTime) {
		return fmt.Errorf("%w: %s < %s", ErrNonMonotonicTime, now, lastState.LastBlockTime)
	}

	m.logger.Info("Creating and publishing block", "height", newHeight, "num_txs", len(txs))
	stateRoot, results, err := m.exec.ExecuteTxs(ctx, txs, newHeight, now, lastState.StateRoot)
	if err != nil {
		return fmt.Errorf("failed to execute block %d: %w", newHeight, err)
	}

	block := &types.Block{
		Header: types.Header{
			ChainID:       lastState.ChainID,
			Height:        newHeight,
			Time:          now,
			LastBlockHash: lastState.LastBlockHash,
			DataHash:      txs.Hash(),
			StateRoot:     stateRoot,
		},
		Txs: txs,
	}
	if err := block.ValidateBasic(); err != nil {
		return fmt.Errorf("produced invalid block: %w", err)
	}

	if err := m.store.SaveBlock(ctx, block, results); err != nil {
		return SaveBlockError{err}
	}

	newState := lastState.NextState(block)
	if err := m.store.UpdateState(ctx, newState); err != nil {
		return err
	}
	m.SetLastState(newState)

	if err := m.exec.SetFinal(ctx, newHeight); err != nil {
		return fmt.Errorf("failed to finalize block %d: %w", newHeight, err)
	}

	m.recordMetrics(block, lastState.LastBlockTime)

	if m.eventBus != nil {
		if err := m.eventBus.PublishEventNewBlock(ctx, types.EventDataNewBlock{Header: block.Header, NumTxs: len(txs)}); err != nil {
			m.logger.Error("failed to publish NewBlock event", "height", newHeight, "error", err)
		}
	}
	m.logger.Debug("block info", "height", newHeight, "hash", block.Hash(), "state_root", block.Header.StateRoot)

	// txs left over by a full block go into the next one
	if p, ok := m.exec.(pendingTxsCounter); ok && p.NumPendingTxs() > 0 {
		m.NotifyNewTransactions()
	}
	return nil
}

func (m *Manager) recordMetrics(block *types.Block, lastBlockTime time.Time) {
	m.metrics.Height.Set(float64(block.Header.Height))
	m.metrics.NumTxs.Set(float64(len(block.Txs)))
	m.metrics.TotalTxs.Add(float64(len(block.Txs)))
	if bz, err := block.MarshalBinary(); err == nil {
		m.metrics.BlockSizeBytes.Set(float64(len(bz)))
	}
	m.metrics.BlockIntervalSeconds.Observe(block.Header.Time.Sub(lastBlockTime).Seconds())
}
