package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"github.com/tendermint/tendermint/crypto/merkle"
	"go.uber.org/multierr"

	"github.com/rollkit/poe/bank"
	"github.com/rollkit/poe/claims"
	"github.com/rollkit/poe/events"
	"github.com/rollkit/poe/genesis"
	"github.com/rollkit/poe/log"
	"github.com/rollkit/poe/store"
	"github.com/rollkit/poe/types"
)

const (
	// DefaultMempoolSize is the number of transactions the mempool holds unless configured otherwise.
	DefaultMempoolSize = 10000

	// MaxBlockTxs bounds the number of transactions GetTxs returns for one block.
	MaxBlockTxs = 2000
	// MaxBlockBytes bounds the total size of the transactions GetTxs returns
	// for one block. A single transaction larger than MaxBlockBytes still
	// gets a block of its own.
	MaxBlockBytes = 1 << 20
)

// Executor applies transactions to the application state.
//
// A block is applied in a single datastore transaction. Within it every
// transaction buffers its writes and keeps all of them or none. Executor
// methods are serialized.
type Executor struct {
	kv       store.KV
	chainID  string
	appState genesis.AppState

	txChan chan types.Tx
	// next is a transaction taken from txChan that did not fit the last block.
	next    types.Tx
	poolMtx sync.Mutex

	// pending holds the events of the last executed block until SetFinal.
	pending *blockEvents

	eventBus *events.EventBus
	metrics  *Metrics
	logger   log.Logger

	mtx sync.Mutex
}

type blockEvents struct {
	height  uint64
	results []*types.TxResult
	emitted [][]types.Event
}

// NewExecutor creates an Executor for chain chainID starting from appState.
// eventBus may be nil.
func NewExecutor(kv store.KV, chainID string, appState genesis.AppState, mempoolSize int, eventBus *events.EventBus, metrics *Metrics, logger log.Logger) (*Executor, error) {
	if err := appState.ValidateBasic(); err != nil {
		return nil, err
	}
	if mempoolSize <= 0 {
		mempoolSize = DefaultMempoolSize
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = log.NopLogger{}
	}
	return &Executor{
		kv:       kv,
		chainID:  chainID,
		appState: appState,
		txChan:   make(chan types.Tx, mempoolSize),
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Params returns the chain parameters.
func (e *Executor) Params() types.Params {
	return e.appState.Params
}

// ChainID returns the chain the executor runs.
func (e *Executor) ChainID() string {
	return e.chainID
}

// InitChain writes the genesis parameters and balances. On an initialized
// datastore it only recomputes the state root.
func (e *Executor) InitChain(ctx context.Context, genesisTime time.Time, initialHeight uint64, chainID string) ([]byte, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if chainID != e.chainID {
		return nil, fmt.Errorf("%w: genesis is for %q, executor runs %q", ErrWrongChainID, chainID, e.chainID)
	}

	_, err := store.LoadParams(ctx, e.kv)
	switch {
	case err == nil:
		e.logger.Info("chain already initialized", "chainID", chainID)
		return e.computeStateRoot(ctx)
	case !errors.Is(err, ds.ErrNotFound):
		return nil, err
	}

	txn, err := e.kv.NewTransaction(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction: %w", err)
	}
	defer txn.Discard(ctx)

	if err := store.SaveParams(ctx, txn, e.appState.Params); err != nil {
		return nil, err
	}
	keeper := bank.NewKeeper(store.NewAccountStore(txn))
	for _, b := range e.appState.Balances {
		if err := keeper.Credit(ctx, b.Address, b.Amount); err != nil {
			return nil, fmt.Errorf("failed to fund %s: %w", b.Address, err)
		}
	}
	if err := txn.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit genesis state: %w", err)
	}

	e.logger.Info("initialized chain", "chainID", chainID, "genesisTime", genesisTime,
		"initialHeight", initialHeight, "accounts", len(e.appState.Balances))
	return e.computeStateRoot(ctx)
}

// CheckTx runs the stateless checks of a transaction.
func (e *Executor) CheckTx(tx types.Tx) (*types.SignedTx, types.AccountID, error) {
	stx, err := types.DecodeTx(tx, e.appState.Params.MaxProofLength)
	if err != nil {
		return nil, nil, err
	}
	if stx.Body.ChainID != e.chainID {
		return nil, nil, fmt.Errorf("%w: %q", ErrWrongChainID, stx.Body.ChainID)
	}
	signer, err := stx.Signer()
	if err != nil {
		return nil, nil, err
	}
	return stx, signer, nil
}

// InjectTx checks tx and adds it to the mempool.
func (e *Executor) InjectTx(tx types.Tx) error {
	if _, _, err := e.CheckTx(tx); err != nil {
		return err
	}
	select {
	case e.txChan <- tx:
		e.metrics.MempoolSize.Set(float64(len(e.txChan)))
		return nil
	default:
		return ErrMempoolFull
	}
}

// GetTxs takes the transactions of the next block from the mempool, up to
// MaxBlockTxs and MaxBlockBytes.
func (e *Executor) GetTxs(ctx context.Context) (types.Txs, error) {
	e.poolMtx.Lock()
	defer e.poolMtx.Unlock()
	defer func() {
		e.metrics.MempoolSize.Set(float64(len(e.txChan)))
	}()

	var (
		txs  types.Txs
		size int
	)
	if e.next != nil {
		txs = append(txs, e.next)
		size = len(e.next)
		e.next = nil
	}
	for len(txs) < MaxBlockTxs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case tx := <-e.txChan:
			if len(txs) > 0 && size+len(tx) > MaxBlockBytes {
				e.next = tx
				return txs, nil
			}
			txs = append(txs, tx)
			size += len(tx)
		default:
			return txs, nil
		}
	}
	return txs, nil
}

// ExecuteTxs applies txs in order at blockHeight and returns the new state
// root together with a result per transaction. Failing transactions are
// recorded in their result. An internal failure aborts the block and leaves
// the application state untouched. Events of the block are published by
// SetFinal.
func (e *Executor) ExecuteTxs(ctx context.Context, txs types.Txs, blockHeight uint64, timestamp time.Time, prevStateRoot []byte) ([]byte, []*types.TxResult, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	start := time.Now()
	e.pending = nil

	txn, err := e.kv.NewTransaction(ctx, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open block transaction: %w", err)
	}
	defer txn.Discard(ctx)

	results := make([]*types.TxResult, len(txs))
	emitted := make([][]types.Event, len(txs))
	for i, tx := range txs {
		res, evs, err := e.deliverTx(ctx, txn, blockHeight, uint32(i), tx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to execute tx %d at height %d: %w", i, blockHeight, err)
		}
		results[i] = res
		emitted[i] = evs
	}
	if err := txn.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit block %d: %w", blockHeight, err)
	}

	for _, res := range results {
		if res.IsOK() {
			e.metrics.Txs.With("result", "ok").Add(1)
		} else {
			e.metrics.Txs.With("result", "failed").Add(1)
			e.logger.Debug("invalid tx", "hash", res.Hash, "code", res.Code, "log", res.Log)
		}
	}

	stateRoot, err := e.computeStateRoot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute state root after executing transactions: %w", err)
	}
	e.metrics.BlockProcessingTime.Observe(time.Since(start).Seconds() * 1000)

	e.pending = &blockEvents{height: blockHeight, results: results, emitted: emitted}
	return stateRoot, results, nil
}

// SetFinal marks the block at blockHeight as final and publishes the events
// of its successful transactions.
func (e *Executor) SetFinal(ctx context.Context, blockHeight uint64) error {
	if blockHeight == 0 {
		return errors.New("invalid blockHeight: cannot be zero")
	}
	e.mtx.Lock()
	pending := e.pending
	e.pending = nil
	e.mtx.Unlock()

	e.logger.Debug("block final", "height", blockHeight)
	if pending == nil || pending.height != blockHeight {
		return nil
	}
	if err := e.publishEvents(ctx, pending); err != nil {
		e.logger.Error("failed to publish events", "height", blockHeight, "error", err)
	}
	return nil
}

func (e *Executor) deliverTx(ctx context.Context, parent store.ReadWriter, height uint64, index uint32, tx types.Tx) (*types.TxResult, []types.Event, error) {
	res := &types.TxResult{Height: height, Index: index, Hash: tx.Hash()}

	evs, err := e.applyTx(ctx, parent, height, tx)
	if err != nil {
		txErr, ok := asTxError(err)
		if !ok {
			return nil, nil, err
		}
		res.Code = txErr.Code
		res.Log = txErr.Err.Error()
		return res, nil, nil
	}

	for _, ev := range evs {
		bz, err := json.Marshal(ev)
		if err != nil {
			return nil, nil, err
		}
		res.Events = append(res.Events, bz)
	}
	return res, evs, nil
}

func (e *Executor) applyTx(ctx context.Context, parent store.ReadWriter, height uint64, tx types.Tx) ([]types.Event, error) {
	stx, signer, err := e.CheckTx(tx)
	if err != nil {
		return nil, err
	}

	cache := store.NewCache(parent)
	keeper := bank.NewKeeper(store.NewAccountStore(cache))
	if err := keeper.CheckNonce(ctx, signer, stx.Body.Nonce); err != nil {
		return nil, err
	}

	var evs []types.Event
	sink := claims.EventSinkFunc(func(ev types.Event) {
		evs = append(evs, ev)
	})
	msgErr := e.dispatch(ctx, cache, keeper, sink, height, signer, stx.Body.Msg)
	if msgErr != nil {
		if _, ok := asTxError(msgErr); !ok {
			return nil, msgErr
		}
		// The message failed; drop its writes but still consume the nonce.
		cache = store.NewCache(parent)
		keeper = bank.NewKeeper(store.NewAccountStore(cache))
	}

	if err := keeper.IncrementNonce(ctx, signer); err != nil {
		return nil, err
	}
	if err := cache.Write(ctx); err != nil {
		return nil, fmt.Errorf("failed to write transaction: %w", err)
	}
	if msgErr != nil {
		return nil, msgErr
	}
	return evs, nil
}

func (e *Executor) dispatch(ctx context.Context, rw store.ReadWriter, keeper *bank.Keeper, sink claims.EventSink, height uint64, signer types.AccountID, msg types.Msg) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}
	registry := claims.NewRegistry(store.NewClaimStore(rw), keeper, sink, e.appState.Params, height, e.logger)
	switch m := msg.(type) {
	case types.MsgCreateClaim:
		if err := registry.CreateClaim(ctx, signer, m.Proof); err != nil {
			return err
		}
		e.metrics.ClaimsCreated.Add(1)
		return nil
	case types.MsgRevokeClaim:
		if err := registry.RevokeClaim(ctx, signer, m.Proof); err != nil {
			return err
		}
		e.metrics.ClaimsRevoked.Add(1)
		return nil
	case types.MsgTransfer:
		if err := keeper.Transfer(ctx, signer, m.To, m.Amount); err != nil {
			return err
		}
		sink.Emit(types.EventDataTransfer{From: signer, To: m.To, Amount: m.Amount})
		return nil
	default:
		return fmt.Errorf("%w: %T", types.ErrUnknownMsg, msg)
	}
}

func (e *Executor) publishEvents(ctx context.Context, b *blockEvents) error {
	if e.eventBus == nil {
		return nil
	}
	var err error
	for i, res := range b.results {
		if len(b.emitted[i]) == 0 {
			continue
		}
		err = multierr.Append(err, e.eventBus.PublishTxEvents(ctx, b.height, res.Hash, b.emitted[i]))
	}
	return err
}

// computeStateRoot returns the merkle root over every application key and
// value in key order. It reads the whole application state, so its cost
// grows linearly with the number of claims and accounts.
// TODO: keep leaf hashes of untouched keys between blocks instead of
// rescanning AppPrefix.
func (e *Executor) computeStateRoot(ctx context.Context) ([]byte, error) {
	results, err := e.kv.Query(ctx, query.Query{
		Prefix: store.AppPrefix,
		Orders: []query.Order{query.OrderByKey{}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query keys for state root: %w", err)
	}
	defer results.Close()

	var leaves [][]byte
	for result := range results.Next() {
		if result.Error != nil {
			return nil, fmt.Errorf("error iterating query results: %w", result.Error)
		}
		leaf := make([]byte, 0, len(result.Key)+1+len(result.Value))
		leaf = append(leaf, result.Key...)
		leaf = append(leaf, 0)
		leaf = append(leaf, result.Value...)
		leaves = append(leaves, leaf)
	}
	return merkle.HashFromByteSlices(leaves), nil
}
