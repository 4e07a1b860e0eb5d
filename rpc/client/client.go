package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	ds "github.com/ipfs/go-datastore"
	"github.com/tendermint/tendermint/libs/log"
	tmpubsub "github.com/tendermint/tendermint/libs/pubsub"
	tmrand "github.com/tendermint/tendermint/libs/rand"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/node"
	"github.com/rollkit/poe/state"
	"github.com/rollkit/poe/types"
)

const (
	defaultTimeoutBroadcastTxCommit = 10 * time.Second
	subscribeTimeout                = 5 * time.Second

	// MaxSubscriptionClients bounds the number of distinct subscribers.
	MaxSubscriptionClients = 100
	// MaxSubscriptionsPerClient bounds the number of subscriptions of a single subscriber.
	MaxSubscriptionsPerClient = 5
)

// ErrTxNotCommitted is returned by BroadcastTxCommit when the transaction is
// not included in a block in time.
var ErrTxNotCommitted = errors.New("timed out waiting for tx to be included in a block")

// Client gives access to a node running in the same process.
type Client struct {
	node   *node.Node
	logger log.Logger

	TimeoutBroadcastTxCommit time.Duration
}

// NewClient returns Client working with given node.
func NewClient(node *node.Node) *Client {
	return &Client{
		node:                     node,
		logger:                   node.Logger.With("module", "rpc"),
		TimeoutBroadcastTxCommit: defaultTimeoutBroadcastTxCommit,
	}
}

// Health returns if the node is running.
func (c *Client) Health(ctx context.Context) (*ResultHealth, error) {
	if !c.node.IsRunning() {
		return nil, errors.New("node is not running")
	}
	return &ResultHealth{}, nil
}

// Status returns the chain tip.
func (c *Client) Status(ctx context.Context) (*ResultStatus, error) {
	s := c.node.BlockManager().GetLastState()
	return &ResultStatus{
		NodeInfo: NodeInfo{ChainID: s.ChainID, Version: config.Version},
		SyncInfo: SyncInfo{
			LatestBlockHash:   s.LastBlockHash,
			LatestStateRoot:   s.StateRoot,
			LatestBlockHeight: s.LastBlockHeight,
			LatestBlockTime:   s.LastBlockTime,
		},
	}, nil
}

// Genesis returns entire genesis.
func (c *Client) Genesis(ctx context.Context) (*ResultGenesis, error) {
	return &ResultGenesis{Genesis: c.node.GetGenesis()}, nil
}

// Block returns the block at height, or the latest block for a nil height.
func (c *Client) Block(ctx context.Context, height *uint64) (*ResultBlock, error) {
	h := c.node.Store.Height()
	if height != nil && *height != 0 {
		h = *height
	}
	if h == 0 {
		return nil, errors.New("no blocks produced yet")
	}
	block, err := c.node.Store.LoadBlock(ctx, h)
	if err != nil {
		return nil, err
	}
	return &ResultBlock{BlockID: block.Hash(), Block: block}, nil
}

// BlockByHash returns the block with header hash.
func (c *Client) BlockByHash(ctx context.Context, hash []byte) (*ResultBlock, error) {
	block, err := c.node.Store.LoadBlockByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &ResultBlock{BlockID: block.Hash(), Block: block}, nil
}

// Tx returns the result of an included transaction.
func (c *Client) Tx(ctx context.Context, hash []byte) (*ResultTx, error) {
	res, err := c.node.Store.LoadTxResult(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &ResultTx{TxResult: res}, nil
}

// BroadcastTxAsync adds tx to the mempool without reporting check failures.
func (c *Client) BroadcastTxAsync(ctx context.Context, tx types.Tx) (*ResultBroadcastTx, error) {
	go func() {
		if _, err := c.BroadcastTxSync(context.Background(), tx); err != nil {
			c.logger.Error("failed to broadcast tx", "hash", tx.Hash(), "err", err)
		}
	}()
	return &ResultBroadcastTx{Hash: tx.Hash()}, nil
}

// BroadcastTxSync checks tx and adds it to the mempool. A rejected
// transaction, including one turned away by a full mempool, is reported
// through Code and Log.
func (c *Client) BroadcastTxSync(ctx context.Context, tx types.Tx) (*ResultBroadcastTx, error) {
	res := &ResultBroadcastTx{Hash: tx.Hash()}
	if err := c.node.Executor.InjectTx(tx); err != nil {
		res.Code = state.ErrorCode(err)
		res.Log = err.Error()
		return res, nil
	}
	c.node.BlockManager().NotifyNewTransactions()
	return res, nil
}

// BroadcastTxCommit adds tx to the mempool and waits for the block including it.
func (c *Client) BroadcastTxCommit(ctx context.Context, tx types.Tx) (*ResultBroadcastTxCommit, error) {
	subscriber := fmt.Sprintf("broadcast-%X-%s", []byte(tx.Hash()), tmrand.Str(8))
	subCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	query := fmt.Sprintf("%s = '%s'", types.EventTypeKey, types.EventNewBlock)
	blocks, err := c.node.EventBus().Subscribe(subCtx, subscriber, query, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to new blocks: %w", err)
	}
	defer func() {
		if err := c.node.EventBus().UnsubscribeAll(context.Background(), subscriber); err != nil {
			c.logger.Error("Error unsubscribing from eventBus", "err", err)
		}
	}()

	checkTx, err := c.BroadcastTxSync(ctx, tx)
	if err != nil {
		return nil, err
	}
	res := &ResultBroadcastTxCommit{CheckTx: *checkTx, Hash: checkTx.Hash}
	if checkTx.Code != state.CodeTypeOK {
		return res, nil
	}

	timeout := time.NewTimer(c.TimeoutBroadcastTxCommit)
	defer timeout.Stop()
	for {
		select {
		case <-blocks.Out():
			txRes, err := c.node.Store.LoadTxResult(ctx, res.Hash)
			if errors.Is(err, ds.ErrNotFound) {
				continue
			}
			if err != nil {
				return res, err
			}
			res.DeliverTx = txRes
			res.Height = txRes.Height
			return res, nil
		case <-blocks.Cancelled():
			return res, fmt.Errorf("subscription was cancelled (reason: %v)", blocks.Err())
		case <-timeout.C:
			return res, ErrTxNotCommitted
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// NumUnconfirmedTxs returns the number of transactions waiting in the mempool.
func (c *Client) NumUnconfirmedTxs(ctx context.Context) (*ResultUnconfirmedTxs, error) {
	return &ResultUnconfirmedTxs{Count: c.node.Executor.NumPendingTxs()}, nil
}

// Claim returns the committed claim on proof.
func (c *Client) Claim(ctx context.Context, proof types.Proof) (*ResultClaim, error) {
	claim, found, err := c.node.Executor.Claim(ctx, proof)
	if err != nil {
		return nil, err
	}
	res := &ResultClaim{Proof: proof, Found: found}
	if found {
		res.Owner = claim.Owner
		res.ClaimedAt = claim.ClaimedAt
	}
	return res, nil
}

// ClaimsByOwner returns the proofs held by owner.
func (c *Client) ClaimsByOwner(ctx context.Context, owner types.AccountID) (*ResultClaims, error) {
	if err := types.ValidateAccountID(owner); err != nil {
		return nil, err
	}
	proofs, err := c.node.ClaimIndex.ByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &ResultClaims{Owner: owner, Proofs: proofs}, nil
}

// Account returns the committed balances and nonce of id.
func (c *Client) Account(ctx context.Context, id types.AccountID) (*ResultAccount, error) {
	if err := types.ValidateAccountID(id); err != nil {
		return nil, err
	}
	acc, err := c.node.Executor.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ResultAccount{Address: id, Free: acc.Free, Reserved: acc.Reserved, Nonce: acc.Nonce}, nil
}

// Params returns the chain parameters.
func (c *Client) Params(ctx context.Context) (*ResultParams, error) {
	return &ResultParams{Params: c.node.Executor.Params()}, nil
}

// Subscribe subscribes subscriber to events matching query.
func (c *Client) Subscribe(ctx context.Context, subscriber, query string, outCapacity int) (<-chan ResultEvent, error) {
	bus := c.node.EventBus()
	if bus.NumClients() >= MaxSubscriptionClients {
		return nil, fmt.Errorf("max_subscription_clients %d reached", MaxSubscriptionClients)
	} else if bus.NumClientSubscriptions(subscriber) >= MaxSubscriptionsPerClient {
		return nil, fmt.Errorf("max_subscriptions_per_client %d reached", MaxSubscriptionsPerClient)
	}

	subCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	sub, err := bus.Subscribe(subCtx, subscriber, query, outCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan ResultEvent, outCapacity)
	go c.eventsRoutine(sub, query, out)
	return out, nil
}

func (c *Client) eventsRoutine(sub *tmpubsub.Subscription, query string, out chan<- ResultEvent) {
	defer close(out)
	for {
		select {
		case msg := <-sub.Out():
			ev, ok := msg.Data().(types.Event)
			if !ok {
				continue
			}
			out <- ResultEvent{Query: query, Data: ev, Events: msg.Events()}
		case <-sub.Cancelled():
			if !errors.Is(sub.Err(), tmpubsub.ErrUnsubscribed) {
				c.logger.Error("subscription was cancelled", "query", query, "err", sub.Err())
			}
			return
		}
	}
}

// Unsubscribe removes the subscription of subscriber to query.
func (c *Client) Unsubscribe(ctx context.Context, subscriber, query string) error {
	return c.node.EventBus().Unsubscribe(ctx, subscriber, query)
}

// UnsubscribeAll removes every subscription of subscriber.
func (c *Client) UnsubscribeAll(ctx context.Context, subscriber string) error {
	return c.node.EventBus().UnsubscribeAll(ctx, subscriber)
}
