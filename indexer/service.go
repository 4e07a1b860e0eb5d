package indexer

import (
	"context"
	"errors"
	"fmt"

	tmpubsub "github.com/tendermint/tendermint/libs/pubsub"
	"github.com/tendermint/tendermint/libs/service"

	"github.com/rollkit/poe/events"
	"github.com/rollkit/poe/store"
	"github.com/rollkit/poe/types"
)

const (
	subscriber           = "ClaimIndexerService"
	subscriptionCapacity = 100
)

// IndexerService keeps a ClaimIndex up to date with claim events.
type IndexerService struct {
	service.BaseService

	index    *ClaimIndex
	claims   *store.ClaimStore
	eventBus *events.EventBus

	cancel context.CancelFunc
	done   chan struct{}
}

// NewIndexerService returns a new service instance. claims is used to
// rebuild the index on start.
func NewIndexerService(index *ClaimIndex, claims *store.ClaimStore, eventBus *events.EventBus) *IndexerService {
	is := &IndexerService{index: index, claims: claims, eventBus: eventBus}
	is.BaseService = *service.NewBaseService(nil, "IndexerService", is)
	return is
}

// OnStart implements service.Service by rebuilding the index and then
// subscribing to claim events.
func (is *IndexerService) OnStart() error {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := is.resync(ctx)
	if err != nil {
		cancel()
		return err
	}

	is.cancel = cancel
	is.done = make(chan struct{})
	go is.run(ctx, sub)
	return nil
}

// resync subscribes to claim events and then rebuilds the index, so that no
// claim committed after the rebuild is missed.
func (is *IndexerService) resync(ctx context.Context) (*tmpubsub.Subscription, error) {
	sub, err := is.eventBus.Subscribe(ctx, subscriber, fmt.Sprintf("%s EXISTS", types.ClaimProofKey), subscriptionCapacity)
	if err != nil {
		return nil, err
	}
	if err := is.index.Rebuild(ctx, is.claims); err != nil {
		_ = is.eventBus.UnsubscribeAll(context.Background(), subscriber)
		return nil, fmt.Errorf("failed to rebuild claim index: %w", err)
	}
	return sub, nil
}

func (is *IndexerService) run(ctx context.Context, sub *tmpubsub.Subscription) {
	defer close(is.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Cancelled():
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(sub.Err(), tmpubsub.ErrOutOfCapacity) {
				is.Logger.Error("claim subscription was cancelled", "reason", sub.Err())
				return
			}
			is.Logger.Info("claim index fell behind, rebuilding")
			// the pubsub server still lists the dropped subscription
			_ = is.eventBus.UnsubscribeAll(context.Background(), subscriber)
			var err error
			if sub, err = is.resync(ctx); err != nil {
				is.Logger.Error("failed to resync claim index", "err", err)
				return
			}
		case msg := <-sub.Out():
			ev, ok := msg.Data().(types.EventDataClaim)
			if !ok {
				continue
			}
			if err := is.apply(ctx, ev); err != nil {
				is.Logger.Error("failed to index claim", "proof", ev.Proof, "err", err)
			}
		}
	}
}

func (is *IndexerService) apply(ctx context.Context, ev types.EventDataClaim) error {
	switch ev.Type {
	case types.EventClaimCreated:
		return is.index.Add(ctx, ev.Account, ev.Proof)
	case types.EventClaimRevoked:
		return is.index.Remove(ctx, ev.Account, ev.Proof)
	}
	return nil
}

// OnStop implements service.Service by unsubscribing from all transactions.
func (is *IndexerService) OnStop() {
	is.cancel()
	<-is.done
	if is.eventBus.IsRunning() {
		_ = is.eventBus.UnsubscribeAll(context.Background(), subscriber)
	}
}
