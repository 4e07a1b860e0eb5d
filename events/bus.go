// Package events delivers chain events to subscribers. Subscriptions are
// tendermint pubsub queries over event attributes, e.g.
//
//	poe.event = 'ClaimCreated' AND claim.account = '0A1B...'
package events

import (
	"context"
	"fmt"

	"github.com/tendermint/tendermint/libs/log"
	tmpubsub "github.com/tendermint/tendermint/libs/pubsub"
	tmquery "github.com/tendermint/tendermint/libs/pubsub/query"
	"github.com/tendermint/tendermint/libs/service"

	"github.com/rollkit/poe/types"
)

const defaultCapacity = 0

// EventBus is a common bus for all events going through the system.
type EventBus struct {
	service.BaseService
	pubsub *tmpubsub.Server
}

// NewEventBus returns a new event bus.
func NewEventBus() *EventBus {
	return NewEventBusWithBufferCapacity(defaultCapacity)
}

// NewEventBusWithBufferCapacity returns a new event bus with the given buffer capacity.
func NewEventBusWithBufferCapacity(cap int) *EventBus {
	// capacity could be exposed later if needed
	pubsub := tmpubsub.NewServer(tmpubsub.BufferCapacity(cap))
	b := &EventBus{pubsub: pubsub}
	b.BaseService = *service.NewBaseService(nil, "EventBus", b)
	return b
}

// SetLogger sets the logger of the bus and of its pubsub server.
func (b *EventBus) SetLogger(l log.Logger) {
	b.BaseService.SetLogger(l)
	b.pubsub.SetLogger(l.With("module", "pubsub"))
}

// OnStart implements service.Service.
func (b *EventBus) OnStart() error {
	return b.pubsub.Start()
}

// OnStop implements service.Service.
func (b *EventBus) OnStop() {
	if err := b.pubsub.Stop(); err != nil {
		b.pubsub.Logger.Error("error trying to stop eventBus", "error", err)
	}
}

// NumClients returns the number of subscribers.
func (b *EventBus) NumClients() int {
	return b.pubsub.NumClients()
}

// NumClientSubscriptions returns the number of subscriptions of clientID.
func (b *EventBus) NumClientSubscriptions(clientID string) int {
	return b.pubsub.NumClientSubscriptions(clientID)
}

// Subscribe parses query and subscribes subscriber to it. A positive
// outCapacity buffers the subscription, zero makes it unbuffered.
func (b *EventBus) Subscribe(ctx context.Context, subscriber, query string, outCapacity int) (*tmpubsub.Subscription, error) {
	q, err := tmquery.New(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	if outCapacity > 0 {
		return b.pubsub.Subscribe(ctx, subscriber, q, outCapacity)
	}
	return b.pubsub.SubscribeUnbuffered(ctx, subscriber, q)
}

// Unsubscribe removes the subscription of subscriber to query.
func (b *EventBus) Unsubscribe(ctx context.Context, subscriber, query string) error {
	q, err := tmquery.New(query)
	if err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}
	return b.pubsub.Unsubscribe(ctx, subscriber, q)
}

// UnsubscribeAll removes every subscription of subscriber.
func (b *EventBus) UnsubscribeAll(ctx context.Context, subscriber string) error {
	return b.pubsub.UnsubscribeAll(ctx, subscriber)
}

// Publish delivers ev to every matching subscription. extra attributes are
// indexed next to the event's own.
func (b *EventBus) Publish(ctx context.Context, ev types.Event, extra map[string]string) error {
	attrs := map[string][]string{
		types.EventTypeKey: {ev.EventType()},
	}
	for k, v := range ev.Attributes() {
		attrs[k] = append(attrs[k], v)
	}
	for k, v := range extra {
		attrs[k] = append(attrs[k], v)
	}
	return b.pubsub.PublishWithEvents(ctx, ev, attrs)
}

// PublishTxEvents publishes the events of an included transaction, tagged
// with its hash and block height.
func (b *EventBus) PublishTxEvents(ctx context.Context, height uint64, txHash types.Hash, evs []types.Event) error {
	extra := map[string]string{
		types.TxHashKey:      txHash.String(),
		types.BlockHeightKey: fmt.Sprint(height),
	}
	for _, ev := range evs {
		if err := b.Publish(ctx, ev, extra); err != nil {
			return err
		}
	}
	return nil
}

// PublishEventNewBlock publishes a NewBlock event.
func (b *EventBus) PublishEventNewBlock(ctx context.Context, data types.EventDataNewBlock) error {
	return b.Publish(ctx, data, nil)
}
