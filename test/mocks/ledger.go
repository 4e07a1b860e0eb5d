package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rollkit/poe/types"
)

// Ledger is a mock of claims.Ledger.
type Ledger struct {
	mock.Mock
}

// Reserve mock implementation.
func (m *Ledger) Reserve(ctx context.Context, who types.AccountID, amount uint64) error {
	args := m.Called(ctx, who, amount)
	return args.Error(0)
}

// Unreserve mock implementation.
func (m *Ledger) Unreserve(ctx context.Context, who types.AccountID, amount uint64) (uint64, error) {
	args := m.Called(ctx, who, amount)
	return args.Get(0).(uint64), args.Error(1)
}

// EventSink records emitted events.
type EventSink struct {
	mock.Mock
}

// Emit mock implementation.
func (m *EventSink) Emit(ev types.Event) {
	m.Called(ev)
}
