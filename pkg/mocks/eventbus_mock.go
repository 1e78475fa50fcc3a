package mocks

import (
	"context"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus records bus calls for expectations in service tests.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, event eventbus.Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(handler eventbus.EventHandler, eventTypes ...events.EventType) error {
	args := m.Called(handler, eventTypes)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

var _ eventbus.EventBus = (*MockEventBus)(nil)
