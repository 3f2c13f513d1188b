package bus

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockBus struct {
	mock.Mock
}

func (m *MockBus) Publish(ctx context.Context, event Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBus) Subscribe(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}

func (m *MockBus) Unsubscribe(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}

func (m *MockBus) Close() error {
	args := m.Called()
	return args.Error(0)
}
