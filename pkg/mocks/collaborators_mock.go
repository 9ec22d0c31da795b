package mocks

import (
	"context"

	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockMessageGateway is a mock implementation of protocol.MessageGateway.
type MockMessageGateway struct {
	mock.Mock
}

func (m *MockMessageGateway) SendMessage(ctx context.Context, recipient, content string) (protocol.DeliveryResult, error) {
	args := m.Called(ctx, recipient, content)

	return args.Get(0).(protocol.DeliveryResult), args.Error(1)
}

// MockContactStore is a mock implementation of protocol.ContactStore.
type MockContactStore struct {
	mock.Mock
}

func (m *MockContactStore) UpdateContact(ctx context.Context, contactID string, fields map[string]any) error {
	args := m.Called(ctx, contactID, fields)

	return args.Error(0)
}

func (m *MockContactStore) CreateTask(ctx context.Context, task protocol.Task) (string, error) {
	args := m.Called(ctx, task)

	return args.String(0), args.Error(1)
}

func (m *MockContactStore) AdjustLeadScore(ctx context.Context, contactID string, delta int) (int, error) {
	args := m.Called(ctx, contactID, delta)

	return args.Int(0), args.Error(1)
}

// MockAIProvider is a mock implementation of protocol.AIProvider.
type MockAIProvider struct {
	mock.Mock
}

func (m *MockAIProvider) RunTask(ctx context.Context, taskType string, input map[string]any) (map[string]any, error) {
	args := m.Called(ctx, taskType, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

// MockNotifier is a mock implementation of protocol.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, notification protocol.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}
