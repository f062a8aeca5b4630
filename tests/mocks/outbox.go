package mocks

import (
	"context"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockOutboxRepository simula el repo del outbox para el dispatcher.
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxRepository) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	args := m.Called(ctx, id, processedAt)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	args := m.Called(ctx, id, errText)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchFailed(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxRepository) MarkPending(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkDeadLettered(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) ReleaseStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

// MockPublisher simula el publisher del broker.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, payload []byte, routingKey string) error {
	args := m.Called(ctx, payload, routingKey)
	return args.Error(0)
}
