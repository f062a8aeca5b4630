package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	sharedEvents "github.com/davicafu/tradeagent/internal/shared/domain/events"
	sharedDb "github.com/davicafu/tradeagent/internal/shared/infra/db"
	outboxSqlite "github.com/davicafu/tradeagent/internal/shared/infra/db/sqlite"
	"github.com/davicafu/tradeagent/internal/shared/infra/relayer"
	tradeApp "github.com/davicafu/tradeagent/internal/trade/application"
	tradeDomain "github.com/davicafu/tradeagent/internal/trade/domain"
	tradeSqlite "github.com/davicafu/tradeagent/internal/trade/infra/outbound/db/sqlite"
	"github.com/davicafu/tradeagent/tests/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// capturePublisher guarda lo publicado y permite simular una caída del broker.
type capturePublisher struct {
	Published []capturedMessage
	Fail      error
	mu        sync.Mutex
}

type capturedMessage struct {
	Payload    []byte
	RoutingKey string
}

func (p *capturePublisher) Publish(ctx context.Context, payload []byte, routingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Fail != nil {
		return p.Fail
	}
	p.Published = append(p.Published, capturedMessage{Payload: payload, RoutingKey: routingKey})
	return nil
}

type testHarness struct {
	db         *sql.DB
	service    *tradeApp.TradeService
	outboxRepo *outboxSqlite.OutboxRepoSQLite
	publisher  *capturePublisher
	dispatcher *relayer.Dispatcher
}

func setupHarness(t *testing.T, policy relayer.RetryPolicy) *testHarness {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Una única conexión: cada conexión nueva abriría otra BD en memoria.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, tradeSqlite.InitSQLite(db))
	require.NoError(t, outboxSqlite.InitOutboxSQLite(db))

	repo := tradeSqlite.NewTradeRepoSQLite(db)
	outboxRepo := outboxSqlite.NewOutboxRepoSQLite(db)
	uow := sharedDb.NewUnitOfWork(db, outboxRepo, tradeDomain.NewEventRegistry(), zap.NewNop())
	service := tradeApp.NewTradeService(repo, uow, nil, nil, &mocks.FakeLogStore{}, zap.NewNop())

	publisher := &capturePublisher{}
	dispatcher := relayer.NewDispatcher(outboxRepo, publisher, policy, relayer.Config{BatchSize: 10}, zap.NewNop())

	return &testHarness{
		db:         db,
		service:    service,
		outboxRepo: outboxRepo,
		publisher:  publisher,
		dispatcher: dispatcher,
	}
}

func recordTrade(t *testing.T, h *testHarness) *tradeDomain.Trade {
	t.Helper()
	trade, err := h.service.RecordTrade(context.Background(), tradeApp.RecordTradeRequest{
		AssetName:      "Bitcoin",
		AssetSymbol:    "BTC",
		Side:           "buy",
		Quantity:       0.75,
		Price:          50000,
		Currency:       "USD",
		CounterpartyID: "cp-integration",
		UserID:         uuid.New(),
	})
	require.NoError(t, err)
	return trade
}

func outboxStatus(t *testing.T, db *sql.DB, id uuid.UUID) (string, int, sql.NullTime, sql.NullString) {
	t.Helper()
	var status string
	var attempts int
	var processedAt sql.NullTime
	var errText sql.NullString
	err := db.QueryRow(
		`SELECT status, attempts, processed_at, error FROM outbox WHERE id = ?`, id.String(),
	).Scan(&status, &attempts, &processedAt, &errText)
	require.NoError(t, err)
	return status, attempts, processedAt, errText
}

func TestOutboxFlow_RecordLeavesPendingRow(t *testing.T) {
	h := setupHarness(t, relayer.NoRetry{})

	trade := recordTrade(t, h)

	msgs, err := h.outboxRepo.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, sharedDomain.OutboxPending, msgs[0].Status)
	assert.Equal(t, tradeDomain.TradeExecuted, msgs[0].Type)
	assert.Zero(t, msgs[0].Attempts)
	assert.Nil(t, msgs[0].ProcessedAt)

	// El sobre contiene el evento con los datos de la operación.
	var envelope sharedEvents.IntegrationEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Payload), &envelope))
	var evt tradeDomain.TradeExecutedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &evt))
	assert.Equal(t, trade.ID, evt.TradeID)
}

func TestOutboxFlow_DispatcherPublishesAndRetires(t *testing.T) {
	h := setupHarness(t, relayer.NoRetry{})

	recordTrade(t, h)

	msgs, err := h.outboxRepo.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	h.dispatcher.ProcessBatch(context.Background())

	// Publicado una vez con el tag como routing key.
	require.Len(t, h.publisher.Published, 1)
	assert.Equal(t, tradeDomain.TradeExecuted, h.publisher.Published[0].RoutingKey)
	assert.Equal(t, msgs[0].Payload, string(h.publisher.Published[0].Payload))

	// La fila queda retirada con processed_at.
	status, _, processedAt, _ := outboxStatus(t, h.db, msgs[0].ID)
	assert.Equal(t, string(sharedDomain.OutboxProcessed), status)
	assert.True(t, processedAt.Valid)

	// Y no vuelve a salir en pases siguientes.
	h.dispatcher.ProcessBatch(context.Background())
	assert.Len(t, h.publisher.Published, 1)
}

func TestOutboxFlow_BrokerOutageMarksFailedAndRetries(t *testing.T) {
	h := setupHarness(t, relayer.BoundedRetry{MaxAttempts: 3})

	recordTrade(t, h)
	msgs, err := h.outboxRepo.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// 1. Broker caído: la fila queda Failed con el texto del error.
	h.publisher.Fail = errors.New("broker unreachable")
	h.dispatcher.ProcessBatch(context.Background())

	status, attempts, processedAt, errText := outboxStatus(t, h.db, msgs[0].ID)
	assert.Equal(t, string(sharedDomain.OutboxFailed), status)
	assert.Equal(t, 1, attempts)
	assert.False(t, processedAt.Valid)
	require.True(t, errText.Valid)
	assert.Equal(t, "broker unreachable", errText.String)

	// 2. El barrido de reintentos la devuelve a Pending.
	h.dispatcher.SweepFailed(context.Background())
	status, _, _, _ = outboxStatus(t, h.db, msgs[0].ID)
	assert.Equal(t, string(sharedDomain.OutboxPending), status)

	// 3. Broker recuperado: se publica y se retira.
	h.publisher.Fail = nil
	h.dispatcher.ProcessBatch(context.Background())

	status, _, processedAt, _ = outboxStatus(t, h.db, msgs[0].ID)
	assert.Equal(t, string(sharedDomain.OutboxProcessed), status)
	assert.True(t, processedAt.Valid)
	require.Len(t, h.publisher.Published, 1)
}

func TestOutboxFlow_ExhaustedRetriesGoToDeadLetter(t *testing.T) {
	h := setupHarness(t, relayer.BoundedRetry{MaxAttempts: 1})

	recordTrade(t, h)
	msgs, err := h.outboxRepo.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	h.publisher.Fail = errors.New("permanent failure")
	h.dispatcher.ProcessBatch(context.Background())
	h.dispatcher.SweepFailed(context.Background())

	status, attempts, _, _ := outboxStatus(t, h.db, msgs[0].ID)
	assert.Equal(t, string(sharedDomain.OutboxDeadLettered), status)
	assert.Equal(t, 1, attempts)

	// Dead-lettered no se vuelve a intentar.
	h.publisher.Fail = nil
	h.dispatcher.ProcessBatch(context.Background())
	h.dispatcher.SweepFailed(context.Background())
	assert.Empty(t, h.publisher.Published)
}

func TestOutboxFlow_TwoTradesPublishInExecutionOrder(t *testing.T) {
	h := setupHarness(t, relayer.NoRetry{})

	first := recordTrade(t, h)
	second := recordTrade(t, h)

	h.dispatcher.ProcessBatch(context.Background())

	require.Len(t, h.publisher.Published, 2)

	var published []uuid.UUID
	for _, msg := range h.publisher.Published {
		var envelope sharedEvents.IntegrationEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
		var evt tradeDomain.TradeExecutedEvent
		require.NoError(t, json.Unmarshal(envelope.Data, &evt))
		published = append(published, evt.TradeID)
	}
	// La operación más antigua sale primero dentro del pase.
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, published)
}
