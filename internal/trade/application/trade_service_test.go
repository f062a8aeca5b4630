package application

import (
	"context"
	"errors"
	"testing"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	"github.com/davicafu/tradeagent/internal/trade/domain"
	"github.com/davicafu/tradeagent/tests/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newServiceForTest() (*TradeService, *mocks.InMemoryTradeRepo, *mocks.FakeUnitOfWork, *mocks.FakeLogStore) {
	repo := mocks.NewInMemoryTradeRepo()
	uow := &mocks.FakeUnitOfWork{}
	logStore := &mocks.FakeLogStore{}
	svc := NewTradeService(repo, uow, nil, nil, logStore, zap.NewNop())
	return svc, repo, uow, logStore
}

func validRequest() RecordTradeRequest {
	return RecordTradeRequest{
		AssetName:      "Bitcoin",
		AssetSymbol:    "BTC",
		Side:           "buy",
		Quantity:       1.5,
		Price:          42000,
		Currency:       "USD",
		CounterpartyID: "cp-7",
		UserID:         uuid.New(),
	}
}

func TestRecordTrade_PersistsAndQueuesOutboxMessage(t *testing.T) {
	svc, repo, uow, logStore := newServiceForTest()

	trade, err := svc.RecordTrade(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, trade)

	// La operación quedó en el repo y su evento en el outbox.
	_, ok := repo.Trades[trade.ID]
	assert.True(t, ok)
	require.Len(t, uow.Outbox, 1)
	assert.Equal(t, domain.TradeExecuted, uow.Outbox[0].Type)
	assert.Equal(t, sharedDomain.OutboxPending, uow.Outbox[0].Status)

	// El buffer del agregado quedó limpio.
	assert.Empty(t, trade.PendingEvents())

	// Y el log de demostración registró la operación.
	require.Len(t, logStore.Lines, 1)
	assert.Contains(t, logStore.Lines[0], "[TRADE]")
	assert.Contains(t, logStore.Lines[0], trade.ID.String())
}

func TestRecordTrade_ValidationFailureTouchesNothing(t *testing.T) {
	svc, repo, uow, logStore := newServiceForTest()

	req := validRequest()
	req.Quantity = -1

	trade, err := svc.RecordTrade(context.Background(), req)
	assert.Nil(t, trade)
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)

	assert.Empty(t, repo.Trades)
	assert.Empty(t, uow.Outbox)
	assert.Empty(t, logStore.Lines)
}

func TestRecordTrade_PersistenceFailureLeavesNoOutbox(t *testing.T) {
	svc, repo, uow, logStore := newServiceForTest()

	storeDown := errors.New("store unavailable")
	repo.FailInsert = storeDown

	trade, err := svc.RecordTrade(context.Background(), validRequest())
	assert.Nil(t, trade)
	assert.ErrorIs(t, err, storeDown)

	assert.Empty(t, uow.Outbox)
	require.Len(t, logStore.Lines, 1)
	assert.Contains(t, logStore.Lines[0], "[TRADE ERROR]")
}

func TestGetTrade_CacheHitSkipsRepository(t *testing.T) {
	repo := mocks.NewInMemoryTradeRepo()
	cache := mocks.NewDummyCache()
	svc := NewTradeService(repo, &mocks.FakeUnitOfWork{}, cache, nil, &mocks.FakeLogStore{}, zap.NewNop())

	asset, _ := domain.NewAsset("Ethereum", "ETH")
	price, _ := domain.NewMoney(2500, "EUR")
	trade, err := domain.ExecuteTrade(asset, domain.SideSell, 3, price, "cp-1", uuid.New(), time.Now().UTC())
	require.NoError(t, err)

	// Solo en cache, no en repo.
	cache.SetForTest(domain.CacheKeyByID(trade.ID), trade)

	got, err := svc.GetTrade(context.Background(), trade.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.ID, got.ID)
	assert.Equal(t, "ETH", got.Asset.Symbol)
}

func TestGetTrade_MissFallsBackToRepository(t *testing.T) {
	svc, repo, _, _ := newServiceForTest()

	created, err := svc.RecordTrade(context.Background(), validRequest())
	require.NoError(t, err)
	require.Contains(t, repo.Trades, created.ID)

	got, err := svc.GetTrade(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetTrade_NotFound(t *testing.T) {
	svc, _, _, _ := newServiceForTest()

	_, err := svc.GetTrade(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrTradeNotFound)
}

func TestListTrades_AppliesFilter(t *testing.T) {
	svc, _, _, _ := newServiceForTest()

	btc := validRequest()
	eth := validRequest()
	eth.AssetName = "Ethereum"
	eth.AssetSymbol = "ETH"

	_, err := svc.RecordTrade(context.Background(), btc)
	require.NoError(t, err)
	_, err = svc.RecordTrade(context.Background(), eth)
	require.NoError(t, err)

	symbol := "ETH"
	trades, err := svc.ListTrades(context.Background(), domain.TradeFilter{Symbol: &symbol})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "ETH", trades[0].Asset.Symbol)
}
