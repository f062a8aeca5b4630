package contracts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tradeApp "github.com/davicafu/tradeagent/internal/trade/application"
	tradeHttp "github.com/davicafu/tradeagent/internal/trade/infra/inbound/http"
	"github.com/davicafu/tradeagent/tests/mocks"
)

func newTestRouter(t *testing.T) (*gin.Engine, *tradeApp.TradeService, *mocks.FakeLogStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := mocks.NewInMemoryTradeRepo()
	logStore := &mocks.FakeLogStore{}
	service := tradeApp.NewTradeService(repo, &mocks.FakeUnitOfWork{}, nil, nil, logStore, zap.NewNop())

	router := tradeHttp.NewRouter(
		tradeHttp.NewTradeHandler(service),
		tradeHttp.NewLogsHandler(logStore),
		zap.NewNop(),
	)
	return router, service, logStore
}

func TestRecordTrade_HTTPContract(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := `{
		"asset_name": "Bitcoin",
		"asset_symbol": "BTC",
		"side": "buy",
		"quantity": 1.25,
		"price": 47000,
		"currency": "USD",
		"counterparty_id": "cp-http",
		"user_id": "` + uuid.NewString() + `"
	}`

	req := httptest.NewRequest(http.MethodPost, "/trades/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data struct {
			ID    string `json:"id"`
			Asset struct {
				Symbol string `json:"symbol"`
			} `json:"asset"`
			Side     string  `json:"side"`
			Quantity float64 `json:"quantity"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.ID)
	assert.Equal(t, "BTC", resp.Data.Asset.Symbol)
	assert.Equal(t, "buy", resp.Data.Side)
	assert.Equal(t, 1.25, resp.Data.Quantity)
}

func TestRecordTrade_HTTPContract_InvalidPayload(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// Cantidad negativa: rechazada por el dominio con 400.
	body := `{
		"asset_name": "Bitcoin",
		"asset_symbol": "BTC",
		"side": "buy",
		"quantity": -5,
		"price": 47000,
		"currency": "USD",
		"counterparty_id": "cp-http",
		"user_id": "` + uuid.NewString() + `"
	}`

	req := httptest.NewRequest(http.MethodPost, "/trades/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestGetTrade_HTTPContract(t *testing.T) {
	router, service, _ := newTestRouter(t)

	trade, err := service.RecordTrade(context.Background(), tradeApp.RecordTradeRequest{
		AssetName:      "Ethereum",
		AssetSymbol:    "ETH",
		Side:           "sell",
		Quantity:       4,
		Price:          2600,
		Currency:       "EUR",
		CounterpartyID: "cp-http",
		UserID:         uuid.New(),
	})
	require.NoError(t, err)

	// Operación existente
	req := httptest.NewRequest(http.MethodGet, "/trades/"+trade.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), trade.ID.String())

	// Operación inexistente
	req2 := httptest.NewRequest(http.MethodGet, "/trades/"+uuid.NewString(), nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	assert.Equal(t, http.StatusNotFound, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "trade not found")
}

func TestGetLogs_HTTPContract(t *testing.T) {
	router, service, _ := newTestRouter(t)

	_, err := service.RecordTrade(context.Background(), tradeApp.RecordTradeRequest{
		AssetName:      "Bitcoin",
		AssetSymbol:    "BTC",
		Side:           "buy",
		Quantity:       1,
		Price:          47000,
		Currency:       "USD",
		CounterpartyID: "cp-logs",
		UserID:         uuid.New(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/logs?n=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[TRADE]")

	// n inválido → 400
	req2 := httptest.NewRequest(http.MethodGet, "/logs?n=zero", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestHealth_HTTPContract(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
