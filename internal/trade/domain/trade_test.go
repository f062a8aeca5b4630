package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validArgs(t *testing.T) (Asset, Money) {
	t.Helper()
	asset, err := NewAsset("Bitcoin", "BTC")
	require.NoError(t, err)
	price, err := NewMoney(45000.50, "usd")
	require.NoError(t, err)
	return asset, price
}

func TestExecuteTrade_RecordsExactlyOneEvent(t *testing.T) {
	asset, price := validArgs(t)
	executedAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	trade, err := ExecuteTrade(asset, SideBuy, 0.5, price, "cp-123", uuid.New(), executedAt)
	require.NoError(t, err)

	events := trade.PendingEvents()
	require.Len(t, events, 1)

	evt, ok := events[0].(TradeExecutedEvent)
	require.True(t, ok)
	assert.Equal(t, TradeExecuted, evt.EventType())
	assert.Equal(t, trade.ID, evt.TradeID)
	assert.Equal(t, "BTC", evt.AssetSymbol)
	assert.Equal(t, 0.5, evt.Quantity)
	assert.Equal(t, "USD", evt.Currency) // divisa normalizada a mayúsculas
	assert.Equal(t, executedAt, evt.ExecutedAt)
	assert.False(t, evt.OccurredAt().IsZero())
}

func TestExecuteTrade_ValidationFailures(t *testing.T) {
	asset, price := validArgs(t)
	now := time.Now().UTC()

	tests := []struct {
		name string
		run  func() (*Trade, error)
	}{
		{
			name: "side inválido",
			run: func() (*Trade, error) {
				return ExecuteTrade(asset, TradeSide("hold"), 1, price, "cp-1", uuid.New(), now)
			},
		},
		{
			name: "cantidad cero",
			run: func() (*Trade, error) {
				return ExecuteTrade(asset, SideBuy, 0, price, "cp-1", uuid.New(), now)
			},
		},
		{
			name: "cantidad negativa",
			run: func() (*Trade, error) {
				return ExecuteTrade(asset, SideSell, -3, price, "cp-1", uuid.New(), now)
			},
		},
		{
			name: "sin contraparte",
			run: func() (*Trade, error) {
				return ExecuteTrade(asset, SideBuy, 1, price, "  ", uuid.New(), now)
			},
		},
		{
			name: "sin usuario",
			run: func() (*Trade, error) {
				return ExecuteTrade(asset, SideBuy, 1, price, "cp-1", uuid.Nil, now)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := tt.run()
			// Fallo de validación: ni agregado ni evento.
			assert.Nil(t, trade)
			assert.ErrorIs(t, err, ErrInvalidTrade)
		})
	}
}

func TestTrade_ClearEventsIsIdempotent(t *testing.T) {
	asset, price := validArgs(t)

	trade, err := ExecuteTrade(asset, SideSell, 2, price, "cp-9", uuid.New(), time.Now())
	require.NoError(t, err)
	require.Len(t, trade.PendingEvents(), 1)

	trade.ClearEvents()
	assert.Empty(t, trade.PendingEvents())

	trade.ClearEvents()
	assert.Empty(t, trade.PendingEvents())
}

func TestParseTradeSide(t *testing.T) {
	side, err := ParseTradeSide("  BUY ")
	assert.NoError(t, err)
	assert.Equal(t, SideBuy, side)

	side, err = ParseTradeSide("sell")
	assert.NoError(t, err)
	assert.Equal(t, SideSell, side)

	_, err = ParseTradeSide("short")
	assert.ErrorIs(t, err, ErrInvalidTrade)
}

func TestNewMoney_Normalization(t *testing.T) {
	m, err := NewMoney(100, " eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", m.Currency)

	_, err = NewMoney(-1, "EUR")
	assert.ErrorIs(t, err, ErrInvalidTrade)

	_, err = NewMoney(1, "")
	assert.ErrorIs(t, err, ErrInvalidTrade)
}

func TestNewEventRegistry_ContainsAllVariants(t *testing.T) {
	registry := NewEventRegistry()

	meta, ok := registry[TradeExecuted]
	require.True(t, ok)
	assert.Equal(t, TradeExecuted, meta.RoutingKey)
	assert.Equal(t, TradeTopic, meta.Topic)
}
