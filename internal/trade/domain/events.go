package domain

import (
	"time"

	sharedEvents "github.com/davicafu/tradeagent/internal/shared/domain/events"
	"github.com/google/uuid"
)

// Las constantes de los tipos de evento se definen aquí, como valores string.
// El tag del evento es también la routing key con la que se publica.
const (
	TradeExecuted = "trade.executed"
)

const TradeTopic = "trades"

// TradeExecutedEvent es el contrato de integración de una operación ejecutada.
// Es plano a propósito: se serializa completo como payload del outbox.
type TradeExecutedEvent struct {
	TradeID        uuid.UUID `json:"trade_id"`
	AssetName      string    `json:"asset_name"`
	AssetSymbol    string    `json:"asset_symbol"`
	Side           string    `json:"side"`
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	Currency       string    `json:"currency"`
	CounterpartyID string    `json:"counterparty_id"`
	UserID         uuid.UUID `json:"user_id"`
	ExecutedAt     time.Time `json:"executed_at"`
	OccurredOn     time.Time `json:"occurred_on"`
}

func NewTradeExecutedEvent(t *Trade) TradeExecutedEvent {
	return TradeExecutedEvent{
		TradeID:        t.ID,
		AssetName:      t.Asset.Name,
		AssetSymbol:    t.Asset.Symbol,
		Side:           string(t.Side),
		Quantity:       t.Quantity,
		Price:          t.Price.Amount,
		Currency:       t.Price.Currency,
		CounterpartyID: t.CounterpartyID,
		UserID:         t.UserID,
		ExecutedAt:     t.ExecutedAt,
		OccurredOn:     time.Now().UTC(),
	}
}

func (e TradeExecutedEvent) EventType() string     { return TradeExecuted }
func (e TradeExecutedEvent) OccurredAt() time.Time { return e.OccurredOn }

// NewEventRegistry devuelve la tabla cerrada variante → enrutado.
// El UnitOfWork rechaza cualquier evento que no figure aquí.
func NewEventRegistry() map[string]sharedEvents.EventMetadata {
	return map[string]sharedEvents.EventMetadata{
		TradeExecuted: {
			RoutingKey: TradeExecuted,
			Topic:      TradeTopic,
		},
	}
}

// Verificación estática del contrato de evento de dominio.
var _ sharedEvents.DomainEvent = TradeExecutedEvent{}
