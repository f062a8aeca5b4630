package domain

import (
	"fmt"
	"strings"
	"time"

	sharedEvents "github.com/davicafu/tradeagent/internal/shared/domain/events"
	"github.com/google/uuid"
)

// TradeSide indica el lado de la operación.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// ParseTradeSide normaliza el lado recibido desde la API.
func ParseTradeSide(s string) (TradeSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SideBuy):
		return SideBuy, nil
	case string(SideSell):
		return SideSell, nil
	default:
		return "", fmt.Errorf("%w: side must be buy or sell", ErrInvalidTrade)
	}
}

// ---------- Value objects ----------

// Asset identifica el instrumento negociado.
type Asset struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

func NewAsset(name, symbol string) (Asset, error) {
	if strings.TrimSpace(name) == "" {
		return Asset{}, fmt.Errorf("%w: asset name is required", ErrInvalidTrade)
	}
	if strings.TrimSpace(symbol) == "" {
		return Asset{}, fmt.Errorf("%w: asset symbol is required", ErrInvalidTrade)
	}
	return Asset{Name: strings.TrimSpace(name), Symbol: strings.TrimSpace(symbol)}, nil
}

// Money es un importe con su divisa.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func NewMoney(amount float64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("%w: amount can not be negative", ErrInvalidTrade)
	}
	if strings.TrimSpace(currency) == "" {
		return Money{}, fmt.Errorf("%w: currency is required", ErrInvalidTrade)
	}
	return Money{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(currency))}, nil
}

func (m Money) String() string {
	return fmt.Sprintf("%v %s", m.Amount, m.Currency)
}

// ---------- Agregado ----------

// Trade es el agregado: la frontera de consistencia de una operación ejecutada.
// Mantiene en memoria los eventos de dominio levantados por sus mutaciones
// hasta que el UnitOfWork los cosecha en el commit.
type Trade struct {
	ID             uuid.UUID `json:"id"`
	Asset          Asset     `json:"asset"`
	Side           TradeSide `json:"side"`
	Quantity       float64   `json:"quantity"`
	Price          Money     `json:"price"`
	CounterpartyID string    `json:"counterparty_id"`
	UserID         uuid.UUID `json:"user_id"`
	ExecutedAt     time.Time `json:"executed_at"`

	pendingEvents []sharedEvents.DomainEvent
}

// ExecuteTrade construye el agregado validando sus invariantes y deja en el
// buffer exactamente un TradeExecutedEvent. La mutación y el evento son
// inseparables: un fallo de validación no produce ni agregado ni evento.
func ExecuteTrade(
	asset Asset,
	side TradeSide,
	quantity float64,
	price Money,
	counterpartyID string,
	userID uuid.UUID,
	executedAt time.Time,
) (*Trade, error) {
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("%w: side must be buy or sell", ErrInvalidTrade)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidTrade)
	}
	if strings.TrimSpace(counterpartyID) == "" {
		return nil, fmt.Errorf("%w: counterparty id is required", ErrInvalidTrade)
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidTrade)
	}

	t := &Trade{
		ID:             uuid.New(),
		Asset:          asset,
		Side:           side,
		Quantity:       quantity,
		Price:          price,
		CounterpartyID: strings.TrimSpace(counterpartyID),
		UserID:         userID,
		ExecutedAt:     executedAt.UTC(),
	}

	t.record(NewTradeExecutedEvent(t))
	return t, nil
}

// record añade un evento al buffer del agregado.
func (t *Trade) record(evt sharedEvents.DomainEvent) {
	t.pendingEvents = append(t.pendingEvents, evt)
}

// PendingEvents devuelve los eventos levantados y aún no cosechados,
// en orden de inserción.
func (t *Trade) PendingEvents() []sharedEvents.DomainEvent {
	return t.pendingEvents
}

// ClearEvents vacía el buffer. Es idempotente.
func (t *Trade) ClearEvents() {
	t.pendingEvents = nil
}

// Verificación estática: Trade participa del contrato de cosecha del UnitOfWork.
var _ sharedEvents.Aggregate = (*Trade)(nil)
