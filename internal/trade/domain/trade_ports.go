package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ---------- Errores de dominio ----------
var (
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeAlreadyExists = errors.New("trade already exists")
	ErrInvalidTrade       = errors.New("invalid trade")
)

// ---------- Interfaces (Ports) ----------

// TradeRepository define las operaciones persistentes para Trade.
// La escritura requiere la transacción del UnitOfWork: no existe un insert
// autónomo, así nadie puede persistir un agregado sin cosechar sus eventos.
type TradeRepository interface {
	// InsertTx inserta la operación dentro de la transacción en curso.
	// Debe devolver ErrTradeAlreadyExists si la entidad ya existe.
	InsertTx(ctx context.Context, tx *sql.Tx, t *Trade) error

	// Debe devolver ErrTradeNotFound si no existe.
	GetByID(ctx context.Context, id uuid.UUID) (*Trade, error)

	// List devuelve operaciones según el filtro; filtro vacío = todas.
	List(ctx context.Context, f TradeFilter) ([]*Trade, error)
}

// TradeCache cachea lecturas de operaciones ya ejecutadas.
type TradeCache interface {
	// Get intenta poblar dest (puntero) con el valor asociado a la key.
	// Devuelve (true, nil) si hay hit y dest fue rellenado.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set serializa y guarda el valor con TTL en segundos.
	Set(ctx context.Context, key string, val interface{}, ttlSecs int) error

	// Delete elimina la key del cache.
	Delete(ctx context.Context, key string) error
}

// TradeAnalytics archiva operaciones en el almacén analítico (ClickHouse).
// Es una escritura best-effort fuera de la transacción de negocio.
type TradeAnalytics interface {
	LogBatch(ctx context.Context, trades []*Trade) error
}

// ---------- Filtrado / paginación ----------

type Pagination struct {
	Limit  int
	Offset int
}

type Sort struct {
	Field string // ej. "executed_at", "quantity"
	Desc  bool
}

// TradeFilter agrupa criterios de búsqueda que puede usar TradeRepository.List.
type TradeFilter struct {
	Symbol         *string
	UserID         *uuid.UUID
	CounterpartyID *string

	Pagination Pagination
	Sort       Sort
}

// ---------- Helpers comunes (cache keys, etc.) ----------

// CacheKeyByID forma una key consistente para cache usando ID.
func CacheKeyByID(id uuid.UUID) string {
	return fmt.Sprintf("trade:id:%s", id.String())
}
