package domain

import (
	"context"
	"database/sql"

	sharedEvents "github.com/davicafu/tradeagent/internal/shared/domain/events"
)

// TxFunc es el paso de persistencia del agregado que se ejecuta dentro de la
// transacción del UnitOfWork.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// UnitOfWork acopla "persistir el agregado" y "encolar sus eventos" en una
// única operación atómica. Es el único punto de entrada de escritura para los
// agregados: cosecha los buffers de eventos, los limpia, inserta las filas
// outbox y confirma todo en una transacción.
type UnitOfWork interface {
	Commit(ctx context.Context, persist TxFunc, aggregates ...sharedEvents.Aggregate) error
}
