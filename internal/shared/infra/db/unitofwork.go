package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	sharedEvents "github.com/davicafu/tradeagent/internal/shared/domain/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxInserter lo implementan los repositorios outbox SQL: inserta las
// filas dentro de la transacción en curso.
type OutboxInserter interface {
	InsertTx(ctx context.Context, tx *sql.Tx, msgs []sharedDomain.OutboxMessage) error
}

// UnitOfWork implementa sharedDomain.UnitOfWork sobre database/sql.
type UnitOfWork struct {
	db       *sql.DB
	outbox   OutboxInserter
	registry map[string]sharedEvents.EventMetadata
	log      *zap.Logger
}

func NewUnitOfWork(
	db *sql.DB,
	outbox OutboxInserter,
	registry map[string]sharedEvents.EventMetadata,
	log *zap.Logger,
) *UnitOfWork {
	return &UnitOfWork{
		db:       db,
		outbox:   outbox,
		registry: registry,
		log:      log,
	}
}

// Commit ejecuta el algoritmo del coordinador de commits:
//  1. Cosecha los eventos pendientes de cada agregado (orden de inserción
//     preservado por agregado) y limpia sus buffers.
//  2. Construye un OutboxMessage por evento: id fresco, occurred_at del
//     evento, tag de la tabla de variantes y payload JSON del evento completo.
//  3. Ejecuta persist() y los inserts del outbox en una única transacción.
//
// Si algo falla no se aplica nada; los buffers quedan limpios y el llamador
// debe reintentar la operación de negocio completa (que volverá a mutar y a
// bufferizar).
func (u *UnitOfWork) Commit(ctx context.Context, persist sharedDomain.TxFunc, aggregates ...sharedEvents.Aggregate) error {
	// 1. Cosechar y limpiar.
	var harvested []sharedEvents.DomainEvent
	for _, agg := range aggregates {
		harvested = append(harvested, agg.PendingEvents()...)
		agg.ClearEvents()
	}

	// 2. Un OutboxMessage por evento cosechado (mapeo 1:1).
	msgs := make([]sharedDomain.OutboxMessage, 0, len(harvested))
	for _, evt := range harvested {
		envelope, err := u.wrap(evt)
		if err != nil {
			return err
		}
		msgs = append(msgs, sharedDomain.NewOutboxMessage(uuid.New(), evt.OccurredAt(), evt.EventType(), envelope))
	}

	// 3. Transacción única: estado + outbox, o nada.
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = persist(ctx, tx); err != nil {
		return fmt.Errorf("persistence failure: %w", err)
	}

	if len(msgs) > 0 {
		if err = u.outbox.InsertTx(ctx, tx, msgs); err != nil {
			return fmt.Errorf("failed to insert outbox messages: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}

	u.log.Debug("✅ Commit atómico completado",
		zap.Int("outbox_messages", len(msgs)),
	)
	return nil
}

// wrap serializa el evento dentro del sobre de integración. El tipo debe
// figurar en la tabla cerrada de variantes; aquí no hay reflexión.
func (u *UnitOfWork) wrap(evt sharedEvents.DomainEvent) (string, error) {
	if _, ok := u.registry[evt.EventType()]; !ok {
		return "", fmt.Errorf("unregistered event type %q", evt.EventType())
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope, err := json.Marshal(sharedEvents.IntegrationEvent{
		Type:      evt.EventType(),
		Timestamp: evt.OccurredAt().UTC(),
		Data:      data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal integration event: %w", err)
	}
	return string(envelope), nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.UnitOfWork = (*UnitOfWork)(nil)
