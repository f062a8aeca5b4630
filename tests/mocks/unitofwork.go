package mocks

import (
	"context"
	"encoding/json"
	"sync"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	sharedEvents "github.com/davicafu/tradeagent/internal/shared/domain/events"
	"github.com/google/uuid"
)

// FakeUnitOfWork implementa el contrato del UnitOfWork sin base de datos:
// cosecha los buffers, ejecuta persist con tx nil y acumula los mensajes
// outbox en memoria. Reproduce la semántica del real: si persist falla no
// queda nada aplicado pero los buffers ya están limpios.
type FakeUnitOfWork struct {
	Outbox []sharedDomain.OutboxMessage
	mu     sync.Mutex
}

func (u *FakeUnitOfWork) Commit(ctx context.Context, persist sharedDomain.TxFunc, aggregates ...sharedEvents.Aggregate) error {
	var harvested []sharedEvents.DomainEvent
	for _, agg := range aggregates {
		harvested = append(harvested, agg.PendingEvents()...)
		agg.ClearEvents()
	}

	if err := persist(ctx, nil); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	for _, evt := range harvested {
		data, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		envelope, err := json.Marshal(sharedEvents.IntegrationEvent{
			Type:      evt.EventType(),
			Timestamp: evt.OccurredAt(),
			Data:      data,
		})
		if err != nil {
			return err
		}
		u.Outbox = append(u.Outbox, sharedDomain.NewOutboxMessage(uuid.New(), evt.OccurredAt(), evt.EventType(), string(envelope)))
	}
	return nil
}

// Verificación estática
var _ sharedDomain.UnitOfWork = (*FakeUnitOfWork)(nil)
