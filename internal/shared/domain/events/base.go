package events

import (
	"encoding/json"
	"time"
)

// Base de todos los eventos de integración que viajan por el broker.
type IntegrationEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"` // contenido específico del evento
}

// DomainEvent es un hecho inmutable producido por una mutación de un agregado.
// Solo los agregados lo construyen; nunca se modifica después de creado.
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// Aggregate expone el buffer de eventos pendientes de un agregado.
// El buffer solo está poblado entre "mutación" y "cosecha en el commit".
type Aggregate interface {
	PendingEvents() []DomainEvent
	ClearEvents()
}

// EventMetadata describe cómo se enruta cada variante de evento.
// El conjunto de variantes es cerrado: el coordinador de commits consulta
// este registro en lugar de inferir el tipo por reflexión.
type EventMetadata struct {
	RoutingKey string
	Topic      string
}
