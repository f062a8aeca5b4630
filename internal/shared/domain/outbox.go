package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus es el estado de entrega de un mensaje de la tabla outbox.
type OutboxStatus string

const (
	OutboxPending      OutboxStatus = "pending"
	OutboxProcessing   OutboxStatus = "processing"
	OutboxProcessed    OutboxStatus = "processed"
	OutboxFailed       OutboxStatus = "failed"
	OutboxDeadLettered OutboxStatus = "dead_lettered"
)

// ---------- Errores del ciclo de vida ----------
var (
	ErrOutboxNotFound    = errors.New("outbox message not found")
	ErrTerminalStatus    = errors.New("outbox message is in a terminal status")
	ErrInvalidTransition = errors.New("invalid outbox status transition")
)

// OutboxMessage representa una fila durable de la tabla outbox: un evento de
// dominio cosechado junto a su ciclo de vida de entrega. Se crea únicamente
// dentro de la misma transacción que persiste el agregado, y nunca se borra
// (queda como log de auditoría/replay).
type OutboxMessage struct {
	ID          uuid.UUID    `json:"id"`
	OccurredAt  time.Time    `json:"occurred_at"`
	Type        string       `json:"type"`    // tag de enrutado, ej. "trade.executed"
	Payload     string       `json:"payload"` // evento serializado en JSON
	Status      OutboxStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
	Error       *string      `json:"error,omitempty"`
}

// NewOutboxMessage construye un mensaje en estado Pending.
func NewOutboxMessage(id uuid.UUID, occurredAt time.Time, eventType, payload string) OutboxMessage {
	return OutboxMessage{
		ID:         id,
		OccurredAt: occurredAt.UTC(),
		Type:       eventType,
		Payload:    payload,
		Status:     OutboxPending,
	}
}

// terminal indica si el estado ya no admite transiciones.
func (m *OutboxMessage) terminal() bool {
	return m.Status == OutboxProcessed || m.Status == OutboxDeadLettered
}

// MarkProcessing reclama el mensaje para un pase del dispatcher.
func (m *OutboxMessage) MarkProcessing() error {
	if m.terminal() {
		return ErrTerminalStatus
	}
	if m.Status != OutboxPending {
		return ErrInvalidTransition
	}
	m.Status = OutboxProcessing
	return nil
}

// MarkProcessed registra la publicación exitosa. Es el estado terminal feliz:
// ninguna transición posterior lo abandona.
func (m *OutboxMessage) MarkProcessed(processedAt time.Time) error {
	if m.terminal() {
		return ErrTerminalStatus
	}
	at := processedAt.UTC()
	m.Status = OutboxProcessed
	m.ProcessedAt = &at
	m.Error = nil
	return nil
}

// MarkFailed registra el texto del fallo de publicación e incrementa el
// contador de intentos. Failed no se reintenta solo: lo decide la RetryPolicy.
func (m *OutboxMessage) MarkFailed(errText string) error {
	if m.terminal() {
		return ErrTerminalStatus
	}
	m.Status = OutboxFailed
	m.Attempts++
	m.Error = &errText
	return nil
}

// ResetForRetry devuelve un mensaje Failed a Pending (política de reintentos).
func (m *OutboxMessage) ResetForRetry() error {
	if m.Status != OutboxFailed {
		return ErrInvalidTransition
	}
	m.Status = OutboxPending
	return nil
}

// MarkDeadLettered retira un mensaje Failed que agotó sus reintentos.
// Requiere intervención manual para reprocesarlo.
func (m *OutboxMessage) MarkDeadLettered() error {
	if m.Status != OutboxFailed {
		return ErrInvalidTransition
	}
	m.Status = OutboxDeadLettered
	return nil
}

// OutboxRepository define el contrato que necesita el dispatcher sobre la
// tabla outbox: lectura de pendientes y actualización de estado. El insert
// no aparece aquí a propósito; solo el UnitOfWork inserta filas, dentro de
// la transacción del agregado.
type OutboxRepository interface {
	// FetchPending devuelve mensajes Pending ordenados por occurred_at
	// ascendente. limit <= 0 significa sin límite.
	FetchPending(ctx context.Context, limit int) ([]OutboxMessage, error)

	// ClaimProcessing intenta la transición Pending → Processing.
	// Devuelve false si otro dispatcher ya reclamó el mensaje.
	ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkProcessed fija el estado terminal de éxito y processed_at.
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error

	// MarkFailed guarda el texto del error e incrementa attempts.
	MarkFailed(ctx context.Context, id uuid.UUID, errText string) error

	// FetchFailed devuelve mensajes Failed para que la política de
	// reintentos decida su destino.
	FetchFailed(ctx context.Context, limit int) ([]OutboxMessage, error)

	// MarkPending devuelve un mensaje Failed a Pending (reintento).
	MarkPending(ctx context.Context, id uuid.UUID) error

	// MarkDeadLettered retira definitivamente un mensaje Failed.
	MarkDeadLettered(ctx context.Context, id uuid.UUID) error

	// ReleaseStuckProcessing devuelve a Pending los mensajes que llevan
	// demasiado tiempo en Processing (un dispatcher murió a mitad de pase).
	ReleaseStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error)
}
