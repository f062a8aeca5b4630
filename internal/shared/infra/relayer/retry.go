package relayer

import (
	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
)

// RetryDecision es el destino que la política asigna a un mensaje Failed.
type RetryDecision int

const (
	// RetryLeave deja el mensaje en Failed (requiere intervención manual).
	RetryLeave RetryDecision = iota
	// RetryNow devuelve el mensaje a Pending para el siguiente pase.
	RetryNow
	// RetryDeadLetter retira el mensaje definitivamente.
	RetryDeadLetter
)

// RetryPolicy decide qué hacer con los mensajes Failed en cada barrido.
// Es enchufable: el diseño base no reintenta (at-least-once en el primer
// intento); producción usa reintentos acotados con dead-letter.
type RetryPolicy interface {
	Decide(msg sharedDomain.OutboxMessage) RetryDecision
}

// NoRetry es la política base: Failed es terminal para el dispatcher.
type NoRetry struct{}

func (NoRetry) Decide(sharedDomain.OutboxMessage) RetryDecision {
	return RetryLeave
}

// BoundedRetry reintenta hasta MaxAttempts y después manda a dead-letter.
// El espaciado entre reintentos lo da la cadencia del barrido de Failed
// del dispatcher (RetryEvery), no la política.
type BoundedRetry struct {
	MaxAttempts int
}

func (p BoundedRetry) Decide(msg sharedDomain.OutboxMessage) RetryDecision {
	if msg.Attempts >= p.MaxAttempts {
		return RetryDeadLetter
	}
	return RetryNow
}

// Verificación estática
var (
	_ RetryPolicy = NoRetry{}
	_ RetryPolicy = BoundedRetry{}
)
