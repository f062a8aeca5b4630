package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingMessage() OutboxMessage {
	return NewOutboxMessage(uuid.New(), time.Now().UTC(), "trade.executed", `{"type":"trade.executed"}`)
}

func TestNewOutboxMessage_StartsPending(t *testing.T) {
	m := newPendingMessage()

	assert.Equal(t, OutboxPending, m.Status)
	assert.Zero(t, m.Attempts)
	assert.Nil(t, m.ProcessedAt)
	assert.Nil(t, m.Error)
}

func TestOutboxMessage_HappyPath(t *testing.T) {
	m := newPendingMessage()

	require.NoError(t, m.MarkProcessing())
	assert.Equal(t, OutboxProcessing, m.Status)

	processedAt := time.Now().UTC()
	require.NoError(t, m.MarkProcessed(processedAt))
	assert.Equal(t, OutboxProcessed, m.Status)
	require.NotNil(t, m.ProcessedAt)
	assert.Equal(t, processedAt, *m.ProcessedAt)
}

func TestOutboxMessage_ProcessedIsTerminal(t *testing.T) {
	m := newPendingMessage()
	require.NoError(t, m.MarkProcessed(time.Now()))

	assert.ErrorIs(t, m.MarkProcessing(), ErrTerminalStatus)
	assert.ErrorIs(t, m.MarkFailed("broker down"), ErrTerminalStatus)
	assert.ErrorIs(t, m.MarkProcessed(time.Now()), ErrTerminalStatus)
	assert.Equal(t, OutboxProcessed, m.Status)
}

func TestOutboxMessage_FailureCycle(t *testing.T) {
	m := newPendingMessage()
	require.NoError(t, m.MarkProcessing())

	require.NoError(t, m.MarkFailed("connection refused"))
	assert.Equal(t, OutboxFailed, m.Status)
	assert.Equal(t, 1, m.Attempts)
	require.NotNil(t, m.Error)
	assert.Equal(t, "connection refused", *m.Error)

	// Reintento: vuelve a Pending conservando el contador.
	require.NoError(t, m.ResetForRetry())
	assert.Equal(t, OutboxPending, m.Status)
	assert.Equal(t, 1, m.Attempts)

	// Segundo fallo acumula intentos.
	require.NoError(t, m.MarkProcessing())
	require.NoError(t, m.MarkFailed("timeout"))
	assert.Equal(t, 2, m.Attempts)
}

func TestOutboxMessage_DeadLetterOnlyFromFailed(t *testing.T) {
	m := newPendingMessage()
	assert.ErrorIs(t, m.MarkDeadLettered(), ErrInvalidTransition)

	require.NoError(t, m.MarkProcessing())
	require.NoError(t, m.MarkFailed("boom"))
	require.NoError(t, m.MarkDeadLettered())
	assert.Equal(t, OutboxDeadLettered, m.Status)

	// Dead-lettered también es terminal.
	assert.ErrorIs(t, m.MarkFailed("again"), ErrTerminalStatus)
	assert.ErrorIs(t, m.ResetForRetry(), ErrInvalidTransition)
}

func TestOutboxMessage_ProcessedClearsError(t *testing.T) {
	m := newPendingMessage()
	require.NoError(t, m.MarkProcessing())
	require.NoError(t, m.MarkFailed("transient"))
	require.NoError(t, m.ResetForRetry())
	require.NoError(t, m.MarkProcessing())

	require.NoError(t, m.MarkProcessed(time.Now()))
	assert.Nil(t, m.Error)
	assert.Equal(t, 1, m.Attempts) // los intentos quedan como histórico
}
