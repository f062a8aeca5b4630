package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDB "github.com/davicafu/tradeagent/internal/shared/infra/db"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	"github.com/google/uuid"
)

// OutboxRepoPostgres implementa sharedDomain.OutboxRepository y el inserter
// transaccional que usa el UnitOfWork.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

const outboxColumns = `id, occurred_at, type, payload, status, attempts, processed_at, error`

// InsertTx inserta las filas outbox dentro de la transacción del agregado.
// Solo el UnitOfWork llega aquí.
func (r *OutboxRepoPostgres) InsertTx(ctx context.Context, tx *sql.Tx, msgs []sharedDomain.OutboxMessage) error {
	for _, m := range msgs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outbox (id, occurred_at, type, payload, status, attempts)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.OccurredAt, m.Type, m.Payload, string(m.Status), m.Attempts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox message %s: %w", m.ID, err)
		}
	}
	return nil
}

// FetchPending obtiene los mensajes Pending, el más antiguo primero.
func (r *OutboxRepoPostgres) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	return r.fetchByStatus(ctx, sharedDomain.OutboxPending, limit)
}

// FetchFailed obtiene los mensajes Failed para la política de reintentos.
func (r *OutboxRepoPostgres) FetchFailed(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	return r.fetchByStatus(ctx, sharedDomain.OutboxFailed, limit)
}

func (r *OutboxRepoPostgres) fetchByStatus(ctx context.Context, status sharedDomain.OutboxStatus, limit int) ([]sharedDomain.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox WHERE status=$1 ORDER BY occurred_at`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []sharedDomain.OutboxMessage
	for rows.Next() {
		m, err := scanOutboxRow(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClaimProcessing reclama un mensaje con un compare-and-set sobre el estado:
// si otro dispatcher ya lo tomó, RowsAffected es 0 y devolvemos false.
func (r *OutboxRepoPostgres) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		string(sharedDomain.OutboxProcessing), id, string(sharedDomain.OutboxPending),
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	return rows > 0, nil
}

func (r *OutboxRepoPostgres) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	return r.update(ctx, id,
		`UPDATE outbox SET status=$1, processed_at=$2, error=NULL, updated_at=now()
		 WHERE id=$3 AND status NOT IN ($4, $5)`,
		string(sharedDomain.OutboxProcessed), processedAt.UTC(), id,
		string(sharedDomain.OutboxProcessed), string(sharedDomain.OutboxDeadLettered),
	)
}

func (r *OutboxRepoPostgres) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	return r.update(ctx, id,
		`UPDATE outbox SET status=$1, error=$2, attempts=attempts+1, updated_at=now()
		 WHERE id=$3 AND status NOT IN ($4, $5)`,
		string(sharedDomain.OutboxFailed), errText, id,
		string(sharedDomain.OutboxProcessed), string(sharedDomain.OutboxDeadLettered),
	)
}

func (r *OutboxRepoPostgres) MarkPending(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id,
		`UPDATE outbox SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		string(sharedDomain.OutboxPending), id, string(sharedDomain.OutboxFailed),
	)
}

func (r *OutboxRepoPostgres) MarkDeadLettered(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id,
		`UPDATE outbox SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		string(sharedDomain.OutboxDeadLettered), id, string(sharedDomain.OutboxFailed),
	)
}

// ReleaseStuckProcessing devuelve a Pending los mensajes reclamados por un
// dispatcher que murió a mitad de pase.
func (r *OutboxRepoPostgres) ReleaseStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, updated_at=now()
		 WHERE status=$2 AND updated_at < now() - $3::interval`,
		string(sharedDomain.OutboxPending), string(sharedDomain.OutboxProcessing),
		fmt.Sprintf("%f seconds", olderThan.Seconds()),
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	return int(rows), nil
}

func (r *OutboxRepoPostgres) update(ctx context.Context, id uuid.UUID, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", sharedDomain.ErrOutboxNotFound, id)
	}
	return nil
}

// scanner cubre tanto *sql.Row como *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOutboxRow(s scanner) (sharedDomain.OutboxMessage, error) {
	var (
		m           sharedDomain.OutboxMessage
		status      string
		processedAt sql.NullTime
		errText     sql.NullString
	)
	if err := s.Scan(&m.ID, &m.OccurredAt, &m.Type, &m.Payload, &status, &m.Attempts, &processedAt, &errText); err != nil {
		return sharedDomain.OutboxMessage{}, err
	}
	m.Status = sharedDomain.OutboxStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		m.ProcessedAt = &t
	}
	if errText.Valid {
		e := errText.String
		m.Error = &e
	}
	return m, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
var _ sharedDB.OutboxInserter = (*OutboxRepoPostgres)(nil)
