package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	sharedDB "github.com/davicafu/tradeagent/internal/shared/infra/db"
	"github.com/google/uuid"
)

// OutboxRepoSQLite implementa sharedDomain.OutboxRepository sobre SQLite,
// pensado para despliegues locales y tests de integración.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// InitOutboxSQLite crea la tabla outbox si no existe.
func InitOutboxSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			occurred_at TIMESTAMP NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			processed_at TIMESTAMP,
			error TEXT,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create outbox table: %w", err)
	}
	return nil
}

// InsertTx inserta las filas outbox dentro de la transacción del agregado.
func (r *OutboxRepoSQLite) InsertTx(ctx context.Context, tx *sql.Tx, msgs []sharedDomain.OutboxMessage) error {
	for _, m := range msgs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outbox (id, occurred_at, type, payload, status, attempts, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID.String(), m.OccurredAt, m.Type, m.Payload, string(m.Status), m.Attempts, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox message %s: %w", m.ID, err)
		}
	}
	return nil
}

func (r *OutboxRepoSQLite) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	return r.fetchByStatus(ctx, sharedDomain.OutboxPending, limit)
}

func (r *OutboxRepoSQLite) FetchFailed(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	return r.fetchByStatus(ctx, sharedDomain.OutboxFailed, limit)
}

func (r *OutboxRepoSQLite) fetchByStatus(ctx context.Context, status sharedDomain.OutboxStatus, limit int) ([]sharedDomain.OutboxMessage, error) {
	query := `SELECT id, occurred_at, type, payload, status, attempts, processed_at, error
	          FROM outbox WHERE status = ? ORDER BY occurred_at`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []sharedDomain.OutboxMessage
	for rows.Next() {
		var (
			m           sharedDomain.OutboxMessage
			idStr       string
			statusStr   string
			processedAt sql.NullTime
			errText     sql.NullString
		)
		if err := rows.Scan(&idStr, &m.OccurredAt, &m.Type, &m.Payload, &statusStr, &m.Attempts, &processedAt, &errText); err != nil {
			return nil, err
		}

		// El ID se guarda como TEXT, lo parseamos de vuelta.
		parsedID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		m.ID = parsedID
		m.Status = sharedDomain.OutboxStatus(statusStr)
		if processedAt.Valid {
			t := processedAt.Time
			m.ProcessedAt = &t
		}
		if errText.Valid {
			e := errText.String
			m.Error = &e
		}

		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClaimProcessing reclama un mensaje con un compare-and-set sobre el estado.
func (r *OutboxRepoSQLite) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(sharedDomain.OutboxProcessing), time.Now().UTC(), id.String(), string(sharedDomain.OutboxPending),
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

func (r *OutboxRepoSQLite) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	return r.update(ctx,
		`UPDATE outbox SET status = ?, processed_at = ?, error = NULL, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(sharedDomain.OutboxProcessed), processedAt.UTC(), time.Now().UTC(), id.String(),
		string(sharedDomain.OutboxProcessed), string(sharedDomain.OutboxDeadLettered),
	)
}

func (r *OutboxRepoSQLite) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	return r.update(ctx,
		`UPDATE outbox SET status = ?, error = ?, attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(sharedDomain.OutboxFailed), errText, time.Now().UTC(), id.String(),
		string(sharedDomain.OutboxProcessed), string(sharedDomain.OutboxDeadLettered),
	)
}

func (r *OutboxRepoSQLite) MarkPending(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx,
		`UPDATE outbox SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(sharedDomain.OutboxPending), time.Now().UTC(), id.String(), string(sharedDomain.OutboxFailed),
	)
}

func (r *OutboxRepoSQLite) MarkDeadLettered(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx,
		`UPDATE outbox SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(sharedDomain.OutboxDeadLettered), time.Now().UTC(), id.String(), string(sharedDomain.OutboxFailed),
	)
}

func (r *OutboxRepoSQLite) ReleaseStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(sharedDomain.OutboxPending), time.Now().UTC(),
		string(sharedDomain.OutboxProcessing), time.Now().UTC().Add(-olderThan),
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

func (r *OutboxRepoSQLite) update(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return sharedDomain.ErrOutboxNotFound
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoSQLite)(nil)
var _ sharedDB.OutboxInserter = (*OutboxRepoSQLite)(nil)
