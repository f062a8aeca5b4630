package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupOutboxDB(t *testing.T) (*sql.DB, *OutboxRepoSQLite) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Una única conexión: cada conexión nueva abriría otra BD en memoria.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitOutboxSQLite(db))
	return db, NewOutboxRepoSQLite(db)
}

func insertOutbox(t *testing.T, db *sql.DB, repo *OutboxRepoSQLite, msgs ...sharedDomain.OutboxMessage) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.InsertTx(context.Background(), tx, msgs))
	require.NoError(t, tx.Commit())
}

func TestFetchPending_ReturnsOldestFirst(t *testing.T) {
	db, repo := setupOutboxDB(t)

	now := time.Now().UTC()
	oldest := sharedDomain.NewOutboxMessage(uuid.New(), now.Add(-2*time.Hour), "trade.executed", `{"seq":1}`)
	middle := sharedDomain.NewOutboxMessage(uuid.New(), now.Add(-1*time.Hour), "trade.executed", `{"seq":2}`)
	newest := sharedDomain.NewOutboxMessage(uuid.New(), now, "trade.executed", `{"seq":3}`)

	// Insertamos en orden inverso: el orden de lectura lo fija occurred_at.
	insertOutbox(t, db, repo, newest, middle, oldest)

	msgs, err := repo.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, oldest.ID, msgs[0].ID)
	assert.Equal(t, middle.ID, msgs[1].ID)
	assert.Equal(t, newest.ID, msgs[2].ID)
}

func TestFetchPending_HonorsLimitAndZeroMeansUnbounded(t *testing.T) {
	db, repo := setupOutboxDB(t)

	now := time.Now().UTC()
	var msgs []sharedDomain.OutboxMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, sharedDomain.NewOutboxMessage(
			uuid.New(), now.Add(time.Duration(i)*time.Minute), "trade.executed", fmt.Sprintf(`{"seq":%d}`, i),
		))
	}
	insertOutbox(t, db, repo, msgs...)

	limited, err := repo.FetchPending(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	// Con límite también manda occurred_at: salen los dos más antiguos.
	assert.Equal(t, msgs[0].ID, limited[0].ID)
	assert.Equal(t, msgs[1].ID, limited[1].ID)

	all, err := repo.FetchPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
