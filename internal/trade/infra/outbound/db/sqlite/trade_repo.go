package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	"github.com/davicafu/tradeagent/internal/trade/domain"
)

// TradeRepoSQLite persiste operaciones en SQLite. Útil para despliegues
// locales y tests de integración sin infraestructura externa.
type TradeRepoSQLite struct {
	db *sql.DB
}

func NewTradeRepoSQLite(db *sql.DB) *TradeRepoSQLite {
	return &TradeRepoSQLite{db: db}
}

// ------------------ Métodos ------------------

// InsertTx inserta la operación dentro de la transacción del UnitOfWork.
// Nunca abre su propia transacción: el commit atómico con el outbox depende
// de compartir el mismo tx.
func (r *TradeRepoSQLite) InsertTx(ctx context.Context, tx *sql.Tx, t *domain.Trade) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO trades (id, asset_name, asset_symbol, side, quantity, price, currency, counterparty_id, user_id, executed_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID.String(), t.Asset.Name, t.Asset.Symbol, string(t.Side), t.Quantity,
		t.Price.Amount, t.Price.Currency, t.CounterpartyID, t.UserID.String(), t.ExecutedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrTradeAlreadyExists
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// GetByID con manejo de errores en uuid.Parse
func (r *TradeRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT id, asset_name, asset_symbol, side, quantity, price, currency, counterparty_id, user_id, executed_at
		 FROM trades WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id.String())

	t, err := scanTrade(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return t, nil
}

// List con filtros dinámicos, orden y paginación
func (r *TradeRepoSQLite) List(ctx context.Context, f domain.TradeFilter) ([]*domain.Trade, error) {
	var args []interface{}
	var conditions []string

	if f.Symbol != nil {
		conditions = append(conditions, "asset_symbol = ?")
		args = append(args, *f.Symbol)
	}
	if f.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, f.UserID.String())
	}
	if f.CounterpartyID != nil {
		conditions = append(conditions, "counterparty_id = ?")
		args = append(args, *f.CounterpartyID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "executed_at DESC"
	if f.Sort.Field != "" {
		dir := "ASC"
		if f.Sort.Desc {
			dir = "DESC"
		}
		orderBy = fmt.Sprintf("%s %s", f.Sort.Field, dir)
	}

	limit := f.Pagination.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Pagination.Offset

	query := fmt.Sprintf(`SELECT id, asset_name, asset_symbol, side, quantity, price, currency, counterparty_id, user_id, executed_at
		FROM trades %s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ------------------ Helpers ------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var t domain.Trade
	var idStr, userIDStr, side string

	if err := row.Scan(&idStr, &t.Asset.Name, &t.Asset.Symbol, &side, &t.Quantity,
		&t.Price.Amount, &t.Price.Currency, &t.CounterpartyID, &userIDStr, &t.ExecutedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in DB: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in DB: %w", err)
	}
	t.ID = id
	t.UserID = userID
	t.Side = domain.TradeSide(side)

	return &t, nil
}

// ------------------ Inicialización de DB ------------------

// InitSQLite crea la tabla trades si no existe. La tabla outbox la crea el
// paquete del outbox compartido.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS trades (
            id TEXT PRIMARY KEY,
            asset_name TEXT NOT NULL,
            asset_symbol TEXT NOT NULL,
            side TEXT NOT NULL,
            quantity REAL NOT NULL,
            price REAL NOT NULL,
            currency TEXT NOT NULL,
            counterparty_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            executed_at DATETIME NOT NULL
        )
    `)
	return err
}

// Verificación estática
var _ domain.TradeRepository = (*TradeRepoSQLite)(nil)
