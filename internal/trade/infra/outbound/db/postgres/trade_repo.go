package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/davicafu/tradeagent/internal/trade/domain"
	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// TradeRepoPostgres persiste operaciones en PostgreSQL, el almacén de
// producción. Asume las tablas del script de arranque (trades + outbox).
type TradeRepoPostgres struct {
	db *sql.DB
}

func NewTradeRepoPostgres(db *sql.DB) *TradeRepoPostgres {
	return &TradeRepoPostgres{db: db}
}

// ------------------ Métodos ------------------

// InsertTx inserta la operación dentro de la transacción del UnitOfWork.
func (r *TradeRepoPostgres) InsertTx(ctx context.Context, tx *sql.Tx, t *domain.Trade) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO trades (id, asset_name, asset_symbol, side, quantity, price, currency, counterparty_id, user_id, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Asset.Name, t.Asset.Symbol, string(t.Side), t.Quantity,
		t.Price.Amount, t.Price.Currency, t.CounterpartyID, t.UserID, t.ExecutedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return domain.ErrTradeAlreadyExists
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (r *TradeRepoPostgres) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT id, asset_name, asset_symbol, side, quantity, price, currency, counterparty_id, user_id, executed_at
		 FROM trades WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var t domain.Trade
	var side string
	if err := row.Scan(&t.ID, &t.Asset.Name, &t.Asset.Symbol, &side, &t.Quantity,
		&t.Price.Amount, &t.Price.Currency, &t.CounterpartyID, &t.UserID, &t.ExecutedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	t.Side = domain.TradeSide(side)

	return &t, nil
}

func (r *TradeRepoPostgres) List(ctx context.Context, f domain.TradeFilter) ([]*domain.Trade, error) {
	var args []interface{}
	var conditions []string
	argPos := 1

	if f.Symbol != nil {
		conditions = append(conditions, fmt.Sprintf("asset_symbol = $%d", argPos))
		args = append(args, *f.Symbol)
		argPos++
	}
	if f.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argPos))
		args = append(args, *f.UserID)
		argPos++
	}
	if f.CounterpartyID != nil {
		conditions = append(conditions, fmt.Sprintf("counterparty_id = $%d", argPos))
		args = append(args, *f.CounterpartyID)
		argPos++
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

	query := fmt.Sprintf(`SELECT id, asset_name, asset_symbol, side, quantity, price, currency, counterparty_id, user_id, executed_at
		FROM trades %s ORDER BY %s LIMIT $%d OFFSET $%d`, where, orderBy, argPos, argPos+1)
	args = append(args, limit, f.Pagination.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.Asset.Name, &t.Asset.Symbol, &side, &t.Quantity,
			&t.Price.Amount, &t.Price.Currency, &t.CounterpartyID, &t.UserID, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Side = domain.TradeSide(side)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// Verificación estática
var _ domain.TradeRepository = (*TradeRepoPostgres)(nil)
