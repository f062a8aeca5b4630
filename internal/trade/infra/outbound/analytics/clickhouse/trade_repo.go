package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	tradeDomain "github.com/davicafu/tradeagent/internal/trade/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// TradeAnalyticsRepo archiva operaciones en ClickHouse para consultas
// analíticas (volúmenes, actividad por símbolo). No forma parte del camino
// transaccional: los fallos aquí nunca afectan al registro de la operación.
type TradeAnalyticsRepo struct {
	db *sql.DB
}

// NewTradeAnalyticsRepo abre la conexión y la verifica con un ping.
func NewTradeAnalyticsRepo(addr string, dbName string) (*TradeAnalyticsRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &TradeAnalyticsRepo{db: conn}, nil
}

// LogBatch inserta un lote de operaciones. ClickHouse funciona mejor con
// inserciones en lotes que fila a fila.
func (r *TradeAnalyticsRepo) LogBatch(ctx context.Context, trades []*tradeDomain.Trade) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO trades_log (id, asset_name, asset_symbol, side, quantity, price, currency, counterparty_id, user_id, executed_at, event_time)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	eventTime := time.Now()
	for _, t := range trades {
		if _, err := stmt.ExecContext(
			ctx,
			t.ID,
			t.Asset.Name,
			t.Asset.Symbol,
			string(t.Side),
			t.Quantity,
			t.Price.Amount,
			t.Price.Currency,
			t.CounterpartyID,
			t.UserID,
			t.ExecutedAt,
			eventTime,
		); err != nil {
			// Si un registro falla, descartamos el lote entero.
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for trade %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// VolumeBySymbol agrega el volumen negociado por símbolo en la ventana dada.
func (r *TradeAnalyticsRepo) VolumeBySymbol(ctx context.Context, start, end time.Time) (map[string]float64, error) {
	query := `
		SELECT
			asset_symbol,
			sum(quantity * price) AS volume
		FROM trades_log
		WHERE executed_at BETWEEN ? AND ?
		GROUP BY asset_symbol
		ORDER BY volume DESC
	`
	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	volumes := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var volume float64
		if err := rows.Scan(&symbol, &volume); err != nil {
			return nil, err
		}
		volumes[symbol] = volume
	}
	return volumes, rows.Err()
}

// InitSchema crea la tabla en ClickHouse si no existe. Particionada por mes
// y ordenada por los campos de consulta habituales.
func (r *TradeAnalyticsRepo) InitSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS trades_log (
			id              UUID,
			asset_name      String,
			asset_symbol    String,
			side            String,
			quantity        Float64,
			price           Float64,
			currency        String,
			counterparty_id String,
			user_id         UUID,
			executed_at     DateTime64(3),
			event_time      DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(event_time)
		ORDER BY (asset_symbol, side, event_time);
	`
	_, err := r.db.Exec(query)
	return err
}

// Verificación estática
var _ tradeDomain.TradeAnalytics = (*TradeAnalyticsRepo)(nil)
