package application

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	"github.com/davicafu/tradeagent/internal/shared/infra/utils"
	"github.com/davicafu/tradeagent/internal/trade/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordTradeRequest es el comando de entrada para registrar una operación.
type RecordTradeRequest struct {
	AssetName      string
	AssetSymbol    string
	Side           string
	Quantity       float64
	Price          float64
	Currency       string
	CounterpartyID string
	UserID         uuid.UUID
}

// TradeService define los casos de uso relacionados con Trade. Toda escritura
// pasa por el UnitOfWork: no hay forma de persistir el agregado sin cosechar
// sus eventos.
type TradeService struct {
	repo      domain.TradeRepository
	uow       sharedDomain.UnitOfWork
	cache     domain.TradeCache
	analytics domain.TradeAnalytics
	logStore  sharedDomain.LogStore
	log       *zap.Logger
}

// NewTradeService constructor. cache y analytics pueden ser nil.
func NewTradeService(
	repo domain.TradeRepository,
	uow sharedDomain.UnitOfWork,
	cache domain.TradeCache,
	analytics domain.TradeAnalytics,
	logStore sharedDomain.LogStore,
	log *zap.Logger,
) *TradeService {
	return &TradeService{
		repo:      repo,
		uow:       uow,
		cache:     cache,
		analytics: analytics,
		logStore:  logStore,
		log:       log,
	}
}

// RecordTrade ejecuta la operación y la confirma junto a su fila outbox en
// una única transacción. Un fallo de validación no toca el almacén; un fallo
// de persistencia no deja nada aplicado y el llamador debe reintentar la
// operación de negocio completa.
func (s *TradeService) RecordTrade(ctx context.Context, req RecordTradeRequest) (*domain.Trade, error) {
	asset, err := domain.NewAsset(req.AssetName, req.AssetSymbol)
	if err != nil {
		return nil, err
	}
	price, err := domain.NewMoney(req.Price, req.Currency)
	if err != nil {
		return nil, err
	}
	side, err := domain.ParseTradeSide(req.Side)
	if err != nil {
		return nil, err
	}

	trade, err := domain.ExecuteTrade(asset, side, req.Quantity, price, req.CounterpartyID, req.UserID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.Info("📈 Ejecutando operación",
		zap.String("trade_id", trade.ID.String()),
		zap.String("symbol", trade.Asset.Symbol),
		zap.Float64("quantity", trade.Quantity),
	)

	err = s.uow.Commit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return s.repo.InsertTx(ctx, tx, trade)
	}, trade)
	if err != nil {
		s.logStore.Append(fmt.Sprintf("[TRADE ERROR] TradeId=%s | %v", trade.ID, err))
		return nil, err
	}

	s.logStore.Append(fmt.Sprintf("[TRADE] Trade recorded. TradeId=%s, Asset=%s, Quantity=%v",
		trade.ID, trade.Asset.Symbol, trade.Quantity))

	if s.cache != nil {
		go func(t *domain.Trade) {
			ctxCache, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = s.cache.Set(ctxCache, domain.CacheKeyByID(t.ID), t, 60)
		}(trade)
	}

	if s.analytics != nil {
		// Archivo analítico best-effort, fuera de la transacción de negocio.
		go func(t *domain.Trade) {
			ctxLog, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.analytics.LogBatch(ctxLog, []*domain.Trade{t}); err != nil {
				s.log.Warn("⚠️ No se pudo archivar la operación en analytics", zap.Error(err))
			}
		}(trade)
	}

	return trade, nil
}

// GetTrade obtiene una operación (primero intenta desde cache).
func (s *TradeService) GetTrade(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	// 1. Intentar cache
	if s.cache != nil {
		var t domain.Trade
		if ok, _ := s.cache.Get(ctx, domain.CacheKeyByID(id), &t); ok {
			return &t, nil
		}
	}

	// 2. Ir al repo con reintentos
	var trade *domain.Trade
	err := utils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var err error
		trade, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	// 3. Actualizar cache en background sin bloquear la respuesta
	if s.cache != nil {
		go func(t *domain.Trade) {
			ctxCache, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = s.cache.Set(ctxCache, domain.CacheKeyByID(t.ID), t, 60)
		}(trade)
	}

	return trade, nil
}

// ListTrades devuelve las operaciones aplicando filtros.
func (s *TradeService) ListTrades(ctx context.Context, f domain.TradeFilter) ([]*domain.Trade, error) {
	return s.repo.List(ctx, f)
}
