package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	sharedEvents "github.com/davicafu/tradeagent/internal/shared/domain/events"
	sharedUtils "github.com/davicafu/tradeagent/internal/shared/infra/utils"
	tradeDomain "github.com/davicafu/tradeagent/internal/trade/domain"
)

// TradeMessageHandler es el "cerebro" del consumidor: decodifica el sobre de
// integración y despacha según el tipo de evento. Devolver error significa
// que el mensaje debe reencolarse; devolver nil lo confirma (ack).
type TradeMessageHandler struct {
	logStore sharedDomain.LogStore
	log      *zap.Logger
}

func NewTradeMessageHandler(logStore sharedDomain.LogStore, log *zap.Logger) *TradeMessageHandler {
	return &TradeMessageHandler{
		logStore: logStore,
		log:      log,
	}
}

func (h *TradeMessageHandler) HandleMessage(ctx context.Context, key string, payload []byte) error {
	var base sharedEvents.IntegrationEvent
	if err := json.Unmarshal(payload, &base); err != nil {
		// Un sobre ilegible nunca va a mejorar reintentándolo.
		h.log.Warn("Failed to unmarshal integration event", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("malformed envelope: %w", err)
	}

	switch base.Type {
	case tradeDomain.TradeExecuted:
		return sharedUtils.UnmarshalAndHandle[tradeDomain.TradeExecutedEvent](h.log, base.Data, func(evt tradeDomain.TradeExecutedEvent) error {
			h.logStore.Append(fmt.Sprintf("[EVENT] Trade executed. TradeId=%s, Asset=%s, Side=%s, Quantity=%v @ %v %s",
				evt.TradeID, evt.AssetSymbol, evt.Side, evt.Quantity, evt.Price, evt.Currency))

			h.log.Info("✅ Evento de operación procesado",
				zap.String("trade_id", evt.TradeID.String()),
				zap.String("symbol", evt.AssetSymbol),
			)
			return nil
		})

	default:
		// Tipo desconocido: lo registramos y confirmamos. Reencolar no lo
		// haría más conocido.
		h.log.Warn("Unknown event type", zap.String("type", base.Type))
		return nil
	}
}
