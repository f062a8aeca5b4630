package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgUtils "github.com/davicafu/tradeagent/pkg/utils"

	"github.com/davicafu/tradeagent/internal/trade/application"
	"github.com/davicafu/tradeagent/internal/trade/domain"
)

// TradeHandler encapsula los endpoints HTTP relacionados con Trade
type TradeHandler struct {
	service *application.TradeService
}

// NewTradeHandler crea un nuevo TradeHandler
func NewTradeHandler(service *application.TradeService) *TradeHandler {
	return &TradeHandler{service: service}
}

// ---------------- Handlers ----------------

// RecordTrade endpoint POST /trades
func (h *TradeHandler) RecordTrade(c *gin.Context) {
	var req struct {
		AssetName      string  `json:"asset_name" binding:"required"`
		AssetSymbol    string  `json:"asset_symbol" binding:"required"`
		Side           string  `json:"side" binding:"required"`
		Quantity       float64 `json:"quantity" binding:"required"`
		Price          float64 `json:"price" binding:"required"`
		Currency       string  `json:"currency" binding:"required"`
		CounterpartyID string  `json:"counterparty_id" binding:"required"`
		UserID         string  `json:"user_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		pkgUtils.SendBadRequest(c, err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		pkgUtils.SendBadRequest(c, "invalid user_id, must be a UUID")
		return
	}

	trade, err := h.service.RecordTrade(c.Request.Context(), application.RecordTradeRequest{
		AssetName:      req.AssetName,
		AssetSymbol:    req.AssetSymbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		Price:          req.Price,
		Currency:       req.Currency,
		CounterpartyID: req.CounterpartyID,
		UserID:         userID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTrade) {
			pkgUtils.SendBadRequest(c, err.Error())
			return
		}
		if errors.Is(err, domain.ErrTradeAlreadyExists) {
			pkgUtils.SendConflict(c, "trade already exists")
			return
		}
		pkgUtils.SendInternalServerError(c, err.Error())
		return
	}

	pkgUtils.SendSuccess(c, http.StatusCreated, trade)
}

// GetTrade endpoint GET /trades/:id
func (h *TradeHandler) GetTrade(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		pkgUtils.SendBadRequest(c, "invalid trade id")
		return
	}

	trade, err := h.service.GetTrade(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTradeNotFound) {
			pkgUtils.SendNotFound(c, "trade not found")
			return
		}
		pkgUtils.SendInternalServerError(c, err.Error())
		return
	}

	pkgUtils.SendSuccess(c, http.StatusOK, trade)
}

// ListTrades endpoint GET /trades
func (h *TradeHandler) ListTrades(c *gin.Context) {
	var f domain.TradeFilter

	// --- Filtros desde query params ---
	if symbol := c.Query("symbol"); symbol != "" {
		f.Symbol = &symbol
	}
	if counterparty := c.Query("counterparty_id"); counterparty != "" {
		f.CounterpartyID = &counterparty
	}
	if userIDStr := c.Query("user_id"); userIDStr != "" {
		if id, err := uuid.Parse(userIDStr); err == nil {
			f.UserID = &id
		} else {
			pkgUtils.SendBadRequest(c, "invalid user_id, must be a UUID")
			return
		}
	}

	// --- Sort ---
	f.Sort = domain.Sort{Field: "executed_at", Desc: true}
	if sortField := c.Query("sort_field"); sortField != "" {
		f.Sort.Field = sortField
		f.Sort.Desc = c.Query("sort_desc") == "true"
	}

	// --- Paginación ---
	f.Pagination.Limit = 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil {
			f.Pagination.Limit = v
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if v, err := strconv.Atoi(offsetStr); err == nil {
			f.Pagination.Offset = v
		}
	}

	trades, err := h.service.ListTrades(c.Request.Context(), f)
	if err != nil {
		pkgUtils.SendInternalServerError(c, err.Error())
		return
	}

	pkgUtils.SendSuccess(c, http.StatusOK, trades)
}
