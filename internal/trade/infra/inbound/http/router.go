package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter monta el engine con el middleware de recuperación y las rutas
// de la API.
func NewRouter(tradeHandler *TradeHandler, logsHandler *LogsHandler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), RecoveryWithCorrelation(log))

	RegisterTradeRoutes(r, tradeHandler)
	RegisterLogsRoutes(r, logsHandler)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func RegisterTradeRoutes(r *gin.Engine, handler *TradeHandler) {
	trades := r.Group("/trades")
	{
		trades.POST("/", handler.RecordTrade)
		trades.GET("/:id", handler.GetTrade)
		trades.GET("/", handler.ListTrades)
	}
}

func RegisterLogsRoutes(r *gin.Engine, handler *LogsHandler) {
	r.GET("/logs", handler.GetLogs)
}
