package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	pkgUtils "github.com/davicafu/tradeagent/pkg/utils"
)

// LogsHandler expone el log de demostración que alimentan la API y el
// consumidor. Sirve para observar el flujo completo del outbox sin mirar
// la base de datos.
type LogsHandler struct {
	logStore sharedDomain.LogStore
}

func NewLogsHandler(logStore sharedDomain.LogStore) *LogsHandler {
	return &LogsHandler{logStore: logStore}
}

// GetLogs endpoint GET /logs?n=20
func (h *LogsHandler) GetLogs(c *gin.Context) {
	n := 20
	if nStr := c.Query("n"); nStr != "" {
		v, err := strconv.Atoi(nStr)
		if err != nil || v <= 0 {
			pkgUtils.SendBadRequest(c, "n must be a positive integer")
			return
		}
		n = v
	}

	pkgUtils.SendSuccess(c, http.StatusOK, h.logStore.Recent(n))
}
