package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecoveryWithCorrelation captura panics y responde un 500 estándar con un
// correlation id. El id aparece también en el log, para cruzar la respuesta
// del cliente con la traza del servidor.
func RecoveryWithCorrelation(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				corrID := uuid.NewString()
				log.Error("💥 Panic recuperado en handler HTTP",
					zap.String("correlation_id", corrID),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"message":        "internal server error",
						"correlation_id": corrID,
					},
				})
			}
		}()
		c.Next()
	}
}
