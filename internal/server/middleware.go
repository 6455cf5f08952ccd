package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fightinglucida/FastMP/pkg/logger"
)

// requestLogger emits one structured line per request.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.InfoWithFields("http request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"client":   c.ClientIP(),
		})
	}
}
