package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/mooveit-dispatch/internal/logger"
)

// RequestLogger logs one line per request. Server errors are logged at warn.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			log.Warnf("%s %s %d %s", c.Request.Method, c.FullPath(), status, time.Since(start))
			return
		}
		log.Debugw("request", map[string]any{
			"method":  c.Request.Method,
			"route":   c.FullPath(),
			"status":  status,
			"latency": time.Since(start).String(),
		})
	}
}
