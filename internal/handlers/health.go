package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger checks one dependency.
type Pinger func(ctx context.Context) error

// Healthz reports ok when every check passes.
func Healthz(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		failed := gin.H{}
		for name, ping := range checks {
			if err := ping(c.Request.Context()); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
