package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
)

// respondError maps orchestrator errors onto status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrStateConflict):
		status = http.StatusConflict
	case errors.Is(err, dispatch.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, dispatch.ErrBadRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
