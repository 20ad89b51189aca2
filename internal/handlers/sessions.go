package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionRevoker ends a login session everywhere.
type SessionRevoker interface {
	Revoke(ctx context.Context, sessionID, userID, reason string) error
}

// RevokeSession lets an admin force a session off every live connection.
func RevokeSession(s SessionRevoker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			UserID string `json:"userId" binding:"required"`
			Reason string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		reason := input.Reason
		if reason == "" {
			reason = "revoked"
		}
		if err := s.Revoke(c.Request.Context(), c.Param("sessionId"), input.UserID, reason); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
	}
}
