package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"call-insights/internal/auth"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken exchanges a refresh token for a new access/refresh pair.
func (h Handlers) RefreshToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Token auth is disabled", "error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		badRequest(c, "Invalid request body", "refreshToken is required")
		return
	}

	pair, err := h.Auth.Refresh(time.Now(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": "invalid refresh token"})
			return
		}
		respondError(c, "Failed to refresh token", err)
		return
	}
	c.JSON(http.StatusOK, pair)
}
