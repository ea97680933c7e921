package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visitor-parking-backend/internal/auth"
)

// Login authenticates a department and issues a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}
