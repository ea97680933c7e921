package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetHistory returns recent access events, optionally filtered by plate or
// department through the q parameter.
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid limit"})
			return
		}
		limit = n
	}

	events, err := h.store.ListAccessEvents(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}
