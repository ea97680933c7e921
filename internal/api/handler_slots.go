package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetAvailability returns the aggregate slot counts shown on the resident
// home screen.
func (h *Handler) GetAvailability(c *gin.Context) {
	totals, err := h.reconciler.AvailabilityTotals(c.Request.Context(), time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, totals)
}

// GetSlotStates returns the per-slot dashboard view.
func (h *Handler) GetSlotStates(c *gin.Context) {
	views, err := h.reconciler.SlotViews(c.Request.Context(), time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, views)
}

// RefreshOccupancy asks the sensor poller for an immediate refresh.
func (h *Handler) RefreshOccupancy(c *gin.Context) {
	if h.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "occupancy feed is disabled"})
		return
	}

	if !h.refresher.TriggerRefresh() {
		c.JSON(http.StatusAccepted, gin.H{"detail": "refresh already in progress"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"detail": "refresh scheduled"})
}
