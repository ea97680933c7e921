package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"visitor-parking-backend/internal/apperr"
	"visitor-parking-backend/internal/auth"
	"visitor-parking-backend/internal/lifecycle"
	"visitor-parking-backend/internal/reconcile"
	"visitor-parking-backend/internal/store"
)

// Refresher triggers an out-of-band occupancy refresh. Nil when the sensor
// feed is disabled.
type Refresher interface {
	TriggerRefresh() bool
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	reconciler *reconcile.Reconciler
	controller *lifecycle.Controller
	auth       *auth.Service
	webpush    *webpush.Options
	refresher  Refresher
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, rec *reconcile.Reconciler, ctrl *lifecycle.Controller, authSvc *auth.Service, webpushOptions *webpush.Options, refresher Refresher) *Handler {
	return &Handler{
		store:      s,
		reconciler: rec,
		controller: ctrl,
		auth:       authSvc,
		webpush:    webpushOptions,
		refresher:  refresher,
	}
}

// writeError maps domain errors onto HTTP responses. Every error body uses
// the {"detail": ...} shape.
func writeError(c *gin.Context, err error) {
	if ve, ok := apperr.IsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": ve.Fields})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "reservation not found"})
	case errors.Is(err, apperr.ErrCapacity):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, apperr.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, gin.H{"detail": "slot is not available"})
	case errors.Is(err, apperr.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"detail": "reservation state does not allow this operation"})
	case errors.Is(err, apperr.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}
