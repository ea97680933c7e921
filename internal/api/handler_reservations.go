package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"visitor-parking-backend/internal/auth"
	"visitor-parking-backend/internal/lifecycle"
)

type createReservationRequest struct {
	Plate    string `json:"placa_patente_visitante" binding:"required"`
	Document string `json:"rut_visitante" binding:"required"`
}

// CreateReservation registers a pending visitor reservation for the caller's
// department.
func (h *Handler) CreateReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	r, eventID, err := h.controller.Create(c.Request.Context(), lifecycle.CreateRequest{
		Plate:      req.Plate,
		Document:   req.Document,
		Department: auth.DepartmentFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":             "reservation created",
		"id_reserva":          r.ID,
		"estado":              r.State,
		"registro_ingreso_id": eventID,
	})
}

// ListMyReservations returns the caller's non-terminal reservations, newest
// first.
func (h *Handler) ListMyReservations(c *gin.Context) {
	rs, err := h.reconciler.ActiveForDepartment(c.Request.Context(), auth.DepartmentFrom(c), time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rs)
}

// ListPendingReservations returns the unassigned queue, oldest first.
func (h *Handler) ListPendingReservations(c *gin.Context) {
	rs, err := h.reconciler.Pending(c.Request.Context(), time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rs)
}

// ListAssignedReservations returns reservations currently holding a slot.
func (h *Handler) ListAssignedReservations(c *gin.Context) {
	rs, err := h.reconciler.Assigned(c.Request.Context(), time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rs)
}

func reservationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid reservation id"})
		return 0, false
	}
	return id, true
}

type assignRequest struct {
	SlotID string `json:"id_estacionamiento" binding:"required"`
}

// AssignReservation binds a pending reservation to a free slot.
func (h *Handler) AssignReservation(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	r, err := h.controller.Assign(c.Request.Context(), id, req.SlotID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// UnassignReservation releases the slot and returns the reservation to the
// pending queue.
func (h *Handler) UnassignReservation(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}

	r, err := h.controller.Unassign(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// CancelReservation cancels a reservation. Like assign and unassign it is
// open to every authenticated department, so the concierge dashboard can
// release any booking. Retrying a cancel succeeds without side effects.
func (h *Handler) CancelReservation(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}

	if err := h.controller.Cancel(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reservation cancelled"})
}
