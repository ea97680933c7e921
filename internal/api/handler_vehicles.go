package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visitor-parking-backend/internal/auth"
)

type registerVehicleRequest struct {
	Plate    string `json:"placa_patente" binding:"required"`
	Document string `json:"rut" binding:"required"`
}

// RegisterVehicle pre-registers a visitor vehicle for the caller's
// department.
func (h *Handler) RegisterVehicle(c *gin.Context) {
	var req registerVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	v, err := h.controller.RegisterVehicle(c.Request.Context(), req.Plate, req.Document, auth.DepartmentFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, v)
}
