package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adith23/parking-automation-app/internal/api/middleware"
	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/repository"
	"github.com/adith23/parking-automation-app/internal/service"
)

type VehicleHandler struct {
	parkingService *service.ParkingService
}

func NewVehicleHandler(ps *service.ParkingService) *VehicleHandler {
	return &VehicleHandler{parkingService: ps}
}

// POST /vehicles
func (h *VehicleHandler) RegisterVehicle(c *gin.Context) {
	driverID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}

	var dto domain.VehicleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vehicle, err := h.parkingService.RegisterVehicle(c.Request.Context(), driverID, dto)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPlate):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrDuplicateEntry):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register vehicle", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

// GET /vehicles
func (h *VehicleHandler) GetMyVehicles(c *gin.Context) {
	driverID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}

	vehicles, err := h.parkingService.GetDriverVehicles(c.Request.Context(), driverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list vehicles"})
		return
	}
	c.JSON(http.StatusOK, vehicles)
}
