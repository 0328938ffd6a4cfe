package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/repository"
	"github.com/adith23/parking-automation-app/internal/service"
)

type ParkingSlotHandler struct {
	parkingService *service.ParkingService
}

func NewParkingSlotHandler(ps *service.ParkingService) *ParkingSlotHandler {
	return &ParkingSlotHandler{parkingService: ps}
}

// POST /parking-lots/:id/slots
func (h *ParkingSlotHandler) CreateParkingSlot(c *gin.Context) {
	lotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parking lot id"})
		return
	}

	var dto domain.ParkingSlotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto.ParkingLotID = lotID

	slot, err := h.parkingService.CreateParkingSlot(c.Request.Context(), dto)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrDuplicateEntry):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create parking slot", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, slot)
}

// GET /parking-lots/:id/slots
func (h *ParkingSlotHandler) GetSlotsByLotID(c *gin.Context) {
	lotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parking lot id"})
		return
	}

	slots, err := h.parkingService.GetSlotsByLotID(c.Request.Context(), lotID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list parking slots"})
		return
	}
	c.JSON(http.StatusOK, slots)
}

// GET /parking-slots/:slot_id
func (h *ParkingSlotHandler) GetParkingSlotByID(c *gin.Context) {
	slotID, err := strconv.Atoi(c.Param("slot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parking slot id"})
		return
	}

	slot, err := h.parkingService.GetParkingSlotByID(c.Request.Context(), slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "parking slot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch parking slot"})
		return
	}
	c.JSON(http.StatusOK, slot)
}

// PUT /parking-slots/:slot_id
func (h *ParkingSlotHandler) UpdateParkingSlot(c *gin.Context) {
	slotID, err := strconv.Atoi(c.Param("slot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parking slot id"})
		return
	}

	var dto domain.ParkingSlotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slot, err := h.parkingService.UpdateParkingSlot(c.Request.Context(), slotID, dto)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrDuplicateEntry):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update parking slot", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, slot)
}

// PUT /parking-slots/:slot_id/status
func (h *ParkingSlotHandler) SetParkingSlotStatus(c *gin.Context) {
	slotID, err := strconv.Atoi(c.Param("slot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parking slot id"})
		return
	}

	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slot, err := h.parkingService.SetSlotStatus(c.Request.Context(), slotID, domain.SlotStatus(body.Status))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "parking slot not found"})
		case errors.Is(err, repository.ErrStaleStatus):
			c.JSON(http.StatusConflict, gin.H{"error": "slot status changed concurrently, retry"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, slot)
}

// DELETE /parking-slots/:slot_id
func (h *ParkingSlotHandler) DeleteParkingSlot(c *gin.Context) {
	slotID, err := strconv.Atoi(c.Param("slot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parking slot id"})
		return
	}

	if err := h.parkingService.DeleteParkingSlot(c.Request.Context(), slotID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "parking slot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete parking slot", "details": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
