package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adith23/parking-automation-app/internal/api/middleware"
	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/repository"
	"github.com/adith23/parking-automation-app/internal/service"
)

type BookingHandler struct {
	bookingService *service.BookingService
}

func NewBookingHandler(bs *service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bs}
}

// POST /bookings
func (h *BookingHandler) InitiateBooking(c *gin.Context) {
	driverID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}

	var dto domain.BookingCreateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.bookingService.Initiate(c.Request.Context(), driverID, dto)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// POST /bookings/:id/confirm
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	driverID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}
	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := h.bookingService.Confirm(c.Request.Context(), driverID, bookingID)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	driverID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}
	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var dto domain.BookingCancelDTO
	_ = c.ShouldBindJSON(&dto) // reason is optional, body may be empty

	booking, err := h.bookingService.Cancel(c.Request.Context(), driverID, bookingID)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GET /bookings/:id
func (h *BookingHandler) GetBookingByID(c *gin.Context) {
	driverID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}
	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := h.bookingService.GetBookingByID(c.Request.Context(), driverID, bookingID)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GET /bookings?status=
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	driverID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}

	var status *domain.BookingStatus
	if s := c.Query("status"); s != "" {
		bs := domain.BookingStatus(s)
		status = &bs
	}

	bookings, err := h.bookingService.GetDriverBookings(c.Request.Context(), driverID, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list bookings", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// writeBookingError maps the reservation error taxonomy onto HTTP statuses:
// contention 423, conflicts 409, expiry 410, closed lot 422, ownership 403.
func (h *BookingHandler) writeBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSlotContended):
		c.JSON(http.StatusLocked, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, service.ErrSlotUnavailable), errors.Is(err, service.ErrBookingNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrBookingExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrLotClosed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, service.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidPlate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "booking operation failed", "details": err.Error()})
	}
}
