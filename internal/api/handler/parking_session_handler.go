package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adith23/parking-automation-app/internal/api/middleware"
	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/repository"
	"github.com/adith23/parking-automation-app/internal/service"
)

type ParkingSessionHandler struct {
	sessionService *service.SessionService
}

func NewParkingSessionHandler(ss *service.SessionService) *ParkingSessionHandler {
	return &ParkingSessionHandler{sessionService: ss}
}

// GET /parking-sessions?status=
func (h *ParkingSessionHandler) GetMySessions(c *gin.Context) {
	driverID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}

	var status *domain.ParkingSessionStatus
	if s := c.Query("status"); s != "" {
		st := domain.ParkingSessionStatus(s)
		status = &st
	}

	sessions, err := h.sessionService.GetDriverSessions(c.Request.Context(), driverID, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list sessions", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GET /parking-sessions/:id
//
// Drivers can only read sessions for their own vehicles; operators and
// admins can read any.
func (h *ParkingSessionHandler) GetSessionByID(c *gin.Context) {
	sessionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	session, err := h.loadSessionForCaller(c, sessionID)
	if err != nil {
		h.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GET /parking-sessions/:id/cost
//
// For an active session this recomputes the accrued cost as of now; for a
// completed session it returns the stored final cost.
func (h *ParkingSessionHandler) GetSessionCost(c *gin.Context) {
	sessionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	if _, err := h.loadSessionForCaller(c, sessionID); err != nil {
		h.writeSessionError(c, err)
		return
	}

	session, cost, err := h.sessionService.CostSoFar(c.Request.Context(), sessionID, time.Now().UTC())
	if err != nil {
		h.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"status":     session.Status,
		"cost":       cost,
	})
}

// loadSessionForCaller enforces the ownership rule: operators and admins
// may read any session, drivers only their own vehicles' sessions.
func (h *ParkingSessionHandler) loadSessionForCaller(c *gin.Context, sessionID int) (*domain.ParkingSession, error) {
	if role, ok := middleware.CallerRole(c); ok && (role == "admin" || role == "operator") {
		return h.sessionService.GetSessionByID(c.Request.Context(), sessionID)
	}
	driverID, ok := middleware.CallerID(c)
	if !ok {
		return nil, service.ErrNotOwner
	}
	return h.sessionService.GetSessionForDriver(c.Request.Context(), driverID, sessionID)
}

func (h *ParkingSessionHandler) writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, service.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch session", "details": err.Error()})
	}
}
