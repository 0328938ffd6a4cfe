package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/service"
)

type LPRHandler struct {
	lprService *service.LPRService
}

func NewLPRHandler(ls *service.LPRService) *LPRHandler {
	return &LPRHandler{lprService: ls}
}

// POST /lpr/process-image
func (h *LPRHandler) ProcessImage(c *gin.Context) {
	var dto domain.LPRRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	imageBytes, err := base64.StdEncoding.DecodeString(dto.ImageBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 is not valid base64"})
		return
	}

	plateText, confidence, err := h.lprService.ProcessImageForLPR(c.Request.Context(), imageBytes)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, domain.LPRResponseDTO{ErrorMessage: err.Error()})
		return
	}
	c.JSON(http.StatusOK, domain.LPRResponseDTO{
		DetectedPlate: plateText,
		Confidence:    confidence,
	})
}
