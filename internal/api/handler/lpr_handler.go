package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

type LPRHandler struct {
	lprService *service.LPRService
}

func NewLPRHandler(lprService *service.LPRService) *LPRHandler {
	return &LPRHandler{lprService: lprService}
}

// POST /slots/:id/vehicle-entry
func (h *LPRHandler) VehicleEntry(c *gin.Context) {
	slotID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var dto domain.PlateEntryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}

	slot, err := h.lprService.RecordVehicleEntry(c.Request.Context(), slotID, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}
