package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

type AIEventHandler struct {
	detections *service.DetectionService
}

func NewAIEventHandler(ds *service.DetectionService) *AIEventHandler {
	return &AIEventHandler{detections: ds}
}

type aiEventQuery struct {
	LotID     int    `form:"lot_id" binding:"omitempty,gt=0"`
	SlotID    int    `form:"slot_id" binding:"omitempty,gt=0"`
	EventType string `form:"event_type" binding:"omitempty,oneof=status_detected plate_read invalid_payload"`
	IsAnomaly *bool  `form:"is_anomaly"`
	domain.Paging
}

// GET /ai-events
func (h *AIEventHandler) List(c *gin.Context) {
	var q aiEventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	page, err := h.detections.ListEvents(c.Request.Context(), domain.AIEventFilter{
		LotID:     q.LotID,
		SlotID:    q.SlotID,
		EventType: domain.AIEventType(q.EventType),
		IsAnomaly: q.IsAnomaly,
		Paging:    q.Paging,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
