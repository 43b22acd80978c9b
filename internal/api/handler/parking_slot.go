package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

type ParkingSlotHandler struct {
	parkingService *service.ParkingService
	slotService    *service.SlotService
}

func NewParkingSlotHandler(ps *service.ParkingService, ss *service.SlotService) *ParkingSlotHandler {
	return &ParkingSlotHandler{parkingService: ps, slotService: ss}
}

type slotListQuery struct {
	Status        string   `form:"status" binding:"omitempty,oneof=available occupied reserved maintenance"`
	MinConfidence *float64 `form:"min_confidence" binding:"omitempty,gte=0,lte=1"`
	domain.Paging
}

// POST /lots/:id/slots
func (h *ParkingSlotHandler) CreateParkingSlot(c *gin.Context) {
	lotID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var dto domain.ParkingSlotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}

	slot, err := h.parkingService.CreateParkingSlot(c.Request.Context(), lotID, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

// GET /lots/:id/slots
func (h *ParkingSlotHandler) GetSlotsByLotID(c *gin.Context) {
	lotID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var q slotListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	page, err := h.parkingService.GetSlotsByLotID(c.Request.Context(), lotID, domain.SlotFilter{
		Status:        domain.SlotStatus(q.Status),
		MinConfidence: q.MinConfidence,
		Paging:        q.Paging,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /slots/:id
func (h *ParkingSlotHandler) GetParkingSlotByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	slot, err := h.parkingService.GetParkingSlotByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// PUT /slots/:id
func (h *ParkingSlotHandler) UpdateParkingSlot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var dto domain.SlotStatusUpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}

	slot, err := h.slotService.UpdateFromDTO(c.Request.Context(), id, dto, service.SourceAPI)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}
