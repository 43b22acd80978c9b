package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

type ParkingLotHandler struct {
	parkingService *service.ParkingService
	reconciler     *service.Reconciler
}

func NewParkingLotHandler(ps *service.ParkingService, rc *service.Reconciler) *ParkingLotHandler {
	return &ParkingLotHandler{parkingService: ps, reconciler: rc}
}

type lotListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=active maintenance closed"`
}

// POST /lots
func (h *ParkingLotHandler) CreateParkingLot(c *gin.Context) {
	var dto domain.ParkingLotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}

	lot, err := h.parkingService.CreateParkingLot(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lot)
}

// GET /lots/:id
func (h *ParkingLotHandler) GetParkingLotByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	lot, err := h.parkingService.GetParkingLotByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

// GET /lots
func (h *ParkingLotHandler) GetAllParkingLots(c *gin.Context) {
	var q lotListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	lots, err := h.parkingService.GetAllParkingLots(c.Request.Context(), domain.ParkingLotFilter{Status: domain.LotStatus(q.Status)})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lots, "total": len(lots)})
}

// PUT /lots/:id
func (h *ParkingLotHandler) UpdateParkingLot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var dto domain.ParkingLotUpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}

	lot, err := h.parkingService.UpdateParkingLot(c.Request.Context(), id, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

// DELETE /lots/:id
func (h *ParkingLotHandler) DeleteParkingLot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.parkingService.DeleteParkingLot(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /lots/:id/reconcile
func (h *ParkingLotHandler) Reconcile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	drift, err := h.reconciler.ReconcileLot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	lot, err := h.parkingService.GetParkingLotByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lot": lot, "drift": drift, "corrected": drift != nil})
}
