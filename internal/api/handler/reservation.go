package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mynul56/smart-parking-ai/internal/api/middleware"
	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

type ReservationHandler struct {
	reservations *service.ReservationService
}

func NewReservationHandler(rs *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: rs}
}

type reservationListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending confirmed active completed cancelled"`
	domain.Paging
}

// POST /reservations
func (h *ReservationHandler) Create(c *gin.Context) {
	var dto domain.CreateReservationDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}
	p, _ := middleware.Principal(c)

	res, err := h.reservations.Create(c.Request.Context(), p, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /reservations/me
func (h *ReservationHandler) ListMine(c *gin.Context) {
	var q reservationListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	p, _ := middleware.Principal(c)

	page, err := h.reservations.ListMine(c.Request.Context(), p, domain.ReservationFilter{
		Status: domain.ReservationStatus(q.Status),
		Paging: q.Paging,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Principal(c)

	res, err := h.reservations.Get(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DELETE /reservations/:id
func (h *ReservationHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, _ := middleware.Principal(c)

	res, err := h.reservations.Cancel(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
