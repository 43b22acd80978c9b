package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mynul56/smart-parking-ai/internal/api/middleware"
	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(as *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: as}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var dto domain.RegisterUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var dto domain.LoginUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /users/me
func (h *AuthHandler) Me(c *gin.Context) {
	p, _ := middleware.Principal(c)
	user, err := h.authService.GetProfile(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// PUT /users/me
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	var dto domain.UpdateProfileDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondBindError(c, err)
		return
	}
	p, _ := middleware.Principal(c)
	user, err := h.authService.UpdateProfile(c.Request.Context(), p.UserID, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
