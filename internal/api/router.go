package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mynul56/smart-parking-ai/internal/api/handler"
	"github.com/mynul56/smart-parking-ai/internal/api/middleware"
	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/realtime"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Auth         *service.AuthService
	Parking      *service.ParkingService
	Slots        *service.SlotService
	Reservations *service.ReservationService
	Detections   *service.DetectionService
	LPR          *service.LPRService
	Reconciler   *service.Reconciler
	Realtime     *realtime.Handler
}

func SetupRouter(s Services) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinLogger())
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMw := middleware.NewAuthMiddleware(s.Auth)
	staff := authMw.AuthorizeRole(domain.RoleAdmin, domain.RoleStaff)
	admin := authMw.AuthorizeRole(domain.RoleAdmin)

	v1 := r.Group("/api/v1")

	if s.Realtime != nil {
		// authenticates itself before the upgrade
		r.GET("/ws", s.Realtime.ServeWS)
	}

	authH := handler.NewAuthHandler(s.Auth)
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", authH.Register)
		authRoutes.POST("/login", authH.Login)
	}

	secured := v1.Group("")
	secured.Use(authMw.Authenticate())
	{
		secured.GET("/users/me", authH.Me)
		secured.PUT("/users/me", authH.UpdateMe)

		lotH := handler.NewParkingLotHandler(s.Parking, s.Reconciler)
		slotH := handler.NewParkingSlotHandler(s.Parking, s.Slots)
		lotRoutes := secured.Group("/lots")
		{
			lotRoutes.GET("", lotH.GetAllParkingLots)
			lotRoutes.POST("", admin, lotH.CreateParkingLot)
			lotRoutes.GET("/:id", lotH.GetParkingLotByID)
			lotRoutes.PUT("/:id", admin, lotH.UpdateParkingLot)
			lotRoutes.DELETE("/:id", admin, lotH.DeleteParkingLot)
			lotRoutes.POST("/:id/reconcile", admin, lotH.Reconcile)
			lotRoutes.GET("/:id/slots", slotH.GetSlotsByLotID)
			lotRoutes.POST("/:id/slots", admin, slotH.CreateParkingSlot)
		}

		slotRoutes := secured.Group("/slots")
		{
			slotRoutes.GET("/:id", slotH.GetParkingSlotByID)
			slotRoutes.PUT("/:id", staff, slotH.UpdateParkingSlot)
			if s.LPR != nil {
				lprH := handler.NewLPRHandler(s.LPR)
				slotRoutes.POST("/:id/vehicle-entry", staff, lprH.VehicleEntry)
			}
		}

		resH := handler.NewReservationHandler(s.Reservations)
		resRoutes := secured.Group("/reservations")
		{
			resRoutes.POST("", resH.Create)
			resRoutes.GET("/me", resH.ListMine)
			resRoutes.GET("/:id", resH.Get)
			resRoutes.DELETE("/:id", resH.Cancel)
		}

		if s.Detections != nil {
			aiH := handler.NewAIEventHandler(s.Detections)
			secured.GET("/ai-events", staff, aiH.List)
		}
	}
	return r
}
