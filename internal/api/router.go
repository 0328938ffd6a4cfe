package api

import (
	"github.com/gin-gonic/gin"

	"github.com/adith23/parking-automation-app/internal/api/handler"
	"github.com/adith23/parking-automation-app/internal/api/middleware"
	"github.com/adith23/parking-automation-app/internal/service"
)

func SetupRouter(
	as *service.AuthService,
	ps *service.ParkingService,
	bs *service.BookingService,
	ss *service.SessionService,
	lprService *service.LPRService,
	authMw *middleware.AuthMiddleware,
	wsManager *handler.WebSocketManager,
) *gin.Engine {
	r := gin.Default()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// WebSocket endpoint for live slot status (no auth on the upgrade).
	wsHandler := handler.NewWebSocketHandler(wsManager)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(as)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	v1 := r.Group("/api/v1")
	v1.Use(authMw.Authenticate())
	{
		lotH := handler.NewParkingLotHandler(ps)
		slotH := handler.NewParkingSlotHandler(ps)
		lotRoutes := v1.Group("/parking-lots")
		{
			lotRoutes.POST("", authMw.AuthorizeRole("admin"), lotH.CreateParkingLot)
			lotRoutes.GET("", lotH.GetAllParkingLots)
			lotRoutes.GET("/:id", lotH.GetParkingLotByID)
			lotRoutes.PUT("/:id", authMw.AuthorizeRole("admin"), lotH.UpdateParkingLot)

			slotRoutesInLot := lotRoutes.Group("/:id/slots")
			{
				slotRoutesInLot.POST("", authMw.AuthorizeRole("admin"), slotH.CreateParkingSlot)
				slotRoutesInLot.GET("", slotH.GetSlotsByLotID)
			}
		}

		slotRoutes := v1.Group("/parking-slots")
		{
			slotRoutes.GET("/:slot_id", slotH.GetParkingSlotByID)
			slotRoutes.PUT("/:slot_id", authMw.AuthorizeRole("admin"), slotH.UpdateParkingSlot)
			slotRoutes.PUT("/:slot_id/status", authMw.AuthorizeRole("admin", "operator"), slotH.SetParkingSlotStatus)
			slotRoutes.DELETE("/:slot_id", authMw.AuthorizeRole("admin"), slotH.DeleteParkingSlot)
		}

		vehicleH := handler.NewVehicleHandler(ps)
		vehicleRoutes := v1.Group("/vehicles")
		{
			vehicleRoutes.POST("", vehicleH.RegisterVehicle)
			vehicleRoutes.GET("", vehicleH.GetMyVehicles)
		}

		bookingH := handler.NewBookingHandler(bs)
		bookingRoutes := v1.Group("/bookings")
		{
			bookingRoutes.POST("", bookingH.InitiateBooking)
			bookingRoutes.GET("", bookingH.GetMyBookings)
			bookingRoutes.GET("/:id", bookingH.GetBookingByID)
			bookingRoutes.POST("/:id/confirm", bookingH.ConfirmBooking)
			bookingRoutes.POST("/:id/cancel", bookingH.CancelBooking)
		}

		sessionH := handler.NewParkingSessionHandler(ss)
		sessionRoutes := v1.Group("/parking-sessions")
		{
			sessionRoutes.GET("", sessionH.GetMySessions)
			sessionRoutes.GET("/:id", sessionH.GetSessionByID)
			sessionRoutes.GET("/:id/cost", sessionH.GetSessionCost)
		}

		if lprService != nil {
			lprH := handler.NewLPRHandler(lprService)
			lprRoutes := v1.Group("/lpr")
			lprRoutes.Use(authMw.AuthorizeRole("admin", "operator"))
			{
				lprRoutes.POST("/process-image", lprH.ProcessImage)
			}
		}
	}
	return r
}
