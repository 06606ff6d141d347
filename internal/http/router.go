// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lastmile/internal/http/handlers"
	"lastmile/internal/http/middleware"
	"lastmile/internal/modules/delivery"
	"lastmile/internal/modules/notify"
	"lastmile/internal/modules/rider"
)

type RouterDeps struct {
	Dispatch  *delivery.Service
	Riders    *rider.Service
	Notify    *notify.Service
	JWTSecret string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	auth := middleware.Auth(deps.JWTSecret)

	deliveryHandler := handlers.NewDeliveryHandler(deps.Dispatch)
	riderHandler := handlers.NewRiderHandler(deps.Riders)
	notificationHandler := handlers.NewNotificationHandler(deps.Notify)

	seller := r.Group("/api/seller", auth, middleware.RequireRole("seller"))
	seller.POST("/items/:id/ready", deliveryHandler.Ready)

	riders := r.Group("/api/rider", auth, middleware.RequireRole("rider"))
	riders.GET("/deliveries/nearby", deliveryHandler.Nearby)
	riders.POST("/deliveries/:id/accept", deliveryHandler.Accept)
	riders.POST("/deliveries/:id/cancel", deliveryHandler.Cancel)
	riders.POST("/deliveries/:id/pickup", deliveryHandler.ConfirmPickup)
	riders.POST("/deliveries/:id/deliver", deliveryHandler.ConfirmDelivery)
	riders.PUT("/location", riderHandler.UpdateLocation)

	api := r.Group("/api", auth)
	api.GET("/notifications", notificationHandler.List)
	api.POST("/notifications/:id/read", notificationHandler.MarkRead)

	return r
}
