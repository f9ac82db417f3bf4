package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aslakhin/notify-service/internal/api/handlers/notification"
	"github.com/aslakhin/notify-service/internal/middlewares"
)

// New builds the HTTP router with logging, recovery and CORS.
func New(handler *notification.Handler, allowedOrigins []string) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware(allowedOrigins))
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	api := e.Group("/api/v1")
	{
		api.POST("/notifications", handler.Create)
		api.GET("/notifications/:id", handler.Get)
		api.GET("/notifications/:id/status", handler.GetStatus)
		api.PATCH("/notifications/:id/status", handler.UpdateStatus)
		api.GET("/users/:user_id/notifications", handler.ListByUser)
		api.GET("/health", handler.Health)
	}

	return e
}
