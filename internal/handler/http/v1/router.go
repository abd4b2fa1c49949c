package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Маршрут Health-check доступен без ключа
	api.GET("/system/health", h.healthCheck)

	protected := api.Group("")
	protected.Use(APIKeyAuthMiddleware(h.cfg, h.logger))

	protected.GET("/session", h.getSession)

	incidents := protected.Group("/incidents")
	{
		incidents.POST("", h.acceptRequest)
		incidents.GET("/:id", h.getIncident)
		incidents.PUT("/:id/status", h.updateStatus)
		incidents.GET("/:id/route", h.getRoute)
		incidents.GET("/:id/history", h.getHistory)
	}

	protected.PATCH("/provider/status", h.setAvailability)
}
