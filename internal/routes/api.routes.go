package routes

import (
	"autoservice/internal/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterAPIRoutes(r *gin.Engine, api *controllers.API) {
	group := r.Group("/api")
	{
		group.GET("/services", api.GetServices)
		group.GET("/presets", api.GetPresets)
		group.PUT("/presets/custom", api.PutCustomPresets)
		group.POST("/plans", api.ResolvePlan)
		group.GET("/estimates/:id", api.GetEstimate)
		group.GET("/reports", api.GetReports)
		group.GET("/reports/:id", api.GetReport)
	}

	runs := group.Group("/runs")
	{
		runs.POST("", api.StartRun)
		runs.GET("/current", api.GetCurrentRun)
		runs.POST("/current/cancel", api.CancelRun)
		runs.POST("/current/reset", api.ResetRun)
		runs.GET("/history", api.GetRunHistory)
		runs.GET("/history/:id", api.GetRun)
	}
}

// RegisterStreamRoutes registers the websocket event stream
func RegisterStreamRoutes(r *gin.Engine, api *controllers.API) {
	r.GET("/ws", api.HandleWebSocket)
}
