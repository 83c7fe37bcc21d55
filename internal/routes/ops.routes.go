package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterOpsRoutes exposes Prometheus metrics and a liveness probe
func RegisterOpsRoutes(r *gin.Engine, metrics http.Handler) {
	r.GET("/metrics", gin.WrapH(metrics))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
