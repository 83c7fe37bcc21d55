package routes

import (
	"autoservice/internal/controllers"
	"autoservice/internal/middleware"
	"autoservice/internal/telemetry"

	"github.com/gin-gonic/gin"
)

// RouterConfig carries the HTTP knobs of the engine
type RouterConfig struct {
	AllowedOrigins []string
	RPS            float64
	PerIPRPS       float64
	Burst          int
}

// NewRouter assembles the engine with middleware and every route group.
// metrics may be nil.
func NewRouter(cfg RouterConfig, api *controllers.API, metrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	var onDrop func()
	if metrics != nil {
		r.Use(metrics.Middleware())
		onDrop = metrics.RateLimited
		RegisterOpsRoutes(r, metrics.Handler())
	}
	r.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.RPS, cfg.PerIPRPS, cfg.Burst), onDrop))

	RegisterAPIRoutes(r, api)
	RegisterStreamRoutes(r, api)
	return r
}
