package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"autoservice/internal/controllers"
	"autoservice/internal/routes"
	"autoservice/internal/services"
	"autoservice/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRouterOpsRoutesBypassRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	locator, err := services.NewProgramLocator(services.BuiltinPrograms(), nil)
	require.NoError(t, err)
	registry, err := services.NewRegistry(locator, services.BuiltinCatalog(locator)...)
	require.NoError(t, err)
	metrics := telemetry.New(prometheus.NewRegistry())

	r := routes.NewRouter(routes.RouterConfig{RPS: 1000, PerIPRPS: 0.001, Burst: 1},
		&controllers.API{Registry: registry}, metrics)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.10:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for n := 0; n < 3; n++ {
		w := get("/healthz")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	}

	w := get("/api/services")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, w.Header().Get("X-Request-Id"))

	require.Equal(t, http.StatusTooManyRequests, get("/api/services").Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitDropped))

	w = get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "autoservice_")
}
