package app

import (
	"github.com/rmhgeo/jobengine/internal/http"
	httpH "github.com/rmhgeo/jobengine/internal/http/handlers"
	httpMW "github.com/rmhgeo/jobengine/internal/http/middleware"
	"github.com/rmhgeo/jobengine/internal/jobs/gateway"
	"github.com/rmhgeo/jobengine/internal/observability"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
	"github.com/rmhgeo/jobengine/internal/realtime"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Job    *httpH.JobHandler
	SSE    *httpH.SSEHandler
}

func wireHandlers(log *logger.Logger, gw *gateway.Gateway, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(),
		Job:    httpH.NewJobHandler(gw),
		SSE:    httpH.NewSSEHandler(hub, gw, log),
	}
}

func wireRouter(handlers Handlers, metrics *observability.Metrics) *http.Server {
	return http.NewServer(http.RouterConfig{
		HealthHandler:  handlers.Health,
		JobHandler:     handlers.Job,
		SSEHandler:     handlers.SSE,
		MetricsMW:      httpMW.Metrics(metrics),
		MetricsHandler: metrics.Handler(),
	})
}
