package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httpH "github.com/rmhgeo/jobengine/internal/http/handlers"
	httpMW "github.com/rmhgeo/jobengine/internal/http/middleware"
)

// RouterConfig wires the Submission Gateway's HTTP surface (spec §6): the
// submit/poll/cancel job routes, health, and the ambient observability
// endpoint.
type RouterConfig struct {
	HealthHandler  *httpH.HealthHandler
	JobHandler     *httpH.JobHandler
	SSEHandler     *httpH.SSEHandler
	MetricsMW      gin.HandlerFunc
	MetricsHandler http.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS())
	if cfg.MetricsMW != nil {
		r.Use(cfg.MetricsMW)
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	if cfg.JobHandler != nil {
		r.POST("/jobs/:job_type", cfg.JobHandler.SubmitJob)
		r.GET("/jobs/:job_id", cfg.JobHandler.GetJob)
		r.POST("/jobs/:job_id/cancel", cfg.JobHandler.CancelJob)
	}
	if cfg.SSEHandler != nil {
		r.GET("/jobs/:job_id/events", cfg.SSEHandler.StreamJobEvents)
	}

	return r
}
