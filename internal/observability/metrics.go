package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide set of Prometheus collectors for the API
// server and the job/task worker pool. One instance is created in app.New
// and handed to the HTTP router, whose middleware records the API series;
// the Gateway, Orchestrator, Executor, and Janitor do not receive it, so
// nothing records into the queue, task, stage, or janitor collectors.
type Metrics struct {
	reg *prometheus.Registry

	apiInflight  prometheus.Gauge
	apiRequests  *prometheus.HistogramVec
	queueDepth   *prometheus.GaugeVec
	taskOutcomes *prometheus.CounterVec
	stageAdvance *prometheus.HistogramVec
	janitorSweep *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		reg: reg,
		apiInflight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "jobengine",
			Subsystem: "api",
			Name:      "inflight_requests",
			Help:      "Number of HTTP requests currently being served.",
		}),
		apiRequests: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobengine",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method, route, and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		queueDepth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jobengine",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Approximate pending entry count per queue and segment (stream, delayed, dead-letter).",
		}, []string{"queue", "segment"}),
		taskOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobengine",
			Subsystem: "task",
			Name:      "outcomes_total",
			Help:      "Task handler invocations by job_type, task_type, and outcome classification.",
		}, []string{"job_type", "task_type", "outcome"}),
		stageAdvance: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobengine",
			Subsystem: "stage",
			Name:      "advance_duration_seconds",
			Help:      "Time from stage's first task creation to advance_job_stage succeeding.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"job_type"}),
		janitorSweep: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobengine",
			Subsystem: "janitor",
			Name:      "sweep_findings_total",
			Help:      "Items acted on per janitor sweep type.",
		}, []string{"sweep"}),
	}
	return m
}

// Handler exposes the registry for mounting at GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ApiInflightInc() { m.apiInflight.Inc() }
func (m *Metrics) ApiInflightDec() { m.apiInflight.Dec() }

func (m *Metrics) ObserveAPI(method, route, status string, d time.Duration) {
	m.apiRequests.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// SetQueueDepth records a point-in-time depth sample; callers poll the
// transport (XLen / ZCard) and report here rather than this package owning
// any transport knowledge.
func (m *Metrics) SetQueueDepth(queue, segment string, depth float64) {
	m.queueDepth.WithLabelValues(queue, segment).Set(depth)
}

func (m *Metrics) ObserveTaskOutcome(jobType, taskType, outcome string) {
	m.taskOutcomes.WithLabelValues(jobType, taskType, outcome).Inc()
}

func (m *Metrics) ObserveStageAdvance(jobType string, d time.Duration) {
	m.stageAdvance.WithLabelValues(jobType).Observe(d.Seconds())
}

func (m *Metrics) ObserveJanitorSweep(sweep string, count int) {
	if count <= 0 {
		return
	}
	m.janitorSweep.WithLabelValues(sweep).Add(float64(count))
}
