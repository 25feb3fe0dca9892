package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/rmhgeo/jobengine/internal/data/db"
	jobsrepo "github.com/rmhgeo/jobengine/internal/data/repos/jobs"
	httpserver "github.com/rmhgeo/jobengine/internal/http"
	"github.com/rmhgeo/jobengine/internal/jobs/executor"
	"github.com/rmhgeo/jobengine/internal/jobs/gateway"
	"github.com/rmhgeo/jobengine/internal/jobs/janitor"
	"github.com/rmhgeo/jobengine/internal/jobs/orchestrator"
	"github.com/rmhgeo/jobengine/internal/jobs/queue"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
	"github.com/rmhgeo/jobengine/internal/observability"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
	"github.com/rmhgeo/jobengine/internal/realtime"
	"github.com/rmhgeo/jobengine/internal/services"
	"github.com/rmhgeo/jobengine/internal/workflows"
)

// App wires every collaborator the Submission Gateway and the worker pool
// share (spec §6): the Job/Task Registries and their stores, the two Redis
// Streams queues, and the example workflows that fill the registries.
// cmd/api drives Run after New; cmd/worker drives Start after New. Both
// binaries build the same App so a single process could, in principle, run
// both roles, matching the teacher's single-App-many-entrypoints shape.
type App struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Router  *httpserver.Server
	Cfg     Config
	Clients Clients
	Metrics *observability.Metrics
	SSEHub  *realtime.SSEHub
	Gateway *gateway.Gateway

	JobQueue  queue.Queue
	TaskQueue queue.Queue

	Orchestrator *orchestrator.Orchestrator
	Executor     *executor.Executor
	Janitor      *janitor.Janitor

	shutdownOTel func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig()

	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "jobengine",
		Environment: logMode,
	})
	metrics := observability.NewMetrics()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	jobStore := jobsrepo.NewJobStore(theDB, log)
	taskStore := jobsrepo.NewTaskStore(theDB, log)

	ctx := context.Background()
	rdb, err := queue.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	jobQueue, err := queue.NewRedisQueue(ctx, rdb, log, cfg.QueueJobsName, cfg.QueueMaxDeliveryCount)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init jobs queue: %w", err)
	}
	taskQueue, err := queue.NewRedisQueue(ctx, rdb, log, cfg.QueueTasksName, cfg.QueueMaxDeliveryCount)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init tasks queue: %w", err)
	}

	clients, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init clients: %w", err)
	}

	jobRegistry := registry.NewJobRegistry()
	taskRegistry := registry.NewTaskRegistry()
	if err := workflows.Register(jobRegistry, taskRegistry, clients.Bucket); err != nil {
		log.Sync()
		return nil, fmt.Errorf("register workflows: %w", err)
	}

	sseHub := realtime.NewSSEHub(log)
	var emit services.SSEEmitter = &services.HubEmitter{Hub: sseHub}
	if clients.SSEBus != nil {
		emit = &services.RedisEmitter{Bus: clients.SSEBus}
		if err := clients.SSEBus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
			log.Warn("start SSE bus forwarder failed", "error", err)
		}
	}
	notify := services.NewJobNotifier(emit)

	gw := gateway.New(log, jobRegistry, jobStore, jobQueue)
	orch := orchestrator.New(log, jobStore, taskStore, jobRegistry, jobQueue, taskQueue)
	exec := executor.New(log, jobStore, taskStore, jobRegistry, taskRegistry, taskQueue, jobQueue, notify)
	jan := janitor.New(log, jobStore, taskStore, taskQueue, jobQueue)

	handlers := wireHandlers(log, gw, sseHub)
	router := wireRouter(handlers, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Clients:      clients,
		Metrics:      metrics,
		SSEHub:       sseHub,
		Gateway:      gw,
		JobQueue:     jobQueue,
		TaskQueue:    taskQueue,
		Orchestrator: orch,
		Executor:     exec,
		Janitor:      jan,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Start launches the worker pool: the orchestrator and executor polling
// goroutines, the janitor's periodic sweep, and a delayed-entry promoter for
// each queue so scheduled retries and delayed tasks surface without a
// dedicated scheduler process.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Orchestrator.Start(ctx)
	a.Executor.Start(ctx)
	go a.Janitor.Start(ctx)

	onErr := func(err error) { a.Log.Warn("queue promoter error", "error", err) }
	go queue.RunPromoter(ctx, a.JobQueue, 5*time.Second, onErr)
	go queue.RunPromoter(ctx, a.TaskQueue, 5*time.Second, onErr)
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.JobQueue != nil {
		_ = a.JobQueue.Close()
	}
	if a.TaskQueue != nil {
		_ = a.TaskQueue.Close()
	}
	if a.shutdownOTel != nil {
		_ = a.shutdownOTel(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
