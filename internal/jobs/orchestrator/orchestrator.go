// Package orchestrator is the Job Orchestrator (spec §4.5): the three-phase
// consumer of JobMessage that turns a stage number into durably recorded,
// enqueued tasks without ever stranding a job in PROCESSING.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	jobsrepo "github.com/rmhgeo/jobengine/internal/data/repos/jobs"
	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/queue"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/envutil"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

type Orchestrator struct {
	log         *logger.Logger
	jobStore    jobsrepo.JobStore
	taskStore   jobsrepo.TaskStore
	jobRegistry *registry.JobRegistry
	jobQueue    queue.Queue
	taskQueue   queue.Queue
}

func New(
	baseLog *logger.Logger,
	jobStore jobsrepo.JobStore,
	taskStore jobsrepo.TaskStore,
	jobRegistry *registry.JobRegistry,
	jobQueue queue.Queue,
	taskQueue queue.Queue,
) *Orchestrator {
	return &Orchestrator{
		log:         baseLog.With("component", "JobOrchestrator"),
		jobStore:    jobStore,
		taskStore:   taskStore,
		jobRegistry: jobRegistry,
		jobQueue:    jobQueue,
		taskQueue:   taskQueue,
	}
}

// Start launches ORCHESTRATOR_CONCURRENCY (default 2) polling goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	concurrency := envutil.Int("ORCHESTRATOR_CONCURRENCY", 2)
	if concurrency < 1 {
		concurrency = 1
	}
	o.log.Info("starting job orchestrator pool", "concurrency", concurrency)
	for i := 0; i < concurrency; i++ {
		go o.runLoop(ctx, i+1)
	}
}

func (o *Orchestrator) runLoop(ctx context.Context, workerID int) {
	consumer := fmt.Sprintf("orchestrator-%d", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deliveries, err := o.jobQueue.Receive(ctx, consumer, 2, 5*time.Second)
		if err != nil {
			o.log.Warn("job queue receive failed", "worker_id", workerID, "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, d := range deliveries {
			o.handle(ctx, d)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, d queue.Delivery) {
	msg, err := decodeJobMessage(d.Payload)
	if err != nil {
		o.log.Warn("dropping malformed job message", "error", err)
		_ = o.jobQueue.Ack(ctx, d.ID)
		return
	}
	log := o.log.With("job_id", msg.JobID, "job_type", msg.JobType, "stage", msg.Stage)
	dbc := dbctx.Context{Ctx: ctx}

	// Phase 1: validate and load.
	job, err := o.jobStore.GetJob(dbc, msg.JobID)
	if err != nil {
		if errors.Is(err, joberrors.ErrNotFound) {
			log.Warn("job message for unknown job_id, dropping")
			_ = o.jobQueue.Ack(ctx, d.ID)
			return
		}
		log.Error("load job failed, leaving for redelivery", "error", err)
		return
	}
	if job.Stage != msg.Stage {
		log.Debug("stale job message, job already advanced past this stage")
		_ = o.jobQueue.Ack(ctx, d.ID)
		return
	}
	if job.Status.Terminal() {
		log.Debug("job already terminal, dropping message")
		_ = o.jobQueue.Ack(ctx, d.ID)
		return
	}

	spec, ok := o.jobRegistry.Get(msg.JobType)
	if !ok {
		log.Error("no workflow spec registered for job_type")
		_ = o.jobStore.RecordJobFailure(dbc, msg.JobID, map[string]any{"error": "no workflow spec registered"})
		_ = o.jobQueue.Ack(ctx, d.ID)
		return
	}

	allResults, err := job.StageResultsMap()
	if err != nil {
		log.Error("decode stage results failed", "error", err)
		_ = o.jobStore.RecordJobFailure(dbc, msg.JobID, map[string]any{"error": err.Error()})
		_ = o.jobQueue.Ack(ctx, d.ID)
		return
	}

	// Phase 2: task generation.
	taskSpecs, err := spec.CreateTasksForStage(job, msg.Stage, allResults)
	if err != nil {
		log.Error("create_tasks_for_stage failed", "error", err)
		_ = o.jobStore.RecordJobFailure(dbc, msg.JobID, map[string]any{"error": err.Error()})
		_ = o.jobQueue.Ack(ctx, d.ID)
		return
	}
	if len(taskSpecs) == 0 {
		log.Error("create_tasks_for_stage returned zero tasks")
		_ = o.jobStore.RecordJobFailure(dbc, msg.JobID, map[string]any{"error": "workflow produced no tasks for stage"})
		_ = o.jobQueue.Ack(ctx, d.ID)
		return
	}

	tasks := make([]*jobdomain.Task, 0, len(taskSpecs))
	for _, ts := range taskSpecs {
		taskID, err := jobdomain.BuildTaskID(msg.JobID, msg.Stage, ts.SemanticIndex)
		if err != nil {
			log.Error("build_task_id failed", "error", err, "semantic_index", ts.SemanticIndex)
			_ = o.jobStore.RecordJobFailure(dbc, msg.JobID, map[string]any{"error": err.Error()})
			_ = o.jobQueue.Ack(ctx, d.ID)
			return
		}
		paramsJSON, err := json.Marshal(ts.Parameters)
		if err != nil {
			log.Error("marshal task parameters failed", "error", err)
			_ = o.jobStore.RecordJobFailure(dbc, msg.JobID, map[string]any{"error": err.Error()})
			_ = o.jobQueue.Ack(ctx, d.ID)
			return
		}
		tasks = append(tasks, &jobdomain.Task{
			TaskID:      taskID,
			ParentJobID: msg.JobID,
			JobType:     msg.JobType,
			TaskType:    ts.TaskType,
			Stage:       msg.Stage,
			TaskIndex:   ts.SemanticIndex,
			Status:      jobdomain.TaskQueued,
			Parameters:  datatypes.JSON(paramsJSON),
		})
	}

	// Phase 3: task creation and enqueue.
	created, err := o.taskStore.CreateTaskBatch(dbc, msg.JobID, tasks)
	if err != nil {
		log.Error("create_task_batch failed", "error", err)
		_ = o.jobStore.RecordJobFailure(dbc, msg.JobID, map[string]any{"error": err.Error()})
		_ = o.jobQueue.Ack(ctx, d.ID)
		return
	}

	if job.Status != jobdomain.JobProcessing {
		if err := o.jobStore.UpdateJobStatus(dbc, msg.JobID, jobdomain.JobProcessing, nil); err != nil {
			// Tasks are durably recorded and still enqueued below; the
			// job stays QUEUED, which the Janitor's stuck-job scan
			// (PROCESSING jobs only) does not cover.
			log.Error("update_job_status(PROCESSING) failed after task creation", "error", err)
		}
	}

	for _, t := range created {
		var params map[string]any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &params)
		}
		payload, err := encodeTaskMessage(jobdomain.TaskMessage{
			TaskID:      t.TaskID,
			ParentJobID: t.ParentJobID,
			JobType:     t.JobType,
			TaskType:    t.TaskType,
			Stage:       t.Stage,
			TaskIndex:   t.TaskIndex,
			Parameters:  params,
			RetryCount:  0,
		})
		if err != nil {
			log.Error("encode task message failed", "error", err, "task_id", t.TaskID)
			continue
		}
		if err := o.taskQueue.Enqueue(ctx, payload); err != nil {
			// Job stays PROCESSING with a durable QUEUED task row that has
			// no queue entry. No Janitor scan re-enqueues QUEUED task rows,
			// and the stuck-job scan skips a job that still has a QUEUED
			// task, so the task is neither re-enqueued nor failed.
			log.Error("enqueue task message failed", "error", err, "task_id", t.TaskID)
		}
	}

	_ = o.jobQueue.Ack(ctx, d.ID)
}
