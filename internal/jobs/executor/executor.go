// Package executor is the Task Executor (spec §4.6): consumes TaskMessages,
// dispatches them to the Task Registry, and drives the atomic
// complete-task-and-check-stage primitive through to stage advance or job
// finalization.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	jobsrepo "github.com/rmhgeo/jobengine/internal/data/repos/jobs"
	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/queue"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
	"github.com/rmhgeo/jobengine/internal/jobs/retry"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/envutil"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

// Notifier is the side-channel the Executor pushes progress events through.
// Satisfied by the realtime SSE bus; nil is a valid no-op notifier.
type Notifier interface {
	TaskCompleted(jobID, taskID string, stage int, success bool)
	StageAdvanced(jobID string, newStage int, isFinal bool)
	JobFinalized(jobID string, status jobdomain.JobStatus)
}

type Executor struct {
	log          *logger.Logger
	jobStore     jobsrepo.JobStore
	taskStore    jobsrepo.TaskStore
	jobRegistry  *registry.JobRegistry
	taskRegistry *registry.TaskRegistry
	taskQueue    queue.Queue
	jobQueue     queue.Queue
	notify       Notifier

	heartbeatInterval time.Duration
}

func New(
	baseLog *logger.Logger,
	jobStore jobsrepo.JobStore,
	taskStore jobsrepo.TaskStore,
	jobRegistry *registry.JobRegistry,
	taskRegistry *registry.TaskRegistry,
	taskQueue queue.Queue,
	jobQueue queue.Queue,
	notify Notifier,
) *Executor {
	return &Executor{
		log:               baseLog.With("component", "TaskExecutor"),
		jobStore:          jobStore,
		taskStore:         taskStore,
		jobRegistry:       jobRegistry,
		taskRegistry:      taskRegistry,
		taskQueue:         taskQueue,
		jobQueue:          jobQueue,
		notify:            notify,
		heartbeatInterval: 15 * time.Second,
	}
}

// Start launches EXECUTOR_CONCURRENCY (default 4) polling goroutines.
func (e *Executor) Start(ctx context.Context) {
	concurrency := envutil.Int("EXECUTOR_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	e.log.Info("starting task executor pool", "concurrency", concurrency)
	for i := 0; i < concurrency; i++ {
		go e.runLoop(ctx, i+1)
	}
}

func (e *Executor) runLoop(ctx context.Context, workerID int) {
	consumer := fmt.Sprintf("executor-%d", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deliveries, err := e.taskQueue.Receive(ctx, consumer, 4, 5*time.Second)
		if err != nil {
			e.log.Warn("task queue receive failed", "worker_id", workerID, "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, d := range deliveries {
			e.handle(ctx, workerID, d)
		}
	}
}

func (e *Executor) handle(ctx context.Context, workerID int, d queue.Delivery) {
	msg, err := decodeTaskMessage(d.Payload)
	if err != nil {
		e.log.Warn("dropping malformed task message", "worker_id", workerID, "error", err)
		_ = e.taskQueue.Ack(ctx, d.ID)
		return
	}
	log := e.log.With("task_id", msg.TaskID, "job_id", msg.ParentJobID, "stage", msg.Stage, "worker_id", workerID)

	dbc := dbctx.Context{Ctx: ctx}

	task, err := e.taskStore.GetTask(dbc, msg.TaskID)
	if err != nil {
		if errors.Is(err, joberrors.ErrNotFound) {
			log.Warn("task message for unknown task_id, dropping")
			_ = e.taskQueue.Ack(ctx, d.ID)
			return
		}
		log.Error("load task failed, leaving for redelivery", "error", err)
		return
	}
	if task.Status != jobdomain.TaskQueued {
		// Already PROCESSING/terminal: a duplicate delivery. Collapse to
		// a no-op per spec §4.6's idempotence contract.
		_ = e.taskQueue.Ack(ctx, d.ID)
		return
	}

	if err := e.taskStore.UpdateTaskStatus(dbc, msg.TaskID, jobdomain.TaskProcessing, map[string]any{
		"heartbeat": time.Now().UTC(),
	}); err != nil {
		log.Warn("claim transition failed, leaving for redelivery", "error", err)
		return
	}

	outcome, runErr := e.invoke(ctx, log, msg)

	if runErr != nil && retry.ShouldRetry(retry.Classify(runErr), msg.RetryCount, retry.DefaultMaxRetries) {
		e.scheduleRetry(ctx, log, msg, runErr)
		_ = e.taskQueue.Ack(ctx, d.ID)
		return
	}

	success := runErr == nil
	var resultData, errorDetails any
	if success {
		resultData = outcome.ResultData
	} else {
		errorDetails = map[string]any{"error": runErr.Error(), "class": retry.Classify(runErr).String()}
	}

	completion, err := e.taskStore.CompleteTaskAndCheckStage(dbc, msg.TaskID, msg.ParentJobID, msg.Stage, resultData, errorDetails, success)
	if err != nil {
		log.Error("complete_task_and_check_stage failed, leaving for redelivery", "error", err)
		return
	}
	_ = e.taskQueue.Ack(ctx, d.ID)

	if e.notify != nil {
		e.notify.TaskCompleted(msg.ParentJobID, msg.TaskID, msg.Stage, success)
	}

	if !success && e.failJobIfStrictPolicy(ctx, log, msg, errorDetails) {
		return
	}

	if !completion.IsLastTaskInStage {
		return
	}
	e.closeStage(ctx, log, msg.ParentJobID, msg.JobType, msg.Stage)
}

// failJobIfStrictPolicy implements spec §4.7's retry-exhaustion rule: under a
// workflow's strict retry policy, one permanently-failed task fails the
// whole job immediately rather than waiting for the stage to close with
// completed_with_errors. Returns true if it failed the job (the caller
// should skip the normal stage-close path for this task).
func (e *Executor) failJobIfStrictPolicy(ctx context.Context, log *logger.Logger, msg *jobdomain.TaskMessage, errorDetails any) bool {
	spec, ok := e.jobRegistry.Get(msg.JobType)
	if !ok || !spec.RetryPolicyStrict {
		return false
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := e.jobStore.RecordJobFailure(dbc, msg.ParentJobID, errorDetails); err != nil {
		// Job may already be terminal (finalized by a concurrent closeStage,
		// or already failed by another strict-policy task) — not an error.
		log.Debug("strict-policy immediate job failure no-op", "error", err)
		return false
	}
	log.Warn("task failed under strict retry policy, job failed immediately")
	if e.notify != nil {
		e.notify.JobFinalized(msg.ParentJobID, jobdomain.JobFailed)
	}
	return true
}

func (e *Executor) invoke(ctx context.Context, log *logger.Logger, msg *jobdomain.TaskMessage) (outcome registry.TaskOutcome, err error) {
	handler, ok := e.taskRegistry.Get(msg.TaskType)
	if !ok {
		return registry.TaskOutcome{}, retry.AsContractViolation(fmt.Errorf("no handler registered for task_type=%s", msg.TaskType))
	}

	stopHB := e.startHeartbeat(ctx, msg.TaskID)
	defer stopHB()

	defer func() {
		if r := recover(); r != nil {
			log.Error("task handler panic", "panic", r)
			err = retry.AsTransient(fmt.Errorf("panic: %v", r))
		}
	}()

	ec := &registry.ExecContext{
		Ctx:        ctx,
		TaskID:     msg.TaskID,
		JobID:      msg.ParentJobID,
		Stage:      msg.Stage,
		TaskType:   msg.TaskType,
		Parameters: msg.Parameters,
		Heartbeat:  func() { _ = e.taskStore.UpdateHeartbeat(dbctx.Context{Ctx: ctx}, msg.TaskID) },
	}
	return handler(ec)
}

func (e *Executor) startHeartbeat(ctx context.Context, taskID string) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(e.heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = e.taskStore.UpdateHeartbeat(dbctx.Context{Ctx: ctx}, taskID)
			}
		}
	}()
	return func() { close(done) }
}

// scheduleRetry transitions the task PROCESSING->RETRYING->QUEUED and
// re-enqueues a fresh TaskMessage with retry_count+1 and computed backoff,
// per spec §4.7.
func (e *Executor) scheduleRetry(ctx context.Context, log *logger.Logger, msg *jobdomain.TaskMessage, cause error) {
	dbc := dbctx.Context{Ctx: ctx}
	delay := retry.JitteredBackoffDelay(msg.RetryCount)

	if err := e.taskStore.UpdateTaskStatus(dbc, msg.TaskID, jobdomain.TaskRetrying, map[string]any{
		"retry_count": msg.RetryCount + 1,
	}); err != nil {
		log.Error("transition to retrying failed", "error", err)
		return
	}
	if err := e.taskStore.UpdateTaskStatus(dbc, msg.TaskID, jobdomain.TaskQueued, nil); err != nil {
		log.Error("transition retrying->queued failed", "error", err)
		return
	}

	next := *msg
	next.RetryCount = msg.RetryCount + 1
	payload, err := encodeTaskMessage(next)
	if err != nil {
		log.Error("encode retry message failed", "error", err)
		return
	}
	if err := e.taskQueue.EnqueueDelayed(ctx, payload, delay); err != nil {
		log.Error("enqueue retry failed", "error", err)
		return
	}
	log.Info("task scheduled for retry", "delay", delay, "retry_count", next.RetryCount, "cause", cause.Error())
}

// closeStage runs the last-task tail of spec §4.6: aggregate the stage,
// advance the job, and either enqueue the next stage or finalize the job.
func (e *Executor) closeStage(ctx context.Context, log *logger.Logger, jobID, jobType string, stage int) {
	dbc := dbctx.Context{Ctx: ctx}

	tasks, err := e.taskStore.ListTasksForJob(dbc, jobID, &stage, nil)
	if err != nil {
		log.Error("list stage tasks failed", "error", err)
		return
	}
	stageResult := jobdomain.BuildStageResult(stage, tasks)

	newStage, isFinal, err := e.jobStore.AdvanceJobStage(dbc, jobID, stage, stageResult)
	if err != nil {
		if errors.Is(err, joberrors.ErrStaleStage) {
			log.Debug("lost advance_job_stage race, another worker already advanced")
			return
		}
		log.Error("advance_job_stage failed", "error", err)
		return
	}
	if e.notify != nil {
		e.notify.StageAdvanced(jobID, newStage, isFinal)
	}

	if !isFinal {
		job, err := e.jobStore.GetJob(dbc, jobID)
		if err != nil {
			log.Error("load job for next-stage enqueue failed", "error", err)
			return
		}
		params, err := job.ParametersMap()
		if err != nil {
			log.Error("decode job parameters failed", "error", err)
			return
		}
		payload, err := encodeJobMessage(jobdomain.JobMessage{
			JobID:      jobID,
			JobType:    jobType,
			Stage:      newStage,
			Parameters: params,
		})
		if err != nil {
			log.Error("encode next job message failed", "error", err)
			return
		}
		if err := e.jobQueue.Enqueue(ctx, payload); err != nil {
			log.Error("enqueue next job message failed", "error", err)
		}
		return
	}

	e.finalize(ctx, log, jobID, jobType)
}

func (e *Executor) finalize(ctx context.Context, log *logger.Logger, jobID, jobType string) {
	dbc := dbctx.Context{Ctx: ctx}

	job, err := e.jobStore.GetJob(dbc, jobID)
	if err != nil {
		log.Error("load job for finalize failed", "error", err)
		return
	}
	spec, ok := e.jobRegistry.Get(jobType)
	if !ok {
		log.Error("no workflow spec registered for finalize", "job_type", jobType)
		_ = e.jobStore.RecordJobFailure(dbc, jobID, map[string]any{"error": "no workflow spec registered"})
		return
	}
	allResults, err := job.StageResultsMap()
	if err != nil {
		log.Error("decode stage results failed", "error", err)
		_ = e.jobStore.RecordJobFailure(dbc, jobID, map[string]any{"error": err.Error()})
		return
	}

	resultData, status, err := spec.FinalizeJob(job, allResults)
	if err != nil {
		log.Error("finalize_job failed", "error", err)
		_ = e.jobStore.RecordJobFailure(dbc, jobID, map[string]any{"error": err.Error()})
		return
	}

	if status == jobdomain.JobFailed {
		if err := e.jobStore.RecordJobFailure(dbc, jobID, resultData); err != nil {
			log.Error("record_job_failure failed", "error", err)
		}
	} else {
		if err := e.jobStore.RecordJobCompletion(dbc, jobID, status, resultData); err != nil {
			log.Error("record_job_completion failed", "error", err)
		}
	}
	if e.notify != nil {
		e.notify.JobFinalized(jobID, status)
	}
}
