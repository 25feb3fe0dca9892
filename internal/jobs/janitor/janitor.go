// Package janitor is the periodic sweeper (spec §4.8): heartbeat-lapse
// recovery, stuck-job detection, orphan cleanup, and dead-letter
// reconciliation.
package janitor

import (
	"context"
	"encoding/json"
	"time"

	jobsrepo "github.com/rmhgeo/jobengine/internal/data/repos/jobs"
	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/queue"
	"github.com/rmhgeo/jobengine/internal/jobs/retry"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/envutil"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

type Janitor struct {
	log       *logger.Logger
	jobStore  jobsrepo.JobStore
	taskStore jobsrepo.TaskStore
	taskQueue queue.Queue
	jobQueue  queue.Queue

	leaseGrace     time.Duration
	stuckThreshold time.Duration
	maxRetries     int
}

func New(baseLog *logger.Logger, jobStore jobsrepo.JobStore, taskStore jobsrepo.TaskStore, taskQueue queue.Queue, jobQueue queue.Queue) *Janitor {
	return &Janitor{
		log:            baseLog.With("component", "Janitor"),
		jobStore:       jobStore,
		taskStore:      taskStore,
		taskQueue:      taskQueue,
		jobQueue:       jobQueue,
		leaseGrace:     envutil.Seconds("JANITOR_LEASE_GRACE_SECONDS", 90),
		stuckThreshold: envutil.Seconds("JANITOR_STUCK_JOB_THRESHOLD_SECONDS", 600),
		maxRetries:     envutil.Int("RETRY_MAX_ATTEMPTS", retry.DefaultMaxRetries),
	}
}

// Start runs Sweep every janitor.interval_seconds (default 60) until ctx is
// canceled.
func (j *Janitor) Start(ctx context.Context) {
	interval := envutil.Seconds("JANITOR_INTERVAL_SECONDS", 60)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	j.log.Info("janitor started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one pass of all five scans. Each scan is independent; a
// failure in one does not block the others.
func (j *Janitor) Sweep(ctx context.Context) {
	j.reclaimHeartbeatLapsed(ctx)
	j.sweepQueueLeases(ctx)
	j.sweepJobQueueLeases(ctx)
	j.deleteOrphans(ctx)
	j.failStuckJobs(ctx)
}

// failStuckJobs implements spec §4.8 item 2.
func (j *Janitor) failStuckJobs(ctx context.Context) {
	dbc := dbctx.Context{Ctx: ctx}
	cutoff := time.Now().Add(-j.stuckThreshold)

	ids, err := j.jobStore.ListStuckJobIDs(dbc, cutoff)
	if err != nil {
		j.log.Warn("list stuck jobs failed", "error", err)
		return
	}
	for _, jobID := range ids {
		if err := j.jobStore.RecordJobFailure(dbc, jobID, map[string]any{"error": "orchestration_stuck"}); err != nil {
			j.log.Warn("fail stuck job failed", "job_id", jobID, "error", err)
			continue
		}
		j.log.Error("job failed: orchestration_stuck", "job_id", jobID)
	}
}

// reclaimHeartbeatLapsed implements spec §4.8 item 1.
func (j *Janitor) reclaimHeartbeatLapsed(ctx context.Context) {
	dbc := dbctx.Context{Ctx: ctx}
	cutoff := time.Now().Add(-j.leaseGrace)

	lapsed, err := j.taskStore.ListHeartbeatLapsed(dbc, cutoff)
	if err != nil {
		j.log.Warn("list heartbeat-lapsed tasks failed", "error", err)
		return
	}

	for _, t := range lapsed {
		if t.RetryCount >= j.maxRetries {
			if err := j.taskStore.UpdateTaskStatus(dbc, t.TaskID, jobdomain.TaskFailed, map[string]any{
				"error_details": json.RawMessage(`{"error":"heartbeat lapsed, retries exhausted"}`),
			}); err != nil {
				j.log.Warn("fail heartbeat-lapsed task failed", "task_id", t.TaskID, "error", err)
			}
			continue
		}

		ok, err := j.taskStore.ReclaimToQueued(dbc, t.TaskID)
		if err != nil {
			j.log.Warn("reclaim heartbeat-lapsed task failed", "task_id", t.TaskID, "error", err)
			continue
		}
		if !ok {
			continue // raced with the Executor finishing it normally
		}

		var params map[string]any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &params)
		}
		payload, err := json.Marshal(jobdomain.TaskMessage{
			TaskID:      t.TaskID,
			ParentJobID: t.ParentJobID,
			JobType:     t.JobType,
			TaskType:    t.TaskType,
			Stage:       t.Stage,
			TaskIndex:   t.TaskIndex,
			Parameters:  params,
			RetryCount:  t.RetryCount,
		})
		if err != nil {
			j.log.Warn("encode reclaim message failed", "task_id", t.TaskID, "error", err)
			continue
		}
		if err := j.taskQueue.Enqueue(ctx, payload); err != nil {
			j.log.Warn("re-enqueue reclaimed task failed", "task_id", t.TaskID, "error", err)
			continue
		}
		j.log.Info("reclaimed heartbeat-lapsed task", "task_id", t.TaskID)
	}
}

// sweepQueueLeases recovers task messages whose visibility lease elapsed
// without an Ack at the transport level (distinct from the DB heartbeat
// check above: this catches a consumer that crashed before ever claiming
// the task row). Entries past max_delivery_count are dead-lettered by the
// transport; spec §4.8 item 4 requires their task row be forced FAILED.
func (j *Janitor) sweepQueueLeases(ctx context.Context) {
	reclaimed, deadLettered, err := j.taskQueue.ReclaimStale(ctx, "janitor", j.leaseGrace, 100)
	if err != nil {
		j.log.Warn("queue lease sweep failed", "error", err)
		return
	}

	for _, d := range reclaimed {
		if err := j.taskQueue.Enqueue(ctx, d.Payload); err != nil {
			j.log.Warn("re-enqueue lease-expired message failed", "error", err)
			continue
		}
		if err := j.taskQueue.Ack(ctx, d.ID); err != nil {
			j.log.Warn("ack lease-expired original failed", "error", err)
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	for _, d := range deadLettered {
		var msg jobdomain.TaskMessage
		if err := json.Unmarshal(d.Payload, &msg); err != nil {
			j.log.Warn("dead-lettered message undecodable, skipping reconciliation", "error", err)
			continue
		}
		task, err := j.taskStore.GetTask(dbc, msg.TaskID)
		if err != nil || task.Status.Terminal() {
			continue
		}
		if err := j.taskStore.UpdateTaskStatus(dbc, msg.TaskID, jobdomain.TaskFailed, map[string]any{
			"error_details": json.RawMessage(`{"error":"dead-lettered: max delivery count exceeded"}`),
		}); err != nil {
			j.log.Warn("fail dead-lettered task failed", "task_id", msg.TaskID, "error", err)
		}
	}
}

// sweepJobQueueLeases is sweepQueueLeases' counterpart for the jobs queue:
// spec §4.2's visibility-lease recovery and dead-lettering apply to both
// logical queues, not just tasks — an Orchestrator that crashes after
// XReadGroup but before Ack would otherwise leave its JobMessage stuck
// pending until the much slower stuck-job DB sweep notices. A dead-lettered
// JobMessage (retries exhausted at the transport level) fails the job
// outright rather than leaving it PROCESSING forever.
func (j *Janitor) sweepJobQueueLeases(ctx context.Context) {
	if j.jobQueue == nil {
		return
	}
	reclaimed, deadLettered, err := j.jobQueue.ReclaimStale(ctx, "janitor", j.leaseGrace, 100)
	if err != nil {
		j.log.Warn("job queue lease sweep failed", "error", err)
		return
	}

	for _, d := range reclaimed {
		if err := j.jobQueue.Enqueue(ctx, d.Payload); err != nil {
			j.log.Warn("re-enqueue lease-expired job message failed", "error", err)
			continue
		}
		if err := j.jobQueue.Ack(ctx, d.ID); err != nil {
			j.log.Warn("ack lease-expired original job message failed", "error", err)
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	for _, d := range deadLettered {
		var msg jobdomain.JobMessage
		if err := json.Unmarshal(d.Payload, &msg); err != nil {
			j.log.Warn("dead-lettered job message undecodable, skipping reconciliation", "error", err)
			continue
		}
		if err := j.jobStore.RecordJobFailure(dbc, msg.JobID, map[string]any{
			"error": "dead-lettered: max delivery count exceeded for job message",
		}); err != nil {
			j.log.Warn("fail dead-lettered job failed", "job_id", msg.JobID, "error", err)
		}
	}
}

// deleteOrphans implements spec §4.8 item 3.
func (j *Janitor) deleteOrphans(ctx context.Context) {
	n, err := j.taskStore.DeleteOrphans(dbctx.Context{Ctx: ctx})
	if err != nil {
		j.log.Warn("delete orphan tasks failed", "error", err)
		return
	}
	if n > 0 {
		j.log.Info("deleted orphan tasks", "count", n)
	}
}
