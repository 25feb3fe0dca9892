package services

import (
	"context"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/realtime"
)

// JobNotifier pushes job-lifecycle events over SSE, channeled by job_id so a
// client watching one submission only sees that submission's events. It
// satisfies executor.Notifier.
type JobNotifier struct {
	emit SSEEmitter
}

func NewJobNotifier(emit SSEEmitter) *JobNotifier {
	return &JobNotifier{emit: emit}
}

func (n *JobNotifier) TaskCompleted(jobID, taskID string, stage int, success bool) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: jobID,
		Event:   realtime.SSEEventJobProgress,
		Data: map[string]any{
			"job_id":  jobID,
			"task_id": taskID,
			"stage":   stage,
			"success": success,
		},
	})
}

func (n *JobNotifier) StageAdvanced(jobID string, newStage int, isFinal bool) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: jobID,
		Event:   realtime.SSEEventJobProgress,
		Data: map[string]any{
			"job_id":    jobID,
			"new_stage": newStage,
			"is_final":  isFinal,
		},
	})
}

func (n *JobNotifier) JobFinalized(jobID string, status jobdomain.JobStatus) {
	if n == nil || n.emit == nil {
		return
	}
	event := realtime.SSEEventJobDone
	if status == jobdomain.JobFailed {
		event = realtime.SSEEventJobFailed
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: jobID,
		Event:   event,
		Data: map[string]any{
			"job_id": jobID,
			"status": status,
		},
	})
}
