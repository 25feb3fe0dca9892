// Package gateway is the Submission Gateway (spec §4.4): the thin,
// idempotent front door that turns a job_type + parameters pair into a
// durable Job row and, on first submission, a JobMessage for stage 1.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"

	jobsrepo "github.com/rmhgeo/jobengine/internal/data/repos/jobs"
	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/queue"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

// ErrUnknownJobType is returned when no WorkflowSpec is registered for the
// requested job_type (spec §4.4 step 1).
var ErrUnknownJobType = errors.New("unknown job_type")

// SubmitResult is the Gateway's response to a submission (spec §4.4 step 5).
type SubmitResult struct {
	JobID        string
	Deduplicated bool
	Status       jobdomain.JobStatus
}

type Gateway struct {
	log         *logger.Logger
	jobRegistry *registry.JobRegistry
	jobStore    jobsrepo.JobStore
	jobQueue    queue.Queue
}

func New(baseLog *logger.Logger, jobRegistry *registry.JobRegistry, jobStore jobsrepo.JobStore, jobQueue queue.Queue) *Gateway {
	return &Gateway{
		log:         baseLog.With("component", "SubmissionGateway"),
		jobRegistry: jobRegistry,
		jobStore:    jobStore,
		jobQueue:    jobQueue,
	}
}

// Submit runs spec §4.4's five steps. params is the caller-supplied,
// not-yet-normalised parameter map.
func (g *Gateway) Submit(ctx context.Context, jobType string, params map[string]any) (*SubmitResult, error) {
	spec, ok := g.jobRegistry.Get(jobType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	normalised := params
	if normalised == nil {
		normalised = map[string]any{}
	}
	if spec.ValidateParameters != nil {
		if err := spec.ValidateParameters(normalised); err != nil {
			return nil, fmt.Errorf("%w: %v", joberrors.ErrInvalidArgument, err)
		}
	}

	jobID, err := jobdomain.DeriveJobID(jobType, normalised)
	if err != nil {
		return nil, fmt.Errorf("derive job_id: %w", err)
	}

	paramsJSON, err := json.Marshal(normalised)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}

	job := &jobdomain.Job{
		JobID:        jobID,
		JobType:      jobType,
		Status:       jobdomain.JobQueued,
		Stage:        1,
		TotalStages:  spec.TotalStages,
		Parameters:   datatypes.JSON(paramsJSON),
		StageResults: datatypes.JSON([]byte("{}")),
	}

	dbc := dbctx.Context{Ctx: ctx}
	created, existingStatus, err := g.jobStore.CreateJob(dbc, job)
	if err != nil {
		return nil, fmt.Errorf("create_job: %w", err)
	}

	if !created {
		g.log.Debug("submission deduplicated against existing job", "job_id", jobID, "job_type", jobType, "status", existingStatus)
		return &SubmitResult{JobID: jobID, Deduplicated: true, Status: existingStatus}, nil
	}

	msg := jobdomain.JobMessage{
		JobID:      jobID,
		JobType:    jobType,
		Stage:      1,
		Parameters: normalised,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal job message: %w", err)
	}
	if err := g.jobQueue.Enqueue(ctx, payload); err != nil {
		// The job row exists and is durable, but nothing re-enqueues
		// stage 1: the Janitor's stuck-job scan covers PROCESSING jobs
		// only, so the job stays QUEUED. Submission still succeeds from
		// the caller's perspective.
		g.log.Error("enqueue stage-1 job message failed", "job_id", jobID, "error", err)
	}

	return &SubmitResult{JobID: jobID, Deduplicated: false, Status: jobdomain.JobQueued}, nil
}

// Get returns a job's current state for the GET /jobs/{job_id} poll
// endpoint.
func (g *Gateway) Get(ctx context.Context, jobID string) (*jobdomain.Job, error) {
	return g.jobStore.GetJob(dbctx.Context{Ctx: ctx}, jobID)
}

// Cancel implements the admin cancel path: force the job to FAILED.
// In-flight tasks complete normally; their subsequent stage advancement is
// refused by AdvanceJobStage, which rejects a job that is already terminal
// (spec's cancellation note).
func (g *Gateway) Cancel(ctx context.Context, jobID string) error {
	dbc := dbctx.Context{Ctx: ctx}
	err := g.jobStore.UpdateJobStatus(dbc, jobID, jobdomain.JobFailed, map[string]any{
		"error_details": datatypes.JSON([]byte(`{"error":"canceled"}`)),
	})
	if err != nil && errors.Is(err, joberrors.ErrInvalidTransition) {
		// Already terminal: cancel of a finished job is a no-op, not an error.
		return nil
	}
	return err
}
