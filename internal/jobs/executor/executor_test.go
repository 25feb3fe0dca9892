package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	jobsrepo "github.com/rmhgeo/jobengine/internal/data/repos/jobs"
	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

type fakeJobStore struct {
	failed       bool
	failedReason any
	failErr      error
}

func (s *fakeJobStore) CreateJob(dbctx.Context, *jobdomain.Job) (bool, jobdomain.JobStatus, error) {
	return false, "", nil
}
func (s *fakeJobStore) GetJob(dbctx.Context, string) (*jobdomain.Job, error) { return nil, nil }
func (s *fakeJobStore) UpdateJobStatus(dbctx.Context, string, jobdomain.JobStatus, map[string]any) error {
	return nil
}
func (s *fakeJobStore) AdvanceJobStage(dbctx.Context, string, int, jobdomain.StageResult) (int, bool, error) {
	return 0, false, nil
}
func (s *fakeJobStore) RecordJobCompletion(dbctx.Context, string, jobdomain.JobStatus, any) error {
	return nil
}
func (s *fakeJobStore) RecordJobFailure(_ dbctx.Context, _ string, errorDetails any) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.failed = true
	s.failedReason = errorDetails
	return nil
}
func (s *fakeJobStore) ListStuckJobIDs(dbctx.Context, time.Time) ([]string, error) { return nil, nil }

var _ jobsrepo.JobStore = (*fakeJobStore)(nil)

func testExecutor(t *testing.T, jobStore *fakeJobStore, jobRegistry *registry.JobRegistry) *Executor {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return &Executor{
		log:         log,
		jobStore:    jobStore,
		jobRegistry: jobRegistry,
	}
}

func TestFailJobIfStrictPolicyFailsJobOnStrictWorkflow(t *testing.T) {
	reg := registry.NewJobRegistry()
	if err := reg.Register(&registry.WorkflowSpec{
		JobType:             "strict_job",
		TotalStages:         1,
		RetryPolicyStrict:   true,
		ValidateParameters:  func(map[string]any) error { return nil },
		CreateTasksForStage: func(*jobdomain.Job, int, map[string]jobdomain.StageResult) ([]registry.TaskSpec, error) { return nil, nil },
		FinalizeJob: func(*jobdomain.Job, map[string]jobdomain.StageResult) (any, jobdomain.JobStatus, error) {
			return nil, jobdomain.JobFailed, nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	store := &fakeJobStore{}
	e := testExecutor(t, store, reg)
	msg := &jobdomain.TaskMessage{TaskID: "a-s1-0", ParentJobID: "a", JobType: "strict_job", Stage: 1}

	handled := e.failJobIfStrictPolicy(context.Background(), e.log, msg, map[string]any{"error": "boom"})
	if !handled {
		t.Fatalf("expected strict policy to fail the job")
	}
	if !store.failed {
		t.Fatalf("expected RecordJobFailure to be called")
	}
	if errMap, ok := store.failedReason.(map[string]any); !ok || errMap["error"] != "boom" {
		t.Fatalf("expected error_details to carry the failure cause, got %v", store.failedReason)
	}
}

func TestFailJobIfStrictPolicyNoOpForNonStrictWorkflow(t *testing.T) {
	reg := registry.NewJobRegistry()
	if err := reg.Register(&registry.WorkflowSpec{
		JobType:             "lenient_job",
		TotalStages:         1,
		ValidateParameters:  func(map[string]any) error { return nil },
		CreateTasksForStage: func(*jobdomain.Job, int, map[string]jobdomain.StageResult) ([]registry.TaskSpec, error) { return nil, nil },
		FinalizeJob: func(*jobdomain.Job, map[string]jobdomain.StageResult) (any, jobdomain.JobStatus, error) {
			return nil, jobdomain.JobCompleted, nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	store := &fakeJobStore{}
	e := testExecutor(t, store, reg)
	msg := &jobdomain.TaskMessage{TaskID: "a-s1-0", ParentJobID: "a", JobType: "lenient_job", Stage: 1}

	if handled := e.failJobIfStrictPolicy(context.Background(), e.log, msg, map[string]any{"error": "boom"}); handled {
		t.Fatalf("expected non-strict workflow not to fail the job immediately")
	}
	if store.failed {
		t.Fatalf("RecordJobFailure should not have been called")
	}
}

func TestFailJobIfStrictPolicyNoOpWhenJobAlreadyTerminal(t *testing.T) {
	reg := registry.NewJobRegistry()
	if err := reg.Register(&registry.WorkflowSpec{
		JobType:             "strict_job",
		TotalStages:         1,
		RetryPolicyStrict:   true,
		ValidateParameters:  func(map[string]any) error { return nil },
		CreateTasksForStage: func(*jobdomain.Job, int, map[string]jobdomain.StageResult) ([]registry.TaskSpec, error) { return nil, nil },
		FinalizeJob: func(*jobdomain.Job, map[string]jobdomain.StageResult) (any, jobdomain.JobStatus, error) {
			return nil, jobdomain.JobFailed, nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	store := &fakeJobStore{failErr: errors.New("job already terminal")}
	e := testExecutor(t, store, reg)
	msg := &jobdomain.TaskMessage{TaskID: "a-s1-0", ParentJobID: "a", JobType: "strict_job", Stage: 1}

	if handled := e.failJobIfStrictPolicy(context.Background(), e.log, msg, map[string]any{"error": "boom"}); handled {
		t.Fatalf("expected a lost race against a terminal job to not report handled")
	}
}
