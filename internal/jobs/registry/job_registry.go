// Package registry is the Job Registry and Task Registry (spec §4.3): the
// only place job_type/task_type strings are bound to code. The Orchestrator
// and Executor never know about a workflow's business logic directly; they
// ask the registry for a WorkflowSpec or TaskHandler and drive it generically.
package registry

import (
	"fmt"
	"sync"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
)

// TaskSpec is one task the Orchestrator should create for a stage.
type TaskSpec struct {
	// SemanticIndex must satisfy jobdomain.ValidSemanticIndex; it is
	// combined with the job id and stage number to build the task_id.
	SemanticIndex string
	TaskType      string
	Parameters    map[string]any
}

// WorkflowSpec is the job_type -> behavior binding the Job Registry holds.
// A job_type may appear in at most one WorkflowSpec.
type WorkflowSpec struct {
	JobType     string
	TotalStages int

	// RetryPolicyStrict governs what happens on a task's retry exhaustion
	// (spec §4.7): when true, the first task to permanently fail marks the
	// whole job FAILED immediately rather than letting the stage run to
	// completed_with_errors.
	RetryPolicyStrict bool

	// ValidateParameters rejects malformed submission parameters before a
	// job row is ever created. A non-nil error is always a contract
	// violation, never retried.
	ValidateParameters func(params map[string]any) error

	// CreateTasksForStage generates the TaskSpecs for the given stage,
	// given the job's parameters and every prior stage's StageResult. The
	// Orchestrator calls it for each JobMessage it processes (stage 1 from
	// the Gateway, later stages from the Executor once it has advanced the
	// job); a redelivered JobMessage calls it again for the same stage
	// (spec §4.5 phase 2/3).
	CreateTasksForStage func(job *jobdomain.Job, stage int, priorResults map[string]jobdomain.StageResult) ([]TaskSpec, error)

	// FinalizeJob computes the job's terminal status and result payload
	// once every stage has closed. Returning JobCompletedWithErrors is
	// only valid if at least one stage's StageResult was itself
	// completed_with_errors or failed.
	FinalizeJob func(job *jobdomain.Job, allResults map[string]jobdomain.StageResult) (resultData any, status jobdomain.JobStatus, err error)
}

// JobRegistry is a concurrency-safe map of job_type -> WorkflowSpec.
type JobRegistry struct {
	mu    sync.RWMutex
	specs map[string]*WorkflowSpec
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{specs: make(map[string]*WorkflowSpec)}
}

// Register binds a job_type to its WorkflowSpec. Registration is expected
// to happen once at process startup; a duplicate job_type is a wiring
// error and fails fast rather than silently picking one.
func (r *JobRegistry) Register(spec *WorkflowSpec) error {
	if spec == nil {
		return fmt.Errorf("nil workflow spec")
	}
	if spec.JobType == "" {
		return fmt.Errorf("workflow spec has empty job_type")
	}
	if spec.TotalStages < 1 {
		return fmt.Errorf("workflow spec %s: total_stages must be >= 1", spec.JobType)
	}
	if spec.CreateTasksForStage == nil {
		return fmt.Errorf("workflow spec %s: CreateTasksForStage is required", spec.JobType)
	}
	if spec.FinalizeJob == nil {
		return fmt.Errorf("workflow spec %s: FinalizeJob is required", spec.JobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.JobType]; exists {
		return fmt.Errorf("workflow spec already registered for job_type=%s", spec.JobType)
	}
	r.specs[spec.JobType] = spec
	return nil
}

// Get retrieves the WorkflowSpec bound to job_type, if any.
func (r *JobRegistry) Get(jobType string) (*WorkflowSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[jobType]
	return s, ok
}
