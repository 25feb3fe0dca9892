package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/queue"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*jobdomain.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*jobdomain.Job{}}
}

func (s *fakeJobStore) CreateJob(_ dbctx.Context, job *jobdomain.Job) (bool, jobdomain.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.JobID]; ok {
		return false, existing.Status, nil
	}
	cp := *job
	s.jobs[job.JobID] = &cp
	return true, "", nil
}

func (s *fakeJobStore) GetJob(_ dbctx.Context, jobID string) (*jobdomain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, joberrors.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) UpdateJobStatus(_ dbctx.Context, jobID string, newStatus jobdomain.JobStatus, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return joberrors.ErrNotFound
	}
	if job.Status == jobdomain.JobCompleted || job.Status == jobdomain.JobFailed {
		return joberrors.ErrInvalidTransition
	}
	job.Status = newStatus
	return nil
}

func (s *fakeJobStore) AdvanceJobStage(dbctx.Context, string, int, jobdomain.StageResult) (int, bool, error) {
	return 0, false, errors.New("not implemented")
}
func (s *fakeJobStore) RecordJobCompletion(dbctx.Context, string, jobdomain.JobStatus, any) error {
	return errors.New("not implemented")
}
func (s *fakeJobStore) RecordJobFailure(dbctx.Context, string, any) error {
	return errors.New("not implemented")
}
func (s *fakeJobStore) ListStuckJobIDs(dbctx.Context, time.Time) ([]string, error) {
	return nil, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued [][]byte
}

func (q *fakeQueue) Enqueue(_ context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, payload)
	return nil
}
func (q *fakeQueue) EnqueueDelayed(context.Context, []byte, time.Duration) error { return nil }
func (q *fakeQueue) Receive(context.Context, string, int, time.Duration) ([]queue.Delivery, error) {
	return nil, nil
}
func (q *fakeQueue) Ack(context.Context, string) error { return nil }
func (q *fakeQueue) ReclaimStale(context.Context, string, time.Duration, int) ([]queue.Delivery, []queue.Delivery, error) {
	return nil, nil, nil
}
func (q *fakeQueue) PromoteDue(context.Context) (int, error) { return 0, nil }
func (q *fakeQueue) Close() error                            { return nil }

func testGateway(t *testing.T) (*Gateway, *fakeJobStore, *fakeQueue) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	jobRegistry := registry.NewJobRegistry()
	if err := jobRegistry.Register(&registry.WorkflowSpec{
		JobType:     "hello_world",
		TotalStages: 1,
		ValidateParameters: func(params map[string]any) error {
			if _, ok := params["message"]; !ok {
				return errors.New("missing message")
			}
			return nil
		},
		CreateTasksForStage: func(*jobdomain.Job, int, map[string]jobdomain.StageResult) ([]registry.TaskSpec, error) {
			return nil, nil
		},
		FinalizeJob: func(*jobdomain.Job, map[string]jobdomain.StageResult) (any, jobdomain.JobStatus, error) {
			return nil, jobdomain.JobCompleted, nil
		},
	}); err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	store := newFakeJobStore()
	q := &fakeQueue{}
	return New(log, jobRegistry, store, q), store, q
}

func TestGatewaySubmitCreatesJobAndEnqueues(t *testing.T) {
	gw, store, q := testGateway(t)
	result, err := gw.Submit(context.Background(), "hello_world", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Deduplicated {
		t.Fatalf("expected first submission not deduplicated")
	}
	if result.Status != jobdomain.JobQueued {
		t.Fatalf("status: want=%s got=%s", jobdomain.JobQueued, result.Status)
	}
	if len(store.jobs) != 1 {
		t.Fatalf("expected 1 job row, got %d", len(store.jobs))
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued job message, got %d", len(q.enqueued))
	}
}

func TestGatewaySubmitIsIdempotent(t *testing.T) {
	gw, _, q := testGateway(t)
	ctx := context.Background()
	first, err := gw.Submit(ctx, "hello_world", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := gw.Submit(ctx, "hello_world", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if first.JobID != second.JobID {
		t.Fatalf("expected identical job_id for identical params: %s vs %s", first.JobID, second.JobID)
	}
	if !second.Deduplicated {
		t.Fatalf("expected second submission to be deduplicated")
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("expected only the first submission to enqueue, got %d enqueues", len(q.enqueued))
	}
}

func TestGatewaySubmitUnknownJobType(t *testing.T) {
	gw, _, _ := testGateway(t)
	_, err := gw.Submit(context.Background(), "does_not_exist", nil)
	if !errors.Is(err, ErrUnknownJobType) {
		t.Fatalf("expected ErrUnknownJobType, got %v", err)
	}
}

func TestGatewaySubmitInvalidParameters(t *testing.T) {
	gw, _, _ := testGateway(t)
	_, err := gw.Submit(context.Background(), "hello_world", map[string]any{})
	if !errors.Is(err, joberrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestGatewayGetUnknownJob(t *testing.T) {
	gw, _, _ := testGateway(t)
	_, err := gw.Get(context.Background(), "missing")
	if !errors.Is(err, joberrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGatewayCancelIsNoOpOnTerminalJob(t *testing.T) {
	gw, store, _ := testGateway(t)
	result, err := gw.Submit(context.Background(), "hello_world", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	store.jobs[result.JobID].Status = jobdomain.JobCompleted

	if err := gw.Cancel(context.Background(), result.JobID); err != nil {
		t.Fatalf("Cancel on terminal job should no-op, got %v", err)
	}
}
