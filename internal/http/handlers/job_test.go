package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/gateway"
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

func newFakeJobStore() *fakeJobStore { return &fakeJobStore{jobs: map[string]*jobdomain.Job{}} }

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
	if job.Status.Terminal() {
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
func (s *fakeJobStore) ListStuckJobIDs(dbctx.Context, time.Time) ([]string, error) { return nil, nil }

type fakeQueue struct{}

func (fakeQueue) Enqueue(context.Context, []byte) error             { return nil }
func (fakeQueue) EnqueueDelayed(context.Context, []byte, time.Duration) error { return nil }
func (fakeQueue) Receive(context.Context, string, int, time.Duration) ([]queue.Delivery, error) {
	return nil, nil
}
func (fakeQueue) Ack(context.Context, string) error { return nil }
func (fakeQueue) ReclaimStale(context.Context, string, time.Duration, int) ([]queue.Delivery, []queue.Delivery, error) {
	return nil, nil, nil
}
func (fakeQueue) PromoteDue(context.Context) (int, error) { return 0, nil }
func (fakeQueue) Close() error                            { return nil }

func newTestHandler(t *testing.T) (*JobHandler, *fakeJobStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
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
	gw := gateway.New(log, jobRegistry, store, fakeQueue{})
	return NewJobHandler(gw), store
}

func TestSubmitJobReturns202OnFirstSubmission(t *testing.T) {
	handler, _ := newTestHandler(t)
	r := gin.New()
	r.POST("/jobs/:job_type", handler.SubmitJob)

	body := strings.NewReader(`{"parameters":{"message":"hi"}}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs/hello_world", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusAccepted, w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["deduplicated"] != false {
		t.Fatalf("expected deduplicated=false, got %v", resp["deduplicated"])
	}
}

func TestSubmitJobReturns404ForUnknownJobType(t *testing.T) {
	handler, _ := newTestHandler(t)
	r := gin.New()
	r.POST("/jobs/:job_type", handler.SubmitJob)

	req := httptest.NewRequest(http.MethodPost, "/jobs/does_not_exist", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: want=%d got=%d", http.StatusNotFound, w.Code)
	}
}

func TestSubmitJobReturns400ForInvalidParameters(t *testing.T) {
	handler, _ := newTestHandler(t)
	r := gin.New()
	r.POST("/jobs/:job_type", handler.SubmitJob)

	req := httptest.NewRequest(http.MethodPost, "/jobs/hello_world", strings.NewReader(`{"parameters":{}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, w.Code)
	}
}

func TestGetJobReturns404WhenMissing(t *testing.T) {
	handler, _ := newTestHandler(t)
	r := gin.New()
	r.GET("/jobs/:job_id", handler.GetJob)

	req := httptest.NewRequest(http.MethodGet, "/jobs/nonexistent", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: want=%d got=%d", http.StatusNotFound, w.Code)
	}
}

func TestGetJobReturnsSubmittedJob(t *testing.T) {
	handler, store := newTestHandler(t)
	store.jobs["job-1"] = &jobdomain.Job{
		JobID:        "job-1",
		JobType:      "hello_world",
		Status:       jobdomain.JobQueued,
		Stage:        1,
		TotalStages:  1,
		StageResults: []byte("{}"),
	}

	r := gin.New()
	r.GET("/jobs/:job_id", handler.GetJob)
	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestCancelJobReturns404WhenMissing(t *testing.T) {
	handler, _ := newTestHandler(t)
	r := gin.New()
	r.POST("/jobs/:job_id/cancel", handler.CancelJob)

	req := httptest.NewRequest(http.MethodPost, "/jobs/nonexistent/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: want=%d got=%d", http.StatusNotFound, w.Code)
	}
}

func TestCancelJobSucceeds(t *testing.T) {
	handler, store := newTestHandler(t)
	store.jobs["job-1"] = &jobdomain.Job{
		JobID:   "job-1",
		JobType: "hello_world",
		Status:  jobdomain.JobQueued,
	}

	r := gin.New()
	r.POST("/jobs/:job_id/cancel", handler.CancelJob)
	req := httptest.NewRequest(http.MethodPost, "/jobs/job-1/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
	if store.jobs["job-1"].Status != jobdomain.JobFailed {
		t.Fatalf("expected job status failed after cancel, got %s", store.jobs["job-1"].Status)
	}
}
