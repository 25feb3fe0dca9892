package workflows

import (
	"encoding/json"
	"testing"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
)

func TestValidateHelloWorldParameters(t *testing.T) {
	cases := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"message": "hi"}, false},
		{"missing message", map[string]any{}, true},
		{"wrong type", map[string]any{"message": 5}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateHelloWorldParameters(tc.params)
			if (err != nil) != tc.wantErr {
				t.Fatalf("validateHelloWorldParameters(%v): err=%v wantErr=%v", tc.params, err, tc.wantErr)
			}
		})
	}
}

func TestHelloWorldCreateTasksSingleTask(t *testing.T) {
	job := &jobdomain.Job{Parameters: mustJSON(t, map[string]any{"message": "hi"})}
	specs, err := helloWorldCreateTasks(job, 1, nil)
	if err != nil {
		t.Fatalf("helloWorldCreateTasks: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 task, got %d", len(specs))
	}
	if specs[0].SemanticIndex != "0" || specs[0].TaskType != helloWorldTaskType {
		t.Fatalf("unexpected task spec: %+v", specs[0])
	}
}

func TestHelloWorldHandlerEchoesMessage(t *testing.T) {
	outcome, err := helloWorldHandler(&registry.ExecContext{
		Parameters: map[string]any{"message": "hi there"},
	})
	if err != nil {
		t.Fatalf("helloWorldHandler: %v", err)
	}
	data, ok := outcome.ResultData.(map[string]any)
	if !ok || data["echo"] != "hi there" {
		t.Fatalf("unexpected result data: %+v", outcome.ResultData)
	}
}

func TestHelloWorldFinalizeCompletesOnSuccess(t *testing.T) {
	snapshot := jobdomain.TaskResultSnapshot{
		TaskID:     "abcd1234-s1-0",
		Status:     jobdomain.TaskCompleted,
		ResultData: mustJSON(t, map[string]any{"echo": "hi"}),
	}
	allResults := map[string]jobdomain.StageResult{
		jobdomain.StageKeyOf(1): {
			StageNumber: 1,
			TaskResults: []jobdomain.TaskResultSnapshot{snapshot},
		},
	}
	_, status, err := helloWorldFinalize(&jobdomain.Job{}, allResults)
	if err != nil {
		t.Fatalf("helloWorldFinalize: %v", err)
	}
	if status != jobdomain.JobCompleted {
		t.Fatalf("status: want=%s got=%s", jobdomain.JobCompleted, status)
	}
}

func TestHelloWorldFinalizeFailsWithoutStageResult(t *testing.T) {
	_, status, err := helloWorldFinalize(&jobdomain.Job{}, map[string]jobdomain.StageResult{})
	if err == nil {
		t.Fatalf("expected error when stage 1 result is missing")
	}
	if status != jobdomain.JobFailed {
		t.Fatalf("status: want=%s got=%s", jobdomain.JobFailed, status)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}
