package workflows

import (
	"testing"

	"github.com/rmhgeo/jobengine/internal/jobs/registry"
)

func TestRegisterBindsBothExampleWorkflows(t *testing.T) {
	jobRegistry := registry.NewJobRegistry()
	taskRegistry := registry.NewTaskRegistry()

	if err := Register(jobRegistry, taskRegistry, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, jobType := range []string{HelloWorldJobType, RasterTilePyramidJobType} {
		if _, ok := jobRegistry.Get(jobType); !ok {
			t.Fatalf("expected job_type %q to be registered", jobType)
		}
	}
	for _, taskType := range []string{helloWorldTaskType, rasterGreetTaskType, rasterReplyTaskType} {
		if _, ok := taskRegistry.Get(taskType); !ok {
			t.Fatalf("expected task_type %q to be registered", taskType)
		}
	}
}

func TestRegisterRejectsDuplicateRegistration(t *testing.T) {
	jobRegistry := registry.NewJobRegistry()
	taskRegistry := registry.NewTaskRegistry()
	if err := Register(jobRegistry, taskRegistry, nil); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register(jobRegistry, taskRegistry, nil); err == nil {
		t.Fatalf("expected second Register against the same registries to fail")
	}
}
