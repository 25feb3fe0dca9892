package workflows

import (
	"fmt"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
)

// HelloWorldJobType is a single-stage, single-task workflow: Scenario A's
// vehicle (spec §8). It exists to exercise the Gateway/Orchestrator/Executor
// path end to end without any domain-specific collaborator.
const HelloWorldJobType = "hello_world"

const helloWorldTaskType = "echo"

func registerHelloWorld(jobRegistry *registry.JobRegistry, taskRegistry *registry.TaskRegistry) error {
	if err := taskRegistry.Register(helloWorldTaskType, helloWorldHandler); err != nil {
		return err
	}
	return jobRegistry.Register(&registry.WorkflowSpec{
		JobType:              HelloWorldJobType,
		TotalStages:          1,
		ValidateParameters:   validateHelloWorldParameters,
		CreateTasksForStage:  helloWorldCreateTasks,
		FinalizeJob:          helloWorldFinalize,
	})
}

func validateHelloWorldParameters(params map[string]any) error {
	msg, ok := params["message"]
	if !ok {
		return fmt.Errorf("missing required field: message")
	}
	if _, ok := msg.(string); !ok {
		return fmt.Errorf("field message must be a string")
	}
	return nil
}

func helloWorldCreateTasks(job *jobdomain.Job, stage int, _ map[string]jobdomain.StageResult) ([]registry.TaskSpec, error) {
	params, err := job.ParametersMap()
	if err != nil {
		return nil, err
	}
	return []registry.TaskSpec{
		{
			SemanticIndex: "0",
			TaskType:      helloWorldTaskType,
			Parameters:    params,
		},
	}, nil
}

func helloWorldHandler(ec *registry.ExecContext) (registry.TaskOutcome, error) {
	msg, _ := ec.Parameters["message"].(string)
	return registry.TaskOutcome{
		ResultData: map[string]any{"echo": msg},
	}, nil
}

func helloWorldFinalize(_ *jobdomain.Job, allResults map[string]jobdomain.StageResult) (any, jobdomain.JobStatus, error) {
	stage1, ok := allResults[jobdomain.StageKeyOf(1)]
	if !ok || len(stage1.TaskResults) == 0 {
		return nil, jobdomain.JobFailed, fmt.Errorf("stage 1 produced no task results")
	}
	task := stage1.TaskResults[0]
	if task.Status != jobdomain.TaskCompleted {
		return map[string]any{"error": "echo task did not complete"}, jobdomain.JobFailed, nil
	}
	return map[string]any{"echo": task.ResultData}, jobdomain.JobCompleted, nil
}
