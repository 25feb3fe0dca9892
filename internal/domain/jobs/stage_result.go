package jobs

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// TaskResultSnapshot is the per-task entry embedded in a StageResult's
// task_results, ordered by insertion (creation order of the task batch).
type TaskResultSnapshot struct {
	TaskID       string         `json:"task_id"`
	TaskType     string         `json:"task_type"`
	Stage        int            `json:"stage"`
	TaskIndex    string         `json:"task_index"`
	Status       TaskStatus     `json:"status"`
	ResultData   datatypes.JSON `json:"result_data,omitempty"`
	ErrorDetails datatypes.JSON `json:"error_details,omitempty"`
}

// StageResult is the typed aggregation of one stage's task outcomes. It is
// stored on the Job under stage_results[str(stage_number)] and is never
// represented as a free-form map (spec §9: "no free-form maps").
type StageResult struct {
	StageNumber     int                  `json:"stage_number"`
	StageKey        string               `json:"stage_key"`
	Status          StageResultStatus    `json:"status"`
	TaskCount       int                  `json:"task_count"`
	SuccessfulTasks int                  `json:"successful_tasks"`
	FailedTasks     int                  `json:"failed_tasks"`
	SuccessRate     float64              `json:"success_rate"`
	TaskResults     []TaskResultSnapshot `json:"task_results"`
	CompletedAt     time.Time            `json:"completed_at"`
	Metadata        map[string]any       `json:"metadata,omitempty"`
}

// StageKeyOf renders the string key spec §3/§9 mandate for stage_results:
// always str(stage_number), never an int key.
func StageKeyOf(stageNumber int) string { return strconv.Itoa(stageNumber) }

// BuildStageResult aggregates a completed stage's tasks into its StageResult,
// per the rule in spec §4.6 step 7: completed iff all succeeded,
// completed_with_errors iff a mix, failed iff all failed.
func BuildStageResult(stageNumber int, tasks []*Task) StageResult {
	res := StageResult{
		StageNumber: stageNumber,
		StageKey:    StageKeyOf(stageNumber),
		TaskCount:   len(tasks),
		TaskResults: make([]TaskResultSnapshot, 0, len(tasks)),
		CompletedAt: time.Now().UTC(),
	}
	for _, t := range tasks {
		res.TaskResults = append(res.TaskResults, t.ResultSnapshot())
		switch t.Status {
		case TaskCompleted:
			res.SuccessfulTasks++
		default:
			res.FailedTasks++
		}
	}
	switch {
	case res.TaskCount == 0:
		res.Status = StageFailed
	case res.FailedTasks == 0:
		res.Status = StageCompleted
	case res.SuccessfulTasks == 0:
		res.Status = StageFailed
	default:
		res.Status = StageCompletedWithErrors
	}
	if res.TaskCount > 0 {
		res.SuccessRate = float64(res.SuccessfulTasks) / float64(res.TaskCount)
	}
	return res
}
