package jobs

import (
	"time"

	"gorm.io/datatypes"
)

// Task is a single invocation of a handler within a stage. task_id is
// deterministic from (job_id, stage, semantic_index); see BuildTaskID.
type Task struct {
	TaskID       string         `gorm:"column:task_id;type:varchar(96);primaryKey" json:"task_id"`
	ParentJobID  string         `gorm:"column:parent_job_id;type:varchar(64);not null;index" json:"parent_job_id"`
	JobType      string         `gorm:"column:job_type;not null;index" json:"job_type"`
	TaskType     string         `gorm:"column:task_type;not null" json:"task_type"`
	Stage        int            `gorm:"column:stage;not null;index" json:"stage"`
	TaskIndex    string         `gorm:"column:task_index;not null" json:"task_index"`
	Status       TaskStatus     `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Parameters   datatypes.JSON `gorm:"column:parameters;type:jsonb" json:"parameters,omitempty"`
	ResultData   datatypes.JSON `gorm:"column:result_data;type:jsonb" json:"result_data,omitempty"`
	ErrorDetails datatypes.JSON `gorm:"column:error_details;type:jsonb" json:"error_details,omitempty"`
	RetryCount   int            `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	Heartbeat    *time.Time     `gorm:"column:heartbeat;index" json:"heartbeat,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

// ResultSnapshot captures the fields stage aggregation needs, in the shape
// spec §3's StageResult.task_results entries require.
func (t *Task) ResultSnapshot() TaskResultSnapshot {
	return TaskResultSnapshot{
		TaskID:       t.TaskID,
		TaskType:     t.TaskType,
		Stage:        t.Stage,
		TaskIndex:    t.TaskIndex,
		Status:       t.Status,
		ResultData:   t.ResultData,
		ErrorDetails: t.ErrorDetails,
	}
}
