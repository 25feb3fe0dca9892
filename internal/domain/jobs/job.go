package jobs

import (
	"time"

	"gorm.io/datatypes"
)

// Job is the durable record of a client-submitted unit of work. job_id is a
// content hash (see canonicaljson + DeriveJobID), not a generated UUID, so
// that duplicate submissions collapse onto the same row (invariant 1).
type Job struct {
	JobID        string         `gorm:"column:job_id;type:varchar(64);primaryKey" json:"job_id"`
	JobType      string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Status       JobStatus      `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Stage        int            `gorm:"column:stage;not null" json:"stage"`
	TotalStages  int            `gorm:"column:total_stages;not null" json:"total_stages"`
	Parameters   datatypes.JSON `gorm:"column:parameters;type:jsonb;not null" json:"parameters"`
	StageResults datatypes.JSON `gorm:"column:stage_results;type:jsonb;not null;default:'{}'" json:"stage_results"`
	Metadata     datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	ResultData   datatypes.JSON `gorm:"column:result_data;type:jsonb" json:"result_data,omitempty"`
	ErrorDetails datatypes.JSON `gorm:"column:error_details;type:jsonb" json:"error_details,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

// ParametersMap decodes Parameters into a generic map, for handlers and
// WorkflowSpec callbacks that work with untyped submission parameters.
func (j *Job) ParametersMap() (map[string]any, error) {
	out := map[string]any{}
	if len(j.Parameters) == 0 {
		return out, nil
	}
	if err := unmarshalJSON(j.Parameters, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// StageResultsMap decodes StageResults into the string-keyed map the spec
// mandates (invariant 4). An empty/absent column decodes to an empty map,
// never nil, so callers can index it without a nil check.
func (j *Job) StageResultsMap() (map[string]StageResult, error) {
	out := map[string]StageResult{}
	if len(j.StageResults) == 0 {
		return out, nil
	}
	if err := unmarshalJSON(j.StageResults, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]StageResult{}
	}
	return out, nil
}
