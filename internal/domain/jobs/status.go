package jobs

// JobStatus is the canonical lowercase status string stored on a Job row.
type JobStatus string

const (
	JobQueued              JobStatus = "queued"
	JobProcessing          JobStatus = "processing"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCompletedWithErrors, JobFailed:
		return true
	default:
		return false
	}
}

// TaskStatus is the canonical lowercase status string stored on a Task row.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskRetrying   TaskStatus = "retrying"
)

func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// StageResultStatus is the aggregated outcome of a completed stage.
type StageResultStatus string

const (
	StageCompleted           StageResultStatus = "completed"
	StageFailed              StageResultStatus = "failed"
	StageCompletedWithErrors StageResultStatus = "completed_with_errors"
)

// jobTransitions enumerates every legal (from, to) Job status pair per
// spec §4.1. Anything absent from this table is InvalidTransition.
var jobTransitions = map[JobStatus]map[JobStatus]bool{
	JobQueued: {
		JobProcessing: true,
		JobFailed:     true, // admin cancel path only (spec: "externally cancelled... by setting status to FAILED via an admin path")
	},
	JobProcessing: {
		JobCompleted:           true,
		JobCompletedWithErrors: true,
		JobFailed:              true,
	},
}

// IsValidJobTransition reports whether from->to is an allowed Job status
// transition. Terminal statuses never transition further.
func IsValidJobTransition(from, to JobStatus) bool {
	if from == to {
		return false
	}
	allowed, ok := jobTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// taskTransitions enumerates every legal (from, to) Task status pair per
// spec §4.1, including the Janitor/validation-only QUEUED->FAILED edge.
var taskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskQueued: {
		TaskProcessing: true,
		TaskFailed:     true, // Janitor / pre-dispatch validation only
	},
	TaskProcessing: {
		TaskCompleted: true,
		TaskFailed:    true,
		TaskRetrying:  true,
	},
	TaskRetrying: {
		TaskQueued: true, // on re-enqueue
	},
}

// IsValidTaskTransition reports whether from->to is an allowed Task status
// transition.
func IsValidTaskTransition(from, to TaskStatus) bool {
	if from == to {
		return false
	}
	allowed, ok := taskTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
