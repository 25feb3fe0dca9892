package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidTransition marks a rejected job/task status transition.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleStage marks an advance_job_stage call whose current_stage no
	// longer matches the job row — another worker already advanced it.
	ErrStaleStage = errors.New("stale stage")
	// ErrContractViolation marks malformed input that must never be retried:
	// queue payloads missing required fields, task_id prefix mismatches,
	// unknown job_type/task_type.
	ErrContractViolation = errors.New("contract violation")
)
