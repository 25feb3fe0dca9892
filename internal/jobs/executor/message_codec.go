package executor

import (
	"encoding/json"
	"fmt"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
)

// decodeTaskMessage schema-validates a raw queue payload into a
// TaskMessage, per spec §4.2's "must be schema-validated on receive before
// any state mutation".
func decodeTaskMessage(raw []byte) (*jobdomain.TaskMessage, error) {
	var msg jobdomain.TaskMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed task message: %v", joberrors.ErrContractViolation, err)
	}
	if msg.TaskID == "" || msg.ParentJobID == "" || msg.JobType == "" || msg.TaskType == "" {
		return nil, fmt.Errorf("%w: task message missing required field", joberrors.ErrContractViolation)
	}
	if msg.Stage < 1 {
		return nil, fmt.Errorf("%w: task message stage must be >= 1", joberrors.ErrContractViolation)
	}
	return &msg, nil
}

func encodeTaskMessage(msg jobdomain.TaskMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func encodeJobMessage(msg jobdomain.JobMessage) ([]byte, error) {
	return json.Marshal(msg)
}
