package orchestrator

import (
	"encoding/json"
	"fmt"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
)

func decodeJobMessage(raw []byte) (*jobdomain.JobMessage, error) {
	var msg jobdomain.JobMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed job message: %v", joberrors.ErrContractViolation, err)
	}
	if msg.JobID == "" || msg.JobType == "" {
		return nil, fmt.Errorf("%w: job message missing required field", joberrors.ErrContractViolation)
	}
	if msg.Stage < 1 {
		return nil, fmt.Errorf("%w: job message stage must be >= 1", joberrors.ErrContractViolation)
	}
	return &msg, nil
}

func encodeTaskMessage(msg jobdomain.TaskMessage) ([]byte, error) {
	return json.Marshal(msg)
}
