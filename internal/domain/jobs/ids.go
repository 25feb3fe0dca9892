package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/rmhgeo/jobengine/internal/jobs/canonicaljson"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
)

// DeriveJobID computes job_id = SHA-256(job_type || canonical_json(params))
// (spec invariant 1). Two independent submissions with the same job_type
// and semantically equal parameters always produce the same 64-hex id.
func DeriveJobID(jobType string, params map[string]any) (string, error) {
	canon, err := canonicaljson.Marshal(toAnyMap(params))
	if err != nil {
		return "", fmt.Errorf("canonicalize parameters: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(jobType))
	h.Write([]byte{0}) // separator: job_type and params are never ambiguous-concatenable
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func toAnyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return any(m)
}

var semanticIndexPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidSemanticIndex reports whether idx contains only the characters
// spec §3 allows in a task_id's semantic-index segment.
func ValidSemanticIndex(idx string) bool {
	return idx != "" && semanticIndexPattern.MatchString(idx)
}

// BuildTaskID renders task_id = "{job_id[:8]}-s{stage}-{semantic_index}"
// (spec §3). Returns ErrContractViolation if the semantic index contains
// characters outside [A-Za-z0-9-] or jobID is too short to take a prefix.
func BuildTaskID(jobID string, stage int, semanticIndex string) (string, error) {
	if len(jobID) < 8 {
		return "", fmt.Errorf("%w: job_id shorter than 8 chars", joberrors.ErrContractViolation)
	}
	if !ValidSemanticIndex(semanticIndex) {
		return "", fmt.Errorf("%w: semantic index %q contains illegal characters", joberrors.ErrContractViolation, semanticIndex)
	}
	return fmt.Sprintf("%s-s%d-%s", jobID[:8], stage, semanticIndex), nil
}
