package jobs

import (
	"encoding/json"
	"strings"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
)

// isUniqueViolation recognizes a Postgres unique-constraint error (23505)
// without importing the pgx/lib-pq error types directly, since the
// constraint is on the primary key and gorm surfaces it as a plain *error*
// whose text carries the SQLSTATE for every driver this store supports.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func marshalAny(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// marshalStageResultPatch renders the single-key JSON object
// {"<stage>": <result>} used as the right-hand operand of the jsonb `||`
// merge into stage_results.
func marshalStageResultPatch(stage int, result jobdomain.StageResult) ([]byte, error) {
	patch := map[string]jobdomain.StageResult{
		jobdomain.StageKeyOf(stage): result,
	}
	return json.Marshal(patch)
}
