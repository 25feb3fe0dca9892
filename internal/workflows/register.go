// Package workflows holds the example Workflow Specs SPEC_FULL.md supplies
// so the repository is runnable end to end: spec.md treats per-job_type
// business logic as an external plugin (§1, out of scope), so something has
// to fill the Job Registry / Task Registry for Scenarios A and B to run
// against. Registration is explicit, per spec §9's "no decorator
// self-registration" note — cmd/api and cmd/worker both call Register at
// startup rather than relying on package-level init side effects.
package workflows

import (
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
	"github.com/rmhgeo/jobengine/internal/platform/gcp"
)

// Register binds every example workflow's job_type/task_type to its
// WorkflowSpec/TaskHandler.
func Register(jobRegistry *registry.JobRegistry, taskRegistry *registry.TaskRegistry, bucket gcp.BucketService) error {
	if err := registerHelloWorld(jobRegistry, taskRegistry); err != nil {
		return err
	}
	return registerRasterTilePyramid(jobRegistry, taskRegistry, bucket)
}
