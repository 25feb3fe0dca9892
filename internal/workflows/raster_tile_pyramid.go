package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/jobs/registry"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/gcp"
)

// RasterTilePyramidJobType is a two-stage, fan-out-then-sequential workflow
// in the geospatial-ETL idiom the spec's domain implies: Scenario B's
// vehicle (spec §8). Stage 1 fans out a "greet" task per tile; stage 2 fans
// out a "reply" task per tile, each reading its stage-1 counterpart's
// result out of the StageResult and writing a marker blob through the
// GCS-backed handler context — demonstrating the Handler contract's
// external-service injection (spec §6).
const RasterTilePyramidJobType = "raster_tile_pyramid"

const (
	rasterGreetTaskType = "greet"
	rasterReplyTaskType = "reply"
)

func registerRasterTilePyramid(jobRegistry *registry.JobRegistry, taskRegistry *registry.TaskRegistry, bucket gcp.BucketService) error {
	if err := taskRegistry.Register(rasterGreetTaskType, rasterGreetHandler); err != nil {
		return err
	}
	if err := taskRegistry.Register(rasterReplyTaskType, rasterReplyHandler(bucket)); err != nil {
		return err
	}
	return jobRegistry.Register(&registry.WorkflowSpec{
		JobType:             RasterTilePyramidJobType,
		TotalStages:         2,
		ValidateParameters:  validateRasterTileParameters,
		CreateTasksForStage: rasterCreateTasksForStage,
		FinalizeJob:         rasterFinalize,
	})
}

func validateRasterTileParameters(params map[string]any) error {
	raw, ok := params["tiles"]
	if !ok {
		return fmt.Errorf("missing required field: tiles")
	}
	tiles, ok := raw.([]any)
	if !ok || len(tiles) == 0 {
		return fmt.Errorf("field tiles must be a non-empty array")
	}
	for i, t := range tiles {
		tile, ok := t.(map[string]any)
		if !ok {
			return fmt.Errorf("tiles[%d] must be an object", i)
		}
		for _, field := range []string{"x", "y", "z"} {
			if _, ok := tile[field]; !ok {
				return fmt.Errorf("tiles[%d] missing required field: %s", i, field)
			}
		}
	}
	return nil
}

func rasterCreateTasksForStage(job *jobdomain.Job, stage int, priorResults map[string]jobdomain.StageResult) ([]registry.TaskSpec, error) {
	params, err := job.ParametersMap()
	if err != nil {
		return nil, err
	}
	tiles, _ := params["tiles"].([]any)

	switch stage {
	case 1:
		specs := make([]registry.TaskSpec, 0, len(tiles))
		for i, t := range tiles {
			specs = append(specs, registry.TaskSpec{
				SemanticIndex: fmt.Sprintf("greet-%d", i),
				TaskType:      rasterGreetTaskType,
				Parameters:    t.(map[string]any),
			})
		}
		return specs, nil
	case 2:
		stage1, ok := priorResults[jobdomain.StageKeyOf(1)]
		if !ok {
			return nil, fmt.Errorf("stage 2 requires stage 1's StageResult, none found")
		}
		byIndex := make(map[string]jobdomain.TaskResultSnapshot, len(stage1.TaskResults))
		for _, tr := range stage1.TaskResults {
			byIndex[tr.TaskIndex] = tr
		}
		specs := make([]registry.TaskSpec, 0, len(tiles))
		for i := range tiles {
			greetIdx := fmt.Sprintf("greet-%d", i)
			greetResult, ok := byIndex[greetIdx]
			if !ok {
				return nil, fmt.Errorf("stage 1 result missing for %s", greetIdx)
			}
			var descriptor map[string]any
			_ = json.Unmarshal(greetResult.ResultData, &descriptor)
			specs = append(specs, registry.TaskSpec{
				SemanticIndex: fmt.Sprintf("reply-%d", i),
				TaskType:      rasterReplyTaskType,
				Parameters:    descriptor,
			})
		}
		return specs, nil
	default:
		return nil, fmt.Errorf("raster_tile_pyramid has no stage %d", stage)
	}
}

func rasterGreetHandler(ec *registry.ExecContext) (registry.TaskOutcome, error) {
	x, _ := ec.Parameters["x"].(float64)
	y, _ := ec.Parameters["y"].(float64)
	z, _ := ec.Parameters["z"].(float64)
	return registry.TaskOutcome{
		ResultData: map[string]any{
			"tile_key": fmt.Sprintf("%d/%d/%d", int(z), int(x), int(y)),
			"x":        x,
			"y":        y,
			"z":        z,
		},
	}, nil
}

func rasterReplyHandler(bucket gcp.BucketService) registry.TaskHandler {
	return func(ec *registry.ExecContext) (registry.TaskOutcome, error) {
		tileKey, _ := ec.Parameters["tile_key"].(string)
		if tileKey == "" {
			return registry.TaskOutcome{}, fmt.Errorf("reply task missing tile_key from prior stage")
		}
		objectKey := fmt.Sprintf("markers/%s/%s.marker", ec.JobID, tileKey)
		if bucket != nil {
			if err := uploadMarker(ec.Ctx, bucket, objectKey, tileKey); err != nil {
				return registry.TaskOutcome{}, err
			}
		}
		return registry.TaskOutcome{
			ResultData: map[string]any{"tile_key": tileKey, "marker_key": objectKey},
		}, nil
	}
}

func uploadMarker(ctx context.Context, bucket gcp.BucketService, objectKey, tileKey string) error {
	body := bytes.NewBufferString(fmt.Sprintf("tile=%s", tileKey))
	return bucket.UploadFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryTileOutput, objectKey, body)
}

func rasterFinalize(_ *jobdomain.Job, allResults map[string]jobdomain.StageResult) (any, jobdomain.JobStatus, error) {
	stage2, ok := allResults[jobdomain.StageKeyOf(2)]
	if !ok {
		return nil, jobdomain.JobFailed, fmt.Errorf("stage 2 produced no StageResult")
	}
	replies := make([]map[string]any, 0, len(stage2.TaskResults))
	for _, tr := range stage2.TaskResults {
		var reply map[string]any
		_ = json.Unmarshal(tr.ResultData, &reply)
		replies = append(replies, reply)
	}

	// A job is COMPLETED_WITH_ERRORS if *any* stage had failures, not just
	// the last one: stage 1's greet tasks can partially fail while every
	// stage 2 reply still succeeds.
	status := jobdomain.JobCompleted
	for _, stage := range allResults {
		switch stage.Status {
		case jobdomain.StageFailed:
			return map[string]any{"replies": replies}, jobdomain.JobFailed, nil
		case jobdomain.StageCompletedWithErrors:
			status = jobdomain.JobCompletedWithErrors
		}
	}
	return map[string]any{"replies": replies}, status, nil
}
