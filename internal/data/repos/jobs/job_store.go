// Package jobs is the State Store: the durable record of jobs, tasks, and
// stage results, and the home of the two atomic primitives
// (CompleteTaskAndCheckStage, AdvanceJobStage) distributed Executors rely on
// to decide "am I the last task?" without racing.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

// JobStore is the State Store's Job-record surface (spec §4.1).
type JobStore interface {
	// CreateJob inserts a job row, or no-ops if job_id already exists.
	// Returns created=false and the existing row's status on conflict.
	CreateJob(dbc dbctx.Context, job *jobdomain.Job) (created bool, existingStatus jobdomain.JobStatus, err error)
	GetJob(dbc dbctx.Context, jobID string) (*jobdomain.Job, error)
	// UpdateJobStatus validates the transition against the state machine
	// before applying patch fields alongside the new status.
	UpdateJobStatus(dbc dbctx.Context, jobID string, newStatus jobdomain.JobStatus, patch map[string]any) error
	// AdvanceJobStage atomically increments stage conditional on
	// currentStage matching the stored value, and appends result under
	// stage_results[str(currentStage)]. Returns ErrStaleStage if another
	// worker already advanced the job, and ErrInvalidTransition if the job
	// is already terminal (e.g. canceled).
	AdvanceJobStage(dbc dbctx.Context, jobID string, currentStage int, result jobdomain.StageResult) (newStage int, isFinalStage bool, err error)
	RecordJobCompletion(dbc dbctx.Context, jobID string, status jobdomain.JobStatus, resultData any) error
	RecordJobFailure(dbc dbctx.Context, jobID string, errorDetails any) error
	// ListStuckJobIDs returns PROCESSING jobs whose current stage has no
	// task that is still in flight and have not been touched in
	// updatedBefore (spec §4.8 item 2: "no task heartbeat and no QUEUED
	// tasks for > stuck_threshold"). Covers both "orchestrator never
	// created stage tasks" and "stage tasks finished but advance never
	// ran" failure modes.
	ListStuckJobIDs(dbc dbctx.Context, updatedBefore time.Time) ([]string, error)
}

type jobStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobStore(db *gorm.DB, baseLog *logger.Logger) JobStore {
	return &jobStore{db: db, log: baseLog.With("component", "JobStore")}
}

func txOf(dbc dbctx.Context, db *gorm.DB) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return db
}

func (s *jobStore) CreateJob(dbc dbctx.Context, job *jobdomain.Job) (bool, jobdomain.JobStatus, error) {
	tx := txOf(dbc, s.db)

	err := tx.WithContext(dbc.Ctx).Create(job).Error
	if err == nil {
		return true, job.Status, nil
	}
	if !isUniqueViolation(err) {
		return false, "", err
	}

	var existing jobdomain.Job
	if findErr := tx.WithContext(dbc.Ctx).Where("job_id = ?", job.JobID).First(&existing).Error; findErr != nil {
		return false, "", fmt.Errorf("create_job: load existing after conflict: %w", findErr)
	}
	return false, existing.Status, nil
}

func (s *jobStore) GetJob(dbc dbctx.Context, jobID string) (*jobdomain.Job, error) {
	tx := txOf(dbc, s.db)
	var job jobdomain.Job
	err := tx.WithContext(dbc.Ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, joberrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *jobStore) UpdateJobStatus(dbc dbctx.Context, jobID string, newStatus jobdomain.JobStatus, patch map[string]any) error {
	tx := txOf(dbc, s.db)
	return tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job jobdomain.Job
		if err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("job_id = ?", jobID).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return joberrors.ErrNotFound
			}
			return err
		}
		if !jobdomain.IsValidJobTransition(job.Status, newStatus) {
			return fmt.Errorf("%w: job %s %s->%s", joberrors.ErrInvalidTransition, jobID, job.Status, newStatus)
		}
		updates := map[string]any{}
		for k, v := range patch {
			updates[k] = v
		}
		updates["status"] = newStatus
		updates["updated_at"] = time.Now().UTC()
		return txx.Model(&jobdomain.Job{}).Where("job_id = ?", jobID).Updates(updates).Error
	})
}

// AdvanceJobStage implements spec §4.1's conditional update:
//
//	UPDATE jobs SET stage=stage+1, stage_results = stage_results || :new
//	WHERE job_id=:id AND stage=:cur
//
// RowsAffected==0 means another worker already advanced past currentStage;
// that is ErrStaleStage, not a hard error.
func (s *jobStore) AdvanceJobStage(dbc dbctx.Context, jobID string, currentStage int, result jobdomain.StageResult) (int, bool, error) {
	tx := txOf(dbc, s.db)
	var newStage int
	var isFinal bool

	err := tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job jobdomain.Job
		if err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("job_id = ? AND stage = ?", jobID, currentStage).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return joberrors.ErrStaleStage
			}
			return err
		}
		if job.Status.Terminal() {
			return fmt.Errorf("%w: job %s is %s, stage not advanced", joberrors.ErrInvalidTransition, jobID, job.Status)
		}

		patchJSON, err := marshalStageResultPatch(currentStage, result)
		if err != nil {
			return err
		}

		newStage = currentStage + 1
		isFinal = newStage > job.TotalStages

		res := txx.Model(&jobdomain.Job{}).
			Where("job_id = ? AND stage = ?", jobID, currentStage).
			Updates(map[string]any{
				"stage":         newStage,
				"stage_results": gorm.Expr("stage_results || ?::jsonb", string(patchJSON)),
				"updated_at":    time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return joberrors.ErrStaleStage
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return newStage, isFinal, nil
}

func (s *jobStore) RecordJobCompletion(dbc dbctx.Context, jobID string, status jobdomain.JobStatus, resultData any) error {
	raw, err := marshalAny(resultData)
	if err != nil {
		return err
	}
	return s.UpdateJobStatus(dbc, jobID, status, map[string]any{
		"result_data": datatypes.JSON(raw),
	})
}

func (s *jobStore) ListStuckJobIDs(dbc dbctx.Context, updatedBefore time.Time) ([]string, error) {
	tx := txOf(dbc, s.db)
	var ids []string
	err := tx.WithContext(dbc.Ctx).Raw(`
		SELECT j.job_id FROM jobs j
		WHERE j.status = ? AND j.updated_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM tasks t
			WHERE t.parent_job_id = j.job_id
			AND t.stage = j.stage
			AND t.status NOT IN (?, ?)
		)
	`, jobdomain.JobProcessing, updatedBefore, jobdomain.TaskCompleted, jobdomain.TaskFailed).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *jobStore) RecordJobFailure(dbc dbctx.Context, jobID string, errorDetails any) error {
	raw, err := marshalAny(errorDetails)
	if err != nil {
		return err
	}
	return s.UpdateJobStatus(dbc, jobID, jobdomain.JobFailed, map[string]any{
		"error_details": datatypes.JSON(raw),
	})
}

