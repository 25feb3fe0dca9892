package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
	"github.com/rmhgeo/jobengine/internal/platform/dbctx"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

// CompletionOutcome is the typed result of CompleteTaskAndCheckStage,
// mirroring spec §4.1's {task_updated, is_last_task_in_stage, remaining_tasks}.
type CompletionOutcome struct {
	TaskUpdated       bool
	IsLastTaskInStage bool
	RemainingTasks    int
}

// TaskStore is the State Store's Task-record surface (spec §4.1).
type TaskStore interface {
	GetTask(dbc dbctx.Context, taskID string) (*jobdomain.Task, error)
	ListTasksForJob(dbc dbctx.Context, jobID string, stage *int, status *jobdomain.TaskStatus) ([]*jobdomain.Task, error)
	// CreateTaskBatch inserts tasks all-or-nothing, rejecting the whole
	// batch as a contract violation if any task_id does not start with
	// parentJobID[:8]. A batch that collides with one already created for
	// this stage (a redelivered JobMessage) is not an error: the existing
	// rows for the stage are returned instead, so the caller can re-enqueue
	// them without mis-failing an otherwise-healthy job.
	CreateTaskBatch(dbc dbctx.Context, parentJobID string, tasks []*jobdomain.Task) ([]*jobdomain.Task, error)
	UpdateTaskStatus(dbc dbctx.Context, taskID string, newStatus jobdomain.TaskStatus, patch map[string]any) error
	// UpdateHeartbeat stamps heartbeat without touching status; called
	// periodically by the Executor while a handler is running.
	UpdateHeartbeat(dbc dbctx.Context, taskID string) error
	// CompleteTaskAndCheckStage is the "last task closes the stage"
	// primitive. It is atomic: the task transition and the remaining-count
	// read happen under a lock keyed on (jobID, stage).
	CompleteTaskAndCheckStage(dbc dbctx.Context, taskID, jobID string, stage int, resultData any, errorDetails any, success bool) (CompletionOutcome, error)
	// ListHeartbeatLapsed returns PROCESSING tasks whose heartbeat is older
	// than the cutoff — candidates for Janitor reclamation.
	ListHeartbeatLapsed(dbc dbctx.Context, cutoff time.Time) ([]*jobdomain.Task, error)
	// ReclaimToQueued is the Janitor-only PROCESSING->QUEUED transition for
	// heartbeat-lapsed tasks (spec §4.8 item 1). It bypasses the normal
	// transition table the same way the Janitor's QUEUED->FAILED edge does,
	// since heartbeat reclamation has no other legal route back to QUEUED.
	ReclaimToQueued(dbc dbctx.Context, taskID string) (bool, error)
	// DeleteOrphans removes tasks whose parent_job_id has no matching job row.
	DeleteOrphans(dbc dbctx.Context) (int64, error)
}

type taskStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskStore(db *gorm.DB, baseLog *logger.Logger) TaskStore {
	return &taskStore{db: db, log: baseLog.With("component", "TaskStore")}
}

func (s *taskStore) GetTask(dbc dbctx.Context, taskID string) (*jobdomain.Task, error) {
	tx := txOf(dbc, s.db)
	var task jobdomain.Task
	err := tx.WithContext(dbc.Ctx).Where("task_id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, joberrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *taskStore) ListTasksForJob(dbc dbctx.Context, jobID string, stage *int, status *jobdomain.TaskStatus) ([]*jobdomain.Task, error) {
	tx := txOf(dbc, s.db)
	q := tx.WithContext(dbc.Ctx).Where("parent_job_id = ?", jobID)
	if stage != nil {
		q = q.Where("stage = ?", *stage)
	}
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var out []*jobdomain.Task
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *taskStore) CreateTaskBatch(dbc dbctx.Context, parentJobID string, tasks []*jobdomain.Task) ([]*jobdomain.Task, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: empty task batch", joberrors.ErrContractViolation)
	}
	if len(parentJobID) < 8 {
		return nil, fmt.Errorf("%w: parent job id shorter than 8 chars", joberrors.ErrContractViolation)
	}
	prefix := parentJobID[:8]
	for _, t := range tasks {
		if t.ParentJobID != parentJobID {
			return nil, fmt.Errorf("%w: task %s parent_job_id mismatch", joberrors.ErrContractViolation, t.TaskID)
		}
		if !strings.HasPrefix(t.TaskID, prefix) {
			return nil, fmt.Errorf("%w: task_id %s does not start with parent_job_id[:8]=%s", joberrors.ErrContractViolation, t.TaskID, prefix)
		}
	}

	tx := txOf(dbc, s.db)
	if err := tx.WithContext(dbc.Ctx).Create(&tasks).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		var existing []*jobdomain.Task
		if findErr := tx.WithContext(dbc.Ctx).
			Where("parent_job_id = ? AND stage = ?", parentJobID, tasks[0].Stage).
			Find(&existing).Error; findErr != nil {
			return nil, fmt.Errorf("create_task_batch: load existing after conflict: %w", findErr)
		}
		return existing, nil
	}
	return tasks, nil
}

func (s *taskStore) UpdateTaskStatus(dbc dbctx.Context, taskID string, newStatus jobdomain.TaskStatus, patch map[string]any) error {
	tx := txOf(dbc, s.db)
	return tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var task jobdomain.Task
		if err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("task_id = ?", taskID).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return joberrors.ErrNotFound
			}
			return err
		}
		if !jobdomain.IsValidTaskTransition(task.Status, newStatus) {
			return fmt.Errorf("%w: task %s %s->%s", joberrors.ErrInvalidTransition, taskID, task.Status, newStatus)
		}
		updates := map[string]any{}
		for k, v := range patch {
			updates[k] = v
		}
		updates["status"] = newStatus
		updates["updated_at"] = time.Now().UTC()
		return txx.Model(&jobdomain.Task{}).Where("task_id = ?", taskID).Updates(updates).Error
	})
}

func (s *taskStore) UpdateHeartbeat(dbc dbctx.Context, taskID string) error {
	tx := txOf(dbc, s.db)
	now := time.Now().UTC()
	return tx.WithContext(dbc.Ctx).Model(&jobdomain.Task{}).
		Where("task_id = ? AND status = ?", taskID, jobdomain.TaskProcessing).
		Updates(map[string]any{"heartbeat": now, "updated_at": now}).Error
}

func (s *taskStore) CompleteTaskAndCheckStage(dbc dbctx.Context, taskID, jobID string, stage int, resultData any, errorDetails any, success bool) (CompletionOutcome, error) {
	var out CompletionOutcome
	tx := txOf(dbc, s.db)

	err := tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		// Serialize every completer of this (job_id, stage) pair so the
		// remaining-count read below is never observed twice as zero.
		lockKey := fmt.Sprintf("%s:%d", jobID, stage)
		if err := txx.Exec("SELECT pg_advisory_xact_lock(hashtext(?)::bigint)", lockKey).Error; err != nil {
			return fmt.Errorf("acquire stage lock: %w", err)
		}

		var task jobdomain.Task
		if err := txx.Where("task_id = ? AND parent_job_id = ?", taskID, jobID).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return joberrors.ErrNotFound
			}
			return err
		}

		newStatus := jobdomain.TaskCompleted
		if !success {
			newStatus = jobdomain.TaskFailed
		}

		if jobdomain.IsValidTaskTransition(task.Status, newStatus) {
			resultJSON, err := marshalAny(resultData)
			if err != nil {
				return err
			}
			errJSON, err := marshalAny(errorDetails)
			if err != nil {
				return err
			}
			res := txx.Model(&jobdomain.Task{}).
				Where("task_id = ? AND status = ?", taskID, task.Status).
				Updates(map[string]any{
					"status":        newStatus,
					"result_data":   datatypes.JSON(resultJSON),
					"error_details": datatypes.JSON(errJSON),
					"updated_at":    time.Now().UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			out.TaskUpdated = res.RowsAffected > 0
		} else {
			// Already terminal: a duplicate delivery whose complete_task
			// call succeeded but whose message ack failed. No-op per the
			// idempotence contract in spec §4.6.
			out.TaskUpdated = false
		}

		var remaining int64
		if err := txx.Model(&jobdomain.Task{}).
			Where("parent_job_id = ? AND stage = ? AND status NOT IN ?", jobID, stage, []string{string(jobdomain.TaskCompleted), string(jobdomain.TaskFailed)}).
			Count(&remaining).Error; err != nil {
			return err
		}
		out.RemainingTasks = int(remaining)
		out.IsLastTaskInStage = remaining == 0
		return nil
	})
	if err != nil {
		return CompletionOutcome{}, err
	}
	return out, nil
}

func (s *taskStore) ListHeartbeatLapsed(dbc dbctx.Context, cutoff time.Time) ([]*jobdomain.Task, error) {
	tx := txOf(dbc, s.db)
	var out []*jobdomain.Task
	err := tx.WithContext(dbc.Ctx).
		Where("status = ? AND heartbeat IS NOT NULL AND heartbeat < ?", jobdomain.TaskProcessing, cutoff).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *taskStore) ReclaimToQueued(dbc dbctx.Context, taskID string) (bool, error) {
	tx := txOf(dbc, s.db)
	res := tx.WithContext(dbc.Ctx).Model(&jobdomain.Task{}).
		Where("task_id = ? AND status = ?", taskID, jobdomain.TaskProcessing).
		Updates(map[string]any{
			"status":     jobdomain.TaskQueued,
			"heartbeat":  nil,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *taskStore) DeleteOrphans(dbc dbctx.Context) (int64, error) {
	tx := txOf(dbc, s.db)
	res := tx.WithContext(dbc.Ctx).
		Where("parent_job_id NOT IN (SELECT job_id FROM jobs)").
		Delete(&jobdomain.Task{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
