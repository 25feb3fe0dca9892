package db

import (
	"fmt"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&jobdomain.Job{},
		&jobdomain.Task{},
	)
}

// EnsureJobIndexes adds indexes GORM's struct tags can't express directly,
// both for the stuck-job scan (spec §4.8 item 2): it joins jobs to tasks on
// (parent_job_id, stage, status) and filters jobs by (status, updated_at).
func EnsureJobIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_parent_job_stage_status
		ON tasks (parent_job_id, stage, status);
	`).Error; err != nil {
		return fmt.Errorf("create idx_tasks_parent_job_stage_status: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_jobs_status_updated_at
		ON jobs (status, updated_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_jobs_status_updated_at: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureJobIndexes(s.db); err != nil {
		s.log.Error("Job index migration failed", "error", err)
		return err
	}
	return nil
}
