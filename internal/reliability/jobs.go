package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/internal/database"
)

// BackupJob runs the backup service on a schedule.
type BackupJob struct {
	service *BackupService
}

// NewBackupJob creates a scheduled backup job.
func NewBackupJob(service *BackupService) *BackupJob {
	return &BackupJob{service: service}
}

// Name returns the job name.
func (j *BackupJob) Name() string {
	return "cloud_backup"
}

// Run creates and uploads one backup.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return j.service.CreateAndUploadBackup(ctx)
}

// MaintenanceJob keeps the databases healthy: it truncates the WAL so the
// log file doesn't grow unbounded and runs a quick integrity check.
type MaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a database maintenance job.
func NewMaintenanceJob(log zerolog.Logger, databases ...*database.DB) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "db_maintenance").Logger(),
	}
}

// Name returns the job name.
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run performs maintenance on every registered database.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, db := range j.databases {
		if db == nil {
			continue
		}

		if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("wal checkpoint failed for %s: %w", db.Name(), err)
		}

		if err := db.QuickCheck(ctx); err != nil {
			return fmt.Errorf("integrity check failed for %s: %w", db.Name(), err)
		}

		j.log.Debug().Str("database", db.Name()).Msg("Maintenance completed")
	}
	return nil
}
