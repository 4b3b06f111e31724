package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"txt-worker/domain"
	"txt-worker/models"
)

// PostgresLedgerRepository keeps a durable log of accepted jobs and their outcome.
type PostgresLedgerRepository struct {
	DB *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{DB: db}
}

// Migrate creates or updates the txt_jobs table.
func (repo *PostgresLedgerRepository) Migrate() error {
	if err := repo.DB.AutoMigrate(&models.TxtJob{}); err != nil {
		return fmt.Errorf("failed to migrate txt_jobs: %w", err)
	}
	return nil
}

func (repo *PostgresLedgerRepository) RecordAccepted(ctx context.Context, job domain.Job) error {
	row := models.TxtJob{
		ID:         job.ID,
		EventType:  job.Type,
		PDFPath:    job.SourcePath,
		TXTPath:    job.OutputDir,
		Status:     domain.StatusRunning,
		ReceivedAt: job.ReceivedAt,
	}
	if err := repo.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert txt job %s: %w", job.ID, err)
	}
	return nil
}

func (repo *PostgresLedgerRepository) RecordFinished(ctx context.Context, job domain.Job, res domain.JobResult) error {
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	err := repo.DB.WithContext(ctx).
		Model(&models.TxtJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":       res.Status,
			"pages":        res.PagesWritten,
			"page_errors":  res.PageErrors,
			"error":        errMsg,
			"completed_at": res.CompletedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to finish txt job %s: %w", job.ID, err)
	}
	return nil
}
