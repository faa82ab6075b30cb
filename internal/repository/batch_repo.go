package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/models"
)

// BatchRepository stores batch grading jobs and their per-item failures. The
// orchestrator is the sole writer; progress counters only ever move forward.
type BatchRepository interface {
	Create(ctx context.Context, batch *models.EvaluationBatch) error
	GetByID(ctx context.Context, id string) (models.EvaluationBatch, error)
	MarkProcessing(ctx context.Context, id string) error
	IncrementProgress(ctx context.Context, id string, failed bool) error
	Finalize(ctx context.Context, id string, status string, completedAt time.Time) error
	AddFailure(ctx context.Context, failure *models.BatchFailure) error
	ListFailures(ctx context.Context, id string) ([]models.BatchFailure, error)
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository instantiates the repository.
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, batch *models.EvaluationBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *batchRepository) GetByID(ctx context.Context, id string) (models.EvaluationBatch, error) {
	var batch models.EvaluationBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return models.EvaluationBatch{}, err
	}

	return batch, nil
}

// MarkProcessing only transitions pending batches; a repeat call is a no-op.
func (r *batchRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&models.EvaluationBatch{}).
		Where("id = ? AND status = ?", id, models.BatchStatusPending).
		Update("status", models.BatchStatusProcessing).Error
}

// IncrementProgress bumps the attempted counter, and the failed counter when
// the item did not produce a record. The increment happens in the database so
// concurrent workers cannot lose updates.
func (r *batchRepository) IncrementProgress(ctx context.Context, id string, failed bool) error {
	updates := map[string]interface{}{
		"completed_count": gorm.Expr("completed_count + 1"),
	}
	if failed {
		updates["failed_count"] = gorm.Expr("failed_count + 1")
	}

	return r.db.WithContext(ctx).Model(&models.EvaluationBatch{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

// Finalize moves a processing batch into a terminal status. Terminal batches
// are never touched again.
func (r *batchRepository) Finalize(ctx context.Context, id string, status string, completedAt time.Time) error {
	if status != models.BatchStatusCompleted && status != models.BatchStatusCompletedWithErrors {
		return fmt.Errorf("status %q is not terminal", status)
	}

	return r.db.WithContext(ctx).Model(&models.EvaluationBatch{}).
		Where("id = ? AND status = ?", id, models.BatchStatusProcessing).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": completedAt,
		}).Error
}

func (r *batchRepository) AddFailure(ctx context.Context, failure *models.BatchFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

func (r *batchRepository) ListFailures(ctx context.Context, id string) ([]models.BatchFailure, error) {
	var failures []models.BatchFailure
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", id).
		Order("id ASC").
		Find(&failures).Error; err != nil {
		return nil, err
	}

	return failures, nil
}
