package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/models"
)

// EvaluationRepository stores grading outcomes. Records are append-only; the
// highest-id record per submission is the current one.
type EvaluationRepository interface {
	Create(ctx context.Context, record *models.EvaluationRecord) error
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.EvaluationRecord, error)
	ListCurrentByAssignment(ctx context.Context, assignmentID uint) ([]models.EvaluationRecord, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(ctx context.Context, record *models.EvaluationRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *evaluationRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.EvaluationRecord, error) {
	var records []models.EvaluationRecord
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *evaluationRepository) ListCurrentByAssignment(ctx context.Context, assignmentID uint) ([]models.EvaluationRecord, error) {
	latest := r.db.Model(&models.EvaluationRecord{}).
		Select("MAX(id)").
		Where("assignment_id = ?", assignmentID).
		Group("submission_id")

	var records []models.EvaluationRecord
	if err := r.db.WithContext(ctx).
		Where("id IN (?)", latest).
		Order("submission_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
