package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/models"
)

// AnswerKeyRepository defines data operations for answer keys. Keys are
// append-only; the newest key per assignment is the one used for grading.
type AnswerKeyRepository interface {
	LatestForAssignment(ctx context.Context, assignmentID uint) (models.AnswerKey, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.AnswerKey, error)
	Create(ctx context.Context, key *models.AnswerKey) error
}

type answerKeyRepository struct {
	db *gorm.DB
}

// NewAnswerKeyRepository instantiates the repository.
func NewAnswerKeyRepository(db *gorm.DB) AnswerKeyRepository {
	return &answerKeyRepository{db: db}
}

func (r *answerKeyRepository) LatestForAssignment(ctx context.Context, assignmentID uint) (models.AnswerKey, error) {
	var key models.AnswerKey
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("id DESC").
		First(&key).Error; err != nil {
		return models.AnswerKey{}, err
	}

	return key, nil
}

func (r *answerKeyRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.AnswerKey, error) {
	var keys []models.AnswerKey
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("id DESC").
		Find(&keys).Error; err != nil {
		return nil, err
	}

	return keys, nil
}

func (r *answerKeyRepository) Create(ctx context.Context, key *models.AnswerKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}
