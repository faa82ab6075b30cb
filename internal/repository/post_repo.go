package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/models"
)

// PostRepository defines data operations for classroom posts.
type PostRepository interface {
	List(ctx context.Context, limit, offset int) ([]models.Post, error)
	GetByID(ctx context.Context, id uint) (models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository instantiates the repository.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) List(ctx context.Context, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 20
	}

	var posts []models.Post
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error; err != nil {
		return nil, err
	}

	return posts, nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return models.Post{}, err
	}

	return post, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Post{}, id).Error
}
