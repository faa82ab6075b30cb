package service

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/dto"
	"github.com/classboard/classboard-api/internal/models"
	"github.com/classboard/classboard-api/internal/repository"
)

// ErrPostNotFound indicates a post could not be found.
var ErrPostNotFound = errors.New("post not found")

// PostService manages classroom posts.
type PostService interface {
	List(ctx context.Context, limit, offset int) ([]dto.PostResponse, error)
	Create(ctx context.Context, payload dto.PostCreateRequest, files []*multipart.FileHeader) (dto.PostResponse, error)
	Delete(ctx context.Context, id uint) error
}

type postService struct {
	posts     repository.PostRepository
	validator *validator.Validate
	uploader  FileUploader
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewPostService constructs a PostService instance.
func NewPostService(repo repository.PostRepository, validate *validator.Validate, uploader FileUploader, logger zerolog.Logger) PostService {
	return &postService{
		posts:     repo,
		validator: validate,
		uploader:  uploader,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "post_service").Logger(),
	}
}

func (s *postService) List(ctx context.Context, limit, offset int) ([]dto.PostResponse, error) {
	posts, err := s.posts.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewPostResponseSlice(posts), nil
}

func (s *postService) Create(ctx context.Context, payload dto.PostCreateRequest, files []*multipart.FileHeader) (dto.PostResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PostResponse{}, err
	}

	var attachments []string
	for _, file := range files {
		url, err := uploadAttachment(ctx, s.uploader, file)
		if err != nil {
			return dto.PostResponse{}, err
		}
		attachments = append(attachments, url)
	}

	post := models.Post{
		AuthorName:  strings.TrimSpace(payload.AuthorName),
		Title:       strings.TrimSpace(payload.Title),
		Body:        s.sanitizer.Sanitize(payload.Body),
		Attachments: datatypes.NewJSONSlice(attachments),
	}

	if err := s.posts.Create(ctx, &post); err != nil {
		return dto.PostResponse{}, err
	}

	s.logger.Info().Uint("post_id", post.ID).Msg("post published")

	return dto.NewPostResponse(post), nil
}

func (s *postService) Delete(ctx context.Context, id uint) error {
	if _, err := s.posts.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		return err
	}

	return s.posts.Delete(ctx, id)
}
