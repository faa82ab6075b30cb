package service

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classboard/classboard-api/internal/dto"
	"github.com/classboard/classboard-api/internal/models"
	"github.com/classboard/classboard-api/internal/repository"
)

// ErrAnswerKeyMissing indicates no answer key exists for the assignment.
var ErrAnswerKeyMissing = errors.New("answer key missing for assignment")

// ErrAnswerKeyEmpty indicates the key has neither text nor files.
var ErrAnswerKeyEmpty = errors.New("answer key has no content")

// AnswerKeyService manages teacher answer keys. Keys are append-only: a new
// upload supersedes the previous one for future evaluations without touching
// records produced against it.
type AnswerKeyService interface {
	GetForAssignment(ctx context.Context, assignmentID uint) (dto.AnswerKeyResponse, error)
	History(ctx context.Context, assignmentID uint) ([]dto.AnswerKeyResponse, error)
	Create(ctx context.Context, payload dto.AnswerKeyCreateRequest, files []*multipart.FileHeader) (dto.AnswerKeyResponse, error)
}

type answerKeyService struct {
	keys        repository.AnswerKeyRepository
	assignments repository.AssignmentRepository
	validator   *validator.Validate
	uploader    FileUploader
	logger      zerolog.Logger
}

// NewAnswerKeyService constructs an AnswerKeyService instance.
func NewAnswerKeyService(keyRepo repository.AnswerKeyRepository, assignmentRepo repository.AssignmentRepository, validate *validator.Validate, uploader FileUploader, logger zerolog.Logger) AnswerKeyService {
	return &answerKeyService{
		keys:        keyRepo,
		assignments: assignmentRepo,
		validator:   validate,
		uploader:    uploader,
		logger:      logger.With().Str("component", "answer_key_service").Logger(),
	}
}

func (s *answerKeyService) GetForAssignment(ctx context.Context, assignmentID uint) (dto.AnswerKeyResponse, error) {
	key, err := s.keys.LatestForAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnswerKeyResponse{}, ErrAnswerKeyMissing
		}
		return dto.AnswerKeyResponse{}, err
	}

	return dto.NewAnswerKeyResponse(key), nil
}

func (s *answerKeyService) History(ctx context.Context, assignmentID uint) ([]dto.AnswerKeyResponse, error) {
	keys, err := s.keys.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AnswerKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, dto.NewAnswerKeyResponse(key))
	}

	return responses, nil
}

func (s *answerKeyService) Create(ctx context.Context, payload dto.AnswerKeyCreateRequest, files []*multipart.FileHeader) (dto.AnswerKeyResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AnswerKeyResponse{}, err
	}

	if payload.Content == "" && len(files) == 0 {
		return dto.AnswerKeyResponse{}, ErrAnswerKeyEmpty
	}

	if _, err := s.assignments.GetByID(ctx, payload.AssignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnswerKeyResponse{}, ErrAssignmentNotFound
		}
		return dto.AnswerKeyResponse{}, err
	}

	var attachments []string
	for _, file := range files {
		url, err := uploadAttachment(ctx, s.uploader, file)
		if err != nil {
			return dto.AnswerKeyResponse{}, err
		}
		attachments = append(attachments, url)
	}

	key := models.AnswerKey{
		AssignmentID: payload.AssignmentID,
		TeacherName:  payload.TeacherName,
		Content:      payload.Content,
		Attachments:  datatypes.NewJSONSlice(attachments),
	}

	if err := s.keys.Create(ctx, &key); err != nil {
		return dto.AnswerKeyResponse{}, err
	}

	s.logger.Info().
		Uint("assignment_id", key.AssignmentID).
		Uint("answer_key_id", key.ID).
		Msg("answer key uploaded")

	return dto.NewAnswerKeyResponse(key), nil
}
