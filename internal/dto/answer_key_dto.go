package dto

import (
	"time"

	"github.com/classboard/classboard-api/internal/models"
)

// AnswerKeyCreateRequest carries the fields needed to upload an answer key.
type AnswerKeyCreateRequest struct {
	AssignmentID uint   `json:"assignment_id" validate:"required"`
	TeacherName  string `json:"teacher_name" validate:"required,max=255"`
	Content      string `json:"content"`
}

// AnswerKeyResponse is the API representation of an answer key.
type AnswerKeyResponse struct {
	ID           uint      `json:"id"`
	AssignmentID uint      `json:"assignment_id"`
	TeacherName  string    `json:"teacher_name"`
	Content      string    `json:"content,omitempty"`
	Attachments  []string  `json:"attachments,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewAnswerKeyResponse maps a model to its API representation.
func NewAnswerKeyResponse(key models.AnswerKey) AnswerKeyResponse {
	return AnswerKeyResponse{
		ID:           key.ID,
		AssignmentID: key.AssignmentID,
		TeacherName:  key.TeacherName,
		Content:      key.Content,
		Attachments:  key.Attachments,
		CreatedAt:    key.CreatedAt,
	}
}
