package dto

import (
	"time"

	"github.com/classboard/classboard-api/internal/models"
)

// SubmissionCreateRequest carries the fields needed to hand in a submission.
type SubmissionCreateRequest struct {
	AssignmentID uint   `json:"assignment_id" validate:"required"`
	StudentID    uint   `json:"student_id" validate:"required"`
	Content      string `json:"content"`
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	Status       *string
}

// SubmissionResponse is the API representation of a submission.
type SubmissionResponse struct {
	ID           uint      `json:"id"`
	AssignmentID uint      `json:"assignment_id"`
	StudentID    uint      `json:"student_id"`
	StudentName  string    `json:"student_name,omitempty"`
	Content      string    `json:"content,omitempty"`
	Attachments  []string  `json:"attachments,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewSubmissionResponse maps a model to its API representation.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:           submission.ID,
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
		StudentName:  submission.Student.Name,
		Content:      submission.Content,
		Attachments:  submission.Attachments,
		Status:       submission.Status,
		CreatedAt:    submission.CreatedAt,
	}
}

// NewSubmissionResponseSlice maps a slice of models.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}
