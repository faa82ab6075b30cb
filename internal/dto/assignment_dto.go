package dto

import (
	"time"

	"github.com/classboard/classboard-api/internal/models"
)

// AssignmentCreateRequest carries the fields needed to create an assignment.
type AssignmentCreateRequest struct {
	Title       string    `json:"title" validate:"required,min=3,max=255"`
	Description string    `json:"description"`
	TotalMarks  float64   `json:"total_marks" validate:"required,gt=0"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

// AssignmentResponse is the API representation of an assignment.
type AssignmentResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TotalMarks  float64   `json:"total_marks"`
	DueDate     time.Time `json:"due_date"`
	FileURL     string    `json:"file_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewAssignmentResponse maps a model to its API representation.
func NewAssignmentResponse(assignment models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:          assignment.ID,
		Title:       assignment.Title,
		Description: assignment.Description,
		TotalMarks:  assignment.TotalMarks,
		DueDate:     assignment.DueDate,
		FileURL:     assignment.FileURL,
		CreatedAt:   assignment.CreatedAt,
	}
}

// NewAssignmentResponseSlice maps a slice of models.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}
	return responses
}
