package dto

import (
	"time"

	"github.com/classboard/classboard-api/internal/models"
)

// SingleEvaluationRequest asks for one submission to be graded.
type SingleEvaluationRequest struct {
	AssignmentID uint `json:"assignment_id" validate:"required"`
	SubmissionID uint `json:"submission_id" validate:"required"`
}

// BatchEvaluationRequest asks for a set of submissions to be graded together.
type BatchEvaluationRequest struct {
	AssignmentID  uint   `json:"assignment_id" validate:"required"`
	SubmissionIDs []uint `json:"submission_ids" validate:"required,min=1,dive,required"`
	RequestedBy   string `json:"requested_by" validate:"required,max=255"`
}

// EvaluationResponse is the API representation of an evaluation record.
type EvaluationResponse struct {
	ID                  uint      `json:"id"`
	AssignmentID        uint      `json:"assignment_id"`
	SubmissionID        uint      `json:"submission_id"`
	StudentID           uint      `json:"student_id"`
	BatchID             *string   `json:"batch_id,omitempty"`
	EvaluationType      string    `json:"evaluation_type"`
	TotalMarks          float64   `json:"total_marks"`
	ObtainedMarks       float64   `json:"obtained_marks"`
	Percentage          float64   `json:"percentage"`
	Grade               string    `json:"grade"`
	CorrectAnswers      []string  `json:"correct_answers"`
	IncorrectAnswers    []string  `json:"incorrect_answers"`
	PartialCreditAreas  []string  `json:"partial_credit_areas"`
	Strengths           []string  `json:"strengths"`
	AreasForImprovement []string  `json:"areas_for_improvement"`
	DetailedFeedback    string    `json:"detailed_feedback"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewEvaluationResponse maps a record to its API representation.
func NewEvaluationResponse(record models.EvaluationRecord) EvaluationResponse {
	return EvaluationResponse{
		ID:                  record.ID,
		AssignmentID:        record.AssignmentID,
		SubmissionID:        record.SubmissionID,
		StudentID:           record.StudentID,
		BatchID:             record.BatchID,
		EvaluationType:      record.EvaluationType,
		TotalMarks:          record.TotalMarks,
		ObtainedMarks:       record.ObtainedMarks,
		Percentage:          record.Percentage,
		Grade:               record.Grade,
		CorrectAnswers:      record.CorrectAnswers,
		IncorrectAnswers:    record.IncorrectAnswers,
		PartialCreditAreas:  record.PartialCreditAreas,
		Strengths:           record.Strengths,
		AreasForImprovement: record.AreasForImprovement,
		DetailedFeedback:    record.DetailedFeedback,
		CreatedAt:           record.CreatedAt,
	}
}

// NewEvaluationResponseSlice maps a slice of records.
func NewEvaluationResponseSlice(records []models.EvaluationRecord) []EvaluationResponse {
	responses := make([]EvaluationResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewEvaluationResponse(record))
	}
	return responses
}

// BatchFailureResponse describes one submission a batch could not grade.
type BatchFailureResponse struct {
	SubmissionID uint   `json:"submission_id"`
	Kind         string `json:"kind"`
	Message      string `json:"message,omitempty"`
}

// BatchStatusResponse is the pollable view of a batch grading job.
type BatchStatusResponse struct {
	ID           string                 `json:"id"`
	AssignmentID uint                   `json:"assignment_id"`
	RequestedBy  string                 `json:"requested_by"`
	Total        int                    `json:"total"`
	Completed    int                    `json:"completed"`
	Failed       int                    `json:"failed"`
	Status       string                 `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	Failures     []BatchFailureResponse `json:"failures,omitempty"`
}

// NewBatchStatusResponse maps a batch and its failures to the API shape.
func NewBatchStatusResponse(batch models.EvaluationBatch, failures []models.BatchFailure) BatchStatusResponse {
	response := BatchStatusResponse{
		ID:           batch.ID,
		AssignmentID: batch.AssignmentID,
		RequestedBy:  batch.RequestedBy,
		Total:        batch.TotalCount,
		Completed:    batch.CompletedCount,
		Failed:       batch.FailedCount,
		Status:       batch.Status,
		CreatedAt:    batch.CreatedAt,
		CompletedAt:  batch.CompletedAt,
	}

	for _, failure := range failures {
		response.Failures = append(response.Failures, BatchFailureResponse{
			SubmissionID: failure.SubmissionID,
			Kind:         failure.Kind,
			Message:      failure.Message,
		})
	}

	return response
}

// AssignmentSummaryResponse aggregates the current evaluation records of one
// assignment into class-level statistics.
type AssignmentSummaryResponse struct {
	AssignmentID         uint           `json:"assignment_id"`
	TotalSubmissions     int            `json:"total_submissions"`
	EvaluatedSubmissions int            `json:"evaluated_submissions"`
	MeanPercentage       float64        `json:"mean_percentage"`
	MaxPercentage        float64        `json:"max_percentage"`
	MinPercentage        float64        `json:"min_percentage"`
	GradeDistribution    map[string]int `json:"grade_distribution"`
	PassRate             float64        `json:"pass_rate"`
	GeneratedAt          time.Time      `json:"generated_at"`
}
