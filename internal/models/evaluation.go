package models

import (
	"time"

	"gorm.io/datatypes"
)

// EvaluationRecord is the persisted outcome of grading one submission against
// an answer key. Records are append-only: re-evaluating a submission inserts a
// new row and the newest row per submission is the current one everywhere
// (listing and statistics alike). Older rows remain for audit.
type EvaluationRecord struct {
	ID                  uint                       `gorm:"primaryKey" json:"id"`
	AssignmentID        uint                       `gorm:"not null;index" json:"assignment_id"`
	SubmissionID        uint                       `gorm:"not null;index" json:"submission_id"`
	StudentID           uint                       `gorm:"not null" json:"student_id"`
	BatchID             *string                    `gorm:"size:36;index" json:"batch_id,omitempty"`
	EvaluationType      string                     `gorm:"size:16;not null" json:"evaluation_type"`
	TotalMarks          float64                    `gorm:"not null" json:"total_marks"`
	ObtainedMarks       float64                    `gorm:"not null" json:"obtained_marks"`
	Percentage          float64                    `gorm:"not null" json:"percentage"`
	Grade               string                     `gorm:"size:2;not null" json:"grade"`
	CorrectAnswers      datatypes.JSONSlice[string] `json:"correct_answers"`
	IncorrectAnswers    datatypes.JSONSlice[string] `json:"incorrect_answers"`
	PartialCreditAreas  datatypes.JSONSlice[string] `json:"partial_credit_areas"`
	Strengths           datatypes.JSONSlice[string] `json:"strengths"`
	AreasForImprovement datatypes.JSONSlice[string] `json:"areas_for_improvement"`
	DetailedFeedback    string                     `gorm:"type:text" json:"detailed_feedback"`
	CreatedAt           time.Time                  `json:"created_at"`
}

const (
	// EvaluationTypeSingle tags a record produced by a one-off evaluation.
	EvaluationTypeSingle = "single"
	// EvaluationTypeBatch tags a record produced as part of a batch.
	EvaluationTypeBatch = "batch"
)

// Passed reports whether the record clears the passing threshold.
func (r EvaluationRecord) Passed() bool {
	return r.Percentage >= PassingPercentage
}

// EvaluationBatch tracks one batch grading job. Status only moves forward:
// pending -> processing -> completed | completed_with_errors. CompletedCount
// counts attempted items, successful or not, so it reaches TotalCount exactly
// once per item and the batch always terminates.
type EvaluationBatch struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID   uint       `gorm:"not null;index" json:"assignment_id"`
	RequestedBy    string     `gorm:"size:255;not null" json:"requested_by"`
	TotalCount     int        `gorm:"not null" json:"total_count"`
	CompletedCount int        `gorm:"not null" json:"completed_count"`
	FailedCount    int        `gorm:"not null" json:"failed_count"`
	Status         string     `gorm:"size:32;not null" json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

const (
	// BatchStatusPending means the batch row exists but no work was dispatched yet.
	BatchStatusPending = "pending"
	// BatchStatusProcessing means grading work is being dispatched.
	BatchStatusProcessing = "processing"
	// BatchStatusCompleted means every item graded successfully.
	BatchStatusCompleted = "completed"
	// BatchStatusCompletedWithErrors means the batch terminated with at least one failed item.
	BatchStatusCompletedWithErrors = "completed_with_errors"
)

// Terminal reports whether the batch reached a final status.
func (b EvaluationBatch) Terminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusCompletedWithErrors
}

// BatchFailure records one submission that could not be graded inside a batch.
// Failures are not evaluation records; they only count toward batch progress.
type BatchFailure struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	BatchID      string    `gorm:"size:36;not null;index" json:"batch_id"`
	SubmissionID uint      `gorm:"not null" json:"submission_id"`
	Kind         string    `gorm:"size:32;not null" json:"kind"`
	Message      string    `gorm:"size:512" json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	// FailureKindTimeout marks items whose grading call exceeded its deadline twice.
	FailureKindTimeout = "timeout"
	// FailureKindService marks items rejected or errored by the grading backend twice.
	FailureKindService = "service_error"
	// FailureKindInvalidInput marks items with empty or malformed gradable content.
	FailureKindInvalidInput = "invalid_input"
	// FailureKindCancelled marks items that were never dispatched because the batch was cancelled.
	FailureKindCancelled = "cancelled"
	// FailureKindPersistence marks items that graded fine but whose record could not be saved.
	FailureKindPersistence = "persistence_error"
)

// PassingPercentage is the fixed policy threshold below which a record counts
// as failing for statistics purposes.
const PassingPercentage = 60.0

// GradeFor maps a percentage to a letter grade using the fixed thresholds.
// The classifier is authoritative: whatever grade label the grading model
// suggests is discarded in favour of this mapping.
func GradeFor(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= PassingPercentage:
		return "D"
	default:
		return "F"
	}
}
