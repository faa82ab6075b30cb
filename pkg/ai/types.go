package ai

import (
	"context"
	"errors"
)

// ErrInvalidInput indicates the answer key or submission carries no gradable content.
var ErrInvalidInput = errors.New("grading input is invalid")

// ErrTimeout indicates the grading call exceeded its deadline.
var ErrTimeout = errors.New("grading call timed out")

// ErrService indicates the grading backend rejected or errored on the request.
var ErrService = errors.New("grading service error")

// GradeInput contains the artefacts needed to grade one submission against an
// answer key. File references are URLs already resolved by the caller.
type GradeInput struct {
	AssignmentTitle   string
	TotalMarks        float64
	AnswerKeyContent  string
	AnswerKeyFiles    []string
	StudentName       string
	SubmissionContent string
	SubmissionFiles   []string
}

// GradeResult is the structured score returned by the grading model. The Grade
// field is the model's own label and is advisory only; callers derive the
// authoritative letter grade from the obtained percentage.
type GradeResult struct {
	TotalMarks          float64  `json:"total_marks"`
	ObtainedMarks       float64  `json:"obtained_marks"`
	Grade               string   `json:"grade"`
	CorrectAnswers      []string `json:"correct_answers"`
	IncorrectAnswers    []string `json:"incorrect_answers"`
	PartialCreditAreas  []string `json:"partial_credit_areas"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
	DetailedFeedback    string   `json:"detailed_feedback"`
}

// Grader describes an AI model capable of scoring a submission against an
// answer key. Implementations enforce their own timeout, perform no retries,
// and are safe to call repeatedly with identical inputs.
type Grader interface {
	Grade(ctx context.Context, input GradeInput) (GradeResult, error)
}
