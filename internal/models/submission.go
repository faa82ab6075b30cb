package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is a student's answer to an assignment. The lifecycle status is
// fixed when the row is created by comparing the submission time to the
// assignment deadline; it is never revisited afterwards.
type Submission struct {
	ID           uint                       `gorm:"primaryKey" json:"id"`
	AssignmentID uint                       `gorm:"not null;index" json:"assignment_id"`
	StudentID    uint                       `gorm:"not null;index" json:"student_id"`
	Content      string                     `gorm:"type:text" json:"content"`
	Attachments  datatypes.JSONSlice[string] `json:"attachments"`
	Status       string                     `gorm:"size:32;not null" json:"status"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
	Assignment   Assignment                 `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student      Student                    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

const (
	// SubmissionStatusSubmitted marks a submission handed in before the deadline.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusLate marks a submission handed in after the deadline.
	SubmissionStatusLate = "late"
)

// HasContent reports whether the submission carries any gradable material.
func (s Submission) HasContent() bool {
	return s.Content != "" || len(s.Attachments) > 0
}
