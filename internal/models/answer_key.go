package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnswerKey is the teacher-provided reference material used to grade
// submissions for one assignment. Uploading a new key supersedes the previous
// one for future evaluations; records produced against an older key are kept
// untouched.
type AnswerKey struct {
	ID           uint                       `gorm:"primaryKey" json:"id"`
	AssignmentID uint                       `gorm:"not null;index" json:"assignment_id"`
	TeacherName  string                     `gorm:"size:255;not null" json:"teacher_name"`
	Content      string                     `gorm:"type:text" json:"content"`
	Attachments  datatypes.JSONSlice[string] `json:"attachments"`
	CreatedAt    time.Time                  `json:"created_at"`
	Assignment   Assignment                 `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
}

// HasContent reports whether the key carries any gradable material.
func (k AnswerKey) HasContent() bool {
	return k.Content != "" || len(k.Attachments) > 0
}
