package models

import "time"

// Assignment represents a graded classroom assignment.
type Assignment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	TotalMarks  float64   `gorm:"not null" json:"total_marks"`
	DueDate     time.Time `gorm:"not null" json:"due_date"`
	FileURL     string    `gorm:"size:512" json:"file_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsPastDue returns true when the deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}
