package models

import (
	"time"

	"gorm.io/datatypes"
)

// Post is a classroom announcement or discussion entry. Body content is
// sanitized before it reaches the store.
type Post struct {
	ID          uint                       `gorm:"primaryKey" json:"id"`
	AuthorName  string                     `gorm:"size:255;not null" json:"author_name"`
	Title       string                     `gorm:"size:255;not null" json:"title"`
	Body        string                     `gorm:"type:text" json:"body"`
	Attachments datatypes.JSONSlice[string] `json:"attachments"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}
