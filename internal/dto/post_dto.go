package dto

import (
	"time"

	"github.com/classboard/classboard-api/internal/models"
)

// PostCreateRequest carries the fields needed to publish a classroom post.
type PostCreateRequest struct {
	AuthorName string `json:"author_name" validate:"required,max=255"`
	Title      string `json:"title" validate:"required,min=1,max=255"`
	Body       string `json:"body" validate:"required"`
}

// PostResponse is the API representation of a classroom post.
type PostResponse struct {
	ID          uint      `json:"id"`
	AuthorName  string    `json:"author_name"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewPostResponse maps a model to its API representation.
func NewPostResponse(post models.Post) PostResponse {
	return PostResponse{
		ID:          post.ID,
		AuthorName:  post.AuthorName,
		Title:       post.Title,
		Body:        post.Body,
		Attachments: post.Attachments,
		CreatedAt:   post.CreatedAt,
	}
}

// NewPostResponseSlice maps a slice of models.
func NewPostResponseSlice(posts []models.Post) []PostResponse {
	responses := make([]PostResponse, 0, len(posts))
	for _, post := range posts {
		responses = append(responses, NewPostResponse(post))
	}
	return responses
}
