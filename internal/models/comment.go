package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Comment struct {
	ID              uuid.UUID  `gorm:"primaryKey" json:"id"`
	Body            string     `gorm:"not null" json:"body"`
	AuthorID        uuid.UUID  `gorm:"not null;index" json:"author_id"`
	Author          Profile    `gorm:"foreignKey:AuthorID" json:"author"`
	PostID          uuid.UUID  `gorm:"not null;index" json:"post_id"`
	ParentCommentID *uuid.UUID `json:"parent_comment_id,omitempty"`
	Upvotes         int        `gorm:"not null;default:0" json:"upvotes"`
	Downvotes       int        `gorm:"not null;default:0" json:"downvotes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Comment) Counters() Counters {
	return Counters{Upvotes: c.Upvotes, Downvotes: c.Downvotes}
}

type CreateCommentRequest struct {
	Body            string     `json:"body" binding:"required"`
	ParentCommentID *uuid.UUID `json:"parent_comment_id,omitempty"`
}
