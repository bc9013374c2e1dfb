package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Post struct {
	ID        uuid.UUID `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Body      string    `json:"body,omitempty"`
	Image     string    `json:"image,omitempty"`
	AuthorID  uuid.UUID `gorm:"not null;index" json:"author_id"`
	Author    Profile   `gorm:"foreignKey:AuthorID" json:"author"`
	Community string    `json:"community,omitempty"`
	Upvotes   int       `gorm:"not null;default:0" json:"upvotes"`
	Downvotes int       `gorm:"not null;default:0" json:"downvotes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Post) Counters() Counters {
	return Counters{Upvotes: p.Upvotes, Downvotes: p.Downvotes}
}

type CreatePostRequest struct {
	Title     string `json:"title" binding:"required"`
	Body      string `json:"body"`
	Image     string `json:"image"`
	Community string `json:"community"`
}
