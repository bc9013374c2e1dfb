package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile is a registered user together with the karma cached for fast reads.
type Profile struct {
	ID       uuid.UUID `gorm:"primaryKey" json:"id"`
	Username string    `gorm:"uniqueIndex;not null" json:"username"`
	Email    string    `gorm:"uniqueIndex;not null" json:"-"`
	Password string    `json:"-"`
	Bio      string    `json:"bio"`
	Avatar   string    `json:"avatar"`
	Role     string    `gorm:"size:16;not null;default:user" json:"role"`

	PostKarma      int        `gorm:"not null;default:0" json:"post_karma"`
	CommentKarma   int        `gorm:"not null;default:0" json:"comment_karma"`
	Karma          int        `gorm:"not null;default:0" json:"karma"`
	KarmaUpdatedAt *time.Time `json:"karma_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Role == "" {
		p.Role = RoleUser
	}
	return nil
}

// KarmaTriple returns the persisted karma values.
func (p Profile) KarmaTriple() Karma {
	return Karma{PostKarma: p.PostKarma, CommentKarma: p.CommentKarma, Total: p.Karma}
}

// Karma is the derived reputation of a user.
type Karma struct {
	PostKarma    int `json:"post_karma"`
	CommentKarma int `json:"comment_karma"`
	Total        int `json:"karma"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Avatar   string `json:"avatar"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token   string  `json:"token"`
	User    Profile `json:"user"`
	Message string  `json:"message"`
}

// MigrateModels lists every table in migration order.
var MigrateModels = []any{
	&Profile{},
	&Post{},
	&Comment{},
	&Vote{},
}
