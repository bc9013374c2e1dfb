package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Direction is the stance a vote takes on a target.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid vote direction %q", s)
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Up {
		return Down
	}
	return Up
}

// Column is the counter column this direction feeds on posts and comments.
func (d Direction) Column() string {
	if d == Down {
		return "downvotes"
	}
	return "upvotes"
}

// VoteState is a voter's current stance on a target: none, up or down.
type VoteState string

const (
	VoteNone VoteState = "none"
	VoteUp   VoteState = "up"
	VoteDown VoteState = "down"
)

// StateOf converts a direction to the matching state.
func StateOf(d Direction) VoteState {
	if d == Down {
		return VoteDown
	}
	return VoteUp
}

// Vote model - one row per (user, target), target is a post or a comment
type Vote struct {
	ID        uuid.UUID  `gorm:"primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"not null;uniqueIndex:idx_votes_user_post;uniqueIndex:idx_votes_user_comment" json:"user_id"`
	PostID    *uuid.UUID `gorm:"index;uniqueIndex:idx_votes_user_post;check:chkVotesOneTarget,(post_id IS NULL) <> (comment_id IS NULL)" json:"post_id,omitempty"`
	CommentID *uuid.UUID `gorm:"index;uniqueIndex:idx_votes_user_comment" json:"comment_id,omitempty"`
	VoteType  Direction  `gorm:"size:4;not null;check:chkVotesVoteType,vote_type IN ('up','down')" json:"vote_type"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
