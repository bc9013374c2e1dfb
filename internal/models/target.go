package models

import (
	"fmt"

	"github.com/google/uuid"
)

// TargetKind tells which table a vote target lives in.
type TargetKind string

const (
	KindPost    TargetKind = "post"
	KindComment TargetKind = "comment"
)

func ParseTargetKind(s string) (TargetKind, error) {
	switch TargetKind(s) {
	case KindPost, KindComment:
		return TargetKind(s), nil
	}
	return "", fmt.Errorf("invalid target kind %q", s)
}

// Target identifies exactly one post or one comment.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

func PostTarget(id uuid.UUID) Target    { return Target{Kind: KindPost, ID: id} }
func CommentTarget(id uuid.UUID) Target { return Target{Kind: KindComment, ID: id} }

func (t Target) String() string {
	return string(t.Kind) + ":" + t.ID.String()
}

func (t Target) Validate() error {
	if _, err := ParseTargetKind(string(t.Kind)); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		return fmt.Errorf("empty %s id", t.Kind)
	}
	return nil
}

// Model returns an empty model of the target's table, for use with gorm's Model().
func (t Target) Model() any {
	if t.Kind == KindComment {
		return &Comment{}
	}
	return &Post{}
}

// VoteColumn is the votes column referencing this kind of target.
func (t Target) VoteColumn() string {
	if t.Kind == KindComment {
		return "comment_id"
	}
	return "post_id"
}

// Counters is the denormalized vote tally stored on posts and comments.
type Counters struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

// Net is upvotes minus downvotes.
func (c Counters) Net() int {
	return c.Upvotes - c.Downvotes
}
