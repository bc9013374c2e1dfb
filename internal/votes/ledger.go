// Package votes records each voter's current stance on each post or comment
// and keeps the counter projection in step with it.
package votes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/counters"
	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/metrics"
	"github.com/emilythestrangee/baraza/backend/internal/models"
	"github.com/emilythestrangee/baraza/backend/internal/retry"
)

// Action describes what a cast did to the ledger.
type Action string

const (
	ActionInserted  Action = "inserted"
	ActionFlipped   Action = "flipped"
	ActionRetracted Action = "retracted"
)

// Outcome is the result of a successful CastVote.
type Outcome struct {
	Target   models.Target    `json:"target"`
	State    models.VoteState `json:"state"`
	Action   Action           `json:"action"`
	Counters models.Counters  `json:"counters"`
	AuthorID uuid.UUID        `json:"author_id"`
}

// AuthorNotifier is told whose content a committed vote touched.
type AuthorNotifier interface {
	Schedule(userID uuid.UUID)
}

type Ledger struct {
	db         *gorm.DB
	projection *counters.Projection
	policy     retry.Policy
	notifier   AuthorNotifier
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

type Option func(*Ledger)

func WithRetryPolicy(p retry.Policy) Option {
	return func(l *Ledger) { l.policy = p }
}

func WithNotifier(n AuthorNotifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func NewLedger(db *gorm.DB, projection *counters.Projection, opts ...Option) *Ledger {
	l := &Ledger{
		db:         db,
		projection: projection,
		policy:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrNop(l.logger).Named("votes")
	l.metrics = metrics.OrNew(l.metrics)
	onRetry := l.policy.OnRetry
	l.policy.OnRetry = func(reason string, err error) {
		l.metrics.Retries.WithLabelValues(reason).Inc()
		l.logger.Debug("retrying vote", zap.String("reason", reason), zap.Error(err))
		if onRetry != nil {
			onRetry(reason, err)
		}
	}
	return l
}

// CastVote applies voterID's vote in dir on target:
//   - no vote yet: insert it and count it
//   - same direction again: retract it (toggle off)
//   - opposite direction: flip it in place and move the count
//
// The ledger change and the counter adjustment commit together or not at all.
// Conflicts are retried once and transient store errors with backoff before
// the error is returned.
func (l *Ledger) CastVote(ctx context.Context, voterID uuid.UUID, target models.Target, dir models.Direction) (Outcome, error) {
	if voterID == uuid.Nil {
		return Outcome{}, fmt.Errorf("missing voter identity: %w", apperrors.ErrUnauthorized)
	}
	if err := target.Validate(); err != nil {
		return Outcome{}, err
	}
	if _, err := models.ParseDirection(string(dir)); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	err := retry.Do(ctx, l.policy, func(ctx context.Context) error {
		var err error
		out, err = l.castOnce(ctx, voterID, target, dir)
		return err
	})
	if err != nil {
		l.metrics.VoteFailures.WithLabelValues(failureReason(err)).Inc()
		return Outcome{}, err
	}

	l.metrics.VotesCast.WithLabelValues(string(target.Kind), string(out.Action)).Inc()
	l.logger.Debug("vote cast",
		zap.Stringer("voter", voterID),
		zap.String("target", target.String()),
		zap.String("action", string(out.Action)),
		zap.Int("upvotes", out.Counters.Upvotes),
		zap.Int("downvotes", out.Counters.Downvotes),
	)
	if l.notifier != nil {
		l.notifier.Schedule(out.AuthorID)
	}
	return out, nil
}

func (l *Ledger) castOnce(ctx context.Context, voterID uuid.UUID, target models.Target, dir models.Direction) (Outcome, error) {
	out := Outcome{Target: target}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.checkVoter(tx, voterID); err != nil {
			return err
		}
		authorID, err := l.authorOf(tx, target)
		if err != nil {
			return err
		}
		out.AuthorID = authorID

		existing, err := l.find(tx, voterID, target, database.IsPostgres(tx))
		if err != nil {
			return err
		}

		var deltas []delta
		switch {
		case existing == nil:
			vote := &models.Vote{UserID: voterID, VoteType: dir}
			if target.Kind == models.KindPost {
				vote.PostID = &target.ID
			} else {
				vote.CommentID = &target.ID
			}
			if err := tx.Create(vote).Error; err != nil {
				return database.Classify(err)
			}
			out.Action, out.State = ActionInserted, models.StateOf(dir)
			deltas = []delta{{dir, +1}}

		case existing.VoteType == dir:
			res := tx.Where("id = ? AND vote_type = ?", existing.ID, dir).Delete(&models.Vote{})
			if res.Error != nil {
				return database.Classify(res.Error)
			}
			if res.RowsAffected == 0 {
				return apperrors.Conflict("vote %s changed during retraction", existing.ID)
			}
			out.Action, out.State = ActionRetracted, models.VoteNone
			deltas = []delta{{dir, -1}}

		default:
			res := tx.Model(&models.Vote{}).
				Where("id = ? AND vote_type = ?", existing.ID, existing.VoteType).
				Update("vote_type", dir)
			if res.Error != nil {
				return database.Classify(res.Error)
			}
			if res.RowsAffected == 0 {
				return apperrors.Conflict("vote %s changed during flip", existing.ID)
			}
			out.Action, out.State = ActionFlipped, models.StateOf(dir)
			deltas = []delta{{dir.Opposite(), -1}, {dir, +1}}
		}

		for _, d := range deltas {
			c, err := l.projection.ApplyDelta(ctx, tx, target, d.dir, d.n)
			if err != nil && !apperrors.IsWarning(err) {
				return err
			}
			out.Counters = c
		}
		return nil
	})
	if err != nil {
		return Outcome{}, database.Classify(err)
	}
	return out, nil
}

type delta struct {
	dir models.Direction
	n   int
}

// GetVote returns voterID's current stance on target. It has no side effects.
func (l *Ledger) GetVote(ctx context.Context, voterID uuid.UUID, target models.Target) (models.VoteState, error) {
	if err := target.Validate(); err != nil {
		return models.VoteNone, err
	}
	if voterID == uuid.Nil {
		return models.VoteNone, nil
	}
	v, err := l.find(l.db.WithContext(ctx), voterID, target, false)
	if err != nil || v == nil {
		return models.VoteNone, err
	}
	return models.StateOf(v.VoteType), nil
}

// find returns the voter's row for target, or nil. With lock set the row is
// read FOR UPDATE, which only Postgres supports.
func (l *Ledger) find(tx *gorm.DB, voterID uuid.UUID, target models.Target, lock bool) (*models.Vote, error) {
	q := tx.Where("user_id = ? AND "+target.VoteColumn()+" = ?", voterID, target.ID)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var v models.Vote
	if err := q.Take(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return &v, nil
}

func (l *Ledger) checkVoter(tx *gorm.DB, voterID uuid.UUID) error {
	var n int64
	if err := tx.Model(&models.Profile{}).Where("id = ?", voterID).Count(&n).Error; err != nil {
		return database.Classify(err)
	}
	if n == 0 {
		return fmt.Errorf("voter %s has no profile: %w", voterID, apperrors.ErrUnauthorized)
	}
	return nil
}

func (l *Ledger) authorOf(tx *gorm.DB, target models.Target) (uuid.UUID, error) {
	var authors []uuid.UUID
	if err := tx.Model(target.Model()).Where("id = ?", target.ID).Pluck("author_id", &authors).Error; err != nil {
		return uuid.Nil, database.Classify(err)
	}
	if len(authors) == 0 {
		return uuid.Nil, apperrors.NotFound(string(target.Kind), target.ID)
	}
	return authors[0], nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	case errors.Is(err, apperrors.ErrTransientStore):
		return "transient"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "other"
}
