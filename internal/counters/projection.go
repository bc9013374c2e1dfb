// Package counters maintains the upvote/downvote tallies cached on posts and
// comments. The votes table is the source of truth; these columns are a
// projection of it that must always equal the ledger's per-direction counts.
package counters

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/metrics"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

type Projection struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewProjection(db *gorm.DB, logger *zap.Logger, m *metrics.Metrics) *Projection {
	return &Projection{
		db:      db,
		logger:  logging.OrNop(logger).Named("counters"),
		metrics: metrics.OrNew(m),
	}
}

// ApplyDelta adds delta (+1 or -1) to the direction's counter on target using
// tx, which should be the transaction that changed the ledger. The update is
// a single conditional statement so concurrent callers never lose updates.
//
// If the counter would go negative it is clamped at 0 and a
// *apperrors.ConsistencyWarning is returned alongside the valid counters.
func (p *Projection) ApplyDelta(ctx context.Context, tx *gorm.DB, target models.Target, dir models.Direction, delta int) (models.Counters, error) {
	if delta != 1 && delta != -1 {
		return models.Counters{}, fmt.Errorf("invalid counter delta %d", delta)
	}
	if err := target.Validate(); err != nil {
		return models.Counters{}, err
	}
	if tx == nil {
		tx = p.db
	}
	tx = tx.WithContext(ctx)
	col := dir.Column()

	res := tx.Model(target.Model()).
		Where("id = ?", target.ID).
		Where(col+" + ? >= 0", delta).
		UpdateColumn(col, gorm.Expr(col+" + ?", delta))
	if res.Error != nil {
		return models.Counters{}, database.Classify(res.Error)
	}

	var warning error
	if res.RowsAffected == 0 {
		// Either the target is gone or the counter is already at 0
		if _, err := p.read(tx, target); err != nil {
			return models.Counters{}, err
		}
		if err := tx.Model(target.Model()).Where("id = ?", target.ID).UpdateColumn(col, 0).Error; err != nil {
			return models.Counters{}, database.Classify(err)
		}
		warning = p.warn(target, col, "clamp", "decrement would go negative, clamped at 0")
	}

	counters, err := p.read(tx, target)
	if err != nil {
		return models.Counters{}, err
	}
	return counters, warning
}

// Get returns the stored counters of target.
func (p *Projection) Get(ctx context.Context, target models.Target) (models.Counters, error) {
	if err := target.Validate(); err != nil {
		return models.Counters{}, err
	}
	return p.read(p.db.WithContext(ctx), target)
}

// Tally counts the ledger rows for target without touching its counters.
func (p *Projection) Tally(ctx context.Context, target models.Target) (models.Counters, error) {
	if err := target.Validate(); err != nil {
		return models.Counters{}, err
	}
	return p.tally(p.db.WithContext(ctx), target)
}

// Reconciliation is the result of recounting one target.
type Reconciliation struct {
	Target models.Target   `json:"target"`
	Before models.Counters `json:"before"`
	After  models.Counters `json:"after"`
	// AuthorID owns the target; its karma is stale when the counters drifted.
	AuthorID uuid.UUID `json:"author_id"`
}

// Drifted reports whether the stored counters disagreed with the ledger.
func (r Reconciliation) Drifted() bool {
	return r.Before != r.After
}

// Reconcile recounts the ledger rows for target and overwrites its counters.
// Drift is logged and counted as a consistency warning but is not an error.
func (p *Projection) Reconcile(ctx context.Context, target models.Target) (Reconciliation, error) {
	if err := target.Validate(); err != nil {
		return Reconciliation{}, err
	}
	rec := Reconciliation{Target: target}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := p.read(tx, target)
		if err != nil {
			return err
		}
		after, err := p.tally(tx, target)
		if err != nil {
			return err
		}
		if err := tx.Model(target.Model()).Where("id = ?", target.ID).UpdateColumns(map[string]any{
			"upvotes":   after.Upvotes,
			"downvotes": after.Downvotes,
		}).Error; err != nil {
			return database.Classify(err)
		}
		var authors []uuid.UUID
		if err := tx.Model(target.Model()).Where("id = ?", target.ID).Pluck("author_id", &authors).Error; err != nil {
			return database.Classify(err)
		}
		if len(authors) > 0 {
			rec.AuthorID = authors[0]
		}
		rec.Before, rec.After = before, after
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if rec.Drifted() {
		_ = p.warn(target, "upvotes,downvotes", "drift", fmt.Sprintf("drift repaired: stored %d/%d, ledger %d/%d",
			rec.Before.Upvotes, rec.Before.Downvotes, rec.After.Upvotes, rec.After.Downvotes))
	}
	return rec, nil
}

type directionCount struct {
	VoteType models.Direction
	N        int
}

// tally counts the ledger rows for target by direction.
func (p *Projection) tally(tx *gorm.DB, target models.Target) (models.Counters, error) {
	var rows []directionCount
	err := tx.Model(&models.Vote{}).
		Select("vote_type, COUNT(*) AS n").
		Where(target.VoteColumn()+" = ?", target.ID).
		Group("vote_type").
		Scan(&rows).Error
	if err != nil {
		return models.Counters{}, database.Classify(err)
	}
	var c models.Counters
	for _, r := range rows {
		switch r.VoteType {
		case models.Up:
			c.Upvotes = r.N
		case models.Down:
			c.Downvotes = r.N
		}
	}
	return c, nil
}

func (p *Projection) read(tx *gorm.DB, target models.Target) (models.Counters, error) {
	var c models.Counters
	err := tx.Model(target.Model()).
		Select("upvotes", "downvotes").
		Where("id = ?", target.ID).
		Take(&c).Error
	if err != nil {
		if err = database.Classify(err); errors.Is(err, apperrors.ErrNotFound) {
			return models.Counters{}, apperrors.NotFound(string(target.Kind), target.ID)
		}
		return models.Counters{}, err
	}
	return c, nil
}

func (p *Projection) warn(target models.Target, column, label, reason string) error {
	w := &apperrors.ConsistencyWarning{Target: target.String(), Column: column, Reason: reason}
	p.logger.Warn("counter consistency warning",
		zap.String("target", w.Target),
		zap.String("column", column),
		zap.String("reason", reason),
	)
	p.metrics.ConsistencyWarnings.WithLabelValues(string(target.Kind), label).Inc()
	return w
}
