// Package karma derives each user's reputation from the net votes on the
// posts and comments they authored.
package karma

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/config"
	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/metrics"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

// Aggregator computes and caches karma. It is built once per process; its
// cache runs a background expiry loop that is never torn down.
type Aggregator struct {
	db           *gorm.DB
	logger       *zap.Logger
	metrics      *metrics.Metrics
	cache        *cache
	concurrency  int
	useProcedure bool

	// compute is the per-user step; RecomputeAll goes through it.
	compute func(ctx context.Context, userID uuid.UUID) (models.Karma, error)
}

func NewAggregator(db *gorm.DB, cfg config.Karma, logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	a := &Aggregator{
		db:           db,
		logger:       logging.OrNop(logger).Named("karma"),
		metrics:      metrics.OrNew(m),
		cache:        newCache(cfg.CacheSize, cfg.CacheTTL),
		concurrency:  max(cfg.Concurrency, 1),
		useProcedure: cfg.UseProcedure,
	}
	if a.useProcedure && !database.IsPostgres(db) {
		a.logger.Warn("karma procedure requires postgres, computing in process")
		a.useProcedure = false
	}
	a.compute = a.Compute
	return a
}

// Compute recalculates and persists userID's karma:
//
//	post_karma    = floor(sum(upvotes - downvotes) over authored posts / 10)
//	comment_karma = floor(sum(upvotes - downvotes) over authored comments / 10)
//	karma         = post_karma + comment_karma
//
// The triple is written in a single UPDATE, so a failed computation leaves
// the previously stored values in place.
func (a *Aggregator) Compute(ctx context.Context, userID uuid.UUID) (models.Karma, error) {
	var (
		k   models.Karma
		err error
	)
	if a.useProcedure {
		k, err = a.computeProcedure(ctx, userID)
	} else {
		k, err = a.computeInProcess(ctx, userID)
	}
	if err != nil {
		a.metrics.KarmaFailures.Inc()
		a.cache.forget(userID)
		return models.Karma{}, err
	}
	a.metrics.KarmaComputed.Inc()
	a.cache.set(userID, k)
	a.logger.Debug("karma computed",
		zap.Stringer("user", userID),
		zap.Int("post_karma", k.PostKarma),
		zap.Int("comment_karma", k.CommentKarma),
		zap.Int("karma", k.Total),
	)
	return k, nil
}

func (a *Aggregator) computeInProcess(ctx context.Context, userID uuid.UUID) (models.Karma, error) {
	var k models.Karma
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := profileExists(tx, userID); err != nil {
			return err
		}
		netPosts, err := netVotes(tx, &models.Post{}, userID)
		if err != nil {
			return err
		}
		netComments, err := netVotes(tx, &models.Comment{}, userID)
		if err != nil {
			return err
		}
		k.PostKarma = int(FloorDiv(netPosts, Divisor))
		k.CommentKarma = int(FloorDiv(netComments, Divisor))
		k.Total = k.PostKarma + k.CommentKarma

		now := time.Now().UTC()
		return database.Classify(tx.Model(&models.Profile{}).Where("id = ?", userID).UpdateColumns(map[string]any{
			"post_karma":       k.PostKarma,
			"comment_karma":    k.CommentKarma,
			"karma":            k.Total,
			"karma_updated_at": now,
		}).Error)
	})
	if err != nil {
		return models.Karma{}, database.Classify(err)
	}
	return k, nil
}

// computeProcedure runs calculate_user_karma server side and reads back the
// triple it stored.
func (a *Aggregator) computeProcedure(ctx context.Context, userID uuid.UUID) (models.Karma, error) {
	db := a.db.WithContext(ctx)
	var total int
	if err := db.Raw("SELECT calculate_user_karma(?)", userID.String()).Scan(&total).Error; err != nil {
		return models.Karma{}, database.Classify(err)
	}
	k, err := a.stored(db, userID)
	if err != nil {
		return models.Karma{}, err
	}
	if k.Total != total {
		// Another writer got in between the call and the read
		a.logger.Debug("karma changed after procedure", zap.Stringer("user", userID),
			zap.Int("returned", total), zap.Int("stored", k.Total))
	}
	return k, nil
}

// Get returns the stored karma of userID without recomputing it.
func (a *Aggregator) Get(ctx context.Context, userID uuid.UUID) (models.Karma, error) {
	if k, ok := a.cache.get(userID); ok {
		return k, nil
	}
	k, err := a.stored(a.db.WithContext(ctx), userID)
	if err != nil {
		return models.Karma{}, err
	}
	a.cache.fill(userID, k)
	return k, nil
}

func (a *Aggregator) stored(db *gorm.DB, userID uuid.UUID) (models.Karma, error) {
	var p models.Profile
	err := db.Select("id", "post_karma", "comment_karma", "karma").Where("id = ?", userID).Take(&p).Error
	if err != nil {
		if err = database.Classify(err); errors.Is(err, apperrors.ErrNotFound) {
			return models.Karma{}, apperrors.NotFound("profile", userID)
		}
		return models.Karma{}, err
	}
	return p.KarmaTriple(), nil
}

// RecomputeReport summarises a RecomputeAll pass.
type RecomputeReport struct {
	Users     int                  `json:"users"`
	Succeeded int                  `json:"succeeded"`
	Failed    map[uuid.UUID]string `json:"failed,omitempty"`
	Duration  time.Duration        `json:"duration"`
}

// RecomputeAll recomputes every profile's karma with bounded parallelism.
// A failing user is logged and recorded in the report; the others carry on.
// Cancelling ctx stops scheduling further users and returns ctx's error with
// the partial report.
func (a *Aggregator) RecomputeAll(ctx context.Context) (RecomputeReport, error) {
	start := time.Now()
	report := RecomputeReport{Failed: map[uuid.UUID]string{}}

	var ids []uuid.UUID
	if err := a.db.WithContext(ctx).Model(&models.Profile{}).Order("created_at").Pluck("id", &ids).Error; err != nil {
		return report, database.Classify(err)
	}
	report.Users = len(ids)
	a.logger.Info("karma recompute started", zap.Int("users", len(ids)))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := a.compute(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[id] = err.Error()
				a.logger.Error("karma recompute failed", zap.Stringer("user", id), zap.Error(err))
				return nil
			}
			report.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	a.metrics.RecomputeDuration.Observe(report.Duration.Seconds())
	a.logger.Info("karma recompute finished",
		zap.Int("users", report.Users),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("took", report.Duration),
	)
	return report, ctx.Err()
}

func profileExists(tx *gorm.DB, userID uuid.UUID) error {
	var n int64
	if err := tx.Model(&models.Profile{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return database.Classify(err)
	}
	if n == 0 {
		return apperrors.NotFound("profile", userID)
	}
	return nil
}

// netVotes sums upvotes - downvotes over the rows of model authored by userID.
func netVotes(tx *gorm.DB, model any, userID uuid.UUID) (int64, error) {
	var net int64
	err := tx.Model(model).
		Select("COALESCE(SUM(upvotes - downvotes), 0)").
		Where("author_id = ?", userID).
		Scan(&net).Error
	return net, database.Classify(err)
}
