package counters

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

// ReconcileReport summarises a full counter repair pass.
type ReconcileReport struct {
	Checked  int                      `json:"checked"`
	Repaired []Reconciliation         `json:"repaired"`
	Failed   map[models.Target]string `json:"-"`
}

// ReconcileAll recounts every post and comment. A failure on one target is
// logged and recorded; the pass carries on with the rest.
func (p *Projection) ReconcileAll(ctx context.Context, concurrency int) (ReconcileReport, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	var targets []models.Target
	for _, kind := range []models.TargetKind{models.KindPost, models.KindComment} {
		var ids []uuid.UUID
		probe := models.Target{Kind: kind}
		if err := p.db.WithContext(ctx).Model(probe.Model()).Pluck("id", &ids).Error; err != nil {
			return ReconcileReport{}, database.Classify(err)
		}
		for _, id := range ids {
			targets = append(targets, models.Target{Kind: kind, ID: id})
		}
	}

	report := ReconcileReport{Failed: make(map[models.Target]string)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, target := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, err := p.Reconcile(gctx, target)
			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if err != nil {
				p.logger.Error("reconcile failed", zap.String("target", target.String()), zap.Error(err))
				report.Failed[target] = err.Error()
				return nil
			}
			if rec.Drifted() {
				report.Repaired = append(report.Repaired, rec)
			}
			return nil
		})
	}
	_ = g.Wait()
	return report, ctx.Err()
}
