package karma

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/baraza/backend/internal/config"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/metrics"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

// Recomputer is the part of Aggregator the scheduler drives.
type Recomputer interface {
	Compute(ctx context.Context, userID uuid.UUID) (models.Karma, error)
	RecomputeAll(ctx context.Context) (RecomputeReport, error)
}

// Scheduler recomputes karma in the background for users whose content
// received votes. Requests for a user already waiting in the queue are
// collapsed, and the queue is drained in batches.
type Scheduler struct {
	agg     Recomputer
	logger  *zap.Logger
	metrics *metrics.Metrics

	queue   chan uuid.UUID
	pending map[uuid.UUID]bool
	mu      sync.Mutex

	batchSize         int
	flushInterval     time.Duration
	reconcileInterval time.Duration
}

func NewScheduler(agg Recomputer, cfg config.Karma, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	s := &Scheduler{
		agg:               agg,
		logger:            logging.OrNop(logger).Named("karma.scheduler"),
		metrics:           metrics.OrNew(m),
		queue:             make(chan uuid.UUID, max(cfg.QueueSize, 1)),
		pending:           make(map[uuid.UUID]bool),
		batchSize:         max(cfg.BatchSize, 1),
		flushInterval:     cfg.FlushInterval,
		reconcileInterval: cfg.ReconcileInterval,
	}
	if s.flushInterval <= 0 {
		s.flushInterval = 500 * time.Millisecond
	}
	return s
}

// Schedule queues userID for recomputation. It never blocks: when the queue
// is full the request is dropped and left to the periodic full pass.
func (s *Scheduler) Schedule(userID uuid.UUID) {
	if userID == uuid.Nil {
		return
	}
	s.mu.Lock()
	if s.pending[userID] {
		s.mu.Unlock()
		return
	}
	s.pending[userID] = true
	s.mu.Unlock()

	select {
	case s.queue <- userID:
		s.metrics.SchedulerQueued.Inc()
	default:
		s.mu.Lock()
		delete(s.pending, userID)
		s.mu.Unlock()
		s.metrics.SchedulerDropped.Inc()
		s.logger.Warn("karma queue full, dropping user", zap.Stringer("user", userID))
	}
}

// Run processes the queue until ctx is done. With a positive reconcile
// interval it also runs a full RecomputeAll on that period.
func (s *Scheduler) Run(ctx context.Context) {
	batch := make([]uuid.UUID, 0, s.batchSize)
	flush := time.NewTicker(s.flushInterval)
	defer flush.Stop()

	var reconcile <-chan time.Time
	if s.reconcileInterval > 0 {
		t := time.NewTicker(s.reconcileInterval)
		defer t.Stop()
		reconcile = t.C
	}

	s.logger.Info("karma scheduler started",
		zap.Int("batch_size", s.batchSize),
		zap.Duration("flush_interval", s.flushInterval),
		zap.Duration("reconcile_interval", s.reconcileInterval),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("karma scheduler stopped", zap.Int("unprocessed", len(batch)+len(s.queue)))
			return
		case id := <-s.queue:
			batch = append(batch, id)
			if len(batch) >= s.batchSize {
				s.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-flush.C:
			if len(batch) > 0 {
				s.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-reconcile:
			if _, err := s.agg.RecomputeAll(ctx); err != nil {
				s.logger.Error("periodic karma recompute failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) processBatch(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		// Cleared first so a vote landing mid-compute queues the user again
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()

		if _, err := s.agg.Compute(ctx, id); err != nil {
			s.logger.Error("karma update failed", zap.Stringer("user", id), zap.Error(err))
		}
	}
}
