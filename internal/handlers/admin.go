package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/baraza/backend/internal/counters"
	"github.com/emilythestrangee/baraza/backend/internal/karma"
	"github.com/emilythestrangee/baraza/backend/internal/models"
	"github.com/emilythestrangee/baraza/backend/internal/votes"
)

// AdminHandler exposes the repair operations: karma recomputation and
// counter reconciliation.
type AdminHandler struct {
	karma       *karma.Aggregator
	projection  *counters.Projection
	scheduler   votes.AuthorNotifier
	concurrency int
	logger      *zap.Logger
}

func NewAdminHandler(d Deps) *AdminHandler {
	return &AdminHandler{karma: d.Karma, projection: d.Projection, scheduler: d.Scheduler, concurrency: max(d.Concurrency, 1), logger: d.Logger}
}

func (h *AdminHandler) RecomputeUser(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	k, err := h.karma.Compute(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

func (h *AdminHandler) RecomputeAll(c *gin.Context) {
	report, err := h.karma.RecomputeAll(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *AdminHandler) ReconcilePost(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.reconcile(c, models.PostTarget(postID))
}

func (h *AdminHandler) ReconcileComment(c *gin.Context) {
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}
	h.reconcile(c, models.CommentTarget(commentID))
}

func (h *AdminHandler) reconcile(c *gin.Context, target models.Target) {
	rec, err := h.projection.Reconcile(c.Request.Context(), target)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.refreshKarma(rec)
	c.JSON(http.StatusOK, gin.H{
		"target":  rec.Target,
		"before":  rec.Before,
		"after":   rec.After,
		"drifted": rec.Drifted(),
	})
}

// ReconcileCounters recounts every post and comment.
func (h *AdminHandler) ReconcileCounters(c *gin.Context) {
	report, err := h.projection.ReconcileAll(c.Request.Context(), h.concurrency)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	for _, rec := range report.Repaired {
		h.refreshKarma(rec)
	}
	failed := make(map[string]string, len(report.Failed))
	for target, msg := range report.Failed {
		failed[target.String()] = msg
	}
	c.JSON(http.StatusOK, gin.H{
		"checked":  report.Checked,
		"repaired": report.Repaired,
		"failed":   failed,
	})
}

// refreshKarma queues the author of a repaired target, whose stored karma was
// derived from the drifted counters.
func (h *AdminHandler) refreshKarma(rec counters.Reconciliation) {
	if rec.Drifted() {
		h.scheduler.Schedule(rec.AuthorID)
	}
}
