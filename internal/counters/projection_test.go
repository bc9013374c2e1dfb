package counters

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/database/dbtest"
	"github.com/emilythestrangee/baraza/backend/internal/metrics"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

type fixture struct {
	db      *gorm.DB
	proj    *Projection
	metrics *metrics.Metrics
	author  *models.Profile
	post    *models.Post
	comment *models.Comment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	m := metrics.New(nil)
	author := dbtest.Profile(t, db)
	post := dbtest.Post(t, db, author.ID, 0, 0)
	comment := dbtest.Comment(t, db, author.ID, post.ID, 0, 0)
	return &fixture{
		db:      db,
		proj:    NewProjection(db, nil, m),
		metrics: m,
		author:  author,
		post:    post,
		comment: comment,
	}
}

// vote inserts a ledger row and applies the matching delta, as the ledger does.
func (f *fixture) vote(t *testing.T, target models.Target, dir models.Direction) {
	t.Helper()
	voter := dbtest.Profile(t, f.db)
	v := &models.Vote{UserID: voter.ID, VoteType: dir}
	if target.Kind == models.KindPost {
		v.PostID = &target.ID
	} else {
		v.CommentID = &target.ID
	}
	require.NoError(t, f.db.Create(v).Error)
	_, err := f.proj.ApplyDelta(context.Background(), f.db, target, dir, +1)
	require.NoError(t, err)
}

func TestApplyDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := models.PostTarget(f.post.ID)

	c, err := f.proj.ApplyDelta(ctx, nil, target, models.Up, +1)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Upvotes: 1}, c)

	c, err = f.proj.ApplyDelta(ctx, nil, target, models.Down, +1)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Upvotes: 1, Downvotes: 1}, c)

	c, err = f.proj.ApplyDelta(ctx, nil, target, models.Up, -1)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Downvotes: 1}, c)
	assert.Equal(t, c, dbtest.Counters(t, f.db, target))
}

func TestApplyDeltaComment(t *testing.T) {
	f := newFixture(t)
	target := models.CommentTarget(f.comment.ID)

	c, err := f.proj.ApplyDelta(context.Background(), nil, target, models.Down, +1)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Downvotes: 1}, c)
	assert.Equal(t, models.Counters{}, dbtest.Counters(t, f.db, models.PostTarget(f.post.ID)))
}

func TestApplyDeltaClampsAtZero(t *testing.T) {
	f := newFixture(t)
	target := models.PostTarget(f.post.ID)

	c, err := f.proj.ApplyDelta(context.Background(), nil, target, models.Up, -1)
	require.Error(t, err)
	assert.True(t, apperrors.IsWarning(err))
	var w *apperrors.ConsistencyWarning
	require.ErrorAs(t, err, &w)
	assert.Equal(t, "upvotes", w.Column)

	assert.Equal(t, models.Counters{}, c)
	assert.Equal(t, models.Counters{}, dbtest.Counters(t, f.db, target))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConsistencyWarnings.WithLabelValues("post", "clamp")))
}

func TestApplyDeltaErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proj.ApplyDelta(ctx, nil, models.PostTarget(uuid.New()), models.Up, +1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.proj.ApplyDelta(ctx, nil, models.CommentTarget(uuid.New()), models.Down, -1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, apperrors.IsWarning(err))

	_, err = f.proj.ApplyDelta(ctx, nil, models.PostTarget(f.post.ID), models.Up, 2)
	assert.Error(t, err)

	_, err = f.proj.ApplyDelta(ctx, nil, models.Target{Kind: "video", ID: f.post.ID}, models.Up, 1)
	assert.Error(t, err)
}

func TestApplyDeltaRollsBackWithTransaction(t *testing.T) {
	f := newFixture(t)
	target := models.PostTarget(f.post.ID)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.proj.ApplyDelta(context.Background(), tx, target, models.Up, +1); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, models.Counters{}, dbtest.Counters(t, f.db, target))
}

func TestReconcileMatchesIncremental(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := models.PostTarget(f.post.ID)

	f.vote(t, target, models.Up)
	f.vote(t, target, models.Up)
	f.vote(t, target, models.Down)
	incremental := dbtest.Counters(t, f.db, target)
	assert.Equal(t, models.Counters{Upvotes: 2, Downvotes: 1}, incremental)

	rec, err := f.proj.Reconcile(ctx, target)
	require.NoError(t, err)
	assert.False(t, rec.Drifted())
	assert.Equal(t, incremental, rec.After)

	again, err := f.proj.Reconcile(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, rec.After, again.After)
	assert.False(t, again.Drifted())
}

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := models.CommentTarget(f.comment.ID)
	f.vote(t, target, models.Down)

	require.NoError(t, f.db.Model(&models.Comment{}).Where("id = ?", f.comment.ID).
		UpdateColumns(map[string]any{"upvotes": 9, "downvotes": 0}).Error)

	rec, err := f.proj.Reconcile(ctx, target)
	require.NoError(t, err)
	assert.True(t, rec.Drifted())
	assert.Equal(t, models.Counters{Upvotes: 9}, rec.Before)
	assert.Equal(t, models.Counters{Downvotes: 1}, rec.After)
	assert.Equal(t, rec.After, dbtest.Counters(t, f.db, target))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConsistencyWarnings.WithLabelValues("comment", "drift")))
	assert.Equal(t, f.author.ID, rec.AuthorID)

	second, err := f.proj.Reconcile(ctx, target)
	require.NoError(t, err)
	assert.False(t, second.Drifted())
}

func TestReconcileNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.proj.Reconcile(context.Background(), models.PostTarget(uuid.New()))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.vote(t, models.PostTarget(f.post.ID), models.Up)
	other := dbtest.Post(t, f.db, f.author.ID, 4, 4)

	report, err := f.proj.ReconcileAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Empty(t, report.Failed)
	require.Len(t, report.Repaired, 1)
	assert.Equal(t, models.PostTarget(other.ID), report.Repaired[0].Target)
	assert.Equal(t, f.author.ID, report.Repaired[0].AuthorID)
	assert.Equal(t, models.Counters{}, dbtest.Counters(t, f.db, models.PostTarget(other.ID)))
	assert.Equal(t, models.Counters{Upvotes: 1}, dbtest.Counters(t, f.db, models.PostTarget(f.post.ID)))
}
