package votes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/counters"
	"github.com/emilythestrangee/baraza/backend/internal/database/dbtest"
	"github.com/emilythestrangee/baraza/backend/internal/metrics"
	"github.com/emilythestrangee/baraza/backend/internal/models"
	"github.com/emilythestrangee/baraza/backend/internal/retry"
)

type recordingNotifier struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (n *recordingNotifier) Schedule(userID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
}

func (n *recordingNotifier) scheduled() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.users...)
}

type fixture struct {
	db       *gorm.DB
	ledger   *Ledger
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	author   *models.Profile
	voter    *models.Profile
	post     *models.Post
	comment  *models.Comment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	m := metrics.New(nil)
	n := &recordingNotifier{}
	author := dbtest.Profile(t, db)
	post := dbtest.Post(t, db, author.ID, 0, 0)
	policy := retry.DefaultPolicy()
	policy.InitialInterval = time.Millisecond
	policy.MaxInterval = 5 * time.Millisecond
	return &fixture{
		db:       db,
		ledger:   NewLedger(db, counters.NewProjection(db, nil, m), WithNotifier(n), WithMetrics(m), WithRetryPolicy(policy)),
		notifier: n,
		metrics:  m,
		author:   author,
		voter:    dbtest.Profile(t, db),
		post:     post,
		comment:  dbtest.Comment(t, db, author.ID, post.ID, 0, 0),
	}
}

func TestCastVoteInsert(t *testing.T) {
	f := newFixture(t)
	target := models.PostTarget(f.post.ID)

	out, err := f.ledger.CastVote(context.Background(), f.voter.ID, target, models.Up)
	require.NoError(t, err)
	assert.Equal(t, ActionInserted, out.Action)
	assert.Equal(t, models.VoteUp, out.State)
	assert.Equal(t, models.Counters{Upvotes: 1}, out.Counters)
	assert.Equal(t, f.author.ID, out.AuthorID)
	assert.Equal(t, out.Counters, dbtest.Counters(t, f.db, target))
	assert.EqualValues(t, 1, dbtest.VoteRows(t, f.db, f.voter.ID, target))
}

func TestCastVoteSameDirectionRetracts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := models.PostTarget(f.post.ID)
	before := dbtest.Counters(t, f.db, target)

	_, err := f.ledger.CastVote(ctx, f.voter.ID, target, models.Up)
	require.NoError(t, err)
	out, err := f.ledger.CastVote(ctx, f.voter.ID, target, models.Up)
	require.NoError(t, err)

	assert.Equal(t, ActionRetracted, out.Action)
	assert.Equal(t, models.VoteNone, out.State)
	assert.Equal(t, before, out.Counters)
	assert.EqualValues(t, 0, dbtest.VoteRows(t, f.db, f.voter.ID, target))

	state, err := f.ledger.GetVote(ctx, f.voter.ID, target)
	require.NoError(t, err)
	assert.Equal(t, models.VoteNone, state)
}

func TestCastVoteOppositeDirectionFlips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := models.PostTarget(f.post.ID)

	_, err := f.ledger.CastVote(ctx, f.voter.ID, target, models.Up)
	require.NoError(t, err)
	out, err := f.ledger.CastVote(ctx, f.voter.ID, target, models.Down)
	require.NoError(t, err)

	assert.Equal(t, ActionFlipped, out.Action)
	assert.Equal(t, models.VoteDown, out.State)
	assert.Equal(t, models.Counters{Downvotes: 1}, out.Counters)
	assert.EqualValues(t, 1, dbtest.VoteRows(t, f.db, f.voter.ID, target))
}

// Voter B on a post at 5/2: up, down, down.
func TestCastVoteSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := dbtest.Post(t, f.db, f.author.ID, 5, 2)
	target := models.PostTarget(post.ID)

	steps := []struct {
		dir    models.Direction
		state  models.VoteState
		action Action
		want   models.Counters
	}{
		{models.Up, models.VoteUp, ActionInserted, models.Counters{Upvotes: 6, Downvotes: 2}},
		{models.Down, models.VoteDown, ActionFlipped, models.Counters{Upvotes: 5, Downvotes: 3}},
		{models.Down, models.VoteNone, ActionRetracted, models.Counters{Upvotes: 5, Downvotes: 2}},
	}
	for _, step := range steps {
		out, err := f.ledger.CastVote(ctx, f.voter.ID, target, step.dir)
		require.NoError(t, err)
		assert.Equal(t, step.state, out.State)
		assert.Equal(t, step.action, out.Action)
		assert.Equal(t, step.want, out.Counters)
	}
}

func TestCastVoteComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := models.CommentTarget(f.comment.ID)

	out, err := f.ledger.CastVote(ctx, f.voter.ID, target, models.Down)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Downvotes: 1}, out.Counters)
	assert.Equal(t, models.Counters{}, dbtest.Counters(t, f.db, models.PostTarget(f.post.ID)))

	// A post vote by the same voter is independent of the comment vote.
	_, err = f.ledger.CastVote(ctx, f.voter.ID, models.PostTarget(f.post.ID), models.Down)
	require.NoError(t, err)
	state, err := f.ledger.GetVote(ctx, f.voter.ID, target)
	require.NoError(t, err)
	assert.Equal(t, models.VoteDown, state)
}

func TestCastVoteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := models.PostTarget(f.post.ID)

	_, err := f.ledger.CastVote(ctx, uuid.Nil, target, models.Up)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.ledger.CastVote(ctx, uuid.New(), target, models.Up)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.ledger.CastVote(ctx, f.voter.ID, models.PostTarget(uuid.New()), models.Up)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.ledger.CastVote(ctx, f.voter.ID, models.CommentTarget(uuid.New()), models.Down)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.ledger.CastVote(ctx, f.voter.ID, target, models.Direction("sideways"))
	assert.Error(t, err)

	assert.Equal(t, models.Counters{}, dbtest.Counters(t, f.db, target))
	assert.Empty(t, f.notifier.scheduled())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.VoteFailures.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VoteFailures.WithLabelValues("unauthorized")))
}

func TestCastVoteNotifiesAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CastVote(ctx, f.voter.ID, models.PostTarget(f.post.ID), models.Up)
	require.NoError(t, err)
	_, err = f.ledger.CastVote(ctx, f.voter.ID, models.CommentTarget(f.comment.ID), models.Up)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{f.author.ID, f.author.ID}, f.notifier.scheduled())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesCast.WithLabelValues("post", "inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesCast.WithLabelValues("comment", "inserted")))
}

func TestCastVoteCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ledger.CastVote(ctx, f.voter.ID, models.PostTarget(f.post.ID), models.Up)
	require.Error(t, err)
	assert.Equal(t, models.Counters{}, dbtest.Counters(t, f.db, models.PostTarget(f.post.ID)))
}

func TestCastVoteConcurrent(t *testing.T) {
	f := newFixture(t)
	target := models.PostTarget(f.post.ID)

	dirs := []models.Direction{models.Up, models.Down}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(dir models.Direction) {
			defer wg.Done()
			_, _ = f.ledger.CastVote(context.Background(), f.voter.ID, target, dir)
		}(dirs[i%2])
	}
	wg.Wait()

	rows := dbtest.VoteRows(t, f.db, f.voter.ID, target)
	assert.LessOrEqual(t, rows, int64(1))

	state, err := f.ledger.GetVote(context.Background(), f.voter.ID, target)
	require.NoError(t, err)
	want := models.Counters{}
	switch state {
	case models.VoteUp:
		want.Upvotes = 1
	case models.VoteDown:
		want.Downvotes = 1
	}
	assert.Equal(t, want, dbtest.Counters(t, f.db, target))
}

func TestCastVoteManyVoters(t *testing.T) {
	f := newFixture(t)
	target := models.PostTarget(f.post.ID)
	voters := make([]*models.Profile, 6)
	for i := range voters {
		voters[i] = dbtest.Profile(t, f.db)
	}

	var wg sync.WaitGroup
	for _, v := range voters {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.ledger.CastVote(context.Background(), id, target, models.Up)
			assert.NoError(t, err)
		}(v.ID)
	}
	wg.Wait()

	assert.Equal(t, models.Counters{Upvotes: len(voters)}, dbtest.Counters(t, f.db, target))
}

func TestGetVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := models.PostTarget(f.post.ID)

	state, err := f.ledger.GetVote(ctx, f.voter.ID, target)
	require.NoError(t, err)
	assert.Equal(t, models.VoteNone, state)

	state, err = f.ledger.GetVote(ctx, uuid.Nil, target)
	require.NoError(t, err)
	assert.Equal(t, models.VoteNone, state)

	_, err = f.ledger.CastVote(ctx, f.voter.ID, target, models.Down)
	require.NoError(t, err)
	state, err = f.ledger.GetVote(ctx, f.voter.ID, target)
	require.NoError(t, err)
	assert.Equal(t, models.VoteDown, state)

	_, err = f.ledger.GetVote(ctx, f.voter.ID, models.Target{Kind: "video", ID: f.post.ID})
	assert.Error(t, err)
}
