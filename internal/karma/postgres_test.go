package karma

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/config"
	"github.com/emilythestrangee/baraza/backend/internal/counters"
	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/database/dbtest"
	"github.com/emilythestrangee/baraza/backend/internal/models"
	"github.com/emilythestrangee/baraza/backend/internal/votes"
)

// startPostgres runs a throwaway Postgres and returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("baraza"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func openPostgres(t *testing.T, dsn, driver string) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.Database{Driver: driver, URL: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestPostgresIntegration(t *testing.T) {
	dsn := startPostgres(t)
	db := openPostgres(t, dsn, config.DriverPgx)
	require.NoError(t, database.Migrate(db))
	require.True(t, database.IsPostgres(db))
	ctx := context.Background()

	t.Run("procedure matches in-process computation", func(t *testing.T) {
		user := dbtest.Profile(t, db)
		post := dbtest.Post(t, db, user.ID, 23, 0)
		dbtest.Comment(t, db, user.ID, post.ID, 0, 23)

		cfg := testConfig()
		inProcess, err := NewAggregator(db, cfg, nil, nil).Compute(ctx, user.ID)
		require.NoError(t, err)

		cfg.UseProcedure = true
		procAgg := NewAggregator(db, cfg, nil, nil)
		require.True(t, procAgg.useProcedure)
		viaProcedure, err := procAgg.Compute(ctx, user.ID)
		require.NoError(t, err)

		assert.Equal(t, models.Karma{PostKarma: 2, CommentKarma: -3, Total: -1}, viaProcedure)
		assert.Equal(t, inProcess, viaProcedure)

		_, err = procAgg.Compute(ctx, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("concurrent votes keep one ledger row", func(t *testing.T) {
		author := dbtest.Profile(t, db)
		voter := dbtest.Profile(t, db)
		post := dbtest.Post(t, db, author.ID, 0, 0)
		target := models.PostTarget(post.ID)
		proj := counters.NewProjection(db, nil, nil)
		ledger := votes.NewLedger(db, proj)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = ledger.CastVote(ctx, voter.ID, target, models.Up)
			}()
		}
		wg.Wait()

		rows := dbtest.VoteRows(t, db, voter.ID, target)
		assert.LessOrEqual(t, rows, int64(1))
		rec, err := proj.Reconcile(ctx, target)
		require.NoError(t, err)
		assert.False(t, rec.Drifted(), "counters %+v disagree with ledger %+v", rec.Before, rec.After)
		assert.Equal(t, int(rows), rec.After.Upvotes)
	})

	t.Run("lib/pq driver", func(t *testing.T) {
		pq := openPostgres(t, dsn, config.DriverPostgres)
		author := dbtest.Profile(t, pq)
		voter := dbtest.Profile(t, pq)
		post := dbtest.Post(t, pq, author.ID, 0, 0)

		out, err := votes.NewLedger(pq, counters.NewProjection(pq, nil, nil)).
			CastVote(ctx, voter.ID, models.PostTarget(post.ID), models.Down)
		require.NoError(t, err)
		assert.Equal(t, models.Counters{Downvotes: 1}, out.Counters)

		// Duplicate ledger rows are rejected by the unique index
		err = pq.Create(&models.Vote{UserID: voter.ID, PostID: &post.ID, VoteType: models.Up}).Error
		assert.ErrorIs(t, database.Classify(err), apperrors.ErrConflict)
	})
}
