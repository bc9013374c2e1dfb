package database_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/config"
	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/database/dbtest"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

func TestNewSQLiteService(t *testing.T) {
	svc, err := database.New(config.Database{Driver: config.DriverSQLite}, nil)
	require.NoError(t, err)
	defer svc.Close()

	assert.False(t, database.IsPostgres(svc.GetDB()))
	health := svc.Health()
	assert.Equal(t, "up", health["status"])
}

func TestVoteConstraints(t *testing.T) {
	db := dbtest.New(t)
	author := dbtest.Profile(t, db)
	voter := dbtest.Profile(t, db)
	post := dbtest.Post(t, db, author.ID, 0, 0)
	comment := dbtest.Comment(t, db, author.ID, post.ID, 0, 0)

	require.NoError(t, db.Create(&models.Vote{UserID: voter.ID, PostID: &post.ID, VoteType: models.Up}).Error)
	require.NoError(t, db.Create(&models.Vote{UserID: voter.ID, CommentID: &comment.ID, VoteType: models.Up}).Error)

	t.Run("one vote per voter and post", func(t *testing.T) {
		err := db.Create(&models.Vote{UserID: voter.ID, PostID: &post.ID, VoteType: models.Down}).Error
		require.Error(t, err)
		assert.ErrorIs(t, database.Classify(err), apperrors.ErrConflict)
	})
	t.Run("one vote per voter and comment", func(t *testing.T) {
		err := db.Create(&models.Vote{UserID: voter.ID, CommentID: &comment.ID, VoteType: models.Down}).Error
		require.Error(t, err)
		assert.ErrorIs(t, database.Classify(err), apperrors.ErrConflict)
	})
	t.Run("exactly one target", func(t *testing.T) {
		assert.Error(t, db.Create(&models.Vote{UserID: voter.ID, VoteType: models.Up}).Error)
		other := dbtest.Profile(t, db)
		assert.Error(t, db.Create(&models.Vote{UserID: other.ID, PostID: &post.ID, CommentID: &comment.ID, VoteType: models.Up}).Error)
	})
	t.Run("direction is up or down", func(t *testing.T) {
		other := dbtest.Profile(t, db)
		assert.Error(t, db.Create(&models.Vote{UserID: other.ID, PostID: &post.ID, VoteType: "sideways"}).Error)
	})
	t.Run("other voters are independent", func(t *testing.T) {
		other := dbtest.Profile(t, db)
		assert.NoError(t, db.Create(&models.Vote{UserID: other.ID, PostID: &post.ID, VoteType: models.Down}).Error)
	})
}

func TestClassifyRecordNotFound(t *testing.T) {
	db := dbtest.New(t)
	var p models.Profile
	err := db.First(&p, "id = ?", uuid.New()).Error
	assert.ErrorIs(t, database.Classify(err), apperrors.ErrNotFound)
}
