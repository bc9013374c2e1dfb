// Package dbtest provides migrated in-memory SQLite databases and fixtures
// for package tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

// New returns a migrated, private in-memory database. The pool is limited
// to a single connection so the shared-cache database behaves like one
// serialised store.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Profile inserts a profile with a unique username.
func Profile(t testing.TB, db *gorm.DB) *models.Profile {
	t.Helper()
	name := "user-" + uuid.NewString()[:8]
	p := &models.Profile{Username: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(p).Error)
	return p
}

// Post inserts a post with preset counters. Counters set here are not backed
// by ledger rows.
func Post(t testing.TB, db *gorm.DB, authorID uuid.UUID, up, down int) *models.Post {
	t.Helper()
	p := &models.Post{Title: "post", AuthorID: authorID, Upvotes: up, Downvotes: down}
	require.NoError(t, db.Create(p).Error)
	return p
}

// Comment inserts a comment on postID with preset counters.
func Comment(t testing.TB, db *gorm.DB, authorID, postID uuid.UUID, up, down int) *models.Comment {
	t.Helper()
	c := &models.Comment{Body: "comment", AuthorID: authorID, PostID: postID, Upvotes: up, Downvotes: down}
	require.NoError(t, db.Create(c).Error)
	return c
}

// Counters reads the stored counters of target.
func Counters(t testing.TB, db *gorm.DB, target models.Target) models.Counters {
	t.Helper()
	var c models.Counters
	require.NoError(t, db.Model(target.Model()).Select("upvotes", "downvotes").Where("id = ?", target.ID).Take(&c).Error)
	return c
}

// VoteRows counts ledger rows for (voter, target).
func VoteRows(t testing.TB, db *gorm.DB, voterID uuid.UUID, target models.Target) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Vote{}).
		Where("user_id = ? AND "+target.VoteColumn()+" = ?", voterID, target.ID).
		Count(&n).Error)
	return n
}
