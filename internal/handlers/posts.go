package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/models"
	"github.com/emilythestrangee/baraza/backend/internal/votes"
)

type PostHandler struct {
	db        *gorm.DB
	ledger    *votes.Ledger
	scheduler votes.AuthorNotifier
	logger    *zap.Logger
}

func NewPostHandler(d Deps) *PostHandler {
	return &PostHandler{db: d.DB, ledger: d.Ledger, scheduler: d.Scheduler, logger: d.Logger}
}

// GetPosts returns all posts, newest first. Counters come from the
// projection columns rather than being recounted per request.
func (h *PostHandler) GetPosts(c *gin.Context) {
	posts := []models.Post{}
	q := h.db.WithContext(c.Request.Context()).Preload("Author").Order("created_at desc")
	if community := c.Query("community"); community != "" {
		q = q.Where("community = ?", community)
	}
	if err := q.Find(&posts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}
	c.JSON(http.StatusOK, posts)
}

// GetPost returns a single post by ID
func (h *PostHandler) GetPost(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var post models.Post
	if err := h.db.WithContext(c.Request.Context()).Preload("Author").Where("id = ?", postID).First(&post).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	c.JSON(http.StatusOK, post)
}

// CreatePost creates a new post (PROTECTED - requires authentication)
func (h *PostHandler) CreatePost(c *gin.Context) {
	var input models.CreatePostRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}
	authorID, ok := currentUser(c)
	if !ok {
		return
	}

	post := models.Post{
		Title:     input.Title,
		Body:      input.Body,
		Image:     input.Image,
		Community: input.Community,
		AuthorID:  authorID,
	}
	db := h.db.WithContext(c.Request.Context())
	if err := db.Create(&post).Error; err != nil {
		h.logger.Error("create post failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}

	// Reload with author information
	db.Preload("Author").Where("id = ?", post.ID).First(&post)
	c.JSON(http.StatusCreated, post)
}

// DeletePost deletes a post together with its comments and every vote on
// them (PROTECTED - requires ownership). The karma of each affected author is
// queued for recomputation once the delete has committed.
func (h *PostHandler) DeletePost(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var affected []uuid.UUID
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Where("id = ?", postID).First(&post).Error; err != nil {
			return database.Classify(err)
		}
		if post.AuthorID != userID {
			return errForbidden
		}

		var commentIDs []uuid.UUID
		if err := tx.Model(&models.Comment{}).Where("post_id = ?", postID).Pluck("id", &commentIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).Where("post_id = ?", postID).Distinct().Pluck("author_id", &affected).Error; err != nil {
			return err
		}
		affected = append(affected, post.AuthorID)

		if len(commentIDs) > 0 {
			if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.Vote{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	switch {
	case errors.Is(err, errForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own posts"})
		return
	case err != nil:
		respondError(c, h.logger, database.Classify(err))
		return
	}

	for _, id := range affected {
		h.scheduler.Schedule(id)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

// VotePost handles upvoting/downvoting a post (PROTECTED - requires authentication)
func (h *PostHandler) VotePost(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	dir, ok := bindVote(c)
	if !ok {
		return
	}
	castVote(c, h.ledger, h.logger, models.PostTarget(postID), dir)
}

// GetPostVote returns the caller's current vote on a post
func (h *PostHandler) GetPostVote(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	getVote(c, h.ledger, h.logger, models.PostTarget(postID))
}
