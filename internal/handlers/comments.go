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

type CommentHandler struct {
	db        *gorm.DB
	ledger    *votes.Ledger
	scheduler votes.AuthorNotifier
	logger    *zap.Logger
}

func NewCommentHandler(d Deps) *CommentHandler {
	return &CommentHandler{db: d.DB, ledger: d.Ledger, scheduler: d.Scheduler, logger: d.Logger}
}

// GetComments returns all comments for a post
func (h *CommentHandler) GetComments(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	comments := []models.Comment{}
	if err := h.db.WithContext(c.Request.Context()).
		Where("post_id = ?", postID).
		Preload("Author").
		Order("created_at desc").
		Find(&comments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}
	c.JSON(http.StatusOK, comments)
}

// CreateComment creates a new comment on a post
func (h *CommentHandler) CreateComment(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input models.CreateCommentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	authorID, ok := currentUser(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())

	// Verify post exists
	var n int64
	if err := db.Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		respondError(c, h.logger, database.Classify(err))
		return
	}
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if input.ParentCommentID != nil {
		if err := db.Model(&models.Comment{}).
			Where("id = ? AND post_id = ?", *input.ParentCommentID, postID).
			Count(&n).Error; err != nil {
			respondError(c, h.logger, database.Classify(err))
			return
		}
		if n == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Parent comment not found on this post"})
			return
		}
	}

	comment := models.Comment{
		Body:            input.Body,
		PostID:          postID,
		ParentCommentID: input.ParentCommentID,
		AuthorID:        authorID,
	}
	if err := db.Create(&comment).Error; err != nil {
		h.logger.Error("create comment failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comment"})
		return
	}

	db.Preload("Author").Where("id = ?", comment.ID).First(&comment)
	c.JSON(http.StatusCreated, comment)
}

// DeleteComment deletes a comment and its votes (PROTECTED - requires
// ownership), then queues the author's karma for recomputation.
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var authorID uuid.UUID
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.Where("id = ?", commentID).First(&comment).Error; err != nil {
			return database.Classify(err)
		}
		if comment.AuthorID != userID {
			return errForbidden
		}
		authorID = comment.AuthorID

		if err := tx.Where("comment_id = ?", comment.ID).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		// Replies stay, detached from the deleted parent
		if err := tx.Model(&models.Comment{}).
			Where("parent_comment_id = ?", comment.ID).
			UpdateColumn("parent_comment_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&comment).Error
	})
	switch {
	case errors.Is(err, errForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own comments"})
		return
	case err != nil:
		respondError(c, h.logger, database.Classify(err))
		return
	}

	h.scheduler.Schedule(authorID)
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}

// VoteComment takes the direction from the body, like VotePost
func (h *CommentHandler) VoteComment(c *gin.Context) {
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}
	dir, ok := bindVote(c)
	if !ok {
		return
	}
	castVote(c, h.ledger, h.logger, models.CommentTarget(commentID), dir)
}

// UpvoteComment — one vote per user, toggles off if same, switches if opposite
func (h *CommentHandler) UpvoteComment(c *gin.Context) {
	h.voteFixed(c, models.Up)
}

// DownvoteComment — one vote per user, toggles off if same, switches if opposite
func (h *CommentHandler) DownvoteComment(c *gin.Context) {
	h.voteFixed(c, models.Down)
}

func (h *CommentHandler) voteFixed(c *gin.Context, dir models.Direction) {
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}
	castVote(c, h.ledger, h.logger, models.CommentTarget(commentID), dir)
}

// GetCommentVote returns the caller's current vote on a comment
func (h *CommentHandler) GetCommentVote(c *gin.Context) {
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}
	getVote(c, h.ledger, h.logger, models.CommentTarget(commentID))
}
