package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/karma"
	"github.com/emilythestrangee/baraza/backend/internal/models"
)

type UserHandler struct {
	db     *gorm.DB
	karma  *karma.Aggregator
	logger *zap.Logger
}

func NewUserHandler(d Deps) *UserHandler {
	return &UserHandler{db: d.DB, karma: d.Karma, logger: d.Logger}
}

// GetUserProfile returns a user's profile, karma and posts
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	db := h.db.WithContext(c.Request.Context())

	var profile models.Profile
	if err := db.Where("id = ?", userID).First(&profile).Error; err != nil {
		if err = database.Classify(err); errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	posts := []models.Post{}
	if err := db.Where("author_id = ?", userID).Order("created_at desc").Find(&posts).Error; err != nil {
		respondError(c, h.logger, database.Classify(err))
		return
	}

	var commentCount int64
	if err := db.Model(&models.Comment{}).Where("author_id = ?", userID).Count(&commentCount).Error; err != nil {
		respondError(c, h.logger, database.Classify(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          profile,
		"karma":         profile.KarmaTriple(),
		"posts":         posts,
		"comment_count": commentCount,
	})
}

// GetKarma returns the stored karma of a user
func (h *UserHandler) GetKarma(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	k, err := h.karma.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

// UpdateUserProfile changes the caller's bio and avatar
func (h *UserHandler) UpdateUserProfile(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	authUserID, ok := currentUser(c)
	if !ok {
		return
	}

	// Check if user is updating their own profile
	if authUserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only update your own profile"})
		return
	}

	var input struct {
		Bio    string `json:"bio"`
		Avatar string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if input.Bio != "" {
		updates["bio"] = input.Bio
	}
	if input.Avatar != "" {
		updates["avatar"] = input.Avatar
	}

	db := h.db.WithContext(c.Request.Context())
	var profile models.Profile
	if err := db.Where("id = ?", userID).First(&profile).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if len(updates) > 0 {
		// Karma columns are owned by the aggregator and never written here
		if err := db.Model(&profile).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}

	c.JSON(http.StatusOK, profile)
}
