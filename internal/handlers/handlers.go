package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
	"github.com/emilythestrangee/baraza/backend/internal/counters"
	"github.com/emilythestrangee/baraza/backend/internal/karma"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/middleware"
	"github.com/emilythestrangee/baraza/backend/internal/votes"
)

// Deps are the services the handlers are built on.
type Deps struct {
	DB         *gorm.DB
	Ledger     *votes.Ledger
	Projection *counters.Projection
	Karma      *karma.Aggregator
	// Scheduler is told about authors whose karma a deletion changed.
	Scheduler votes.AuthorNotifier
	// Concurrency bounds full counter reconciliation passes.
	Concurrency int
	JWTSecret   []byte
	TokenTTL    time.Duration
	Logger      *zap.Logger
}

// Handler combines all handler types
type Handler struct {
	Auth    *AuthHandler
	Post    *PostHandler
	Comment *CommentHandler
	User    *UserHandler
	Admin   *AdminHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(d Deps) *Handler {
	d.Logger = logging.OrNop(d.Logger).Named("http")
	if d.Scheduler == nil {
		d.Scheduler = discardNotifier{}
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = 72 * time.Hour
	}
	return &Handler{
		Auth:    NewAuthHandler(d),
		Post:    NewPostHandler(d),
		Comment: NewCommentHandler(d),
		User:    NewUserHandler(d),
		Admin:   NewAdminHandler(d),
	}
}

// errForbidden aborts a transaction when the caller does not own the content.
var errForbidden = errors.New("forbidden")

type discardNotifier struct{}

func (discardNotifier) Schedule(uuid.UUID) {}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "User not authenticated"
	case errors.Is(err, apperrors.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		status, msg = http.StatusConflict, "Concurrent update, please retry"
	case errors.Is(err, apperrors.ErrTransientStore):
		status, msg = http.StatusServiceUnavailable, "Service temporarily unavailable"
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

// paramID parses the uuid path parameter name, answering 400 when malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// currentUser answers 401 when the request carries no authenticated user.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return id, ok
}
