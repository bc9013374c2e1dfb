package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/handlers"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/middleware"
)

type Server struct {
	db       database.Service
	handler  *handlers.Handler
	secret   []byte
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func New(db database.Service, handler *handlers.Handler, secret []byte, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		db:       db,
		handler:  handler,
		secret:   secret,
		gatherer: gatherer,
		logger:   logging.OrNop(logger),
	}
}

// HTTPServer wraps the routes in an http.Server listening on port.
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(s.logger.Named("http")))

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Health check endpoint
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)

		// Post routes (public reads)
		api.GET("/posts", s.handler.Post.GetPosts)
		api.GET("/posts/:id", s.handler.Post.GetPost)

		// Comment routes (public reads)
		api.GET("/posts/:id/comments", s.handler.Comment.GetComments)

		// User routes (public reads)
		api.GET("/users/:id", s.handler.User.GetUserProfile)
		api.GET("/users/:id/karma", s.handler.User.GetKarma)

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(s.secret))
		{
			// Auth protected routes
			protected.GET("/me", s.handler.Auth.GetMe)

			// Post protected routes
			protected.POST("/posts", s.handler.Post.CreatePost)
			protected.DELETE("/posts/:id", s.handler.Post.DeletePost)
			protected.POST("/posts/:id/vote", s.handler.Post.VotePost)
			protected.GET("/posts/:id/vote", s.handler.Post.GetPostVote)

			// Comment protected routes
			protected.POST("/posts/:id/comments", s.handler.Comment.CreateComment)
			protected.DELETE("/comments/:commentId", s.handler.Comment.DeleteComment)
			protected.POST("/comments/:commentId/vote", s.handler.Comment.VoteComment)
			protected.GET("/comments/:commentId/vote", s.handler.Comment.GetCommentVote)
			protected.POST("/comments/:commentId/upvote", s.handler.Comment.UpvoteComment)
			protected.POST("/comments/:commentId/downvote", s.handler.Comment.DownvoteComment)

			// User protected routes
			protected.PUT("/users/:id", s.handler.User.UpdateUserProfile)

			// Repair routes (admin only)
			admin := protected.Group("")
			admin.Use(middleware.AdminRequired(s.db.GetDB()))
			{
				admin.POST("/users/:id/karma/recompute", s.handler.Admin.RecomputeUser)
				admin.POST("/karma/recompute", s.handler.Admin.RecomputeAll)
				admin.POST("/posts/:id/reconcile", s.handler.Admin.ReconcilePost)
				admin.POST("/comments/:commentId/reconcile", s.handler.Admin.ReconcileComment)
				admin.POST("/counters/reconcile", s.handler.Admin.ReconcileCounters)
			}
		}
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	stats := s.db.Health()
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}
