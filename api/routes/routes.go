package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/elearning-factory/api/handlers"
	"github.com/feichai0017/elearning-factory/api/middleware"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type Options struct {
	AllowedOrigins []string
	Logger         logger.Logger
}

// SetupRoutes registers the middleware chain and every route.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	r.Use(middleware.RequestID())
	if opts.Logger != nil {
		r.Use(middleware.RequestLogger(opts.Logger))
	}
	r.Use(middleware.CORS(opts.AllowedOrigins))

	r.GET("/health", h.Health.Check)

	v1 := r.Group("/api/v1")

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", h.Session.Create)
		sessions.GET("/:sessionId", h.Session.Get)
		sessions.DELETE("/:sessionId", h.Session.Delete)
		sessions.GET("/:sessionId/history", h.Session.History)

		sessions.POST("/:sessionId/documents/extract", h.Document.Extract)
		sessions.POST("/:sessionId/documents/generate", h.Document.Generate)
		sessions.POST("/:sessionId/chat", h.Document.Chat)
		sessions.POST("/:sessionId/chat/stream", h.Document.ChatStream)
		sessions.GET("/:sessionId/export", h.Document.Export)

		sessions.POST("/:sessionId/jobs", h.Job.Enqueue)
	}

	jobs := v1.Group("/jobs")
	{
		jobs.GET("/:taskId", h.Job.GetStatus)
		jobs.GET("/:taskId/result", h.Job.GetResult)
		jobs.DELETE("/:taskId", h.Job.Cancel)
	}

	v1.POST("/sketch", h.Sketch.Generate)
}
