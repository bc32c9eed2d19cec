// Package api serves the council over HTTP: conversation and file
// management, catalog endpoints, and turns as JSON or a server-sent event
// stream.
package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ahrav/go-council/internal/application"
	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "LLM Council API"

// DefaultMaxUploadBytes caps one upload request when no limit is set.
const DefaultMaxUploadBytes = 50 << 20

// FileService stores conversation attachments.
type FileService interface {
	Save(ctx context.Context, conversationID, filename, contentType string, data []byte) (domain.ConversationFile, error)
	List(ctx context.Context, conversationID string) ([]domain.ConversationFile, error)
	Delete(ctx context.Context, conversationID, fileID string) error
	Open(ctx context.Context, conversationID, fileID string) (domain.ConversationFile, error)
}

// Deps are the collaborators behind the HTTP API. Metrics may be nil.
type Deps struct {
	Store      ports.ConversationStore
	Files      FileService
	Turns      *application.TurnService
	Optimizer  *application.PromptOptimizer
	Templates  *application.TemplateCatalog
	Tools      ports.ToolLookup
	Connectors ports.ConnectorRunner
	Metrics    http.Handler
	Logger     zerolog.Logger
}

// Options tune the HTTP layer.
type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server holds the handlers of the council API.
type Server struct {
	Deps
	opts Options
}

// NewServer creates a server. A zero MaxUploadBytes uses
// DefaultMaxUploadBytes.
func NewServer(deps Deps, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{Deps: deps, opts: opts}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.Logger))
	if c, ok := corsConfig(s.opts.CORSOrigins); ok {
		r.Use(cors.New(c))
	}

	r.GET("/", s.health)
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics))
	}

	api := r.Group("/api")
	api.GET("/models", s.listModels)
	api.GET("/pricing", s.listPricing)
	api.GET("/templates", s.listTemplates)
	api.POST("/templates/:id/render", s.renderTemplate)
	api.GET("/tools", s.listTools)
	api.GET("/connectors", s.listConnectors)
	api.POST("/optimize-prompt", s.optimizePrompt)

	conv := api.Group("/conversations")
	conv.GET("", s.listConversations)
	conv.POST("", s.createConversation)
	conv.GET("/:id", s.getConversation)
	conv.POST("/:id/message", s.sendMessage)
	conv.POST("/:id/message/stream", s.streamMessage)
	conv.POST("/:id/files", s.uploadFiles)
	conv.GET("/:id/files", s.listFiles)
	conv.GET("/:id/files/:file_id", s.downloadFile)
	conv.DELETE("/:id/files/:file_id", s.deleteFile)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
}

func corsConfig(origins []string) (cors.Config, bool) {
	if len(origins) == 0 {
		return cors.Config{}, false
	}
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = origins
	}
	return c, true
}

// requestLogger logs one record per request through zerolog.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			ev = logger.Error()
		case status >= http.StatusBadRequest:
			ev = logger.Warn()
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// detail writes the {"detail": msg} error body.
func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// fail maps err to a status code and error body.
func (s *Server) fail(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		detail(c, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, domain.ErrFileNotFound):
		detail(c, http.StatusNotFound, "File not found")
	case errors.Is(err, domain.ErrUnknownTemplate):
		detail(c, http.StatusNotFound, "Template not found")
	case errors.As(err, &ve):
		detail(c, http.StatusBadRequest, ve.Error())
	default:
		s.Logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		detail(c, http.StatusInternalServerError, "Internal server error")
	}
}
