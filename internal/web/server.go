// Package web serves the TaskFlow HTTP API, the WebSocket chat channel and a
// small HTML overview page.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/agent"
	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/lifecycle"
	"github.com/Joseda-hg/taskflow/internal/load"
	"github.com/Joseda-hg/taskflow/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.tmpl"))

// Assistant is the agent surface the transport needs.
type Assistant interface {
	Handle(ctx context.Context, req agent.Request) (agent.Reply, error)
	HandleVoice(ctx context.Context, owner int64, audio []byte, filename string) (agent.Reply, error)
	HandleUpload(ctx context.Context, owner int64, filename string, data []byte) (agent.Reply, error)
}

type Server struct {
	store     *db.Store
	analyzer  *load.Analyzer
	assistant Assistant
	owner     int64
	logger    *zap.Logger
	router    *gin.Engine
}

func NewServer(store *db.Store, analyzer *load.Analyzer, assistant Assistant, owner int64, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		store:     store,
		analyzer:  analyzer,
		assistant: assistant,
		owner:     owner,
		logger:    logger.Named("web"),
		router:    gin.New(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.GET("/", s.handleIndex)
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")

	tasks := api.Group("/tasks")
	{
		tasks.GET("", s.handleListTasks)
		tasks.POST("", s.handleCreateTask)
		tasks.GET("/unsorted", s.handleUnsorted)
		tasks.GET("/overdue", s.handleOverdue)
		tasks.GET("/tips", s.handleTips)
		tasks.GET("/load/:date", s.handleDayLoad)
		tasks.GET("/:id", s.handleGetTask)
		tasks.PATCH("/:id", s.handleUpdateTask)
		tasks.DELETE("/:id", s.handleDeleteTask)
		tasks.POST("/:id/complete", s.handleCompleteTask)
		tasks.POST("/:id/postpone", s.handlePostponeTask)
		tasks.PATCH("/:id/subtasks/:idx", s.handleToggleSubtask)
	}

	ai := api.Group("/ai")
	{
		ai.GET("/history", s.handleHistory)
		ai.POST("/chat", s.handleChat)
		ai.POST("/voice", s.handleVoice)
		ai.POST("/upload-file", s.handleUpload)
		ai.GET("/ws", s.handleWebSocket)
	}

	profile := api.Group("/profile")
	{
		profile.GET("", s.handleGetProfile)
		profile.PATCH("", s.handleUpdateProfile)
		profile.GET("/memories", s.handleMemories)
		profile.DELETE("/memories/:id", s.handleDeleteMemory)
	}

	stats := api.Group("/stats")
	{
		stats.GET("/overview", s.handleOverview)
		stats.GET("/daily", s.handleDaily)
		stats.GET("/heatmap", s.handleHeatmap)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleIndex(c *gin.Context) {
	ctx := c.Request.Context()
	loc := s.analyzer.Location(ctx, s.owner)
	today := s.analyzer.Today(ctx, s.owner)
	tasks, err := s.rangeTasks(ctx, "day", today)
	if err != nil {
		s.fail(c, err)
		return
	}

	data := struct {
		Date  string
		Total int
		Rows  []taskRow
	}{Date: today.Format("Monday, 2 January 2006"), Total: len(tasks), Rows: buildTaskRows(tasks, loc)}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(c.Writer, data); err != nil {
		s.logger.Error("render index", zap.Error(err))
	}
}

// requestLogger logs one line per request with a request id.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := uuid.NewString()
		c.Header("X-Request-ID", id)
		c.Next()

		fields := []zap.Field{
			zap.String("request", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			s.logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			s.logger.Info("request", fields...)
		default:
			s.logger.Debug("request", fields...)
		}
	}
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

// fail maps store and validation errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, db.ErrSubtaskRange),
		errors.Is(err, lifecycle.ErrDerivedStatus),
		errors.Is(err, lifecycle.ErrEmptyTitle),
		errors.Is(err, model.ErrInvalidCategory),
		errors.Is(err, model.ErrInvalidPriority),
		errors.Is(err, model.ErrInvalidStatus):
		status = http.StatusBadRequest
	}
	_ = c.Error(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}
