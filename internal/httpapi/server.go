// Package httpapi exposes the judge over HTTP: participant endpoints for
// joining, submitting and watching the board, and a token-guarded admin
// surface for task management, contest control and data import/export.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"dev.synaq.judge/internal/broadcast"
	"dev.synaq.judge/internal/config"
	"dev.synaq.judge/internal/contest"
	"dev.synaq.judge/internal/dispatch"
	"dev.synaq.judge/internal/sandbox"
	"dev.synaq.judge/internal/store"
)

// Server wires the HTTP surface over the judge's components.
type Server struct {
	cfg    config.Config
	mgr    *contest.Manager
	disp   *dispatch.Dispatcher
	hub    *broadcast.Hub
	store  *store.Store
	runner sandbox.Runner
	logger *logrus.Entry
	engine *gin.Engine
}

// New builds the server and registers all routes.
func New(cfg config.Config, mgr *contest.Manager, disp *dispatch.Dispatcher, hub *broadcast.Hub, st *store.Store, runner sandbox.Runner, logger *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:    cfg,
		mgr:    mgr,
		disp:   disp,
		hub:    hub,
		store:  st,
		runner: runner,
		logger: logger.WithField("component", "httpapi"),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLog())
	s.routes()
	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if status := c.Writer.Status(); status >= 500 {
			s.logger.WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.FullPath(),
				"status": status,
			}).Error("request failed")
		}
	}
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.GET("/contests", s.listContests)
		api.GET("/contests/:id", s.contestInfo)
		api.POST("/contests/:id/join", s.join)
		api.POST("/contests/:id/submit", s.submit)
		api.POST("/contests/:id/finish", s.finishEarly)
		api.GET("/contests/:id/scoreboard", s.scoreboard)
		api.GET("/contests/:id/history", s.history)
		api.GET("/contests/:id/ws", s.websocket)
		api.GET("/tasks/:id", s.taskView)
		api.GET("/tasks/:id/attachment", s.taskAttachment)
	}

	admin := s.engine.Group("/api/admin")
	admin.POST("/login", s.adminLogin)
	admin.Use(s.requireAdmin())
	{
		admin.GET("/tasks", s.adminListTasks)
		admin.POST("/tasks", s.adminCreateTask)
		admin.GET("/tasks/:id", s.adminTask)
		admin.PUT("/tasks/:id", s.adminUpdateTask)
		admin.DELETE("/tasks/:id", s.adminDeleteTask)
		admin.GET("/tasks/:id/tests", s.adminListTests)
		admin.POST("/tasks/:id/tests", s.adminAddTest)
		admin.POST("/tasks/:id/tests/import", s.adminImportTests)
		admin.PUT("/tests/:id", s.adminUpdateTest)
		admin.DELETE("/tests/:id", s.adminDeleteTest)

		admin.POST("/contests", s.adminCreateContest)
		admin.POST("/contests/:id/start", s.adminStartContest)
		admin.POST("/contests/:id/finish", s.adminFinishContest)
		admin.POST("/contests/:id/close", s.adminCloseContest)
		admin.PUT("/contests/:id/start_time", s.adminEditStartTime)
		admin.POST("/contests/:id/disqualify", s.adminDisqualify)
		admin.POST("/contests/:id/reveal", s.adminReveal)
		admin.GET("/contests/:id/scoreboard", s.adminScoreboard)

		admin.GET("/contests/:id/whitelist", s.adminListWhitelist)
		admin.POST("/contests/:id/whitelist", s.adminAddWhitelist)
		admin.POST("/contests/:id/whitelist/import", s.adminImportWhitelist)
		admin.DELETE("/whitelist/:id", s.adminRemoveWhitelist)

		admin.GET("/archive", s.adminArchive)
		admin.GET("/archive/:id", s.adminArchiveView)
		admin.DELETE("/archive/:id", s.adminArchiveDelete)
		admin.GET("/archive/:id/export", s.adminExportResults)

		admin.POST("/run", s.adminAdhocRun)
	}
}

// fail translates domain errors into the wire contract.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contest.ErrContestNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, contest.ErrAuthFailed):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_authorized"})
	case errors.Is(err, contest.ErrTooManyPending):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_pending"})
	case errors.Is(err, contest.ErrLanguageNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "language_not_allowed"})
	case errors.Is(err, contest.ErrDisqualified):
		c.JSON(http.StatusBadRequest, gin.H{"error": "disqualified"})
	case errors.Is(err, contest.ErrTimeOver):
		c.JSON(http.StatusBadRequest, gin.H{"error": "time_over"})
	case errors.Is(err, contest.ErrContestNotRunning):
		c.JSON(http.StatusBadRequest, gin.H{"error": "contest_not_running"})
	case errors.Is(err, contest.ErrContestClosed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "contest_closed"})
	case errors.Is(err, contest.ErrAlreadyFinishedEarly):
		c.JSON(http.StatusBadRequest, gin.H{"error": "already_finished"})
	case errors.Is(err, contest.ErrTaskNotInContest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_not_in_contest"})
	case errors.Is(err, contest.ErrTaskCountInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_task_ids"})
	case errors.Is(err, contest.ErrNotScheduled):
		c.JSON(http.StatusBadRequest, gin.H{"error": "not_scheduled"})
	case errors.Is(err, contest.ErrNotFrozen):
		c.JSON(http.StatusBadRequest, gin.H{"error": "not_frozen"})
	case errors.Is(err, store.ErrDuplicateEntry):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_entry"})
	default:
		s.logger.WithError(err).Error("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
