// Package server exposes the conversation state, the send-message
// lifecycle and the AI proxy routes over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"another-i/db"
	"another-i/llm"
	"another-i/model"
	"another-i/orchestrator"
	"another-i/store"
	"another-i/utils"
)

// AI is what the proxy routes call
type AI interface {
	orchestrator.AI
	ListModels(ctx context.Context, provider model.Provider, apiKey string) []llm.ModelInfo
}

// Storage is the maintenance surface of the record store
type Storage interface {
	GetStats() (*db.DBStats, error)
	ListSettings() ([]*db.Setting, error)
	Vacuum() error
}

// Deps holds everything the server needs
type Deps struct {
	State        *store.State
	Orchestrator *orchestrator.Orchestrator
	AI           AI
	Storage      Storage
	Metrics      *Metrics
	Logger       *utils.Logger
	Config       utils.ServerConfig
}

// Server wraps the echo instance
type Server struct {
	echo    *echo.Echo
	state   *store.State
	orch    *orchestrator.Orchestrator
	ai      AI
	storage Storage
	metrics *Metrics
	logger  *utils.Logger
	config  utils.ServerConfig
	limiter *rate.Limiter
}

// New creates a server and registers its routes
func New(deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		state:   deps.State,
		orch:    deps.Orchestrator,
		ai:      deps.AI,
		storage: deps.Storage,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		config:  deps.Config,
	}
	if deps.Config.RateLimit > 0 {
		burst := deps.Config.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(deps.Config.RateLimit), burst)
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	e.Use(middleware.CORS())

	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := e.Group("/api")
	api.POST("/chat", s.chat, s.rateLimit)
	api.POST("/summarize", s.summarize, s.rateLimit)
	api.POST("/title", s.title, s.rateLimit)
	api.POST("/models", s.models, s.rateLimit)

	api.GET("/state", s.getState)

	api.POST("/folders", s.createFolder)
	api.PATCH("/folders/:id", s.updateFolder)
	api.DELETE("/folders/:id", s.deleteFolder)

	api.POST("/messages", s.sendMessage)
	api.POST("/conversations", s.createConversation)
	api.GET("/conversations/:id", s.getConversation)
	api.DELETE("/conversations/:id", s.deleteConversation)
	api.POST("/conversations/:id/messages", s.sendMessage)
	api.PUT("/conversations/:id/messages/:messageId", s.editMessage)
	api.POST("/conversations/:id/move", s.moveConversation)
	api.POST("/conversations/:id/pin", s.pinConversation)
	api.POST("/conversations/:id/tags", s.addTag)
	api.DELETE("/conversations/:id/tags/:tagId", s.removeTag)

	api.PUT("/active", s.setActive)
	api.GET("/tags", s.listTags)
	api.GET("/search", s.search)

	api.POST("/import", s.importChatGPT)
	api.GET("/export", s.export)

	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.putSettings)
	api.DELETE("/settings", s.deleteSettings)
	api.GET("/preferences", s.getPreferences)
	api.PUT("/preferences", s.putPreferences)

	api.GET("/storage", s.getStorage)
	api.POST("/storage/vacuum", s.vacuumStorage)
}

// ServeHTTP lets the server be used as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.logger.Info("Listening on %s", addr)
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, then waits for in-flight turns
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	if s.orch != nil {
		return s.orch.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// rateLimit guards the AI proxy routes
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.rateLimited.Inc()
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many AI requests, slow down")
		}
		return next(c)
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			s.logger.Debug("%s %s %d %s", req.Method, req.URL.Path, c.Response().Status, time.Since(start))
			return nil
		}
	}
}

// handleError renders every error as {"error": message}
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		if he.Internal != nil {
			s.logger.Warn("%s %s: %s: %v", c.Request().Method, c.Request().URL.Path, msg, he.Internal)
		}
	} else {
		s.logger.Error("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
