// Package server exposes sessions, turns and recordings over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ahtavarasmus/TextAndDrive/internal/agent"
	"github.com/ahtavarasmus/TextAndDrive/internal/history"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
	"github.com/ahtavarasmus/TextAndDrive/internal/voice"
)

// Turner runs text turns and reports the tool catalog. *agent.Agent implements it.
type Turner interface {
	ProcessTurn(ctx context.Context, sess *history.Session, req agent.TurnRequest) (*agent.TurnResult, error)
	Tools() []tools.Definition
}

// RecordingHandler runs an uploaded recording. *voice.Pipeline implements it.
type RecordingHandler interface {
	HandleRecording(ctx context.Context, sess *history.Session, audioPath string) (*voice.Outcome, error)
}

// Deps are the collaborators a Server needs. Recordings and Gatherer are
// optional; without Recordings the upload endpoint answers 501.
type Deps struct {
	Agent      Turner
	Sessions   *history.Manager
	Recordings RecordingHandler
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
	// UploadDir receives uploaded recordings. Empty means os.TempDir().
	UploadDir string
}

type Server struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.health)
	if s.deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/tools", s.listTools)
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.createSession)
			sessions.DELETE("/:sessionId", s.deleteSession)
			sessions.GET("/:sessionId/history", s.sessionHistory)
			sessions.POST("/:sessionId/turns", s.createTurn)
			sessions.POST("/:sessionId/recordings", s.createRecording)
		}
	}
	return router
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
