// Package api exposes eligibility matching, preference narrowing and the
// conversation helpers over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/llm"
	"github.com/trial-matching-mcp-server/internal/middleware"
	"github.com/trial-matching-mcp-server/internal/preference"
	"github.com/trial-matching-mcp-server/internal/repository"
	"github.com/trial-matching-mcp-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// EvaluationReader reads persisted batch results.
type EvaluationReader interface {
	ListByPatient(ctx context.Context, patientID string) ([]repository.StoredEvaluation, error)
	ListByRun(ctx context.Context, runID string) ([]repository.StoredEvaluation, error)
	GetLatest(ctx context.Context, patientID, trialID string) (*repository.StoredEvaluation, error)
	CountEligible(ctx context.Context, runID, patientID string) (int, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies are the services the handlers delegate to. Assistant may be
// nil, in which case the generation endpoints answer 503. Evaluations and
// Database are set only when results are persisted.
type Dependencies struct {
	Matching    *service.MatchingService
	Ranker      *preference.Ranker
	Assistant   *llm.Assistant
	Evaluations EvaluationReader
	Database    HealthChecker
	Logger      *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	router        *gin.Engine
	server        *http.Server
	logger        *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	if configManager.IsDevelopment() && cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders(configManager.IsProduction()))
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	s := &Server{
		configManager: configManager,
		deps:          deps,
		router:        router,
		logger:        logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/eligibility", s.handleEligibility)
		v1.POST("/normalize", s.handleNormalize)
		v1.GET("/patients", s.handleListPatients)
		v1.GET("/patients/:id/trials", s.handlePatientTrials)
		v1.POST("/patients/:id/intro", s.handlePatientIntro)
		v1.DELETE("/patients/:id/cache", s.handleInvalidatePatient)
		v1.POST("/preferences/questions", s.handlePreferenceQuestion)
		v1.POST("/preferences/narrow", s.handleNarrow)
		v1.POST("/chat", s.handleChat)
		v1.POST("/conversation/end", s.handleConversationEnd)

		if s.deps.Evaluations != nil {
			v1.GET("/patients/:id/evaluations", s.handlePatientEvaluations)
			v1.GET("/patients/:id/evaluations/:trial_id", s.handleLatestEvaluation)
			v1.GET("/runs/:run_id/evaluations", s.handleRunEvaluations)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	resp := gin.H{
		"timestamp":  time.Now().UTC(),
		"version":    Version,
		"generation": s.deps.Assistant != nil,
	}

	if s.deps.Database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Database.Health(ctx); err != nil {
			s.logger.WithError(err).Warn("Database health check failed")
			status, code = "degraded", http.StatusServiceUnavailable
			resp["database"] = "unavailable"
		} else {
			resp["database"] = "ok"
		}
	}

	resp["status"] = status
	c.JSON(code, resp)
}
