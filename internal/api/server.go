package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Agnikulu/veritas/internal/config"
	"github.com/Agnikulu/veritas/internal/docstore"
	"github.com/Agnikulu/veritas/internal/ingestion"
	"github.com/Agnikulu/veritas/internal/modelgateway"
	"github.com/Agnikulu/veritas/internal/rag"
)

// APIServer is the HTTP surface of the verification engine (C9).
type APIServer struct {
	router        *http.ServeMux
	ragEngine     *rag.Engine
	orchestrator  *ingestion.Orchestrator
	store         *docstore.Store
	gateway       *modelgateway.Gateway
	claimLogQueue *ingestion.ClaimLogQueue
	config        *config.Config
	adminToken    string
	logger        zerolog.Logger
	startTime     time.Time
	rateLimiter   *RateLimiter
	version       string
}

// NewAPIServer creates and configures a new API server with all middleware
// and routes wired up.
func NewAPIServer(
	redisClient *redis.Client,
	ragEngine *rag.Engine,
	orchestrator *ingestion.Orchestrator,
	store *docstore.Store,
	gateway *modelgateway.Gateway,
	claimLogQueue *ingestion.ClaimLogQueue,
	cfg *config.Config,
	logger zerolog.Logger,
) *APIServer {
	s := &APIServer{
		router:        http.NewServeMux(),
		ragEngine:     ragEngine,
		orchestrator:  orchestrator,
		store:         store,
		gateway:       gateway,
		claimLogQueue: claimLogQueue,
		config:        cfg,
		adminToken:    cfg.Auth.AdminToken,
		logger:        logger.With().Str("component", "api").Logger(),
		startTime:     time.Now(),
		version:       "1.0.0",
	}

	if cfg.API.RateLimiting.Enabled && redisClient != nil {
		s.rateLimiter = NewRateLimiter(redisClient, cfg.API.RateLimiting, s.logger)
		s.logger.Info().Msg("Redis sliding-window rate limiter enabled")
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers the six public endpoints of spec.md §6 plus the
// ambient liveness/readiness split of SPEC_FULL.md §6.A.
func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /health/live", s.handleHealthLive)
	s.router.HandleFunc("GET /health/ready", s.handleHealthReady)
	s.router.HandleFunc("POST /verify", s.handleVerify)
	s.router.HandleFunc("POST /feedback", s.handleFeedback)
	s.router.HandleFunc("GET /user/history", s.handleUserHistory)

	s.router.HandleFunc("POST /admin/ingest", s.requireAdminToken(s.handleIngest))
	s.router.HandleFunc("GET /admin/logs", s.requireAdminToken(s.handleAdminLogs))
}

// Handler returns the full middleware-wrapped HTTP handler.
func (s *APIServer) Handler() http.Handler {
	var h http.Handler = s.router

	h = MetricsMiddleware(h)

	if s.rateLimiter != nil {
		h = s.rateLimiter.Middleware(h)
	} else {
		h = RateLimitMiddleware(s.config.API.RateLimiting.RequestsPerMinute, h)
	}

	h = RequestValidationMiddleware(h)
	h = SecurityHeadersMiddleware(h)
	h = CORSMiddleware(h)
	h = ETagMiddleware(h)
	h = GzipMiddleware(h)
	h = RecoveryMiddleware(s.logger, h)
	h = RequestIDMiddleware(s.logger, h)
	h = LoggerMiddleware(s.logger, h)

	return h
}

// ListenAndServe builds the *http.Server for the given address (or the
// configured port if addr is empty).
func (s *APIServer) ListenAndServe(addr string) *http.Server {
	if addr == "" {
		addr = fmt.Sprintf(":%d", s.config.API.Port)
	}

	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // /verify can embed + call an LLM backend
		IdleTimeout:  60 * time.Second,
	}
}

// Shutdown performs graceful shutdown of API-specific resources.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("API server shutting down")
	return nil
}
