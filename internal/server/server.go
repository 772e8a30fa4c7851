package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/analysis"
	v1 "github.com/gosuda/auditdesk/internal/api/v1"
	"github.com/gosuda/auditdesk/internal/api/ws"
	"github.com/gosuda/auditdesk/internal/config"
	"github.com/gosuda/auditdesk/internal/metrics"
	"github.com/gosuda/auditdesk/internal/notify"
	"github.com/gosuda/auditdesk/internal/server/middleware"
)

const apiVersion = "1.0.0"

// PubSub is the event fan-out and lock service behind the handlers.
// *redisstore.PubSub satisfies this interface.
type PubSub interface {
	v1.EventPublisher
	v1.Locker
	ws.Subscriber
}

// Dependencies are the long-lived services the HTTP layer is built on.
// Notifier, Metrics and WebAssets may be nil.
type Dependencies struct {
	Store     v1.DataStore
	PubSub    PubSub
	Auth      v1.AuthService
	Analyzer  analysis.Analyzer
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Snapshots v1.SnapshotSource

	// WebAssets holds the built review UI. When set it is served on all
	// unmatched routes (embedded via go:embed for single-binary distribution).
	WebAssets fs.FS
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	cfg        *config.Config
}

// New creates a Server with all routes wired. ctx bounds the background
// sweepers of the rate limiters.
func New(ctx context.Context, cfg *config.Config, deps Dependencies) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}

	handlerDeps := &v1.Deps{
		Store:    deps.Store,
		Events:   deps.PubSub,
		Locks:    deps.PubSub,
		Analyzer: deps.Analyzer,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
		Clock:    time.Now,
		// Generation can take as long as the AI timeout, plus the writes after it.
		AnalysisLockTTL: cfg.AI.Timeout + 30*time.Second,
	}

	hub := ws.NewHub(deps.PubSub, deps.Store.Forms(), deps.Metrics)

	s := &Server{
		router: router,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}

	rps, burst := cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst

	// Mount API routes on /api with one huma API per access group:
	// 1. Unauthenticated auth endpoints, limited per client IP.
	// 2. Review endpoints for managers and admins.
	// 3. Outlet endpoints for outlet users.
	// 4. Admin endpoints.
	router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, rps/4, max(burst/4, 1)))
			registerAuthRoutes(newAPI(r, "AuditDesk API", true), deps.Auth)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT.Secret))
			r.Use(middleware.RateLimit(ctx, rps, burst))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireReviewer())
				registerManagerRoutes(newAPI(r, "AuditDesk Review API", false), handlerDeps)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOutlet())
				registerOutletRoutes(newAPI(r, "AuditDesk Outlet API", false), handlerDeps)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				registerAdminRoutes(newAPI(r, "AuditDesk Admin API", false), handlerDeps, deps.Auth, deps.Snapshots)
			})
		})
	})

	// WebSocket routes.
	router.Route("/ws", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT.Secret))
		registerWSRoutes(r, hub)
	})

	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Serve the embedded review UI on all unmatched routes.
	// This must be the last route registered so API/WS routes take priority.
	if deps.WebAssets != nil {
		router.NotFound(spaFileServer(deps.WebAssets).ServeHTTP)
		log.Info().Msg("embedded review UI enabled")
	}

	return s
}

// newAPI builds a huma API on r. Only the primary API publishes the OpenAPI
// document and docs page; the others would collide on the same paths.
func newAPI(r chi.Router, title string, primary bool) huma.API {
	cfg := huma.DefaultConfig(title, apiVersion)
	cfg.Servers = []*huma.Server{
		{URL: "/api"},
	}
	if !primary {
		cfg.OpenAPIPath = ""
		cfg.DocsPath = ""
		cfg.SchemasPath = ""
	}
	return humachi.New(r, cfg)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
