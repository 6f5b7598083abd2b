// Package server provides the HTTP server and routing for the rebalancer.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/di"
	allocationhandlers "github.com/aristath/rebalancer/internal/modules/allocation/handlers"
	rebalancinghandlers "github.com/aristath/rebalancer/internal/modules/rebalancing/handlers"
	tradinghandlers "github.com/aristath/rebalancer/internal/modules/trading/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	journal        HealthChecker
	cycles         CycleStatus
	startedAt      time.Time
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		startedAt: time.Now(),
	}
	if cfg.Container.JournalDB != nil {
		s.journal = cfg.Container.JournalDB
	}
	if cfg.Container.RebalancingService != nil {
		s.cycles = cfg.Container.RebalancingService
	}

	s.systemHandlers = NewSystemHandlers(
		cfg.Config.DataDir,
		cfg.Container.JournalDB,
		cfg.Container.RebalancingService,
		cfg.Container.Scheduler,
		cfg.Log,
	)
	s.eventsStream = NewEventsStreamHandler(cfg.Container.EventManager, cfg.Log)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	// No write deadline: the event stream is long-lived and API routes are
	// bounded by the timeout middleware instead
	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging and request metrics
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.container.Metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// The event stream is long-lived and must not sit behind the request timeout
		r.Get("/events/stream", s.eventsStream.ServeHTTP)

		r.Group(func(r chi.Router) {
			// A live cycle waits for positions and fills, so allow for the configured bounds
			r.Use(middleware.Timeout(s.requestTimeout()))

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
			})

			allocationhandlers.NewHandler(s.container.Filter, s.container.Policy.Weights, s.log).RegisterRoutes(r)
			rebalancinghandlers.NewHandler(s.container.RebalancingService, s.log).RegisterRoutes(r)
			tradinghandlers.NewHandler(s.container.Journal, s.log).RegisterRoutes(r)
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	timeout := 60 * time.Second
	if s.cfg == nil {
		return timeout
	}
	if cycle := s.cfg.ConnectTimeout + s.cfg.PositionsTimeout + s.cfg.OrdersTimeout + 30*time.Second; cycle > timeout {
		return cycle
	}
	return timeout
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests and counts them
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.container.Metrics.RecordHTTPRequest(r.Method, ww.Status())

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
