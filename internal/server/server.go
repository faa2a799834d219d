// Package server provides the HTTP surface: recommendation review and
// approval, regime and position lookups, pipeline triggering, and the
// progress event stream.
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

	"github.com/aristath/lookout/internal/config"
	"github.com/aristath/lookout/internal/modules/execution"
	"github.com/aristath/lookout/internal/modules/recommendation"
	"github.com/aristath/lookout/internal/pipeline"
	"github.com/aristath/lookout/internal/regime"
)

// Config holds the server wiring.
type Config struct {
	Log     zerolog.Logger
	AppCfg  *config.Config
	Port    int
	DevMode bool

	Runner          *pipeline.Runner
	Journal         *pipeline.SQLiteJournal
	Recommendations *recommendation.Repository
	Regimes         *regime.Repository
	Executions      *execution.Repository
}

// Server is the HTTP server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	cfg      Config
	handlers *Handlers
	hub      *EventHub
}

// New creates the HTTP server and subscribes the event hub to pipeline
// progress.
func New(cfg Config) *Server {
	hub := NewEventHub(cfg.Log)
	if cfg.Runner != nil {
		cfg.Runner.Subscribe(hub.Publish)
	}

	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		cfg:      cfg,
		handlers: NewHandlers(cfg),
		hub:      hub,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handlers.HandleHealth)
		r.Get("/system/stats", s.handlers.HandleSystemStats)

		r.Get("/regime/latest", s.handlers.HandleLatestRegime)

		r.Get("/recommendations/latest", s.handlers.HandleLatestRecommendation)
		r.Get("/recommendations/{week}", s.handlers.HandleRecommendationByWeek)
		r.Post("/recommendations/{week}/approve", s.handlers.HandleApproveRecommendation)

		r.Post("/pipeline/run", s.handlers.HandleRunPipeline)
		r.Get("/pipeline/runs", s.handlers.HandleRecentRuns)

		r.Get("/positions", s.handlers.HandlePositions)

		r.Get("/events/stream", s.hub.HandleStream)
	})
}

// loggingMiddleware logs each request with zerolog. The event stream is
// excluded: it is long-lived and would distort latency numbers.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/events/stream" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and closes the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.hub.Close()
	return s.server.Shutdown(ctx)
}
