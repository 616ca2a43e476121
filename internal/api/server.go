package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/terra-clan/progression-engine/internal/config"
	"github.com/terra-clan/progression-engine/internal/events"
	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progress"
	"github.com/terra-clan/progression-engine/internal/services"
	"github.com/terra-clan/progression-engine/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	service        *progress.Service
	hub            *events.Hub
	registry       *services.Registry
	authMiddleware *AuthMiddleware
	logger         *slog.Logger
}

// NewServer creates a new API server. hub may be nil, in which case the
// event stream is not served.
func NewServer(
	cfg config.ServerConfig,
	service *progress.Service,
	hub *events.Hub,
	registry *services.Registry,
	clients storage.ClientStore,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = services.NewRegistry(0)
	}
	s := &Server{
		config:         cfg,
		service:        service,
		hub:            hub,
		registry:       registry,
		authMiddleware: NewAuthMiddleware(clients, logger),
		logger:         logger,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	perm := s.authMiddleware.RequirePermission

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// The event stream is long-lived and must not be cut by the request timeout
		r.With(perm(models.PermEventsRead)).Get("/events/ws", s.handleEventsWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))

			r.Route("/profiles", func(r chi.Router) {
				r.With(perm(models.PermProfilesWrite)).Post("/", s.handleCreateProfile)
				r.Route("/{userID}", func(r chi.Router) {
					r.With(perm(models.PermProfilesRead)).Get("/", s.handleGetProfile)
					r.With(perm(models.PermProfilesRead)).Get("/workouts", s.handleWorkoutsForUser)
					r.With(perm(models.PermProfilesWrite)).Post("/workouts", s.handleCompleteWorkout)
				})
			})

			r.Route("/engine", func(r chi.Router) {
				r.Use(perm(models.PermEngineUse))
				r.Post("/award", s.handleAward)
				r.Post("/estimate", s.handleEstimate)
				r.Post("/settle", s.handleSettle)
			})

			r.With(perm(models.PermProfilesRead)).Get("/ranks", s.handleListRanks)
			r.With(perm(models.PermProfilesRead)).Get("/leaderboard", s.handleLeaderboard)

			r.Route("/workouts", func(r chi.Router) {
				r.Use(perm(models.PermProfilesRead))
				r.Get("/", s.handleListWorkouts)
				r.Get("/{id}", s.handleGetWorkout)
			})

			r.Route("/challenges", func(r chi.Router) {
				r.With(perm(models.PermChallengesRead)).Get("/", s.handleListChallenges)
				r.With(perm(models.PermChallengesWrite)).Post("/", s.handleCreateChallenge)
				r.Route("/{id}", func(r chi.Router) {
					r.With(perm(models.PermChallengesRead)).Get("/", s.handleGetChallenge)
					r.With(perm(models.PermChallengesWrite)).Post("/join", s.handleJoinChallenge)
					r.With(perm(models.PermChallengesWrite)).Post("/results", s.handleSubmitResult)
					r.With(perm(models.PermChallengesSettle)).Post("/settle", s.handleSettleChallenge)
				})
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
