package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voicevault/voicevault/internal/api/middleware"
	"github.com/voicevault/voicevault/internal/database"
	"github.com/voicevault/voicevault/internal/retention"
	"github.com/voicevault/voicevault/internal/storage"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router     *chi.Mux
	recordings database.RecordingRepository
	policies   database.RetentionPolicyRepository
	usage      database.UsageRepository
	audit      database.AuditRepository
	engine     *storage.Engine
	tracker    *storage.Tracker
	resolver   *retention.Resolver
}

// NewServer creates the HTTP handler with all routes mounted. metricsHandler
// serves the Prometheus scrape endpoint; jwtSecret signs API bearer tokens.
func NewServer(
	recordings database.RecordingRepository,
	policies database.RetentionPolicyRepository,
	usage database.UsageRepository,
	audit database.AuditRepository,
	engine *storage.Engine,
	tracker *storage.Tracker,
	resolver *retention.Resolver,
	metricsHandler http.Handler,
	jwtSecret []byte,
	limiter *middleware.IPRateLimiter,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		recordings: recordings,
		policies:   policies,
		usage:      usage,
		audit:      audit,
		engine:     engine,
		tracker:    tracker,
		resolver:   resolver,
	}

	s.routes(metricsHandler, jwtSecret, limiter)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes(metricsHandler http.Handler, jwtSecret []byte, limiter *middleware.IPRateLimiter) {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(chimw.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated routes.
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", metricsHandler)

		// Protected routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter))
			r.Use(middleware.RequireAuth(jwtSecret))

			r.Route("/recordings", func(r chi.Router) {
				r.Get("/", s.handleListRecordings)
				r.Post("/", s.handleUploadRecording)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRecording)
					r.Get("/audio", s.handleDownloadRecording)
					r.Delete("/", s.handleDeleteRecording)
					r.Put("/hold", s.handleSetHold)
				})
			})

			r.Route("/retention-policies", func(r chi.Router) {
				r.Get("/", s.handleListPolicies)
				r.Post("/", s.handleCreatePolicy)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPolicy)
					r.Put("/", s.handleUpdatePolicy)
					r.Delete("/", s.handleDeletePolicy)
				})
			})

			r.Get("/storage/stats", s.handleStorageStats)
			r.Get("/audit", s.handleListAudit)
		})
	})
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
