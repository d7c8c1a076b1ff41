// Package api exposes the hotline over HTTP: the telephony webhook
// endpoints that drive calls, clip streaming for playback, and the admin
// API the dashboard uses to manage settings and uploaded clips.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mindprints/els-calls/internal/api/middleware"
	"github.com/mindprints/els-calls/internal/audio"
	"github.com/mindprints/els-calls/internal/callflow"
	"github.com/mindprints/els-calls/internal/convo"
	"github.com/mindprints/els-calls/internal/settings"
)

// TurnRunner runs one conversation turn to completion. Satisfied by
// *convo.Pipeline; nil when the AI providers are not configured.
type TurnRunner interface {
	RunTurn(ctx context.Context, req convo.TurnRequest) error
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router   *chi.Mux
	settings *settings.Store
	audio    *audio.Store
	engine   *callflow.Engine
	pipeline TurnRunner
	limiter  *middleware.IPRateLimiter
	logger   *slog.Logger
}

// NewServer creates the HTTP handler with all routes mounted. pipeline may
// be nil when the conversation providers are not configured; recording
// webhooks are then acknowledged and dropped.
func NewServer(store *settings.Store, clips *audio.Store, engine *callflow.Engine, pipeline TurnRunner, logger *slog.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		settings: store,
		audio:    clips,
		engine:   engine,
		pipeline: pipeline,
		limiter:  middleware.NewIPRateLimiter(middleware.AdminRateLimitConfig()),
		logger:   logger.With("component", "api"),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)

	// Telephony webhooks. The provider posts here; the callback URLs the
	// state machine emits point back at these routes.
	r.Post("/calls", s.handleCall)
	r.Post("/recordings", s.handleRecording)

	// Clip playback, fetched by the provider when executing a play
	// instruction.
	r.Get("/audio/{id}", s.handleGetAudio)

	// Admin API for the dashboard.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.limiter))

		r.Get("/audio", s.handleListAudio)
		r.Post("/audio", s.handleUploadAudio)
		r.Delete("/audio/{id}", s.handleDeleteAudio)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Post("/settings/schedule", s.handleAddSlot)
		r.Delete("/settings/schedule/{index}", s.handleDeleteSlot)
		r.Put("/settings/numbers/{name}", s.handleSetNamedNumber)
		r.Delete("/settings/numbers/{name}", s.handleDeleteNamedNumber)
	})

	s.logger.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
