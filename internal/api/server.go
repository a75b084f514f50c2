package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/callbridge/callbridge/internal/config"
	"github.com/callbridge/callbridge/internal/deadletter"
	"github.com/callbridge/callbridge/internal/dispatch"
	"github.com/callbridge/callbridge/internal/ingest"
	"github.com/callbridge/callbridge/internal/storage"
	"github.com/callbridge/callbridge/internal/verify"
)

type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

type Deps struct {
	Store      storage.Storage
	Registry   *verify.Registry
	Processor  *ingest.Processor
	Fanout     *dispatch.Fanout
	DeadLetter *deadletter.Recorder
	AdminToken string
}

func NewServer(cfg config.ServerConfig, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	webhookHandler := NewWebhookHandler(s.deps.Registry, s.deps.Processor, s.log)
	subHandler := NewSubscriptionHandler(s.deps.Store)
	eventHandler := NewEventHandler(s.deps.Fanout)
	dlHandler := NewDeadLetterHandler(s.deps.DeadLetter)
	statsHandler := NewStatsHandler(s.deps.Store)

	// Health check — no auth
	r.Get("/health", statsHandler.Health)

	// Inbound provider webhooks — the signature is the authentication
	r.Post("/webhooks/{source}", webhookHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(s.deps.AdminToken))

		// Subscriptions
		r.Post("/subscriptions", subHandler.Create)
		r.Get("/subscriptions", subHandler.List)
		r.Get("/subscriptions/{id}", subHandler.Get)
		r.Put("/subscriptions/{id}", subHandler.Update)
		r.Delete("/subscriptions/{id}", subHandler.Delete)
		r.Patch("/subscriptions/{id}/toggle", subHandler.Toggle)
		r.Get("/subscriptions/{id}/attempts", subHandler.ListAttempts)

		// Internal event publication — the fanOut entry point over HTTP
		r.Post("/events", eventHandler.Publish)

		// Dead letters
		r.Get("/deadletters", dlHandler.List)

		// Stats
		r.Get("/stats", statsHandler.Stats)
	})

	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
