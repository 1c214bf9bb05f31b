package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/usecase"
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Options tunes the HTTP surface. Zero values fall back to defaults.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	TriggerRate    int
	TriggerWindow  time.Duration
	IngestKey      string
}

type Server struct {
	ingest   usecase.IngestionUseCase
	operator usecase.OperatorUseCase
	limiter  RateLimiter
	auth     *AuthManager
	opts     Options
	log      *zerolog.Logger
	server   *http.Server
}

func NewServer(
	ingest usecase.IngestionUseCase,
	operator usecase.OperatorUseCase,
	limiter RateLimiter,
	auth *AuthManager,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.TriggerRate <= 0 {
		opts.TriggerRate = 30
	}
	if opts.TriggerWindow <= 0 {
		opts.TriggerWindow = time.Minute
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		ingest:   ingest,
		operator: operator,
		limiter:  limiter,
		auth:     auth,
		opts:     opts,
		log:      &l,
	}
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, Recover(s.log), RequestLog(s.log))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))
		r.Post("/triggers", s.handleTrigger)
		r.Post("/suggestions/{id}/feedback", s.handleFeedback)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/jobs/{id}/void", s.handleVoid)
			r.Post("/suggestions/{id}/resend", s.handleResend)
			r.Get("/dead-letters", s.handleDeadLetters)
		})
	})
	return r
}

// Start blocks until the server stops. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", s.opts.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
