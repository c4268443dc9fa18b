// Package api exposes the podcast chatbot over HTTP.
//
// Endpoints:
//
//	GET    /health                              liveness probe
//	GET    /ready                               readiness probe (storage ping)
//	GET    /api/episodes                        list episodes
//	POST   /api/episodes/{number}/process       ingest transcript (?reprocess=true)
//	GET    /api/episodes/{number}/status        ingestion status
//	GET    /api/episodes/{number}/summary       cached episode summary
//	POST   /api/sessions                        create a chat session
//	DELETE /api/sessions/{id}                   drop a chat session
//	POST   /api/ask                             ask a question about an episode
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - episodes.go: episode listing and ingestion endpoints
//   - ask.go: session and question endpoints
//   - response.go: JSON response helpers and error mapping
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/koopa0/podrag/internal/episode"
	"github.com/koopa0/podrag/internal/log"
	"github.com/koopa0/podrag/internal/rag"
	"github.com/koopa0/podrag/internal/session"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to block Slowloris clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because ingestion and generation calls
	// run synchronously inside the request.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout applies to keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the chatbot API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health   *HealthHandler
	episodes *EpisodeHandler
	ask      *AskHandler
}

// NewServer creates a server with all routes registered. ready probes
// the storage backend for the readiness endpoint.
func NewServer(
	pipeline *rag.Pipeline,
	episodes episode.Store,
	sessions *session.Manager,
	ready func(context.Context) error,
	logger log.Logger,
) *Server {
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:      mux,
		logger:   logger.With("component", "api"),
		health:   NewHealthHandler(ready, logger),
		episodes: NewEpisodeHandler(pipeline, episodes, logger),
		ask:      NewAskHandler(pipeline, sessions, logger),
	}

	s.health.RegisterRoutes(mux)
	s.episodes.RegisterRoutes(mux)
	s.ask.RegisterRoutes(mux)
	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, then logging, then the mux.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
