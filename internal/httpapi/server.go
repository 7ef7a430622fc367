// Package httpapi exposes the support engine over HTTP for web and
// mobile clients.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedesk/tunedesk/internal/observability"
	"github.com/tunedesk/tunedesk/pkg/supervisor"
)

// Server is the HTTP API server
type Server struct {
	options        Options
	server         *http.Server
	engine         *supervisor.Engine
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Options holds server configuration
type Options struct {
	Host string
	Port int
}

// NewServer creates a new API server
func NewServer(options Options, engine *supervisor.Engine, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	observability.EnsureRegistered()

	return &Server{
		options:   options,
		engine:    engine,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Start starts the API server. Blocks until Stop is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/conversations/", s.handleConversation)
	mux.Handle("/metrics", observability.MetricsHandler())

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down API server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

// trackRequest refuses new work during shutdown. The returned release
// must be called when the handler finishes.
func (s *Server) trackRequest(w http.ResponseWriter) (func(), bool) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return nil, false
	}
	s.shutdownMu.RUnlock()

	s.inFlightReqs.Add(1)
	return func() { s.inFlightReqs.Done() }, true
}
