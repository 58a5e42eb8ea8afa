// Package api serves the read-only dashboard: a handful of JSON GET
// endpoints over the engine's live state.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/internal/engine"
)

// Server runs the HTTP API for the dashboard.
type Server struct {
	cfg      config.DashboardConfig
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates the dashboard server over the engine's state.
func NewServer(cfg config.DashboardConfig, eng *engine.Engine, logger *slog.Logger) *Server {
	handlers := NewHandlers(eng, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/stats", handlers.HandleStats)
	mux.HandleFunc("/api/fills", handlers.HandleFills)
	mux.HandleFunc("/api/positions", handlers.HandlePositions)
	mux.HandleFunc("/api/markets", handlers.HandleMarkets)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the server. Blocks until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
