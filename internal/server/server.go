// Package server exposes the audit pipeline over HTTP. The surface is small:
// submit source for auditing, fetch a stored record, publish one. Heavy
// lifting stays in internal/audit and internal/publish; handlers only map
// errors onto status codes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/internal/config"
)

// Server wraps the HTTP server lifecycle.
type Server struct {
	cfg        config.ServerConfig
	logger     *zap.Logger
	httpServer *http.Server
}

// New builds the router and the server around the given handlers.
func New(cfg config.ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Audits shell out to a static analyzer and fan out LLM calls; the write
	// timeout must cover a full pipeline run.
	r.Use(middleware.Timeout(cfg.WriteTimeout))

	handlers.RegisterRoutes(r)

	return &Server{
		cfg:    cfg,
		logger: logger.Named("server"),
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Run serves until ctx is done or SIGINT/SIGTERM arrives, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Context cancelled, shutting down...")
	case sig := <-sigCh:
		s.logger.Info("Received shutdown signal, shutting down gracefully...",
			zap.String("signal", sig.String()))
	}

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}
