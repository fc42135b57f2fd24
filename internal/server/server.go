/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/benchworks/magbench/internal/api"
	"github.com/benchworks/magbench/internal/config"
	"github.com/benchworks/magbench/internal/db"
	"github.com/benchworks/magbench/internal/events"
	"github.com/benchworks/magbench/internal/logbuffer"
	"github.com/benchworks/magbench/internal/runner"
	"github.com/benchworks/magbench/internal/telemetry"
)

// Server bundles the HTTP API and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server

	db   *gorm.DB
	bus  *events.Bus
	runs *runner.Service
	api  *api.API

	closers []func() error
}

// New wires the full service: database, event bus, run service, and HTTP
// routes. logs may be nil. Call Close when done.
func New(cfg *config.Config, logger zerolog.Logger, logs *logbuffer.Buffer) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}
	s.db = database
	s.closers = append(s.closers, func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	s.bus = events.NewBus()
	s.runs = runner.NewService(cfg, database, s.bus, logger)
	s.api = api.New(database, s.runs, s.bus, logs, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Route("/api/v1", s.api.Routes)
	s.router = router

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	s.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start serves HTTP until the server is shut down. The metrics endpoint
// listens on its own bind address so it can stay off the public interface.
func (s *Server) Start() error {
	go func() {
		s.logger.Info().Str("addr", s.metricsServer.Addr).Msg("metrics server listening")
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops both HTTP listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.metricsServer.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("metrics server shutdown")
	}
	return s.httpServer.Shutdown(ctx)
}

// Close releases all resources acquired by New.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
