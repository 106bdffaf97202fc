/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/powerdown/internal/api"
	"github.com/friendsincode/powerdown/internal/clock"
	"github.com/friendsincode/powerdown/internal/config"
	"github.com/friendsincode/powerdown/internal/eventbus"
	"github.com/friendsincode/powerdown/internal/events"
	"github.com/friendsincode/powerdown/internal/executor"
	"github.com/friendsincode/powerdown/internal/scheduler"
	"github.com/friendsincode/powerdown/internal/telemetry"
	"github.com/friendsincode/powerdown/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	api        *api.API
	controller *scheduler.Controller
	bus        *events.Bus
	redisBus   *eventbus.RedisBus
	tracer     *telemetry.TracerProvider
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("powerdown-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for the WebSocket status stream
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the status stream; the middleware timeout
		// covers ordinary routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

// BuildController wires a schedule controller on the system clock with the
// configured executor.
func BuildController(cfg *config.Config, publisher events.Publisher, logger zerolog.Logger) *scheduler.Controller {
	exec := executor.New(cfg.DryRun, cfg.ShutdownCommand, logger)
	clk := clock.NewSystem()
	return scheduler.New(clk, clk, exec, publisher, scheduler.Options{
		ExecTimeout: cfg.ExecTimeout,
	}, logger)
}

func (s *Server) initDependencies() error {
	tracer, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "powerdown",
		ServiceVersion: version.Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return err
	}
	s.tracer = tracer
	s.DeferClose(func() error { return s.tracer.Shutdown(context.Background()) })

	var publisher events.Publisher = s.bus
	if s.cfg.RedisEnabled {
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		s.redisBus = eventbus.NewRedisBus(redisCfg, s.bus, s.cfg.InstanceID, s.logger)
		s.DeferClose(s.redisBus.Close)
		publisher = s.redisBus
	}

	s.controller = BuildController(s.cfg, publisher, s.logger)
	s.DeferClose(func() error {
		s.controller.Close()
		return nil
	})

	if s.cfg.DryRun {
		s.logger.Warn().Msg("dry run enabled: shutdown command will only be logged")
	}

	s.api = api.New(s.controller, s.bus, api.Options{
		PollInterval:       s.cfg.PollInterval,
		RateLimitPerMinute: s.cfg.RateLimitPerMinute,
	}, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Controller returns the schedule controller served by the API.
func (s *Server) Controller() *scheduler.Controller {
	return s.controller
}

// Close releases owned resources in reverse order. A pending schedule is
// withdrawn.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok","state":"` + string(s.controller.Status().State) + `"`
		if s.redisBus != nil {
			if s.redisBus.Fallback() {
				response += `,"redis":false`
			} else {
				response += `,"redis":true`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
