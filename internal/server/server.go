/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_voice/internal/api"
	"github.com/friendsincode/grimnir_voice/internal/config"
	"github.com/friendsincode/grimnir_voice/internal/core"
	"github.com/friendsincode/grimnir_voice/internal/db"
	"github.com/friendsincode/grimnir_voice/internal/eventbus"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/journal"
	"github.com/friendsincode/grimnir_voice/internal/leadership"
	"github.com/friendsincode/grimnir_voice/internal/logbuffer"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

const connectionMetricsInterval = 15 * time.Second

// Server bundles HTTP and the orchestration core.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	bus       *events.Bus
	remote    eventbus.Bus
	core      *core.Core
	db        *gorm.DB
	journal   *journal.Journal
	election  *leadership.Election
	logBuffer *logbuffer.Buffer
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New wires every dependency and returns a server ready to listen.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}
	if cfg.NodeID == "" {
		cfg.NodeID = eventbus.GenerateNodeID()
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("grimnir-voice-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(timeoutMiddleware(60 * time.Second))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// The event stream is long lived; other routes are bounded by the
		// timeout middleware.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info().
		Str("node_id", cfg.NodeID).
		Str("event_backend", string(cfg.EventBackend)).
		Bool("journal", srv.journal != nil).
		Msg("server initialized")

	return srv, nil
}

// timeoutMiddleware bounds request handling, except for websocket upgrades.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(d)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	s.bus.OnDrop(func(eventType events.EventType) {
		telemetry.EventBusDropped.WithLabelValues(string(eventType)).Inc()
	})

	remote, err := eventbus.New(s.cfg, s.bus, s.logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	s.remote = remote
	s.DeferClose(remote.Close)

	s.core = core.New(core.OptionsFromConfig(s.cfg), remote, s.logger)
	s.DeferClose(func() error {
		s.core.Close()
		return nil
	})

	var reader api.JournalReader
	if s.cfg.JournalEnabled {
		database, err := db.Connect(s.cfg)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		s.db = database
		s.DeferClose(func() error { return db.Close(database) })

		if err := db.Migrate(database); err != nil {
			return err
		}

		s.journal = journal.New(database, s.bus, s.cfg.NodeID, s.logger)
		reader = s.journal

		if s.cfg.LeaderElection {
			ec := leadership.DefaultConfig()
			ec.RedisAddr = s.cfg.RedisAddr
			ec.RedisPassword = s.cfg.RedisPassword
			ec.RedisDB = s.cfg.RedisDB
			ec.InstanceID = s.cfg.NodeID
			election, err := leadership.NewElection(ec, s.logger)
			if err != nil {
				return fmt.Errorf("leader election: %w", err)
			}
			s.election = election
			s.DeferClose(election.Stop)
		}
	}

	s.api = api.New(s.core, s.bus, reader, s.logBuffer, []byte(s.cfg.JWTSigningKey), s.logger)
	return nil
}

// HTTPServer exposes the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Core returns the orchestration core.
func (s *Server) Core() *core.Core {
	return s.core
}

// LogBuffer returns the server's log buffer.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close stops background work and releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
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

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.journal != nil {
		s.journal.Start(ctx)

		var leader leadership.Leader = leadership.Single{}
		if s.election != nil {
			s.election.Start(ctx)
			leader = s.election
		}

		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.journal.RunRetention(ctx, leader, s.cfg.JournalRetention, journal.DefaultRetentionInterval)
		}()
	}

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(connectionMetricsInterval)
			defer ticker.Stop()
			for {
				db.UpdateConnectionMetrics(s.db)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	if s.journal != nil {
		s.journal.Stop()
	}
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.api.Routes(s.router)
}
