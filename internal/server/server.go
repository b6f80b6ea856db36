/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the playout daemon: storage, the station service,
// event fan-out, leader election and the control API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/api"
	"github.com/friendsincode/grimnir_playout/internal/audit"
	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/config"
	"github.com/friendsincode/grimnir_playout/internal/db"
	"github.com/friendsincode/grimnir_playout/internal/eventbus"
	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/leadership"
	"github.com/friendsincode/grimnir_playout/internal/logbuffer"
	"github.com/friendsincode/grimnir_playout/internal/output"
	"github.com/friendsincode/grimnir_playout/internal/station"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
	"github.com/friendsincode/grimnir_playout/internal/version"
	"github.com/friendsincode/grimnir_playout/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	station    *config.Station
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	logBuffer *logbuffer.Buffer
	bus       *events.Bus
	svc       *station.Service
	pipeline  *output.PipelineSink
	auditSvc  *audit.Service
	forwarder *eventbus.Forwarder
	election  *leadership.Election
	updates   *version.Watcher
	webhooks  *webhooks.Service
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, st *config.Station, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("grimnir-playout-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event stream is long-lived; everything else gets a deadline.
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
		cfg:       cfg,
		station:   st,
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
		// WriteTimeout stays 0 for the event stream; the middleware timeout covers the rest.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
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
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	source, err := s.catalogSource()
	if err != nil {
		return err
	}

	sink, err := s.outputSink()
	if err != nil {
		return err
	}

	var leader <-chan bool
	if s.cfg.LeaderElectionEnabled {
		election, err := leadership.NewElection(leadership.ElectionConfig{
			RedisAddr:     s.cfg.RedisAddr,
			RedisPassword: s.cfg.RedisPassword,
			RedisDB:       s.cfg.RedisDB,
			StationID:     s.station.ID,
			InstanceID:    s.cfg.InstanceID,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
		s.election = election
		s.DeferClose(election.Stop)
		leader = election.LeaderCh()
	}

	svc, err := station.New(station.Options{
		Station:      s.station,
		Source:       source,
		Sink:         sink,
		Bus:          s.bus,
		DB:           database,
		TickInterval: s.cfg.TickInterval,
		Leader:       leader,
		Logger:       s.logger,
	})
	if err != nil {
		return fmt.Errorf("station: %w", err)
	}
	s.svc = svc

	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	if err := s.initForwarder(); err != nil {
		return err
	}

	if len(s.station.Webhooks) > 0 {
		hooks, err := webhooks.NewService(s.station.ID, s.station.Webhooks, s.bus, s.logger)
		if err != nil {
			return err
		}
		s.webhooks = hooks
	}

	if s.cfg.UpdateCheck {
		s.updates = version.NewWatcher(version.WatcherConfig{StationID: s.station.ID}, s.bus, s.logger)
	}

	s.api = api.New(svc, []byte(s.cfg.JWTSigningKey), s.auditSvc, s.logBuffer, s.logger)
	return nil
}

func (s *Server) catalogSource() (catalog.Source, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return CatalogSource(ctx, s.cfg, s.station, s.logger)
}

// CatalogSource returns the library backend a station definition names.
func CatalogSource(ctx context.Context, cfg *config.Config, st *config.Station, logger zerolog.Logger) (catalog.Source, error) {
	if lib := st.Library.S3; lib != nil {
		src, err := catalog.NewS3Source(ctx, catalog.S3Config{
			Bucket:          lib.Bucket,
			Prefix:          lib.Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 library: %w", err)
		}
		return src, nil
	}
	return catalog.ManifestSource{Path: st.Library.Manifest}, nil
}

func (s *Server) outputSink() (station.Sink, error) {
	switch s.cfg.Output {
	case config.OutputDry:
		return output.NewDrySink(s.cfg.CheckFiles, s.logger), nil
	case config.OutputGStreamer:
		s.pipeline = output.NewPipelineSink(output.GStreamerConfig{
			Bin:         s.cfg.GStreamerBin,
			SinkElement: s.cfg.GStreamerSink,
		}, s.logger)
		return s.pipeline, nil
	}
	return nil, fmt.Errorf("unsupported output %q", s.cfg.Output)
}

func (s *Server) initForwarder() error {
	var pub eventbus.Publisher
	switch s.cfg.EventBackend {
	case config.EventBackendMemory:
		return nil
	case config.EventBackendRedis:
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = s.cfg.RedisAddr
		rc.Password = s.cfg.RedisPassword
		rc.DB = s.cfg.RedisDB
		ctx, cancel := context.WithTimeout(context.Background(), rc.DialTimeout)
		defer cancel()
		pub = eventbus.NewRedisPublisher(ctx, rc, s.logger)
	case config.EventBackendNATS:
		nc := eventbus.DefaultNATSConfig()
		nc.URL = s.cfg.NATSURL
		np, err := eventbus.NewNATSPublisher(nc, s.logger)
		if err != nil {
			return fmt.Errorf("nats event backend: %w", err)
		}
		pub = np
	default:
		return fmt.Errorf("unsupported event backend %q", s.cfg.EventBackend)
	}
	s.DeferClose(pub.Close)

	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID = eventbus.NodeID()
	}
	s.forwarder = eventbus.NewForwarder(s.bus, pub, nodeID, s.logger)
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Close stops background workers and releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.goWorker(func() { s.auditSvc.Start(ctx) })

	if s.election != nil {
		s.election.Start(ctx)
	}
	if s.pipeline != nil {
		s.goWorker(func() {
			if err := s.pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("output pipeline stopped")
			}
		})
	}
	if s.forwarder != nil {
		s.goWorker(func() { s.forwarder.Run(ctx) })
	}
	if s.webhooks != nil {
		s.goWorker(func() { s.webhooks.Start(ctx) })
	}
	if s.updates != nil {
		s.goWorker(func() { s.updates.Run(ctx) })
	}
	s.goWorker(func() { s.sampleDatabase(ctx) })

	s.goWorker(func() {
		if err := s.svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("station stopped")
		}
	})
}

func (s *Server) goWorker(fn func()) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		fn()
	}()
}

func (s *Server) sampleDatabase(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		db.UpdateConnectionMetrics(s.db)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Station string `json:"station_id"`
	Leader  *bool  `json:"leader,omitempty"`
	State   string `json:"state,omitempty"`
	Update  string `json:"update_available,omitempty"`
}

func (s *Server) health() healthResponse {
	resp := healthResponse{Status: "ok", Version: version.Version, Station: s.station.ID}
	if s.election != nil {
		leader := s.election.IsLeader()
		resp.Leader = &leader
	}
	if st, err := s.svc.Status(); err == nil {
		resp.State = string(st.State)
	}
	if s.updates != nil {
		if info := s.updates.Info(); info.UpdateAvailable {
			resp.Update = info.LatestVersion
		}
	}
	return resp
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(s.health())
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
