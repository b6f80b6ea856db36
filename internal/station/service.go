/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package station runs one station: it owns the catalog and schedule
// stores, builds a playout engine for each leadership term, and feeds it
// library reloads, schedule refreshes and operator commands.
package station

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/config"
	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/history"
	"github.com/friendsincode/grimnir_playout/internal/leadership"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/ordering"
	"github.com/friendsincode/grimnir_playout/internal/output"
	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

// ErrNotLeader is returned for commands while another instance drives the station.
var ErrNotLeader = errors.New("this instance is not driving playout")

// Sink is an audio output that reports back to the engine.
type Sink interface {
	playout.Sink
	Attach(r output.Reporter)
}

// Options wires a Service.
type Options struct {
	Station      *config.Station
	Source       catalog.Source
	Sink         Sink
	Bus          *events.Bus
	DB           *gorm.DB // optional; enables strategy persistence and history
	Clock        playout.Clock
	TickInterval time.Duration
	// Leader, when set, gates playout on holding the station lease.
	Leader <-chan bool
	Logger zerolog.Logger
}

// Service runs a station.
type Service struct {
	opts      Options
	station   *config.Station
	catalogs  *catalog.Store
	schedules *schedule.Store
	logger    zerolog.Logger

	mu     sync.RWMutex
	engine *playout.Engine

	purgeMu sync.Mutex
	purged  map[string]struct{}
}

// New validates options and prepares a station.
func New(opts Options) (*Service, error) {
	if opts.Station == nil {
		return nil, errors.New("station definition is required")
	}
	if opts.Source == nil {
		return nil, errors.New("catalog source is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("output sink is required")
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Clock == nil {
		opts.Clock = playout.RealClock{}
	}
	return &Service{
		opts:      opts,
		station:   opts.Station,
		catalogs:  catalog.NewStore(),
		schedules: schedule.NewStore(),
		logger:    opts.Logger.With().Str("component", "station").Str("station_id", opts.Station.ID).Logger(),
		purged:    make(map[string]struct{}),
	}, nil
}

// StationID returns the station identity.
func (s *Service) StationID() string { return s.station.ID }

// Bus returns the event bus engine events are published on.
func (s *Service) Bus() *events.Bus { return s.opts.Bus }

// Run drives playout until ctx is done. With a leader channel the engine
// only runs while this instance holds the lease.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if s.opts.DB != nil {
		recorder := history.NewRecorder(s.opts.DB, s.opts.Bus, s.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Start(ctx)
		}()
	}
	defer wg.Wait()

	if s.opts.Leader != nil {
		leadership.RunWhileLeader(ctx, s.opts.Leader, s.logger, func(termCtx context.Context) {
			if err := s.runTerm(termCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("playout term ended with error")
			}
		})
		return ctx.Err()
	}
	return s.runTerm(ctx)
}

// runTerm builds a fresh engine, loads content, and runs until ctx is done.
func (s *Service) runTerm(ctx context.Context) error {
	engine, err := s.newEngine(ctx)
	if err != nil {
		return err
	}
	s.opts.Sink.Attach(engine)

	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.engine = nil
		s.mu.Unlock()
	}()

	if _, err := s.reloadCatalog(ctx, engine); err != nil {
		s.logger.Error().Err(err).Msg("initial catalog load failed")
	}
	if _, err := s.reloadSchedule(ctx, engine); err != nil {
		s.logger.Error().Err(err).Msg("initial schedule load failed")
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	termCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.refreshSchedule(termCtx, engine)
	}()
	if s.station.Purge {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.purgeFinished(termCtx, engine)
		}()
	}

	return engine.Run(termCtx)
}

func (s *Service) newEngine(ctx context.Context) (*playout.Engine, error) {
	kind := s.station.StrategyKind()
	if s.opts.DB != nil {
		stored, err := history.LoadStrategy(ctx, s.opts.DB, s.station.ID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("could not load stored strategy")
		} else if stored != "" {
			if parsed, err := ordering.ParseKind(stored); err == nil {
				kind = parsed
			}
		}
	}

	return playout.NewEngine(playout.Config{
		StationID:         s.station.ID,
		Strategy:          kind,
		RequireRecorded:   s.station.RequireRecorded,
		PrefetchLookahead: s.station.Prefetch,
		SkipCooldown:      s.station.SkipCooldown,
		TickInterval:      s.opts.TickInterval,
		PrimeNext:         s.station.ShouldPrime(),
	}, s.catalogs, s.schedules, s.opts.Sink, s.opts.Bus, s.opts.Clock, s.logger)
}

func (s *Service) current() (*playout.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return nil, ErrNotLeader
	}
	return s.engine, nil
}

// Status reports the engine status.
func (s *Service) Status() (playout.Status, error) {
	engine, err := s.current()
	if err != nil {
		return playout.Status{}, err
	}
	return engine.Status(), nil
}

// Skip ends the current item early.
func (s *Service) Skip(ctx context.Context) (playout.Decision, error) {
	engine, err := s.current()
	if err != nil {
		return playout.Decision{}, err
	}
	return engine.Skip(ctx)
}

// StopLive ends a live entry before its window closes.
func (s *Service) StopLive(ctx context.Context, entryID string) (playout.Decision, error) {
	engine, err := s.current()
	if err != nil {
		return playout.Decision{}, err
	}
	return engine.StopLive(ctx, entryID)
}

// SetStrategy switches the ordering strategy and persists the choice.
func (s *Service) SetStrategy(ctx context.Context, kind ordering.Kind) error {
	engine, err := s.current()
	if err != nil {
		return err
	}
	if err := engine.SetStrategy(kind); err != nil {
		return err
	}
	if s.opts.DB != nil {
		if err := history.SaveStrategy(ctx, s.opts.DB, s.station.ID, string(kind)); err != nil {
			s.logger.Warn().Err(err).Msg("strategy changed but not persisted")
		}
	}
	return nil
}

// ReloadCatalog re-reads the library.
func (s *Service) ReloadCatalog(ctx context.Context) (playout.Decision, error) {
	engine, err := s.current()
	if err != nil {
		return playout.Decision{}, err
	}
	return s.reloadCatalog(ctx, engine)
}

// ReloadSchedule re-reads the station's live shows and re-expands recurrences.
func (s *Service) ReloadSchedule(ctx context.Context) (playout.Decision, error) {
	engine, err := s.current()
	if err != nil {
		return playout.Decision{}, err
	}
	return s.reloadSchedule(ctx, engine)
}

// Schedule returns the live entries the engine currently holds.
func (s *Service) Schedule() []schedule.LiveEntry {
	return s.schedules.Current().Entries()
}

// Name returns the display name of the station.
func (s *Service) Name() string {
	if s.station.Name != "" {
		return s.station.Name
	}
	return s.station.ID
}

// History returns recent plays, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.PlayHistory, error) {
	if s.opts.DB == nil {
		return nil, nil
	}
	return history.Recent(ctx, s.opts.DB, s.station.ID, limit)
}

func (s *Service) reloadCatalog(ctx context.Context, engine *playout.Engine) (playout.Decision, error) {
	snapshot, err := s.opts.Source.Snapshot(ctx)
	if err != nil {
		return playout.Decision{}, fmt.Errorf("read library: %w", err)
	}
	return engine.ReloadCatalog(ctx, s.withoutPurged(snapshot))
}

func (s *Service) reloadSchedule(ctx context.Context, engine *playout.Engine) (playout.Decision, error) {
	entries, err := s.station.Entries(s.opts.Clock.Now())
	if err != nil {
		return playout.Decision{}, fmt.Errorf("expand live schedule: %w", err)
	}
	return engine.ReloadSchedule(ctx, entries)
}

// refreshSchedule rolls the recurrence horizon forward.
func (s *Service) refreshSchedule(ctx context.Context, engine *playout.Engine) {
	ticker := time.NewTicker(s.station.ScheduleRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.reloadSchedule(ctx, engine); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled refresh rejected")
			}
		}
	}
}

// purgeFinished deletes recorded files that played to completion and drops
// them from the catalog.
func (s *Service) purgeFinished(ctx context.Context, engine *playout.Engine) {
	finished := s.opts.Bus.SubscribeBuffered(events.EventTrackFinished, 32)
	defer s.opts.Bus.Unsubscribe(events.EventTrackFinished, finished)

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-finished:
			if payload["kind"] != string(playout.ItemRecorded) || payload["outcome"] != "completed" {
				continue
			}
			id, _ := payload["source_id"].(string)
			path, _ := payload["locator"].(string)
			if err := s.purge(ctx, engine, id, path); err != nil {
				s.logger.Warn().Err(err).Str("track", id).Msg("purge failed")
			}
		}
	}
}

func (s *Service) purge(ctx context.Context, engine *playout.Engine, id, path string) error {
	if id == "" {
		return errors.New("finished event without source id")
	}
	if s.station.Library.S3 != nil {
		return errors.New("purge is only supported for local libraries")
	}
	// A one-track library puts the finished track straight back on air.
	if st := engine.Status(); st.Current != nil && st.Current.SourceID() == id {
		s.logger.Debug().Str("track", id).Msg("finished track is on air again, not purging")
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	s.purgeMu.Lock()
	s.purged[id] = struct{}{}
	s.purgeMu.Unlock()

	s.logger.Info().Str("track", id).Str("path", path).Msg("purged played track")
	_, err := engine.ReloadCatalog(ctx, s.catalogs.Current().Without(id))
	return err
}

func (s *Service) withoutPurged(snapshot []catalog.Track) []catalog.Track {
	s.purgeMu.Lock()
	defer s.purgeMu.Unlock()
	if len(s.purged) == 0 {
		return snapshot
	}
	out := snapshot[:0:0]
	for _, t := range snapshot {
		id := t.ID
		if id == "" {
			id = t.Path
		}
		if _, gone := s.purged[id]; !gone {
			out = append(out, t)
		}
	}
	return out
}
