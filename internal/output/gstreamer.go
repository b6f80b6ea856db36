/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/playout"
)

// GStreamerConfig configures the gst-launch output.
type GStreamerConfig struct {
	Bin         string        // gst-launch-1.0 binary
	SinkElement string        // e.g. "autoaudiosink" or a shout2send element
	StopGrace   time.Duration // interrupt-to-kill delay when replacing a pipeline
}

type command struct {
	play *playout.PlaybackItem
	stop bool
}

type run struct {
	item     playout.PlaybackItem
	pipeline *Pipeline
	replaced atomic.Bool
}

// PipelineSink plays items through gst-launch, one process per item. Play
// and Stop queue work for the Run loop and never block the engine.
type PipelineSink struct {
	cfg    GStreamerConfig
	logger zerolog.Logger
	cmds   chan command

	mu       sync.Mutex
	reporter Reporter
	current  *run
}

// NewPipelineSink creates a sink; Run must be started to process commands.
func NewPipelineSink(cfg GStreamerConfig, logger zerolog.Logger) *PipelineSink {
	if cfg.Bin == "" {
		cfg.Bin = "gst-launch-1.0"
	}
	if cfg.SinkElement == "" {
		cfg.SinkElement = "autoaudiosink"
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	return &PipelineSink{
		cfg:    cfg,
		logger: logger.With().Str("component", "output").Str("output", string(KindGStreamer)).Logger(),
		cmds:   make(chan command, 32),
	}
}

// Attach sets where outcomes are reported.
func (s *PipelineSink) Attach(r Reporter) {
	s.mu.Lock()
	s.reporter = r
	s.mu.Unlock()
}

func (s *PipelineSink) Play(item playout.PlaybackItem) {
	s.enqueue(command{play: &item})
}

// Preload checks that a recorded file is readable ahead of its turn.
func (s *PipelineSink) Preload(item playout.PlaybackItem) {
	if item.Kind != playout.ItemRecorded {
		return
	}
	if _, err := os.Stat(item.Locator()); err != nil {
		s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("staged file not readable")
	}
}

func (s *PipelineSink) Stop() {
	s.enqueue(command{stop: true})
}

func (s *PipelineSink) enqueue(cmd command) {
	select {
	case s.cmds <- cmd:
	default:
		s.logger.Error().Msg("output command queue full, dropping command")
	}
}

// Run processes play and stop commands until ctx is done.
func (s *PipelineSink) Run(ctx context.Context) error {
	s.logger.Info().Str("bin", s.cfg.Bin).Str("sink", s.cfg.SinkElement).Msg("gstreamer output started")
	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			s.logger.Info().Msg("gstreamer output stopped")
			return ctx.Err()
		case cmd := <-s.cmds:
			s.stopCurrent()
			if cmd.play != nil {
				s.start(ctx, *cmd.play)
			}
		}
	}
}

func (s *PipelineSink) stopCurrent() {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()

	if cur == nil {
		return
	}
	cur.replaced.Store(true)
	if err := cur.pipeline.Stop(s.cfg.StopGrace); err != nil {
		s.logger.Warn().Err(err).Str("item_id", cur.item.ID).Msg("stop pipeline")
	}
}

func (s *PipelineSink) start(ctx context.Context, item playout.PlaybackItem) {
	logger := s.logger.With().Str("item_id", item.ID).Str("locator", item.Locator()).Logger()
	launch, err := s.launchFor(item)
	if err == nil {
		r := &run{item: item, pipeline: NewPipeline(s.cfg.Bin, logger)}
		if err = r.pipeline.Start(ctx, launch); err == nil {
			s.mu.Lock()
			s.current = r
			s.mu.Unlock()
			logger.Info().Str("kind", string(item.Kind)).Msg("pipeline started")
			go s.watch(r)
			return
		}
	}
	logger.Warn().Err(err).Msg("pipeline failed to start")
	s.report(playout.SinkEvent{ItemID: item.ID, Outcome: playout.OutcomeFailed, Err: err})
}

// watch reports how an item left the air unless it was replaced.
func (s *PipelineSink) watch(r *run) {
	<-r.pipeline.Done()
	if r.replaced.Load() {
		return
	}
	s.mu.Lock()
	if s.current == r {
		s.current = nil
	}
	s.mu.Unlock()

	ev := playout.SinkEvent{ItemID: r.item.ID, Outcome: playout.OutcomeCompleted}
	switch err := r.pipeline.Err(); {
	case err != nil:
		ev.Outcome = playout.OutcomeFailed
		ev.Err = err
	case r.item.Kind == playout.ItemLive:
		ev.Outcome = playout.OutcomeEndedEarly
	}
	s.report(ev)
}

func (s *PipelineSink) report(ev playout.SinkEvent) {
	s.mu.Lock()
	reporter := s.reporter
	s.mu.Unlock()
	if reporter == nil {
		return
	}
	if _, err := reporter.Report(context.Background(), ev); err != nil {
		s.logger.Debug().Err(err).Str("item_id", ev.ItemID).Msg("report outcome")
	}
}

func (s *PipelineSink) launchFor(item playout.PlaybackItem) (string, error) {
	uri, err := itemURI(item)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("uridecodebin uri=%s ! audioconvert ! audioresample ! %s", shellQuote(uri), s.cfg.SinkElement), nil
}

func itemURI(item playout.PlaybackItem) (string, error) {
	locator := item.Locator()
	if locator == "" {
		return "", fmt.Errorf("item %s has nothing to play", item.ID)
	}
	if strings.Contains(locator, "://") {
		return locator, nil
	}
	abs, err := filepath.Abs(locator)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
