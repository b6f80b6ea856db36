/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package output

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/playout"
)

// DrySink logs what would be played. Timing comes from the engine's session;
// the only thing it reports is a start failure: a missing file when file
// checks are on, or a live source listed as unreachable.
type DrySink struct {
	logger     zerolog.Logger
	checkFiles bool

	mu          sync.Mutex
	reporter    Reporter
	unreachable map[string]struct{}
	history     []playout.PlaybackItem
}

// NewDrySink creates a dry sink. With checkFiles set, recorded items whose
// path does not exist are reported as failed.
func NewDrySink(checkFiles bool, logger zerolog.Logger) *DrySink {
	return &DrySink{
		logger:      logger.With().Str("component", "output").Str("output", string(KindDry)).Logger(),
		checkFiles:  checkFiles,
		unreachable: make(map[string]struct{}),
	}
}

// Attach sets where outcomes are reported.
func (s *DrySink) Attach(r Reporter) {
	s.mu.Lock()
	s.reporter = r
	s.mu.Unlock()
}

// MarkUnreachable makes live items with this source fail to start.
func (s *DrySink) MarkUnreachable(source string) {
	s.mu.Lock()
	s.unreachable[source] = struct{}{}
	s.mu.Unlock()
}

func (s *DrySink) Play(item playout.PlaybackItem) {
	s.mu.Lock()
	s.history = append(s.history, item)
	reporter := s.reporter
	_, down := s.unreachable[item.Locator()]
	s.mu.Unlock()

	s.logger.Info().
		Str("item_id", item.ID).
		Str("kind", string(item.Kind)).
		Str("locator", item.Locator()).
		Str("title", item.Title()).
		Msg("play")

	var failure error
	switch {
	case item.Kind == playout.ItemLive && down:
		failure = fmt.Errorf("source %s marked unreachable", item.Locator())
	case item.Kind == playout.ItemRecorded && s.checkFiles:
		if _, err := os.Stat(item.Locator()); err != nil {
			failure = err
		}
	}
	if failure == nil || reporter == nil {
		return
	}
	go func() {
		if _, err := reporter.Report(context.Background(), playout.SinkEvent{
			ItemID:  item.ID,
			Outcome: playout.OutcomeFailed,
			Err:     failure,
		}); err != nil {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("report failed start")
		}
	}()
}

func (s *DrySink) Preload(item playout.PlaybackItem) {
	s.logger.Debug().Str("item_id", item.ID).Str("locator", item.Locator()).Msg("preload")
}

func (s *DrySink) Stop() {
	s.logger.Info().Msg("stop")
}

// History returns every item handed to Play, oldest first.
func (s *DrySink) History() []playout.PlaybackItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]playout.PlaybackItem(nil), s.history...)
}
