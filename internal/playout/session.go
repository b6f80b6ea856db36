/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

// Signal is what a session asks of the engine when polled.
type Signal int

const (
	SignalNone Signal = iota
	// SignalPrefetch fires once per item when the prefetch window opens.
	SignalPrefetch
	// SignalComplete fires from the expected end onwards until a new item begins.
	SignalComplete
	// SignalSkip fires after ForceSkip until a new item begins.
	SignalSkip
)

func (s Signal) String() string {
	switch s {
	case SignalPrefetch:
		return "prefetch"
	case SignalComplete:
		return "complete"
	case SignalSkip:
		return "skip"
	}
	return "none"
}

// Session tracks the item on air and the item staged behind it. It is not
// safe for concurrent use; the engine serializes access.
type Session struct {
	lookahead time.Duration

	current     *PlaybackItem
	startedAt   time.Time
	expectedEnd time.Time
	bounded     bool

	prefetched       *PlaybackItem
	prefetchSignaled bool
	skipRequested    bool
}

// NewSession creates a session that asks for a prefetch lookahead before
// the current item ends.
func NewSession(lookahead time.Duration) *Session {
	if lookahead < 0 {
		lookahead = 0
	}
	return &Session{lookahead: lookahead}
}

// Begin puts item on air at now.
func (s *Session) Begin(item PlaybackItem, now time.Time) {
	s.current = &item
	s.startedAt = now
	s.expectedEnd, s.bounded = item.endsAt(now)
	s.prefetchSignaled = false
	s.skipRequested = false
}

// UpdateLive swaps in a revised version of the live entry on air. The item
// keeps its identity and start; its expected end follows the entry. It
// reports false when entry is not the one on air.
func (s *Session) UpdateLive(entry schedule.LiveEntry) bool {
	if s.current == nil || s.current.Live == nil || s.current.Live.ID != entry.ID {
		return false
	}
	item := *s.current
	item.Live = &entry
	s.current = &item

	end, bounded := item.endsAt(s.startedAt)
	if bounded != s.bounded || !end.Equal(s.expectedEnd) {
		s.prefetchSignaled = false
	}
	s.expectedEnd, s.bounded = end, bounded
	return true
}

// Clear takes the current item off air. The staged item is kept.
func (s *Session) Clear() {
	s.current = nil
	s.startedAt = time.Time{}
	s.expectedEnd = time.Time{}
	s.bounded = false
	s.prefetchSignaled = false
	s.skipRequested = false
}

// Current returns the item on air.
func (s *Session) Current() (PlaybackItem, bool) {
	if s.current == nil {
		return PlaybackItem{}, false
	}
	return *s.current, true
}

// StartedAt returns when the current item began.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// ExpectedEnd returns when the current item should finish. Open-ended live
// items report false.
func (s *Session) ExpectedEnd() (time.Time, bool) {
	if s.current == nil || !s.bounded {
		return time.Time{}, false
	}
	return s.expectedEnd, true
}

// Elapsed returns how long the current item has been on air.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.current == nil || now.Before(s.startedAt) {
		return 0
	}
	return now.Sub(s.startedAt)
}

// Remaining returns the time left on the current item, clamped at zero.
func (s *Session) Remaining(now time.Time) (time.Duration, bool) {
	end, ok := s.ExpectedEnd()
	if !ok {
		return 0, false
	}
	if !now.Before(end) {
		return 0, true
	}
	return end.Sub(now), true
}

// Poll reports the pending signal for now. Skip wins over completion,
// completion over prefetch.
func (s *Session) Poll(now time.Time) Signal {
	if s.current == nil {
		return SignalNone
	}
	if s.skipRequested {
		return SignalSkip
	}
	remaining, bounded := s.Remaining(now)
	if !bounded {
		return SignalNone
	}
	if remaining == 0 {
		return SignalComplete
	}
	if !s.prefetchSignaled && remaining <= s.lookahead {
		s.prefetchSignaled = true
		return SignalPrefetch
	}
	return SignalNone
}

// ForceSkip marks the current item for immediate replacement.
func (s *Session) ForceSkip() {
	if s.current != nil {
		s.skipRequested = true
	}
}

// PrefetchAt returns when the prefetch window opens for the current item.
func (s *Session) PrefetchAt() (time.Time, bool) {
	end, ok := s.ExpectedEnd()
	if !ok || s.prefetchSignaled {
		return time.Time{}, false
	}
	return end.Add(-s.lookahead), true
}

// Stage holds item as the next to play.
func (s *Session) Stage(item PlaybackItem) {
	s.prefetched = &item
}

// Prefetched returns the staged item.
func (s *Session) Prefetched() (PlaybackItem, bool) {
	if s.prefetched == nil {
		return PlaybackItem{}, false
	}
	return *s.prefetched, true
}

// TakePrefetched removes and returns the staged item.
func (s *Session) TakePrefetched() (PlaybackItem, bool) {
	item, ok := s.Prefetched()
	s.prefetched = nil
	return item, ok
}

// DiscardPrefetch drops the staged item.
func (s *Session) DiscardPrefetch() {
	s.prefetched = nil
}
