/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

// ItemKind distinguishes recorded tracks from live sources.
type ItemKind string

const (
	ItemRecorded ItemKind = "recorded"
	ItemLive     ItemKind = "live"
)

// Reason records why an item was chosen.
type Reason string

const (
	ReasonOrdering   Reason = "ordering"   // strategy pick at a track boundary
	ReasonPreemption Reason = "preemption" // a live window opened
	ReasonResume     Reason = "resume"     // a live window closed
	ReasonFallback   Reason = "fallback"   // the previous item failed to start
	ReasonSkip       Reason = "skip"
	ReasonRecovery   Reason = "recovery" // leaving Starved after a reload
)

// PlaybackItem is one unit of output: a recorded track or a live source.
// Exactly one of Track and Live is set.
type PlaybackItem struct {
	ID        string              `json:"id"`
	Kind      ItemKind            `json:"kind"`
	Track     *catalog.Track      `json:"track,omitempty"`
	Live      *schedule.LiveEntry `json:"live,omitempty"`
	DecidedAt time.Time           `json:"decided_at"`
	Reason    Reason              `json:"reason"`

	generation uint64
}

func newRecordedItem(track catalog.Track, generation uint64, now time.Time, reason Reason) PlaybackItem {
	return PlaybackItem{
		ID:         uuid.NewString(),
		Kind:       ItemRecorded,
		Track:      &track,
		DecidedAt:  now,
		Reason:     reason,
		generation: generation,
	}
}

func newLiveItem(entry schedule.LiveEntry, now time.Time, reason Reason) PlaybackItem {
	return PlaybackItem{
		ID:        uuid.NewString(),
		Kind:      ItemLive,
		Live:      &entry,
		DecidedAt: now,
		Reason:    reason,
	}
}

// SourceID returns the track id or live entry id.
func (i PlaybackItem) SourceID() string {
	switch {
	case i.Track != nil:
		return i.Track.ID
	case i.Live != nil:
		return i.Live.ID
	}
	return ""
}

// Locator returns what the output plays: a file path or a stream URL.
func (i PlaybackItem) Locator() string {
	switch {
	case i.Track != nil:
		return i.Track.Path
	case i.Live != nil:
		return i.Live.Source
	}
	return ""
}

// Title returns a human readable label.
func (i PlaybackItem) Title() string {
	switch {
	case i.Track != nil:
		return i.Track.DisplayTitle()
	case i.Live != nil:
		if i.Live.Title != "" {
			return i.Live.Title
		}
		return i.Live.ID
	}
	return ""
}

// endsAt returns when the item is expected to finish if it starts at start.
// Open-ended live items report false.
func (i PlaybackItem) endsAt(start time.Time) (time.Time, bool) {
	switch {
	case i.Track != nil:
		return start.Add(i.Track.Duration), true
	case i.Live != nil:
		return i.Live.EffectiveEnd()
	}
	return start, true
}
