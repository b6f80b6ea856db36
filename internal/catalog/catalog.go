/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrEmptyCatalog indicates no recorded content is available.
	ErrEmptyCatalog = errors.New("catalog is empty")

	// ErrInvalidTrack indicates a track without identity or with a non-positive duration.
	ErrInvalidTrack = errors.New("invalid track")
)

// DuplicateTrackError is returned when a snapshot lists the same identity twice.
type DuplicateTrackError struct {
	ID string
}

func (e *DuplicateTrackError) Error() string {
	return fmt.Sprintf("duplicate track %q in catalog snapshot", e.ID)
}

// Catalog is an immutable snapshot of tracks ordered by ascending modification time.
type Catalog struct {
	tracks     []Track
	index      map[string]int
	generation uint64
	loadedAt   time.Time
}

// Empty returns a catalog with no tracks.
func Empty() *Catalog {
	return &Catalog{index: map[string]int{}}
}

// Load builds a catalog from a metadata snapshot. Tracks are sorted by
// modification time; ties are broken by identity so the order is stable
// across loads. When requireRecorded is set an empty snapshot is rejected.
func Load(snapshot []Track, requireRecorded bool) (*Catalog, error) {
	if len(snapshot) == 0 {
		if requireRecorded {
			return nil, ErrEmptyCatalog
		}
		return Empty(), nil
	}

	tracks := make([]Track, len(snapshot))
	copy(tracks, snapshot)

	seen := make(map[string]struct{}, len(tracks))
	for i := range tracks {
		if tracks[i].ID == "" {
			tracks[i].ID = tracks[i].Path
		}
		if tracks[i].ID == "" {
			return nil, fmt.Errorf("%w: track %d has no identity", ErrInvalidTrack, i)
		}
		if tracks[i].Duration <= 0 {
			return nil, fmt.Errorf("%w: %s has duration %s", ErrInvalidTrack, tracks[i].ID, tracks[i].Duration)
		}
		if _, dup := seen[tracks[i].ID]; dup {
			return nil, &DuplicateTrackError{ID: tracks[i].ID}
		}
		seen[tracks[i].ID] = struct{}{}
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		if tracks[i].ModifiedAt.Equal(tracks[j].ModifiedAt) {
			return tracks[i].ID < tracks[j].ID
		}
		return tracks[i].ModifiedAt.Before(tracks[j].ModifiedAt)
	})

	index := make(map[string]int, len(tracks))
	for i, t := range tracks {
		index[t.ID] = i
	}

	return &Catalog{tracks: tracks, index: index, loadedAt: time.Now()}, nil
}

// Len returns the number of tracks.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tracks)
}

// IsEmpty reports whether the catalog has no tracks.
func (c *Catalog) IsEmpty() bool {
	return c.Len() == 0
}

// TrackAt returns the track at position i in chronologic order.
// It panics when i is outside [0, Len()).
func (c *Catalog) TrackAt(i int) Track {
	return c.tracks[i]
}

// IndexOf returns the position of the track with the given identity, or -1.
func (c *Catalog) IndexOf(id string) int {
	if c == nil {
		return -1
	}
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Tracks returns a copy of the ordered track list.
func (c *Catalog) Tracks() []Track {
	out := make([]Track, c.Len())
	if c != nil {
		copy(out, c.tracks)
	}
	return out
}

// Without returns a new snapshot with the given identity removed.
func (c *Catalog) Without(id string) []Track {
	out := make([]Track, 0, c.Len())
	for _, t := range c.Tracks() {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// Generation identifies the store swap that published this catalog.
func (c *Catalog) Generation() uint64 {
	if c == nil {
		return 0
	}
	return c.generation
}

// LoadedAt returns when the snapshot was built.
func (c *Catalog) LoadedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.loadedAt
}

// TotalDuration sums the duration of every track.
func (c *Catalog) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range c.Tracks() {
		total += t.Duration
	}
	return total
}
