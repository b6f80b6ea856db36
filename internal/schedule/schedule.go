/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

var (
	// ErrScheduleConflict is the class of ConflictError.
	ErrScheduleConflict = errors.New("schedule conflict")

	// ErrInvalidEntry indicates a malformed live entry.
	ErrInvalidEntry = errors.New("invalid live entry")
)

// ConflictError names the two live entries whose windows overlap.
type ConflictError struct {
	First  LiveEntry
	Second LiveEntry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schedule conflict: %s overlaps %s", e.First, e.Second)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrScheduleConflict
}

// Schedule is an immutable, start-ordered set of non-overlapping live entries.
type Schedule struct {
	entries []LiveEntry
}

// New validates entries and builds a schedule. Overlapping windows fail with
// a *ConflictError naming the colliding pair.
func New(entries []LiveEntry) (*Schedule, error) {
	sorted := make([]LiveEntry, len(entries))
	copy(sorted, entries)

	ids := make(map[string]struct{}, len(sorted))
	for _, e := range sorted {
		if err := e.validate(); err != nil {
			return nil, err
		}
		if _, dup := ids[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidEntry, e.ID)
		}
		ids[e.ID] = struct{}{}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveStart().Before(sorted[j].EffectiveStart())
	})

	// Sorted by start, so any overlap shows up between neighbours.
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Overlaps(sorted[i]) {
			return nil, &ConflictError{First: sorted[i-1], Second: sorted[i]}
		}
	}

	return &Schedule{entries: sorted}, nil
}

// Empty returns a schedule without entries.
func Empty() *Schedule {
	return &Schedule{}
}

// Len returns the number of entries.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy of the start-ordered entries.
func (s *Schedule) Entries() []LiveEntry {
	out := make([]LiveEntry, s.Len())
	if s != nil {
		copy(out, s.entries)
	}
	return out
}

// Get returns the entry with the given id.
func (s *Schedule) Get(id string) (LiveEntry, bool) {
	for _, e := range s.Entries() {
		if e.ID == id {
			return e, true
		}
	}
	return LiveEntry{}, false
}

// ActiveEntry returns the entry whose window contains now.
func (s *Schedule) ActiveEntry(now time.Time) (LiveEntry, bool) {
	if s.Len() == 0 {
		return LiveEntry{}, false
	}
	// First entry starting after now; the candidate is the one before it.
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].EffectiveStart().After(now)
	})
	if i == 0 {
		return LiveEntry{}, false
	}
	candidate := s.entries[i-1]
	if candidate.Contains(now) {
		return candidate, true
	}
	return LiveEntry{}, false
}

// UpcomingWithin returns the soonest entry starting after now and no later
// than now+lookahead.
func (s *Schedule) UpcomingWithin(now time.Time, lookahead time.Duration) (LiveEntry, bool) {
	if s.Len() == 0 || lookahead <= 0 {
		return LiveEntry{}, false
	}
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].EffectiveStart().After(now)
	})
	if i == len(s.entries) {
		return LiveEntry{}, false
	}
	next := s.entries[i]
	if next.EffectiveStart().After(now.Add(lookahead)) {
		return LiveEntry{}, false
	}
	return next, true
}

// NextStart returns the start of the first entry beginning after now.
func (s *Schedule) NextStart(now time.Time) (time.Time, bool) {
	if s.Len() == 0 {
		return time.Time{}, false
	}
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].EffectiveStart().After(now)
	})
	if i == len(s.entries) {
		return time.Time{}, false
	}
	return s.entries[i].EffectiveStart(), true
}

// Store publishes schedules atomically. A rejected replacement leaves the
// previous schedule in place.
type Store struct {
	current atomic.Pointer[Schedule]
}

// NewStore creates a store holding an empty schedule.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(Empty())
	return s
}

// Replace validates entries and publishes them on success.
func (s *Store) Replace(entries []LiveEntry) (*Schedule, error) {
	sched, err := New(entries)
	if err != nil {
		return nil, err
	}
	s.current.Store(sched)
	return sched, nil
}

// Current returns the published schedule.
func (s *Store) Current() *Schedule {
	return s.current.Load()
}
