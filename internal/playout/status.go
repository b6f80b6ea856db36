/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/ordering"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

// Status is a point-in-time view of the engine for operators.
type Status struct {
	StationID         string              `json:"station_id"`
	State             State               `json:"state"`
	Strategy          ordering.Kind       `json:"strategy"`
	StrategyCursor    *int                `json:"strategy_cursor,omitempty"`
	Current           *PlaybackItem       `json:"current,omitempty"`
	StartedAt         *time.Time          `json:"started_at,omitempty"`
	ExpectedEnd       *time.Time          `json:"expected_end,omitempty"`
	ElapsedMS         int64               `json:"elapsed_ms"`
	RemainingMS       *int64              `json:"remaining_ms,omitempty"`
	Prefetched        *PlaybackItem       `json:"prefetched,omitempty"`
	NextDecisionAt    *time.Time          `json:"next_decision_at,omitempty"`
	UpcomingLive      *schedule.LiveEntry `json:"upcoming_live,omitempty"`
	CatalogSize       int                 `json:"catalog_size"`
	CatalogGeneration uint64              `json:"catalog_generation"`
	CatalogLoadedAt   *time.Time          `json:"catalog_loaded_at,omitempty"`
	ScheduleEntries   int                 `json:"schedule_entries"`
	LastError         string              `json:"last_error,omitempty"`
	At                time.Time           `json:"at"`
}

// Status reports the current state, the item on air and when the next
// decision is expected.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	cat := e.catalogs.Current()
	sched := e.schedules.Current()

	st := Status{
		StationID:         e.cfg.StationID,
		State:             e.state,
		Strategy:          e.strategy.Kind(),
		CatalogSize:       cat.Len(),
		CatalogGeneration: cat.Generation(),
		ScheduleEntries:   sched.Len(),
		At:                now,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	if seq, ok := e.strategy.(ordering.Sequential); ok {
		cursor := seq.Cursor()
		st.StrategyCursor = &cursor
	}
	if loaded := cat.LoadedAt(); !loaded.IsZero() {
		st.CatalogLoadedAt = &loaded
	}
	if cur, ok := e.session.Current(); ok {
		started := e.session.StartedAt()
		st.Current = &cur
		st.StartedAt = &started
		st.ElapsedMS = e.session.Elapsed(now).Milliseconds()
		if end, bounded := e.session.ExpectedEnd(); bounded {
			remaining, _ := e.session.Remaining(now)
			ms := remaining.Milliseconds()
			st.ExpectedEnd = &end
			st.RemainingMS = &ms
		}
	}
	if staged, ok := e.session.Prefetched(); ok {
		st.Prefetched = &staged
	}
	if next, ok := e.nextDecisionAt(now); ok {
		st.NextDecisionAt = &next
	}
	if start, ok := sched.NextStart(now); ok {
		for _, entry := range sched.Entries() {
			if entry.EffectiveStart().Equal(start) && !e.excluded(entry.ID) {
				st.UpcomingLive = &entry
				break
			}
		}
	}
	return st
}

// nextDecisionAt is the earliest of the prefetch window, the expected end
// and the next live start. Starved engines only wait for live entries.
func (e *Engine) nextDecisionAt(now time.Time) (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)
	consider := func(t time.Time) {
		if t.Before(now) {
			t = now
		}
		if !found || t.Before(next) {
			next, found = t, true
		}
	}

	switch e.state {
	case StateIdle, StateStopped:
		return time.Time{}, false
	case StatePlayingRecorded, StatePlayingLive:
		if _, staged := e.session.Prefetched(); !staged {
			if at, ok := e.session.PrefetchAt(); ok {
				consider(at)
			}
		}
		if end, ok := e.session.ExpectedEnd(); ok {
			consider(end)
		}
	}
	if start, ok := e.schedules.Current().NextStart(now); ok {
		consider(start)
	}
	return next, found
}
