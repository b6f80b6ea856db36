/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"fmt"
	"time"
)

// LiveEntry is a scheduled live broadcast window. Live entries always
// preempt recorded content.
type LiveEntry struct {
	ID     string `json:"id"`
	Source string `json:"source"` // stream URL or device reference
	Host   string `json:"host,omitempty"`
	Title  string `json:"title,omitempty"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"` // zero for open-ended entries

	// Delay shifts the start of the window.
	Delay time.Duration `json:"delay,omitempty"`
	// MaxDuration cuts the window before End when positive.
	MaxDuration time.Duration `json:"max_duration,omitempty"`
}

// OpenEnded reports whether the entry runs until an explicit stop.
func (e LiveEntry) OpenEnded() bool {
	return e.End.IsZero() && e.MaxDuration <= 0
}

// EffectiveStart returns the start of the broadcast window.
func (e LiveEntry) EffectiveStart() time.Time {
	return e.Start.Add(e.Delay)
}

// EffectiveEnd returns the end of the broadcast window and false for
// open-ended entries.
func (e LiveEntry) EffectiveEnd() (time.Time, bool) {
	start := e.EffectiveStart()
	if e.MaxDuration > 0 {
		capped := start.Add(e.MaxDuration)
		if e.End.IsZero() || capped.Before(e.End) {
			return capped, true
		}
	}
	if e.End.IsZero() {
		return time.Time{}, false
	}
	return e.End, true
}

// Contains reports whether now falls inside [start, end).
func (e LiveEntry) Contains(now time.Time) bool {
	if now.Before(e.EffectiveStart()) {
		return false
	}
	end, bounded := e.EffectiveEnd()
	return !bounded || now.Before(end)
}

// Overlaps reports whether two windows share any instant.
func (e LiveEntry) Overlaps(other LiveEntry) bool {
	aEnd, aBounded := e.EffectiveEnd()
	bEnd, bBounded := other.EffectiveEnd()
	aStartsBeforeBEnds := !bBounded || e.EffectiveStart().Before(bEnd)
	bStartsBeforeAEnds := !aBounded || other.EffectiveStart().Before(aEnd)
	return aStartsBeforeBEnds && bStartsBeforeAEnds
}

func (e LiveEntry) validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: entry has no id", ErrInvalidEntry)
	}
	if e.Source == "" {
		return fmt.Errorf("%w: entry %s has no source", ErrInvalidEntry, e.ID)
	}
	if e.Start.IsZero() {
		return fmt.Errorf("%w: entry %s has no start", ErrInvalidEntry, e.ID)
	}
	if e.Delay < 0 || e.MaxDuration < 0 {
		return fmt.Errorf("%w: entry %s has a negative delay or max duration", ErrInvalidEntry, e.ID)
	}
	if end, bounded := e.EffectiveEnd(); bounded && !end.After(e.EffectiveStart()) {
		return fmt.Errorf("%w: entry %s ends at or before it starts", ErrInvalidEntry, e.ID)
	}
	return nil
}

func (e LiveEntry) String() string {
	end, bounded := e.EffectiveEnd()
	if !bounded {
		return fmt.Sprintf("%s[%s, open)", e.ID, e.EffectiveStart().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s[%s, %s)", e.ID, e.EffectiveStart().Format(time.RFC3339), end.Format(time.RFC3339))
}
