/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Recurrence describes a repeating live show as an RFC 5545 rule.
type Recurrence struct {
	ID          string
	Source      string
	Host        string
	Title       string
	RRule       string // e.g. "FREQ=WEEKLY;BYDAY=MO;BYHOUR=20"
	DTStart     time.Time
	Duration    time.Duration
	Delay       time.Duration
	MaxDuration time.Duration
}

// Expand materializes occurrences of r whose windows intersect
// [from, from+horizon). Occurrence ids are the recurrence id suffixed with
// the UTC start time so they stay stable across expansions.
func (r Recurrence) Expand(from time.Time, horizon time.Duration) ([]LiveEntry, error) {
	if r.Duration <= 0 {
		return nil, fmt.Errorf("%w: recurrence %s needs a positive duration", ErrInvalidEntry, r.ID)
	}

	opt, err := rrule.StrToROption(r.RRule)
	if err != nil {
		return nil, fmt.Errorf("%w: recurrence %s: %v", ErrInvalidEntry, r.ID, err)
	}
	opt.Dtstart = r.DTStart
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: recurrence %s: %v", ErrInvalidEntry, r.ID, err)
	}

	occurrences := rule.Between(from.Add(-r.Duration), from.Add(horizon), true)
	entries := make([]LiveEntry, 0, len(occurrences))
	for _, start := range occurrences {
		entry := LiveEntry{
			ID:          fmt.Sprintf("%s@%s", r.ID, start.UTC().Format("20060102T150405Z")),
			Source:      r.Source,
			Host:        r.Host,
			Title:       r.Title,
			Start:       start,
			End:         start.Add(r.Duration),
			Delay:       r.Delay,
			MaxDuration: r.MaxDuration,
		}
		if end, _ := entry.EffectiveEnd(); !end.After(from) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Materialize combines fixed entries with expanded recurrences.
func Materialize(fixed []LiveEntry, recurrences []Recurrence, from time.Time, horizon time.Duration) ([]LiveEntry, error) {
	out := make([]LiveEntry, 0, len(fixed))
	out = append(out, fixed...)
	for _, r := range recurrences {
		expanded, err := r.Expand(from, horizon)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}
