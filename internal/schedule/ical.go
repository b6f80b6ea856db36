/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// Calendar properties carrying playout fields that iCalendar has no slot for.
const (
	icalSourceProp = "X-GRIMNIR-SOURCE"
	icalHostProp   = "X-GRIMNIR-HOST"
)

// WriteICal renders entries as an RFC 5545 calendar.
func WriteICal(w io.Writer, calendar string, entries []LiveEntry, now time.Time) error {
	bw := bufio.NewWriter(w)
	line := func(format string, args ...any) {
		fmt.Fprintf(bw, format+"\r\n", args...)
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:-//Grimnir Playout//Live Schedule//EN")
	line("X-WR-CALNAME:%s", escapeICalText(calendar))
	line("CALSCALE:GREGORIAN")
	line("METHOD:PUBLISH")
	for _, e := range entries {
		line("BEGIN:VEVENT")
		line("UID:%s@grimnir", e.ID)
		line("DTSTAMP:%s", formatICalTime(now))
		line("DTSTART:%s", formatICalTime(e.EffectiveStart()))
		if end, ok := e.EffectiveEnd(); ok {
			line("DTEND:%s", formatICalTime(end))
		}
		summary := e.Title
		if summary == "" {
			summary = e.ID
		}
		line("SUMMARY:%s", escapeICalText(summary))
		line("%s:%s", icalSourceProp, escapeICalText(e.Source))
		if e.Host != "" {
			line("%s:%s", icalHostProp, escapeICalText(e.Host))
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")
	return bw.Flush()
}

// ReadICal parses VEVENTs into live entries. Events with an RRULE become
// recurrences. The source comes from X-GRIMNIR-SOURCE, falling back to
// LOCATION; events with neither are rejected.
func ReadICal(r io.Reader) ([]LiveEntry, []Recurrence, error) {
	var (
		fixed       []LiveEntry
		recurrences []Recurrence
		ev          *icalEvent
	)
	lines, err := unfoldICal(r)
	if err != nil {
		return nil, nil, err
	}
	for n, raw := range lines {
		name, params, value := splitICalLine(raw)
		switch {
		case name == "BEGIN" && value == "VEVENT":
			ev = &icalEvent{}
		case name == "END" && value == "VEVENT" && ev != nil:
			entry, rec, err := ev.resolve()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: event ending on line %d: %v", ErrInvalidEntry, n+1, err)
			}
			if rec != nil {
				recurrences = append(recurrences, *rec)
			} else {
				fixed = append(fixed, entry)
			}
			ev = nil
		case ev != nil:
			if err := ev.set(name, params, value); err != nil {
				return nil, nil, fmt.Errorf("%w: line %d: %v", ErrInvalidEntry, n+1, err)
			}
		}
	}
	return fixed, recurrences, nil
}

type icalEvent struct {
	uid, summary, source, location, host, rrule string
	start, end                                  time.Time
	duration                                    time.Duration
}

func (ev *icalEvent) set(name, params, value string) error {
	var err error
	switch name {
	case "UID":
		ev.uid = strings.TrimSuffix(value, "@grimnir")
	case "SUMMARY":
		ev.summary = unescapeICalText(value)
	case "LOCATION":
		ev.location = unescapeICalText(value)
	case icalSourceProp:
		ev.source = unescapeICalText(value)
	case icalHostProp:
		ev.host = unescapeICalText(value)
	case "RRULE":
		ev.rrule = value
	case "DTSTART":
		ev.start, err = parseICalTime(params, value)
	case "DTEND":
		ev.end, err = parseICalTime(params, value)
	case "DURATION":
		ev.duration, err = parseICalDuration(value)
	}
	return err
}

func (ev *icalEvent) resolve() (LiveEntry, *Recurrence, error) {
	if ev.uid == "" {
		return LiveEntry{}, nil, fmt.Errorf("missing UID")
	}
	if ev.start.IsZero() {
		return LiveEntry{}, nil, fmt.Errorf("%s: missing DTSTART", ev.uid)
	}
	source := ev.source
	if source == "" {
		source = ev.location
	}
	if source == "" {
		return LiveEntry{}, nil, fmt.Errorf("%s: no %s or LOCATION", ev.uid, icalSourceProp)
	}
	if ev.duration == 0 && !ev.end.IsZero() {
		ev.duration = ev.end.Sub(ev.start)
	}

	if ev.rrule != "" {
		if ev.duration <= 0 {
			return LiveEntry{}, nil, fmt.Errorf("%s: recurring event needs DTEND or DURATION", ev.uid)
		}
		return LiveEntry{}, &Recurrence{
			ID:       ev.uid,
			Source:   source,
			Host:     ev.host,
			Title:    ev.summary,
			RRule:    ev.rrule,
			DTStart:  ev.start,
			Duration: ev.duration,
		}, nil
	}

	entry := LiveEntry{ID: ev.uid, Source: source, Host: ev.host, Title: ev.summary, Start: ev.start}
	if ev.duration > 0 {
		entry.End = ev.start.Add(ev.duration)
	}
	return entry, nil, nil
}

// unfoldICal joins continuation lines (RFC 5545 section 3.1).
func unfoldICal(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		l := strings.TrimRight(sc.Text(), "\r")
		if (strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}
	return lines, nil
}

// splitICalLine splits "NAME;PARAMS:VALUE".
func splitICalLine(l string) (name, params, value string) {
	head, value, ok := strings.Cut(l, ":")
	if !ok {
		return "", "", ""
	}
	name, params, _ = strings.Cut(head, ";")
	return strings.ToUpper(name), params, value
}

func parseICalTime(params, value string) (time.Time, error) {
	loc := time.UTC
	for _, p := range strings.Split(params, ";") {
		if tz, ok := strings.CutPrefix(p, "TZID="); ok {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return time.Time{}, fmt.Errorf("unknown TZID %q", tz)
			}
			loc = l
		}
	}
	if strings.HasSuffix(value, "Z") {
		return time.Parse("20060102T150405Z", value)
	}
	for _, layout := range []string{"20060102T150405", "20060102"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}

// parseICalDuration handles the day and time forms, e.g. PT1H30M or P1D.
func parseICalDuration(v string) (time.Duration, error) {
	s, ok := strings.CutPrefix(v, "P")
	if !ok {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	var total time.Duration
	datePart, timePart, _ := strings.Cut(s, "T")
	units := map[byte]time.Duration{'W': 7 * 24 * time.Hour, 'D': 24 * time.Hour, 'H': time.Hour, 'M': time.Minute, 'S': time.Second}
	parse := func(part string, allowed string) error {
		n := 0
		for i := 0; i < len(part); i++ {
			c := part[i]
			switch {
			case c >= '0' && c <= '9':
				n = n*10 + int(c-'0')
			case strings.IndexByte(allowed, c) >= 0:
				total += time.Duration(n) * units[c]
				n = 0
			default:
				return fmt.Errorf("invalid duration %q", v)
			}
		}
		return nil
	}
	if err := parse(datePart, "WD"); err != nil {
		return 0, err
	}
	if err := parse(timePart, "HMS"); err != nil {
		return 0, err
	}
	return total, nil
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\,", ",")
	s = strings.ReplaceAll(s, "\\;", ";")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}
