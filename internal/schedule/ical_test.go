/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

const sampleCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:drive@grimnir\r\n" +
	"DTSTART;TZID=Europe/Berlin:20261019T170000\r\n" +
	"DURATION:PT2H\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=MO,WE\r\n" +
	"SUMMARY:Drive Time\\, Live\r\n" +
	"X-GRIMNIR-SOURCE:http://studio.example/drive\r\n" +
	"X-GRIMNIR-HOST:Kai\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:special\r\n" +
	"DTSTART:20261024T200000Z\r\n" +
	"DTEND:20261024T230000Z\r\n" +
	"SUMMARY:Election night coverage with a very long title that gets fol\r\n" +
	" ded\r\n" +
	"LOCATION:http://studio.example/special\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestReadICal(t *testing.T) {
	fixed, recurring, err := ReadICal(strings.NewReader(sampleCalendar))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(fixed) != 1 || len(recurring) != 1 {
		t.Fatalf("expected 1 fixed and 1 recurring, got %d and %d", len(fixed), len(recurring))
	}

	special := fixed[0]
	if special.ID != "special" || special.Source != "http://studio.example/special" {
		t.Fatalf("unexpected entry %+v", special)
	}
	if !strings.HasSuffix(special.Title, "folded") {
		t.Fatalf("folded line not joined: %q", special.Title)
	}
	if got := special.End.Sub(special.Start); got != 3*time.Hour {
		t.Fatalf("expected 3h window, got %s", got)
	}

	drive := recurring[0]
	if drive.ID != "drive" || drive.Host != "Kai" || drive.Title != "Drive Time, Live" {
		t.Fatalf("unexpected recurrence %+v", drive)
	}
	if drive.Duration != 2*time.Hour || drive.RRule != "FREQ=WEEKLY;BYDAY=MO,WE" {
		t.Fatalf("unexpected recurrence timing %+v", drive)
	}
	if drive.DTStart.UTC().Hour() != 15 {
		t.Fatalf("expected TZID to be honoured, got %s", drive.DTStart.UTC())
	}

	from := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	entries, err := drive.Expand(from, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected Monday and Wednesday occurrences, got %d", len(entries))
	}
}

func TestReadICalRejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name  string
		event string
	}{
		{"no source", "UID:x\r\nDTSTART:20261019T100000Z\r\n"},
		{"no start", "UID:x\r\nLOCATION:http://a\r\n"},
		{"bad time", "UID:x\r\nDTSTART:tomorrow\r\nLOCATION:http://a\r\n"},
		{"recurring without length", "UID:x\r\nDTSTART:20261019T100000Z\r\nRRULE:FREQ=DAILY\r\nLOCATION:http://a\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\n" + tt.event + "END:VEVENT\r\nEND:VCALENDAR\r\n"
			_, _, err := ReadICal(strings.NewReader(cal))
			if !errors.Is(err, ErrInvalidEntry) {
				t.Fatalf("expected ErrInvalidEntry, got %v", err)
			}
		})
	}
}

func TestWriteICal(t *testing.T) {
	start := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
	entries := []LiveEntry{
		{ID: "evening", Source: "http://studio.example/evening", Title: "Evening; Jazz", Host: "Ana", Start: start, End: start.Add(time.Hour), Delay: time.Minute},
		{ID: "marathon", Source: "http://studio.example/marathon", Start: start.Add(24 * time.Hour)},
	}

	var buf bytes.Buffer
	if err := WriteICal(&buf, "Main Street", entries, start); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"X-WR-CALNAME:Main Street\r\n",
		"UID:evening@grimnir\r\n",
		"DTSTART:20261019T200100Z\r\n",
		"DTEND:20261019T210000Z\r\n",
		"SUMMARY:Evening\\; Jazz\r\n",
		"X-GRIMNIR-HOST:Ana\r\n",
		"SUMMARY:marathon\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("calendar missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "DTEND:") != 1 {
		t.Fatalf("open-ended entry must not carry DTEND:\n%s", out)
	}

	fixed, _, err := ReadICal(&buf)
	if err != nil || len(fixed) != 2 || fixed[1].ID != "marathon" || !fixed[1].OpenEnded() {
		t.Fatalf("calendar does not read back: %v %+v", err, fixed)
	}
}
