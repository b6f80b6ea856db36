/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBufferWrapsAround(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg, Level: "info"})
	}
	all := b.GetAll()
	if len(all) != 3 || all[0].Message != "b" || all[2].Message != "d" {
		t.Fatalf("unexpected entries %+v", all)
	}
	if s := b.Stats(); s.Count != 3 || s.LevelCount["info"] != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
	b.Clear()
	if len(b.GetAll()) != 0 {
		t.Fatal("expected empty buffer after clear")
	}
}

func TestWriterCapturesZerolog(t *testing.T) {
	b := New(10)
	logger := zerolog.New(NewWriter(b, nil)).With().Timestamp().Logger()

	logger.Info().Str("component", "engine").Str("station_id", "main").Msg("now playing Intro")
	logger.Warn().Str("component", "output").Str("station_id", "other").Msg("live source failed")
	logger.Debug().Str("component", "engine").Str("station_id", "main").Msg("tick")

	tests := []struct {
		name   string
		params QueryParams
		want   []string
	}{
		{"all", QueryParams{}, []string{"now playing Intro", "live source failed", "tick"}},
		{"level", QueryParams{Level: "warn"}, []string{"live source failed"}},
		{"component", QueryParams{Component: "engine"}, []string{"now playing Intro", "tick"}},
		{"station", QueryParams{StationID: "other"}, []string{"live source failed"}},
		{"search", QueryParams{Search: "INTRO"}, []string{"now playing Intro"}},
		{"descending limit", QueryParams{Descending: true, Limit: 2}, []string{"tick", "live source failed"}},
		{"since", QueryParams{Since: time.Now().Add(time.Hour)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Query(tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d entries, got %+v", len(tt.want), got)
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Fatalf("entry %d: expected %q, got %q", i, tt.want[i], got[i].Message)
				}
			}
		})
	}

	if _, ok := b.GetAll()[0].Fields["level"]; ok {
		t.Fatal("standard fields should not be copied into Fields")
	}
}
