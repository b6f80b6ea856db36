/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package output

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

type captureReporter struct {
	events chan playout.SinkEvent
}

func newCaptureReporter() *captureReporter {
	return &captureReporter{events: make(chan playout.SinkEvent, 8)}
}

func (r *captureReporter) Report(_ context.Context, ev playout.SinkEvent) (playout.Decision, error) {
	r.events <- ev
	return playout.Decision{}, nil
}

func (r *captureReporter) next(t *testing.T) playout.SinkEvent {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sink event")
	}
	return playout.SinkEvent{}
}

func recordedItem(id, path string) playout.PlaybackItem {
	return playout.PlaybackItem{
		ID:    id,
		Kind:  playout.ItemRecorded,
		Track: &catalog.Track{ID: path, Path: path, Duration: time.Second},
	}
}

func liveItem(id, source string) playout.PlaybackItem {
	return playout.PlaybackItem{
		ID:   id,
		Kind: playout.ItemLive,
		Live: &schedule.LiveEntry{ID: "show", Source: source, Start: time.Now()},
	}
}

func TestDrySinkReportsMissingFile(t *testing.T) {
	reporter := newCaptureReporter()
	sink := NewDrySink(true, zerolog.Nop())
	sink.Attach(reporter)

	sink.Play(recordedItem("item-1", filepath.Join(t.TempDir(), "missing.mp3")))

	ev := reporter.next(t)
	if ev.ItemID != "item-1" || ev.Outcome != playout.OutcomeFailed || ev.Err == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestDrySinkAcceptsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	reporter := newCaptureReporter()
	sink := NewDrySink(true, zerolog.Nop())
	sink.Attach(reporter)

	sink.Play(recordedItem("item-1", path))

	select {
	case ev := <-reporter.events:
		t.Fatalf("expected no report, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if h := sink.History(); len(h) != 1 || h[0].ID != "item-1" {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestDrySinkUnreachableLive(t *testing.T) {
	reporter := newCaptureReporter()
	sink := NewDrySink(false, zerolog.Nop())
	sink.Attach(reporter)
	sink.MarkUnreachable("http://down.example/live")

	sink.Play(liveItem("live-1", "http://down.example/live"))

	if ev := reporter.next(t); ev.Outcome != playout.OutcomeFailed {
		t.Fatalf("expected failure, got %+v", ev)
	}
}

func startSink(t *testing.T, bin string) (*PipelineSink, *captureReporter) {
	t.Helper()
	reporter := newCaptureReporter()
	sink := NewPipelineSink(GStreamerConfig{Bin: bin, SinkElement: "fakesink", StopGrace: 100 * time.Millisecond}, zerolog.Nop())
	sink.Attach(reporter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sink.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sink, reporter
}

func TestPipelineSinkReportsCompletion(t *testing.T) {
	sink, reporter := startSink(t, "true")
	sink.Play(liveItem("item-1", "http://radio.example/stream"))

	ev := reporter.next(t)
	if ev.ItemID != "item-1" || ev.Outcome != playout.OutcomeEndedEarly {
		t.Fatalf("expected live item to end early, got %+v", ev)
	}
}

func TestPipelineSinkRecordedCompletes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink, reporter := startSink(t, "true")
	sink.Play(recordedItem("item-1", path))

	if ev := reporter.next(t); ev.Outcome != playout.OutcomeCompleted {
		t.Fatalf("expected completion, got %+v", ev)
	}
}

func TestPipelineSinkReportsFailure(t *testing.T) {
	sink, reporter := startSink(t, "false")
	sink.Play(liveItem("item-1", "http://radio.example/stream"))

	ev := reporter.next(t)
	if ev.Outcome != playout.OutcomeFailed || ev.Err == nil {
		t.Fatalf("expected failure, got %+v", ev)
	}
}

func TestPipelineSinkMissingFileFailsWithoutLaunching(t *testing.T) {
	sink, reporter := startSink(t, "true")
	sink.Play(recordedItem("item-1", filepath.Join(t.TempDir(), "gone.mp3")))

	ev := reporter.next(t)
	if ev.Outcome != playout.OutcomeFailed || !os.IsNotExist(ev.Err) {
		t.Fatalf("expected not-exist failure, got %+v", ev)
	}
}

func TestPipelineSinkReplacedItemIsNotReported(t *testing.T) {
	sink, reporter := startSink(t, "sleep 5;")
	sink.Play(liveItem("item-1", "http://radio.example/a"))
	sink.Stop()

	select {
	case ev := <-reporter.events:
		t.Fatalf("expected no report for a stopped item, got %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestLaunchFor(t *testing.T) {
	sink := NewPipelineSink(GStreamerConfig{SinkElement: "fakesink"}, zerolog.Nop())
	launch, err := sink.launchFor(liveItem("x", "http://radio.example/it's"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(launch, `uri='http://radio.example/it'\''s'`) {
		t.Fatalf("expected quoted uri, got %s", launch)
	}
	if !strings.HasSuffix(launch, "! fakesink") {
		t.Fatalf("expected sink element, got %s", launch)
	}
}
