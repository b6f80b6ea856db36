/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/ordering"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeSink struct {
	mu        sync.Mutex
	played    []PlaybackItem
	preloaded []PlaybackItem
	stops     int
}

func (s *fakeSink) Play(item PlaybackItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, item)
}

func (s *fakeSink) Preload(item PlaybackItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preloaded = append(s.preloaded, item)
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSink) sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.played))
	for _, item := range s.played {
		out = append(out, item.SourceID())
	}
	return out
}

type harness struct {
	engine *Engine
	clock  *ManualClock
	sink   *fakeSink
	bus    *events.Bus
}

func track(id string, d time.Duration, age int) catalog.Track {
	return catalog.Track{
		ID:         id,
		Path:       "/music/" + id + ".mp3",
		Duration:   d,
		ModifiedAt: t0.Add(-time.Duration(100-age) * time.Hour),
	}
}

func newHarness(t *testing.T, cfg Config, tracks []catalog.Track, entries []schedule.LiveEntry) *harness {
	t.Helper()

	catalogs := catalog.NewStore()
	cat, err := catalog.Load(tracks, false)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	catalogs.Swap(cat)

	schedules := schedule.NewStore()
	if _, err := schedules.Replace(entries); err != nil {
		t.Fatalf("load schedule: %v", err)
	}

	if cfg.StationID == "" {
		cfg.StationID = "test"
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(1, 2))
	}

	h := &harness{clock: NewManualClock(t0), sink: &fakeSink{}, bus: events.NewBus()}
	h.engine, err = NewEngine(cfg, catalogs, schedules, h.sink, h.bus, h.clock, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return h
}

func (h *harness) tickAt(t *testing.T, offset time.Duration) Decision {
	t.Helper()
	h.clock.Set(t0.Add(offset))
	d, err := h.engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick at %s: %v", offset, err)
	}
	return d
}

func mustStart(t *testing.T, h *harness) Decision {
	t.Helper()
	d, err := h.engine.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return d
}

func expectCommit(t *testing.T, d Decision, source string, reason Reason) {
	t.Helper()
	if d.Action != ActionCommit {
		t.Fatalf("expected commit of %s, got action %s", source, d.Action)
	}
	if got := d.Item.SourceID(); got != source {
		t.Fatalf("expected %s on air, got %s", source, got)
	}
	if d.Item.Reason != reason {
		t.Fatalf("expected reason %s for %s, got %s", reason, source, d.Item.Reason)
	}
}

func TestChronologicAlternatesTracks(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
	}, nil)

	expectCommit(t, mustStart(t, h), "A", ReasonOrdering)
	expectCommit(t, h.tickAt(t, 100*time.Millisecond), "B", ReasonOrdering)
	expectCommit(t, h.tickAt(t, 200*time.Millisecond), "A", ReasonOrdering)

	want := []string{"A", "B", "A"}
	got := h.sink.sources()
	if len(got) != len(want) {
		t.Fatalf("played %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("played %v, want %v", got, want)
		}
	}
}

func TestTickBeforeBoundaryDoesNothing(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Second, 1)}, nil)
	mustStart(t, h)

	d := h.tickAt(t, 500*time.Millisecond)
	if d.Action != ActionNone {
		t.Fatalf("expected no action mid-track, got %s", d.Action)
	}
	if len(h.sink.played) != 1 {
		t.Fatalf("expected one play call, got %d", len(h.sink.played))
	}
}

func TestLivePreemptsAndResumesNextTrack(t *testing.T) {
	live := schedule.LiveEntry{
		ID:     "L",
		Source: "http://live.example/stream",
		Start:  t0.Add(50 * time.Millisecond),
		End:    t0.Add(150 * time.Millisecond),
	}
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
	}, []schedule.LiveEntry{live})
	preempts := h.bus.Subscribe(events.EventLivePreempt)

	expectCommit(t, mustStart(t, h), "A", ReasonOrdering)

	d := h.tickAt(t, 50*time.Millisecond)
	expectCommit(t, d, "L", ReasonPreemption)
	if d.From != StatePlayingRecorded || d.To != StatePlayingLive {
		t.Fatalf("expected recorded -> live, got %s -> %s", d.From, d.To)
	}
	select {
	case p := <-preempts:
		if p["entry_id"] != "L" {
			t.Fatalf("unexpected preempt payload %v", p)
		}
	default:
		t.Fatal("expected a preempt event")
	}

	if d := h.tickAt(t, 100*time.Millisecond); d.Action != ActionNone {
		t.Fatalf("expected live to stay on air, got %s", d.Action)
	}

	d = h.tickAt(t, 150*time.Millisecond)
	expectCommit(t, d, "B", ReasonResume)
	if d.To != StatePlayingRecorded {
		t.Fatalf("expected playing recorded after live, got %s", d.To)
	}
}

func TestEmptyCatalogStarvesUntilReload(t *testing.T) {
	h := newHarness(t, Config{}, nil, nil)
	starved := h.bus.Subscribe(events.EventStarved)

	d, err := h.engine.Start(context.Background())
	if !errors.Is(err, ErrDecisionStarvation) || !errors.Is(err, catalog.ErrEmptyCatalog) {
		t.Fatalf("expected starvation caused by the empty catalog, got %v", err)
	}
	if d.To != StateStarved {
		t.Fatalf("expected starved, got %s", d.To)
	}
	select {
	case <-starved:
	default:
		t.Fatal("expected a starved event")
	}

	// No automatic retry while starved.
	if d := h.tickAt(t, time.Second); d.Action != ActionNone {
		t.Fatalf("expected starved tick to do nothing, got %s", d.Action)
	}

	d, err = h.engine.ReloadCatalog(context.Background(), []catalog.Track{track("A", time.Minute, 1)})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	expectCommit(t, d, "A", ReasonRecovery)
	if st := h.engine.Status(); st.State != StatePlayingRecorded || st.LastError != "" {
		t.Fatalf("expected recovered status, got %+v", st)
	}
}

func TestRejectedCatalogReloadKeepsPrevious(t *testing.T) {
	h := newHarness(t, Config{RequireRecorded: true}, []catalog.Track{track("A", time.Minute, 1)}, nil)
	mustStart(t, h)

	_, err := h.engine.ReloadCatalog(context.Background(), nil)
	if !errors.Is(err, catalog.ErrEmptyCatalog) {
		t.Fatalf("expected empty catalog error, got %v", err)
	}
	if st := h.engine.Status(); st.CatalogSize != 1 || st.State != StatePlayingRecorded {
		t.Fatalf("expected previous catalog retained, got %+v", st)
	}
}

func TestPrefetchStagesAndCommitsSameItem(t *testing.T) {
	h := newHarness(t, Config{PrefetchLookahead: 20 * time.Millisecond}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
	}, nil)
	mustStart(t, h)

	if d := h.tickAt(t, 70*time.Millisecond); d.Action != ActionNone {
		t.Fatalf("expected nothing before the prefetch window, got %s", d.Action)
	}

	d := h.tickAt(t, 85*time.Millisecond)
	if d.Action != ActionStage || d.Item.SourceID() != "B" {
		t.Fatalf("expected B staged, got %+v", d)
	}
	staged := *d.Item
	if len(h.sink.preloaded) != 1 || h.sink.preloaded[0].ID != staged.ID {
		t.Fatalf("expected sink to preload the staged item, got %v", h.sink.preloaded)
	}

	// Prefetch fires once per item.
	if d := h.tickAt(t, 90*time.Millisecond); d.Action != ActionNone {
		t.Fatalf("expected a single prefetch, got %s", d.Action)
	}

	d = h.tickAt(t, 100*time.Millisecond)
	expectCommit(t, d, "B", ReasonOrdering)
	if d.Item.ID != staged.ID {
		t.Fatalf("expected staged item %s to be committed, got %s", staged.ID, d.Item.ID)
	}
}

func TestPrefetchAnnouncesUpcomingLive(t *testing.T) {
	live := schedule.LiveEntry{
		ID:     "L",
		Source: "http://live.example/stream",
		Start:  t0.Add(90 * time.Millisecond),
		End:    t0.Add(200 * time.Millisecond),
	}
	h := newHarness(t, Config{PrefetchLookahead: 30 * time.Millisecond}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
	}, []schedule.LiveEntry{live})
	upcoming := h.bus.Subscribe(events.EventLiveUpcoming)
	mustStart(t, h)

	d := h.tickAt(t, 75*time.Millisecond)
	if d.Upcoming == nil || d.Upcoming.ID != "L" {
		t.Fatalf("expected L announced, got %+v", d)
	}
	select {
	case p := <-upcoming:
		if p["entry_id"] != "L" {
			t.Fatalf("unexpected payload %v", p)
		}
	default:
		t.Fatal("expected an upcoming event")
	}

	// Live cuts in at its start, before A ends.
	expectCommit(t, h.tickAt(t, 90*time.Millisecond), "L", ReasonPreemption)
	// The staged track resumes after the window.
	expectCommit(t, h.tickAt(t, 200*time.Millisecond), "B", ReasonResume)
}

func TestPrimeNextStagesSecondItem(t *testing.T) {
	h := newHarness(t, Config{PrimeNext: true}, []catalog.Track{
		track("A", time.Minute, 1),
		track("B", time.Minute, 2),
	}, nil)
	mustStart(t, h)

	st := h.engine.Status()
	if st.Current == nil || st.Current.SourceID() != "A" {
		t.Fatalf("expected A on air, got %+v", st.Current)
	}
	if st.Prefetched == nil || st.Prefetched.SourceID() != "B" {
		t.Fatalf("expected B primed, got %+v", st.Prefetched)
	}
}

func TestCatalogReloadDropsStagedItem(t *testing.T) {
	h := newHarness(t, Config{PrimeNext: true}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
	}, nil)
	mustStart(t, h)

	d, err := h.engine.ReloadCatalog(context.Background(), []catalog.Track{
		track("C", 100*time.Millisecond, 3),
		track("D", 100*time.Millisecond, 4),
	})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if d.Action != ActionNone {
		t.Fatalf("reload should not interrupt the current track, got %s", d.Action)
	}
	if st := h.engine.Status(); st.Prefetched != nil {
		t.Fatalf("expected staged item from old catalog dropped, got %+v", st.Prefetched)
	}

	expectCommit(t, h.tickAt(t, 100*time.Millisecond), "C", ReasonOrdering)
}

func TestLiveFailureFallsBackAndMarksEntry(t *testing.T) {
	live := schedule.LiveEntry{
		ID:     "L",
		Source: "http://live.example/stream",
		Start:  t0,
		End:    t0.Add(time.Hour),
	}
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Minute, 1)}, []schedule.LiveEntry{live})
	failed := h.bus.Subscribe(events.EventLiveFailed)

	d := mustStart(t, h)
	expectCommit(t, d, "L", ReasonPreemption)

	d, err := h.engine.Report(context.Background(), SinkEvent{
		ItemID:  d.Item.ID,
		Outcome: OutcomeFailed,
		Err:     errors.New("connection refused"),
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	expectCommit(t, d, "A", ReasonFallback)
	select {
	case <-failed:
	default:
		t.Fatal("expected a live failed event")
	}
	if !errors.Is(h.engine.lastErr, ErrSourceUnreachable) {
		t.Fatalf("expected source unreachable recorded, got %v", h.engine.lastErr)
	}
	var unreachable *SourceUnreachableError
	if !errors.As(h.engine.lastErr, &unreachable) || unreachable.EntryID != "L" {
		t.Fatalf("expected error naming entry L, got %v", h.engine.lastErr)
	}

	// The failed entry is not retried while its window is open.
	if d := h.tickAt(t, time.Second); d.Action != ActionNone {
		t.Fatalf("expected no re-attempt of failed live entry, got %s", d.Action)
	}
}

func TestLiveFailureWithEmptyCatalogStarves(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live.example/stream", Start: t0, End: t0.Add(time.Hour)}
	h := newHarness(t, Config{}, nil, []schedule.LiveEntry{live})

	d := mustStart(t, h)
	expectCommit(t, d, "L", ReasonPreemption)

	d, err := h.engine.Report(context.Background(), SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed})
	if !errors.Is(err, ErrDecisionStarvation) {
		t.Fatalf("expected starvation, got %v", err)
	}
	if d.To != StateStarved {
		t.Fatalf("expected starved, got %s", d.To)
	}
	if h.sink.stops != 1 {
		t.Fatalf("expected sink stopped once, got %d", h.sink.stops)
	}
}

func TestRecordedFailuresStarveAfterWholeCatalog(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", time.Minute, 1),
		track("B", time.Minute, 2),
	}, nil)
	d := mustStart(t, h)

	d, err := h.engine.Report(context.Background(), SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed})
	if err != nil {
		t.Fatalf("first failure: %v", err)
	}
	expectCommit(t, d, "B", ReasonFallback)

	_, err = h.engine.Report(context.Background(), SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed})
	if !errors.Is(err, ErrDecisionStarvation) {
		t.Fatalf("expected starvation after every track failed, got %v", err)
	}
}

func TestCompletionResetsFailureCount(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", time.Minute, 1),
		track("B", time.Minute, 2),
	}, nil)
	d := mustStart(t, h)

	d, _ = h.engine.Report(context.Background(), SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed})
	d, err := h.engine.Report(context.Background(), SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	expectCommit(t, d, "A", ReasonOrdering)

	d, err = h.engine.Report(context.Background(), SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed})
	if err != nil {
		t.Fatalf("expected a single failure after completion to fall back, got %v", err)
	}
	expectCommit(t, d, "B", ReasonFallback)
}

func TestStaleReportIgnored(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
	}, nil)
	first := mustStart(t, h)
	h.tickAt(t, 100*time.Millisecond)

	d, err := h.engine.Report(context.Background(), SinkEvent{ItemID: first.Item.ID, Outcome: OutcomeCompleted})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if d.Action != ActionNone {
		t.Fatalf("expected stale report ignored, got %s", d.Action)
	}
	if got := h.sink.sources(); len(got) != 2 {
		t.Fatalf("expected two plays, got %v", got)
	}
}

func TestSkipIsThrottled(t *testing.T) {
	h := newHarness(t, Config{SkipCooldown: time.Second}, []catalog.Track{
		track("A", time.Minute, 1),
		track("B", time.Minute, 2),
	}, nil)
	mustStart(t, h)

	d, err := h.engine.Skip(context.Background())
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	expectCommit(t, d, "B", ReasonSkip)

	if _, err := h.engine.Skip(context.Background()); !errors.Is(err, ErrSkipThrottled) {
		t.Fatalf("expected throttled skip, got %v", err)
	}

	h.clock.Advance(time.Second)
	d, err = h.engine.Skip(context.Background())
	if err != nil {
		t.Fatalf("skip after cooldown: %v", err)
	}
	expectCommit(t, d, "A", ReasonSkip)
}

func TestSkipLiveResumesRecorded(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live.example/stream", Start: t0}
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Minute, 1)}, []schedule.LiveEntry{live})
	expectCommit(t, mustStart(t, h), "L", ReasonPreemption)

	d, err := h.engine.Skip(context.Background())
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	expectCommit(t, d, "A", ReasonSkip)

	if d := h.tickAt(t, time.Second); d.Action != ActionNone {
		t.Fatalf("expected skipped live entry to stay dismissed, got %s", d.Action)
	}
}

func TestOpenEndedLiveRunsUntilStopped(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live.example/stream", Start: t0}
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Minute, 1)}, []schedule.LiveEntry{live})
	ended := h.bus.Subscribe(events.EventLiveEnded)
	expectCommit(t, mustStart(t, h), "L", ReasonPreemption)

	if d := h.tickAt(t, 6*time.Hour); d.Action != ActionNone {
		t.Fatalf("expected open-ended live to keep running, got %s", d.Action)
	}

	d, err := h.engine.StopLive(context.Background(), "L")
	if err != nil {
		t.Fatalf("stop live: %v", err)
	}
	expectCommit(t, d, "A", ReasonResume)
	select {
	case p := <-ended:
		if p["entry_id"] != "L" {
			t.Fatalf("unexpected payload %v", p)
		}
	default:
		t.Fatal("expected a live ended event")
	}

	if _, err := h.engine.StopLive(context.Background(), "missing"); !errors.Is(err, ErrUnknownLiveEntry) {
		t.Fatalf("expected unknown entry error, got %v", err)
	}
}

func TestSinkEndedEarlyDismissesLive(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live.example/stream", Start: t0, End: t0.Add(time.Hour)}
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Minute, 1)}, []schedule.LiveEntry{live})
	d := mustStart(t, h)

	d, err := h.engine.Report(context.Background(), SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeEndedEarly})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	expectCommit(t, d, "A", ReasonResume)
}

func TestTickCoalescedWhileDecisionInFlight(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Minute, 1)}, nil)
	mustStart(t, h)

	h.engine.mu.Lock()
	d, err := h.engine.Tick(context.Background())
	h.engine.mu.Unlock()

	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if d.Action != ActionCoalesced {
		t.Fatalf("expected coalesced tick, got %s", d.Action)
	}
	if len(h.sink.played) != 1 {
		t.Fatalf("coalesced tick must not commit, got %d plays", len(h.sink.played))
	}
}

func TestTickBeforeStart(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Minute, 1)}, nil)
	if _, err := h.engine.Tick(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
}

func TestShutdownStopsAndDiscardsPrefetch(t *testing.T) {
	h := newHarness(t, Config{PrimeNext: true}, []catalog.Track{
		track("A", time.Minute, 1),
		track("B", time.Minute, 2),
	}, nil)
	mustStart(t, h)

	h.engine.Shutdown()
	h.engine.Shutdown()

	st := h.engine.Status()
	if st.State != StateStopped {
		t.Fatalf("expected stopped, got %s", st.State)
	}
	if st.Current != nil || st.Prefetched != nil {
		t.Fatalf("expected session cleared, got %+v", st)
	}
	if h.sink.stops != 1 {
		t.Fatalf("expected one sink stop, got %d", h.sink.stops)
	}
	if _, err := h.engine.Tick(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected stopped tick, got %v", err)
	}
	if _, err := h.engine.Skip(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected stopped skip, got %v", err)
	}
}

func TestStopFlagPreventsCommit(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
	}, nil)
	mustStart(t, h)

	// Shutdown raises the flag before it can take the lock.
	h.engine.stopped.Store(true)
	if _, err := h.engine.Decide(context.Background(), t0.Add(100*time.Millisecond), TriggerTick); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected stopped, got %v", err)
	}
	if len(h.sink.played) != 1 {
		t.Fatalf("expected no commit after stop, got %d plays", len(h.sink.played))
	}
}

func TestSetStrategyStartsFresh(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
		track("C", 100*time.Millisecond, 3),
	}, nil)
	expectCommit(t, mustStart(t, h), "A", ReasonOrdering)

	if err := h.engine.SetStrategy(ordering.KindReverse); err != nil {
		t.Fatalf("set strategy: %v", err)
	}
	expectCommit(t, h.tickAt(t, 100*time.Millisecond), "C", ReasonOrdering)
	expectCommit(t, h.tickAt(t, 200*time.Millisecond), "B", ReasonOrdering)

	if err := h.engine.SetStrategy("alphabetical"); !errors.Is(err, ordering.ErrUnknownStrategy) {
		t.Fatalf("expected unknown strategy, got %v", err)
	}
	if st := h.engine.Status(); st.Strategy != ordering.KindReverse {
		t.Fatalf("expected reverse kept, got %s", st.Strategy)
	}
}

func TestRandomStrategyNeverRepeatsBackToBack(t *testing.T) {
	h := newHarness(t, Config{Strategy: ordering.KindRandom}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
		track("C", 100*time.Millisecond, 3),
	}, nil)
	mustStart(t, h)
	for i := 1; i <= 50; i++ {
		h.tickAt(t, time.Duration(i)*100*time.Millisecond)
	}

	played := h.sink.sources()
	if len(played) != 51 {
		t.Fatalf("expected 51 plays, got %d", len(played))
	}
	for i := 1; i < len(played); i++ {
		if played[i] == played[i-1] {
			t.Fatalf("track %s repeated at position %d", played[i], i)
		}
	}
}

func TestReloadScheduleConflictKeepsPrevious(t *testing.T) {
	existing := schedule.LiveEntry{ID: "morning", Source: "http://a", Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)}
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Minute, 1)}, []schedule.LiveEntry{existing})
	mustStart(t, h)

	_, err := h.engine.ReloadSchedule(context.Background(), []schedule.LiveEntry{
		{ID: "x", Source: "http://x", Start: t0.Add(time.Hour), End: t0.Add(3 * time.Hour)},
		{ID: "y", Source: "http://y", Start: t0.Add(2 * time.Hour), End: t0.Add(4 * time.Hour)},
	})
	if !errors.Is(err, schedule.ErrScheduleConflict) {
		t.Fatalf("expected schedule conflict, got %v", err)
	}
	var conflict *schedule.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error type, got %T", err)
	}
	st := h.engine.Status()
	if st.ScheduleEntries != 1 || st.UpcomingLive == nil || st.UpcomingLive.ID != "morning" {
		t.Fatalf("expected previous schedule retained, got %+v", st)
	}
}

func TestReloadScheduleActivatesLiveImmediately(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Hour, 1)}, nil)
	mustStart(t, h)
	h.clock.Set(t0.Add(10 * time.Minute))

	d, err := h.engine.ReloadSchedule(context.Background(), []schedule.LiveEntry{
		{ID: "news", Source: "http://news", Start: t0.Add(5 * time.Minute), End: t0.Add(20 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	expectCommit(t, d, "news", ReasonPreemption)
}

func TestLiveFromStarved(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live", Start: t0.Add(time.Minute), End: t0.Add(2 * time.Minute)}
	h := newHarness(t, Config{}, nil, []schedule.LiveEntry{live})

	if _, err := h.engine.Start(context.Background()); !errors.Is(err, ErrDecisionStarvation) {
		t.Fatalf("expected starvation, got %v", err)
	}
	d := h.tickAt(t, time.Minute)
	expectCommit(t, d, "L", ReasonPreemption)
	if d.From != StateStarved {
		t.Fatalf("expected transition out of starved, got %s", d.From)
	}

	// Nothing recorded to resume once the window closes.
	h.clock.Set(t0.Add(2 * time.Minute))
	if _, err := h.engine.Tick(context.Background()); !errors.Is(err, ErrDecisionStarvation) {
		t.Fatalf("expected starvation after live, got %v", err)
	}
}

func TestTrackFinishedOutcome(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", 100*time.Millisecond, 1),
		track("B", 100*time.Millisecond, 2),
	}, nil)
	finished := h.bus.Subscribe(events.EventTrackFinished)
	mustStart(t, h)

	h.tickAt(t, 100*time.Millisecond)
	if _, err := h.engine.Skip(context.Background()); err != nil {
		t.Fatalf("skip: %v", err)
	}

	for _, want := range []struct{ source, outcome string }{{"A", "completed"}, {"B", "skipped"}} {
		select {
		case p := <-finished:
			if p["source_id"] != want.source || p["outcome"] != want.outcome {
				t.Fatalf("expected %s %s, got %v", want.source, want.outcome, p)
			}
		default:
			t.Fatalf("expected finished event for %s", want.source)
		}
	}
}

func TestStatusNextDecisionAt(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live", Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)}
	h := newHarness(t, Config{PrefetchLookahead: 10 * time.Second}, []catalog.Track{
		track("A", time.Minute, 1),
	}, []schedule.LiveEntry{live})
	mustStart(t, h)
	h.clock.Set(t0.Add(20 * time.Second))

	st := h.engine.Status()
	if st.NextDecisionAt == nil || !st.NextDecisionAt.Equal(t0.Add(50*time.Second)) {
		t.Fatalf("expected next decision at prefetch window, got %v", st.NextDecisionAt)
	}
	if st.RemainingMS == nil || *st.RemainingMS != 40000 {
		t.Fatalf("expected 40s remaining, got %v", st.RemainingMS)
	}
	if st.ElapsedMS != 20000 {
		t.Fatalf("expected 20s elapsed, got %d", st.ElapsedMS)
	}
	if st.UpcomingLive == nil || st.UpcomingLive.ID != "L" {
		t.Fatalf("expected L upcoming, got %+v", st.UpcomingLive)
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		to    State
		valid bool
	}{
		{"idle to recorded", StateIdle, StatePlayingRecorded, true},
		{"idle to live", StateIdle, StatePlayingLive, true},
		{"idle to starved", StateIdle, StateStarved, true},
		{"recorded to recorded", StatePlayingRecorded, StatePlayingRecorded, true},
		{"recorded to live", StatePlayingRecorded, StatePlayingLive, true},
		{"recorded to idle invalid", StatePlayingRecorded, StateIdle, false},
		{"live to recorded", StatePlayingLive, StatePlayingRecorded, true},
		{"live to live", StatePlayingLive, StatePlayingLive, true},
		{"live to starved", StatePlayingLive, StateStarved, true},
		{"starved to recorded", StateStarved, StatePlayingRecorded, true},
		{"starved to live", StateStarved, StatePlayingLive, true},
		{"starved to idle invalid", StateStarved, StateIdle, false},
		{"stopped is terminal", StateStopped, StatePlayingRecorded, false},
		{"stopped to idle invalid", StateStopped, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidTransition(tt.from, tt.to); got != tt.valid {
				t.Errorf("isValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
			}
		})
	}
}

func TestFailureStarvationWaitsForCatalogReload(t *testing.T) {
	lib := []catalog.Track{track("A", time.Minute, 1), track("B", time.Minute, 2)}
	h := newHarness(t, Config{}, lib, nil)
	recovered := h.bus.Subscribe(events.EventRecovered)
	ctx := context.Background()

	d := mustStart(t, h)
	d, err := h.engine.Report(ctx, SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed})
	if err != nil {
		t.Fatalf("first failure: %v", err)
	}
	_, err = h.engine.Report(ctx, SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed})
	if !errors.Is(err, ErrDecisionStarvation) {
		t.Fatalf("expected starvation, got %v", err)
	}
	if errors.Is(err, catalog.ErrEmptyCatalog) {
		t.Fatalf("failure starvation reported as an empty catalog: %v", err)
	}

	// Schedule reloads, including the periodic refresh, are not a retry.
	for i := 0; i < 3; i++ {
		h.clock.Set(t0.Add(time.Duration(i+1) * time.Hour))
		d, err := h.engine.ReloadSchedule(ctx, nil)
		if err != nil {
			t.Fatalf("reload schedule: %v", err)
		}
		if d.Action != ActionNone || d.To != StateStarved {
			t.Fatalf("schedule reload left starved: %s -> %s", d.Action, d.To)
		}
	}
	if d := h.tickAt(t, 4*time.Hour); d.Action != ActionNone {
		t.Fatalf("expected starved tick to do nothing, got %s", d.Action)
	}
	if got := len(h.sink.sources()); got != 2 {
		t.Fatalf("expected no further play attempts, got %d", got)
	}
	if st := h.engine.Status(); st.State != StateStarved || st.LastError == "" {
		t.Fatalf("expected starved status with error, got %+v", st)
	}

	d, err = h.engine.ReloadCatalog(ctx, lib)
	if err != nil {
		t.Fatalf("reload catalog: %v", err)
	}
	expectCommit(t, d, "A", ReasonRecovery)
	select {
	case <-recovered:
	default:
		t.Fatal("expected a recovered event")
	}

	// The failure count starts over after recovery.
	d, err = h.engine.Report(ctx, SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed})
	if err != nil {
		t.Fatalf("expected a single failure after recovery to fall back, got %v", err)
	}
	expectCommit(t, d, "B", ReasonFallback)
}

func TestLiveFromFailureStarvationReturnsToStarved(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live", Start: t0.Add(time.Minute), End: t0.Add(2 * time.Minute)}
	lib := []catalog.Track{track("A", time.Hour, 1)}
	h := newHarness(t, Config{}, lib, []schedule.LiveEntry{live})
	recovered := h.bus.Subscribe(events.EventRecovered)
	ctx := context.Background()

	d := mustStart(t, h)
	if _, err := h.engine.Report(ctx, SinkEvent{ItemID: d.Item.ID, Outcome: OutcomeFailed}); !errors.Is(err, ErrDecisionStarvation) {
		t.Fatalf("expected starvation, got %v", err)
	}

	d = h.tickAt(t, time.Minute)
	expectCommit(t, d, "L", ReasonPreemption)
	if d.From != StateStarved {
		t.Fatalf("expected live out of starved, got %s", d.From)
	}
	select {
	case <-recovered:
		t.Fatal("live preemption is not a recovery")
	default:
	}

	h.clock.Set(t0.Add(2 * time.Minute))
	d, err := h.engine.Tick(ctx)
	if !errors.Is(err, ErrDecisionStarvation) || d.To != StateStarved {
		t.Fatalf("expected return to starved after live, got %s (%v)", d.To, err)
	}
	want := []string{"A", "L"}
	if got := h.sink.sources(); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("played %v, want %v", got, want)
	}

	d, err = h.engine.ReloadCatalog(ctx, lib)
	if err != nil {
		t.Fatalf("reload catalog: %v", err)
	}
	expectCommit(t, d, "A", ReasonRecovery)
}

func TestCatalogReloadDuringLiveClearsStarvation(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live", Start: t0.Add(time.Minute), End: t0.Add(2 * time.Minute)}
	h := newHarness(t, Config{}, nil, []schedule.LiveEntry{live})
	ctx := context.Background()

	if _, err := h.engine.Start(ctx); !errors.Is(err, ErrDecisionStarvation) {
		t.Fatalf("expected starvation, got %v", err)
	}
	expectCommit(t, h.tickAt(t, time.Minute), "L", ReasonPreemption)

	h.clock.Set(t0.Add(90 * time.Second))
	d, err := h.engine.ReloadCatalog(ctx, []catalog.Track{track("A", time.Minute, 1)})
	if err != nil {
		t.Fatalf("reload catalog: %v", err)
	}
	if d.Action != ActionNone {
		t.Fatalf("live must stay on air, got %s", d.Action)
	}
	expectCommit(t, h.tickAt(t, 2*time.Minute), "A", ReasonResume)
	if st := h.engine.Status(); st.LastError != "" {
		t.Fatalf("expected starvation cleared, got %q", st.LastError)
	}
}

func TestScheduleReloadExtendsLiveOnAir(t *testing.T) {
	live := schedule.LiveEntry{ID: "L", Source: "http://live", Start: t0.Add(time.Minute), End: t0.Add(2 * time.Minute)}
	h := newHarness(t, Config{}, []catalog.Track{track("A", time.Hour, 1)}, []schedule.LiveEntry{live})
	ctx := context.Background()

	mustStart(t, h)
	d := h.tickAt(t, time.Minute)
	expectCommit(t, d, "L", ReasonPreemption)
	onAir := d.Item.ID

	live.End = t0.Add(3 * time.Minute)
	d, err := h.engine.ReloadSchedule(ctx, []schedule.LiveEntry{live})
	if err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if d.Action != ActionNone {
		t.Fatalf("expected live to stay on air, got %s", d.Action)
	}
	st := h.engine.Status()
	if st.Current == nil || st.Current.ID != onAir {
		t.Fatalf("expected the same live item on air, got %+v", st.Current)
	}
	if st.RemainingMS == nil || *st.RemainingMS != (2*time.Minute).Milliseconds() {
		t.Fatalf("expected two minutes remaining, got %v", st.RemainingMS)
	}

	d = h.tickAt(t, 2*time.Minute)
	if d.Action != ActionNone || d.Trigger != TriggerTick {
		t.Fatalf("expected a quiet tick at the old end, got %s/%s", d.Action, d.Trigger)
	}
	expectCommit(t, h.tickAt(t, 3*time.Minute), "A", ReasonResume)
}

func TestStatusReportsCursorAndCatalogLoad(t *testing.T) {
	h := newHarness(t, Config{}, []catalog.Track{
		track("A", time.Minute, 1),
		track("B", time.Minute, 2),
	}, nil)
	mustStart(t, h)

	st := h.engine.Status()
	if st.StrategyCursor == nil || *st.StrategyCursor != 0 {
		t.Fatalf("expected cursor 0, got %v", st.StrategyCursor)
	}
	if st.CatalogLoadedAt == nil {
		t.Fatal("expected catalog load time")
	}

	if err := h.engine.SetStrategy(ordering.KindShuffle); err != nil {
		t.Fatalf("set strategy: %v", err)
	}
	if st := h.engine.Status(); st.StrategyCursor != nil {
		t.Fatalf("shuffle has no cursor, got %d", *st.StrategyCursor)
	}
}
