/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/ordering"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// Sink is the audio output. Calls are hand-offs made while the engine holds
// its decision lock, so implementations must return immediately and report
// outcomes later through Engine.Report.
type Sink interface {
	Play(item PlaybackItem)
	Preload(item PlaybackItem)
	Stop()
}

// Outcome is how an item left the air, as seen by the sink.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeEndedEarly Outcome = "ended_early"
)

// SinkEvent is reported by the sink about the item on air.
type SinkEvent struct {
	ItemID  string
	Outcome Outcome
	Err     error
}

// Trigger is what caused a decision cycle.
type Trigger string

const (
	TriggerStart      Trigger = "start"
	TriggerTick       Trigger = "tick"
	TriggerPrefetch   Trigger = "prefetch"
	TriggerComplete   Trigger = "complete"
	TriggerSkip       Trigger = "skip"
	TriggerFailure    Trigger = "failure"
	TriggerEndedEarly Trigger = "ended_early"
	TriggerReload     Trigger = "reload"
)

// Action is what a decision cycle did.
type Action string

const (
	ActionNone      Action = "none"
	ActionCommit    Action = "commit"
	ActionStage     Action = "stage"
	ActionStarve    Action = "starve"
	ActionCoalesced Action = "coalesced"
)

// Decision is the result of one decision cycle.
type Decision struct {
	Action   Action              `json:"action"`
	Trigger  Trigger             `json:"trigger"`
	From     State               `json:"from"`
	To       State               `json:"to"`
	Item     *PlaybackItem       `json:"item,omitempty"`
	Upcoming *schedule.LiveEntry `json:"upcoming,omitempty"`
}

// Config tunes an engine.
type Config struct {
	StationID         string
	Strategy          ordering.Kind
	RequireRecorded   bool
	PrefetchLookahead time.Duration
	SkipCooldown      time.Duration
	TickInterval      time.Duration
	// PrimeNext stages the second item as soon as the first is committed.
	PrimeNext bool
	// Rand seeds the random strategies. Nil means randomly seeded.
	Rand *rand.Rand
}

// Engine decides what plays next. It merges live schedule preemption with
// the ordering strategy and keeps the session one item ahead of the output.
// Only one decision is in flight at a time.
type Engine struct {
	cfg       Config
	catalogs  *catalog.Store
	schedules *schedule.Store
	sink      Sink
	bus       *events.Bus
	clock     Clock
	logger    zerolog.Logger

	stopped atomic.Bool

	mu               sync.Mutex
	state            State
	strategy         ordering.Strategy
	catalogGen       uint64
	session          *Session
	failedLive       map[string]struct{}
	dismissedLive    map[string]struct{}
	recordedFailures int
	lastErr          error
	// awaitingReload is set by starvation and cleared when a recorded item
	// is committed from a catalog newer than starvedGen.
	awaitingReload bool
	starvedGen     uint64
	starveCause    error
	skipLimiter      *rate.Limiter
}

// NewEngine creates an idle engine. Nil stores start empty, a nil clock
// reads the system time.
func NewEngine(cfg Config, catalogs *catalog.Store, schedules *schedule.Store, sink Sink, bus *events.Bus, clock Clock, logger zerolog.Logger) (*Engine, error) {
	if sink == nil {
		return nil, errors.New("playout: sink is required")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = ordering.KindChronologic
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	strategy, err := ordering.New(cfg.Strategy, cfg.Rand)
	if err != nil {
		return nil, err
	}
	if catalogs == nil {
		catalogs = catalog.NewStore()
	}
	if schedules == nil {
		schedules = schedule.NewStore()
	}
	if clock == nil {
		clock = RealClock{}
	}

	limit := rate.Inf
	if cfg.SkipCooldown > 0 {
		limit = rate.Every(cfg.SkipCooldown)
	}

	e := &Engine{
		cfg:           cfg,
		catalogs:      catalogs,
		schedules:     schedules,
		sink:          sink,
		bus:           bus,
		clock:         clock,
		logger:        logger.With().Str("component", "playout").Str("station_id", cfg.StationID).Logger(),
		state:         StateIdle,
		strategy:      strategy,
		catalogGen:    catalogs.Current().Generation(),
		session:       NewSession(cfg.PrefetchLookahead),
		failedLive:    make(map[string]struct{}),
		dismissedLive: make(map[string]struct{}),
		skipLimiter:   rate.NewLimiter(limit, 1),
	}
	e.observeState()
	return e, nil
}

// Start commits the first item. Calling it again is a no-op.
func (e *Engine) Start(ctx context.Context) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped.Load() {
		return e.none(TriggerStart), ErrStopped
	}
	if e.state != StateIdle {
		return e.none(TriggerStart), nil
	}
	now := e.clock.Now()
	d, err := e.decideLocked(ctx, now, TriggerStart)
	if err != nil || d.Action != ActionCommit || !e.cfg.PrimeNext {
		return d, err
	}
	if _, err := e.prefetch(now, TriggerStart, e.catalogs.Current(), e.schedules.Current()); err != nil {
		e.logger.Warn().Err(err).Msg("priming next item failed")
	}
	return d, nil
}

// Tick polls the session and runs a decision cycle if one is due. A tick
// that arrives while another decision is being resolved is coalesced.
func (e *Engine) Tick(ctx context.Context) (Decision, error) {
	if !e.mu.TryLock() {
		telemetry.PlayoutTicksCoalesced.WithLabelValues(e.cfg.StationID).Inc()
		e.logger.Debug().Msg("tick coalesced")
		return Decision{Action: ActionCoalesced, Trigger: TriggerTick}, nil
	}
	defer e.mu.Unlock()

	if e.state == StateIdle {
		return e.none(TriggerTick), ErrNotStarted
	}
	return e.decideLocked(ctx, e.clock.Now(), TriggerTick)
}

// Decide runs one decision cycle at now. TriggerTick derives the trigger
// from the session; other triggers are applied as given. It performs no
// I/O and never waits on the sink.
func (e *Engine) Decide(ctx context.Context, now time.Time, trigger Trigger) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decideLocked(ctx, now, trigger)
}

// Skip replaces the item on air. Requests inside the cooldown are rejected.
func (e *Engine) Skip(ctx context.Context) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped.Load() {
		return e.none(TriggerSkip), ErrStopped
	}
	cur, ok := e.session.Current()
	if !ok {
		return e.none(TriggerSkip), ErrNothingPlaying
	}
	now := e.clock.Now()
	if !e.skipLimiter.AllowN(now, 1) {
		telemetry.PlayoutSkips.WithLabelValues(e.cfg.StationID, "throttled").Inc()
		return e.none(TriggerSkip), ErrSkipThrottled
	}
	if cur.Kind == ItemLive {
		e.dismissedLive[cur.Live.ID] = struct{}{}
	}
	e.session.ForceSkip()
	telemetry.PlayoutSkips.WithLabelValues(e.cfg.StationID, "accepted").Inc()
	e.publish(events.EventSkip, events.Payload{
		"item_id":   cur.ID,
		"source_id": cur.SourceID(),
		"kind":      string(cur.Kind),
	})
	return e.decideLocked(ctx, now, TriggerTick)
}

// Report applies a sink event. Events for items no longer on air are
// ignored.
func (e *Engine) Report(ctx context.Context, ev SinkEvent) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.session.Current()
	if !ok || cur.ID != ev.ItemID {
		e.logger.Debug().Str("item_id", ev.ItemID).Str("outcome", string(ev.Outcome)).Msg("ignoring report for stale item")
		return e.none(TriggerTick), nil
	}
	now := e.clock.Now()

	switch ev.Outcome {
	case OutcomeCompleted:
		return e.decideLocked(ctx, now, TriggerComplete)
	case OutcomeEndedEarly:
		if cur.Kind == ItemLive {
			e.dismissedLive[cur.Live.ID] = struct{}{}
		}
		return e.decideLocked(ctx, now, TriggerEndedEarly)
	case OutcomeFailed:
		if cur.Kind == ItemLive {
			return e.liveFailed(ctx, now, cur, ev.Err)
		}
		return e.recordedFailed(ctx, now, cur, ev.Err)
	}
	return e.none(TriggerTick), fmt.Errorf("playout: unknown outcome %q", ev.Outcome)
}

func (e *Engine) liveFailed(ctx context.Context, now time.Time, cur PlaybackItem, cause error) (Decision, error) {
	failure := &SourceUnreachableError{EntryID: cur.Live.ID, Source: cur.Live.Source, Err: cause}
	e.failedLive[cur.Live.ID] = struct{}{}
	e.lastErr = failure
	telemetry.PlayoutLiveFailures.WithLabelValues(e.cfg.StationID).Inc()
	e.logger.Warn().Err(failure).Msg("live source unreachable, falling back to recorded")
	e.publish(events.EventLiveFailed, events.Payload{
		"item_id":  cur.ID,
		"entry_id": cur.Live.ID,
		"source":   cur.Live.Source,
		"error":    failure.Error(),
	})
	return e.decideLocked(ctx, now, TriggerFailure)
}

func (e *Engine) recordedFailed(ctx context.Context, now time.Time, cur PlaybackItem, cause error) (Decision, error) {
	e.recordedFailures++
	telemetry.PlayoutRecordedFailures.WithLabelValues(e.cfg.StationID).Inc()
	e.logger.Warn().Err(cause).Str("track_id", cur.SourceID()).Int("consecutive", e.recordedFailures).Msg("recorded item failed to start")

	cat := e.catalogs.Current()
	if e.recordedFailures >= max(cat.Len(), 1) {
		if _, live := e.activeLive(e.schedules.Current(), now); !live {
			return e.starve(now, TriggerFailure, fmt.Errorf("%d consecutive recorded failures", e.recordedFailures))
		}
	}
	return e.decideLocked(ctx, now, TriggerFailure)
}

// ReloadCatalog swaps in a new catalog snapshot. A rejected snapshot leaves
// the current catalog in place.
func (e *Engine) ReloadCatalog(ctx context.Context, snapshot []catalog.Track) (Decision, error) {
	cat, err := catalog.Load(snapshot, e.cfg.RequireRecorded)
	if err != nil {
		telemetry.CatalogReloads.WithLabelValues(e.cfg.StationID, "rejected").Inc()
		e.logger.Warn().Err(err).Msg("catalog reload rejected, keeping previous catalog")
		e.publish(events.EventCatalogRejected, events.Payload{"error": err.Error()})
		return e.none(TriggerReload), fmt.Errorf("reload catalog: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped.Load() {
		return e.none(TriggerReload), ErrStopped
	}
	gen := e.catalogs.Swap(cat)
	telemetry.CatalogReloads.WithLabelValues(e.cfg.StationID, "accepted").Inc()
	telemetry.CatalogTracks.WithLabelValues(e.cfg.StationID).Set(float64(cat.Len()))
	e.logger.Info().Uint64("generation", gen).Int("tracks", cat.Len()).Msg("catalog reloaded")
	e.publish(events.EventCatalogReloaded, events.Payload{
		"generation": gen,
		"tracks":     cat.Len(),
	})

	if e.state == StateIdle {
		return e.none(TriggerReload), nil
	}
	return e.decideLocked(ctx, e.clock.Now(), TriggerReload)
}

// ReloadSchedule swaps in new live entries. Overlapping entries are
// rejected with a *schedule.ConflictError and the current schedule is kept.
func (e *Engine) ReloadSchedule(ctx context.Context, entries []schedule.LiveEntry) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped.Load() {
		return e.none(TriggerReload), ErrStopped
	}
	sched, err := e.schedules.Replace(entries)
	if err != nil {
		telemetry.ScheduleReloads.WithLabelValues(e.cfg.StationID, "rejected").Inc()
		e.logger.Warn().Err(err).Msg("schedule reload rejected, keeping previous schedule")
		e.publish(events.EventScheduleRejected, events.Payload{"error": err.Error()})
		return e.none(TriggerReload), fmt.Errorf("reload schedule: %w", err)
	}
	telemetry.ScheduleReloads.WithLabelValues(e.cfg.StationID, "accepted").Inc()
	telemetry.ScheduleEntries.WithLabelValues(e.cfg.StationID).Set(float64(sched.Len()))
	e.logger.Info().Int("entries", sched.Len()).Msg("schedule reloaded")
	e.publish(events.EventScheduleReloaded, events.Payload{"entries": sched.Len()})

	if cur, ok := e.session.Current(); ok && cur.Kind == ItemLive {
		if entry, found := sched.Get(cur.Live.ID); found && e.session.UpdateLive(entry) {
			e.logger.Debug().Str("entry_id", entry.ID).Msg("on-air live entry revised")
		}
	}

	if e.state == StateIdle {
		return e.none(TriggerReload), nil
	}
	return e.decideLocked(ctx, e.clock.Now(), TriggerReload)
}

// SetStrategy switches the ordering strategy. The new strategy starts from
// its initial state and any staged recorded item is discarded.
func (e *Engine) SetStrategy(kind ordering.Kind) error {
	strategy, err := ordering.New(kind, e.cfg.Rand)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped.Load() {
		return ErrStopped
	}
	prev := e.strategy.Kind()
	e.strategy = strategy
	if staged, ok := e.session.Prefetched(); ok && staged.Kind == ItemRecorded {
		e.session.DiscardPrefetch()
	}
	e.logger.Info().Str("from", string(prev)).Str("to", string(kind)).Msg("ordering strategy changed")
	e.publish(events.EventStrategyChanged, events.Payload{
		"from": string(prev),
		"to":   string(kind),
	})
	return nil
}

// StopLive ends a live entry early. An entry that is not on air yet is
// dismissed and will not preempt.
func (e *Engine) StopLive(ctx context.Context, entryID string) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped.Load() {
		return e.none(TriggerEndedEarly), ErrStopped
	}
	cur, playing := e.session.Current()
	onAir := playing && cur.Kind == ItemLive && cur.Live.ID == entryID
	if _, known := e.schedules.Current().Get(entryID); !known && !onAir {
		return e.none(TriggerEndedEarly), fmt.Errorf("%w: %s", ErrUnknownLiveEntry, entryID)
	}
	e.dismissedLive[entryID] = struct{}{}
	e.logger.Info().Str("entry_id", entryID).Bool("on_air", onAir).Msg("live entry stopped")
	if !onAir || e.state == StateIdle {
		return e.none(TriggerEndedEarly), nil
	}
	return e.decideLocked(ctx, e.clock.Now(), TriggerEndedEarly)
}

// Shutdown stops playout. It is honoured by a decision already in flight,
// which will not commit.
func (e *Engine) Shutdown() {
	if e.stopped.Swap(true) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.state
	if cur, ok := e.session.Current(); ok {
		e.publishFinished(cur, e.clock.Now(), "stopped")
	}
	e.session.DiscardPrefetch()
	e.session.Clear()
	e.sink.Stop()
	e.setState(StateStopped)
	e.logger.Info().Str("from", string(from)).Msg("playout stopped")
	e.publish(events.EventStateChange, events.Payload{
		"from": string(from),
		"to":   string(StateStopped),
	})
}

// Run starts the engine and drives it from a ticker until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Dur("tick", e.cfg.TickInterval).Msg("playout engine started")
	if _, err := e.Start(ctx); err != nil && !errors.Is(err, ErrDecisionStarvation) {
		return err
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Shutdown()
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Tick(ctx); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				e.logger.Error().Err(err).Msg("playout tick failed")
			}
		}
	}
}

func (e *Engine) decideLocked(ctx context.Context, now time.Time, trigger Trigger) (Decision, error) {
	if e.stopped.Load() {
		return e.none(trigger), ErrStopped
	}
	if trigger == TriggerTick {
		trigger = triggerFor(e.session.Poll(now))
	}
	if err := ctx.Err(); err != nil {
		return e.none(trigger), err
	}

	_, span := telemetry.StartDecisionSpan(ctx, e.cfg.StationID, string(trigger))
	defer span.End()
	started := time.Now()
	defer func() {
		telemetry.PlayoutDecisionDuration.WithLabelValues(e.cfg.StationID).Observe(time.Since(started).Seconds())
	}()

	cat := e.syncCatalog()
	sched := e.schedules.Current()
	e.pruneLiveMarks(sched, now)

	// Live always preempts.
	if entry, ok := e.activeLive(sched, now); ok && !e.onAir(entry.ID) {
		return e.commit(now, trigger, newLiveItem(entry, now, ReasonPreemption))
	}

	switch e.state {
	case StateIdle:
		if trigger != TriggerStart {
			return e.none(trigger), ErrNotStarted
		}
		return e.nextRecorded(now, trigger, cat, ReasonOrdering)

	case StateStarved:
		// Recorded playback resumes only once a newer non-empty catalog is in place.
		if !e.recoverable(cat) {
			return e.none(trigger), nil
		}
		return e.nextRecorded(now, trigger, cat, ReasonRecovery)

	case StatePlayingLive:
		cur, _ := e.session.Current()
		if entry, ok := e.activeLive(sched, now); ok && cur.Live != nil && entry.ID == cur.Live.ID {
			if trigger == TriggerPrefetch && e.recoverable(cat) {
				return e.prefetch(now, trigger, cat, sched)
			}
			return e.none(trigger), nil
		}
		if !e.recoverable(cat) {
			return e.starve(now, trigger, e.starveCause)
		}
		reason := ReasonResume
		switch trigger {
		case TriggerFailure:
			reason = ReasonFallback
		case TriggerSkip:
			reason = ReasonSkip
		}
		return e.nextRecorded(now, trigger, cat, reason)

	case StatePlayingRecorded:
		switch trigger {
		case TriggerPrefetch:
			return e.prefetch(now, trigger, cat, sched)
		case TriggerComplete, TriggerEndedEarly:
			return e.nextRecorded(now, trigger, cat, ReasonOrdering)
		case TriggerSkip:
			return e.nextRecorded(now, trigger, cat, ReasonSkip)
		case TriggerFailure:
			return e.nextRecorded(now, trigger, cat, ReasonFallback)
		}
	}
	return e.none(trigger), nil
}

// nextRecorded commits the staged item or asks the strategy for one.
func (e *Engine) nextRecorded(now time.Time, trigger Trigger, cat *catalog.Catalog, reason Reason) (Decision, error) {
	if staged, ok := e.session.TakePrefetched(); ok && staged.Kind == ItemRecorded {
		staged.Reason = reason
		return e.commit(now, trigger, staged)
	}
	track, err := e.strategy.Next(cat)
	if err != nil {
		return e.starve(now, trigger, err)
	}
	return e.commit(now, trigger, newRecordedItem(track, cat.Generation(), now, reason))
}

// prefetch stages the next recorded item and announces a live entry that
// will start before the staged item is needed.
func (e *Engine) prefetch(now time.Time, trigger Trigger, cat *catalog.Catalog, sched *schedule.Schedule) (Decision, error) {
	d := e.none(trigger)

	window := e.cfg.PrefetchLookahead
	if remaining, bounded := e.session.Remaining(now); bounded && remaining > window {
		window = remaining
	}
	if entry, ok := sched.UpcomingWithin(now, window); ok && !e.excluded(entry.ID) {
		d.Upcoming = &entry
		e.logger.Info().Str("entry_id", entry.ID).Time("starts_at", entry.EffectiveStart()).Msg("live entry upcoming")
		e.publish(events.EventLiveUpcoming, events.Payload{
			"entry_id":  entry.ID,
			"title":     entry.Title,
			"host":      entry.Host,
			"starts_at": entry.EffectiveStart(),
		})
	}

	if _, staged := e.session.Prefetched(); staged {
		return d, nil
	}
	track, err := e.strategy.Next(cat)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyCatalog) {
			e.logger.Warn().Msg("nothing to prefetch, catalog is empty")
			return d, nil
		}
		return d, err
	}

	item := newRecordedItem(track, cat.Generation(), now, ReasonOrdering)
	e.session.Stage(item)
	e.sink.Preload(item)
	e.logger.Debug().Str("item_id", item.ID).Str("track_id", track.ID).Msg("next item staged")
	e.publish(events.EventPrefetch, itemPayload(item))

	d.Action = ActionStage
	d.Item = &item
	return d, nil
}

func (e *Engine) commit(now time.Time, trigger Trigger, item PlaybackItem) (Decision, error) {
	to := StatePlayingRecorded
	if item.Kind == ItemLive {
		to = StatePlayingLive
	}
	from := e.state
	if !isValidTransition(from, to) {
		return e.none(trigger), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	// Shutdown may have arrived while this decision was being resolved.
	if e.stopped.Load() {
		return e.none(trigger), ErrStopped
	}

	prev, hadPrev := e.session.Current()
	e.session.Begin(item, now)
	e.setState(to)
	e.sink.Play(item)

	if trigger == TriggerComplete && prev.Kind == ItemRecorded {
		e.recordedFailures = 0
	}
	if hadPrev {
		e.publishFinished(prev, now, finishOutcome(trigger, item))
		if prev.Kind == ItemLive {
			e.publish(events.EventLiveEnded, events.Payload{"entry_id": prev.Live.ID, "item_id": prev.ID})
		}
	}
	if item.Reason == ReasonPreemption {
		telemetry.PlayoutPreemptions.WithLabelValues(e.cfg.StationID).Inc()
		e.publish(events.EventLivePreempt, events.Payload{
			"entry_id":       item.Live.ID,
			"preempted":      prev.ID,
			"preempted_kind": string(prev.Kind),
		})
	}
	if item.Kind == ItemRecorded && e.awaitingReload {
		e.awaitingReload = false
		e.starveCause = nil
		e.recordedFailures = 0
		e.lastErr = nil
		e.publish(events.EventRecovered, events.Payload{"item_id": item.ID})
	}
	if from != to {
		e.publish(events.EventStateChange, events.Payload{"from": string(from), "to": string(to)})
	}
	e.publish(events.EventNowPlaying, itemPayload(item))
	telemetry.PlayoutDecisions.WithLabelValues(e.cfg.StationID, string(item.Reason)).Inc()

	e.logger.Info().
		Str("item_id", item.ID).
		Str("kind", string(item.Kind)).
		Str("source_id", item.SourceID()).
		Str("reason", string(item.Reason)).
		Str("trigger", string(trigger)).
		Str("state", string(to)).
		Msg("now playing")

	return Decision{Action: ActionCommit, Trigger: trigger, From: from, To: to, Item: &item}, nil
}

func (e *Engine) starve(now time.Time, trigger Trigger, cause error) (Decision, error) {
	from := e.state
	if cur, ok := e.session.Current(); ok {
		e.publishFinished(cur, now, finishOutcome(trigger, PlaybackItem{}))
	}
	e.session.DiscardPrefetch()
	e.session.Clear()
	e.sink.Stop()
	e.setState(StateStarved)
	e.awaitingReload = true
	e.starvedGen = e.catalogs.Current().Generation()
	e.starveCause = cause
	e.lastErr = fmt.Errorf("%w: %w", ErrDecisionStarvation, cause)

	telemetry.PlayoutStarvation.WithLabelValues(e.cfg.StationID).Inc()
	e.logger.Error().Err(e.lastErr).Str("from", string(from)).Msg("playout starved, waiting for reload")
	e.publish(events.EventStarved, events.Payload{"from": string(from), "error": e.lastErr.Error()})
	if from != StateStarved {
		e.publish(events.EventStateChange, events.Payload{"from": string(from), "to": string(StateStarved)})
	}
	return Decision{Action: ActionStarve, Trigger: trigger, From: from, To: StateStarved}, e.lastErr
}

// syncCatalog notices a catalog swap. A staged recorded item from an older
// snapshot is dropped; strategies reset themselves on the new generation.
func (e *Engine) syncCatalog() *catalog.Catalog {
	cat := e.catalogs.Current()
	if cat.Generation() == e.catalogGen {
		return cat
	}
	e.catalogGen = cat.Generation()
	e.recordedFailures = 0
	if staged, ok := e.session.Prefetched(); ok && staged.Kind == ItemRecorded && staged.generation != cat.Generation() {
		e.session.DiscardPrefetch()
	}
	return cat
}

// recoverable reports whether recorded playback may be chosen. After
// starvation that takes a non-empty catalog from a later reload.
func (e *Engine) recoverable(cat *catalog.Catalog) bool {
	if !e.awaitingReload {
		return true
	}
	return !cat.IsEmpty() && cat.Generation() > e.starvedGen
}

func (e *Engine) activeLive(sched *schedule.Schedule, now time.Time) (schedule.LiveEntry, bool) {
	entry, ok := sched.ActiveEntry(now)
	if !ok || e.excluded(entry.ID) {
		return schedule.LiveEntry{}, false
	}
	return entry, true
}

func (e *Engine) excluded(entryID string) bool {
	if _, failed := e.failedLive[entryID]; failed {
		return true
	}
	_, dismissed := e.dismissedLive[entryID]
	return dismissed
}

func (e *Engine) onAir(entryID string) bool {
	cur, ok := e.session.Current()
	return ok && e.state == StatePlayingLive && cur.Live != nil && cur.Live.ID == entryID
}

// pruneLiveMarks forgets failed and dismissed entries once their window has
// closed or they left the schedule.
func (e *Engine) pruneLiveMarks(sched *schedule.Schedule, now time.Time) {
	for _, marks := range []map[string]struct{}{e.failedLive, e.dismissedLive} {
		for id := range marks {
			entry, ok := sched.Get(id)
			if !ok {
				delete(marks, id)
				continue
			}
			if end, bounded := entry.EffectiveEnd(); bounded && !now.Before(end) {
				delete(marks, id)
			}
		}
	}
}

func (e *Engine) setState(s State) {
	e.state = s
	e.observeState()
}

func (e *Engine) observeState() {
	for _, s := range States() {
		v := 0.0
		if s == e.state {
			v = 1
		}
		telemetry.PlayoutState.WithLabelValues(e.cfg.StationID, string(s)).Set(v)
	}
}

func (e *Engine) none(trigger Trigger) Decision {
	return Decision{Action: ActionNone, Trigger: trigger, From: e.state, To: e.state}
}

func (e *Engine) publish(t events.EventType, payload events.Payload) {
	payload["station_id"] = e.cfg.StationID
	e.bus.Publish(t, payload)
}

func (e *Engine) publishFinished(item PlaybackItem, now time.Time, outcome string) {
	payload := itemPayload(item)
	payload["ended_at"] = now
	payload["outcome"] = outcome
	e.publish(events.EventTrackFinished, payload)
}

func itemPayload(item PlaybackItem) events.Payload {
	payload := events.Payload{
		"item_id":    item.ID,
		"kind":       string(item.Kind),
		"source_id":  item.SourceID(),
		"locator":    item.Locator(),
		"title":      item.Title(),
		"reason":     string(item.Reason),
		"decided_at": item.DecidedAt,
	}
	if item.Track != nil {
		payload["duration_ms"] = item.Track.Duration.Milliseconds()
	}
	if item.Live != nil && item.Live.Host != "" {
		payload["host"] = item.Live.Host
	}
	return payload
}

func triggerFor(sig Signal) Trigger {
	switch sig {
	case SignalPrefetch:
		return TriggerPrefetch
	case SignalComplete:
		return TriggerComplete
	case SignalSkip:
		return TriggerSkip
	}
	return TriggerTick
}

func finishOutcome(trigger Trigger, next PlaybackItem) string {
	switch {
	case next.Reason == ReasonPreemption:
		return "preempted"
	case trigger == TriggerSkip:
		return "skipped"
	case trigger == TriggerFailure:
		return "failed"
	case trigger == TriggerEndedEarly:
		return "ended_early"
	case trigger == TriggerReload:
		return "interrupted"
	}
	return "completed"
}
