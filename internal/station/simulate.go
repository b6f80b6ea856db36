/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package station

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/config"
	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/output"
	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

// SimOptions tunes a simulation run.
type SimOptions struct {
	Start    time.Time
	Duration time.Duration
	// Seed fixes Random and Shuffle orderings. Zero picks a random seed.
	Seed uint64
	// Unreachable live sources fail as soon as they are put on air.
	Unreachable []string
	Logger      zerolog.Logger
}

// SimStep is one decision that changed what is on air.
type SimStep struct {
	At      time.Time
	Action  playout.Action
	Trigger playout.Trigger
	State   playout.State
	Item    *playout.PlaybackItem
	Err     error
}

// Simulate fast-forwards a station over tracks with a manual clock, jumping
// straight from one decision point to the next.
func Simulate(ctx context.Context, st *config.Station, tracks []catalog.Track, opts SimOptions) ([]SimStep, error) {
	if opts.Duration <= 0 {
		return nil, errors.New("simulation needs a positive duration")
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().Truncate(time.Minute)
	}
	var rng *rand.Rand
	if opts.Seed != 0 {
		rng = rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	}

	clock := playout.NewManualClock(opts.Start)
	engine, err := playout.NewEngine(playout.Config{
		StationID:         st.ID,
		Strategy:          st.StrategyKind(),
		RequireRecorded:   st.RequireRecorded,
		PrefetchLookahead: st.Prefetch,
		SkipCooldown:      st.SkipCooldown,
		TickInterval:      time.Second,
		PrimeNext:         st.ShouldPrime(),
		Rand:              rng,
	}, catalog.NewStore(), schedule.NewStore(), output.NewDrySink(false, opts.Logger), events.NewBus(), clock, opts.Logger)
	if err != nil {
		return nil, err
	}
	defer engine.Shutdown()

	if _, err := engine.ReloadCatalog(ctx, tracks); err != nil {
		return nil, err
	}
	entries, err := st.Entries(opts.Start)
	if err != nil {
		return nil, fmt.Errorf("expand live schedule: %w", err)
	}
	if _, err := engine.ReloadSchedule(ctx, entries); err != nil {
		return nil, err
	}

	unreachable := make(map[string]struct{}, len(opts.Unreachable))
	for _, src := range opts.Unreachable {
		unreachable[src] = struct{}{}
	}

	var steps []SimStep
	var record func(d playout.Decision, err error)
	record = func(d playout.Decision, err error) {
		if d.Action != playout.ActionCommit && d.Action != playout.ActionStarve {
			return
		}
		steps = append(steps, SimStep{At: clock.Now(), Action: d.Action, Trigger: d.Trigger, State: d.To, Item: d.Item, Err: err})
		if d.Action != playout.ActionCommit || d.Item.Kind != playout.ItemLive {
			return
		}
		if _, down := unreachable[d.Item.Locator()]; down {
			record(engine.Report(ctx, playout.SinkEvent{
				ItemID:  d.Item.ID,
				Outcome: playout.OutcomeFailed,
				Err:     fmt.Errorf("source %s unreachable", d.Item.Locator()),
			}))
		}
	}

	record(engine.Start(ctx))

	end := opts.Start.Add(opts.Duration)
	for now := clock.Now(); now.Before(end); now = clock.Now() {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		next := end
		if at := engine.Status().NextDecisionAt; at != nil && at.Before(end) {
			next = *at
		}
		if !next.After(now) {
			next = now.Add(time.Second)
		}
		clock.Set(next)

		record(engine.Tick(ctx))
	}
	return steps, nil
}
