/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_playout/internal/server"
	"github.com/friendsincode/grimnir_playout/internal/station"
)

var (
	simDuration    time.Duration
	simStart       string
	simSeed        uint64
	simUnreachable []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Print the decisions the engine would make",
	Long: `Run the decision engine against the station library and live schedule on a
simulated clock and print every change of what is on air.

Examples:
  # The next 24 hours from now
  playoutd simulate

  # A fixed week with a reproducible shuffle
  playoutd simulate --start 2026-10-19T00:00:00Z --duration 168h --seed 42

  # What happens when the studio feed is down
  playoutd simulate --unreachable http://studio.example/live
`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 24*time.Hour, "Simulated span")
	simulateCmd.Flags().StringVar(&simStart, "start", "", "Start time in RFC 3339 (default now)")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "Seed for random and shuffle orderings (0 = random)")
	simulateCmd.Flags().StringSliceVar(&simUnreachable, "unreachable", nil, "Live sources that fail when put on air")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	st, err := loadStation()
	if err != nil {
		return err
	}

	start := time.Now().Truncate(time.Minute)
	if simStart != "" {
		if start, err = time.Parse(time.RFC3339, simStart); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}

	ctx := cmd.Context()
	src, err := server.CatalogSource(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	tracks, err := src.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read library: %w", err)
	}

	steps, err := station.Simulate(ctx, st, tracks, station.SimOptions{
		Start:       start,
		Duration:    simDuration,
		Seed:        simSeed,
		Unreachable: simUnreachable,
		Logger:      logger.Level(zerolog.WarnLevel),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tSTATE\tTRIGGER\tREASON\tITEM")
	for _, s := range steps {
		reason, item := "-", "-"
		if s.Item != nil {
			reason, item = string(s.Item.Reason), s.Item.Title()
		} else if s.Err != nil {
			item = s.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.At.Local().Format(time.DateTime), s.State, s.Trigger, reason, item)
	}
	return w.Flush()
}
