/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
	"github.com/friendsincode/grimnir_playout/internal/server"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the station definition and its library",
	Long: `Load the station definition, read one library snapshot and expand the
live schedule exactly as the engine would, then print a summary.

Exits non-zero when the catalog or the schedule would be rejected.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	st, err := loadStation()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	src, err := server.CatalogSource(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	snapshot, err := src.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read library: %w", err)
	}
	cat, err := catalog.Load(snapshot, st.RequireRecorded)
	if err != nil {
		return fmt.Errorf("catalog rejected: %w", err)
	}

	now := time.Now()
	entries, err := st.Entries(now)
	if err != nil {
		return fmt.Errorf("expand live schedule: %w", err)
	}
	sched, err := schedule.New(entries)
	if err != nil {
		return fmt.Errorf("schedule rejected: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "station:   %s (%s)\n", st.ID, st.Name)
	fmt.Fprintf(out, "strategy:  %s\n", st.StrategyKind())
	fmt.Fprintf(out, "tracks:    %d (%s total)\n", cat.Len(), cat.TotalDuration().Round(time.Second))
	fmt.Fprintf(out, "live:      %d entries within %s\n\n", sched.Len(), st.ScheduleHorizon)

	if sched.Len() == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND\tHOST\tSOURCE")
	for _, e := range sched.Entries() {
		end := "open"
		if at, ok := e.EffectiveEnd(); ok {
			end = at.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.EffectiveStart().Local().Format(time.DateTime), end, e.Host, e.Source)
	}
	return w.Flush()
}
