/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_playout/internal/db"
	"github.com/friendsincode/grimnir_playout/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently aired items",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of rows")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	st, err := loadStation()
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	rows, err := history.Recent(cmd.Context(), database, st.ID, historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tENDED\tKIND\tOUTCOME\tTITLE")
	for _, r := range rows {
		ended, outcome := "on air", "-"
		if r.EndedAt != nil {
			ended = r.EndedAt.Local().Format(time.TimeOnly)
			outcome = r.Outcome
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.StartedAt.Local().Format(time.DateTime), ended, r.Kind, outcome, r.Title)
	}
	return w.Flush()
}
