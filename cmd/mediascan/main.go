/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
)

var (
	dirs       []string
	outputFile string
	workers    int
	ffprobeBin string
)

var rootCmd = &cobra.Command{
	Use:   "mediascan",
	Short: "Scan media directories and produce a library manifest",
	Long: `mediascan walks media directories, hashes each audio file, and probes its
duration and title with ffprobe. The manifest it writes is the library a
station file points at; playoutd re-reads it on every catalog reload.

Files whose duration cannot be probed are listed but skipped by playout.

Examples:
  mediascan --dir /srv/music -o /etc/playout/library.json
  mediascan --dir '/srv/stations/*/media' --workers 8 -o library.json`,
	RunE: runScan,
}

func init() {
	rootCmd.Flags().StringArrayVar(&dirs, "dir", nil, "Media directory to scan (required, repeatable, globs allowed)")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "library.json", "Manifest file to write")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 4, "Parallel hash and probe workers")
	rootCmd.Flags().StringVar(&ffprobeBin, "ffprobe", "ffprobe", "ffprobe binary used to read durations")
	_ = rootCmd.MarkFlagRequired("dir")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s := &scanner{
		dirs:       dirs,
		workers:    workers,
		ffprobeBin: ffprobeBin,
		warn:       cmd.ErrOrStderr(),
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Scanning %d director(y/ies) with %d workers...\n", len(dirs), workers)

	manifest, err := s.scan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Scan complete: %d files, %d without duration, %d errors, %.1fs\n",
		manifest.Stats.TotalFiles, manifest.Stats.Skipped, manifest.Stats.Errors, manifest.Stats.DurationSeconds)

	if err := catalog.WriteManifest(outputFile, manifest); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Manifest written to %s\n", outputFile)
	return nil
}
