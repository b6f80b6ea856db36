/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_playout/internal/config"
	"github.com/friendsincode/grimnir_playout/internal/logbuffer"
	"github.com/friendsincode/grimnir_playout/internal/logging"
	"github.com/friendsincode/grimnir_playout/internal/server"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
	"github.com/friendsincode/grimnir_playout/internal/version"
)

var (
	logger      zerolog.Logger
	cfg         *config.Config
	stationFile string
)

var rootCmd = &cobra.Command{
	Use:   "playoutd",
	Short: "Grimnir Playout - radio playout decision engine",
	Long:  "Grimnir Playout decides what a station airs next: recorded tracks in a configurable order, preempted by scheduled live shows.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the playout engine and control API",
	RunE:  runServe,
}

var checkRelease bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "playoutd %s\n", version.Version)
		if !checkRelease {
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		info, err := version.NewWatcher(version.WatcherConfig{}, nil, zerolog.Nop()).Check(ctx)
		if err != nil {
			return fmt.Errorf("release check: %w", err)
		}
		if info.UpdateAvailable {
			fmt.Fprintf(out, "newer release %s available: %s\n", info.LatestVersion, info.ReleaseURL)
		} else {
			fmt.Fprintln(out, "up to date")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stationFile, "station", "", "Station definition file (overrides GRIMNIR_STATION_FILE)")
	versionCmd.Flags().BoolVar(&checkRelease, "check", false, "Also query the release feed for a newer version")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if stationFile != "" {
		cfg.StationFile = stationFile
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func loadStation() (*config.Station, error) {
	st, err := config.LoadStation(cfg.StationFile)
	if err != nil {
		return nil, fmt.Errorf("load station: %w", err)
	}
	return st, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logBuf := logbuffer.New(5000)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))

	st, err := loadStation()
	if err != nil {
		return err
	}

	logger.Info().Str("station", st.ID).Str("version", version.Version).Msg("Grimnir Playout starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "grimnir-playout",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, st, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Grimnir Playout stopped")
	return nil
}
