/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries the build version and an opt-in release watcher
// that announces newer releases on the station event bus.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/mod/semver"

	"github.com/friendsincode/grimnir_playout/internal/events"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/grimnir_playout/internal/version.Version=X.Y.Z
var Version = "0.3.0"

// DefaultReleaseURL is the release feed the watcher polls.
const DefaultReleaseURL = "https://api.github.com/repos/friendsincode/grimnir_playout/releases/latest"

// UpdateInfo is the outcome of the last successful check.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	CheckedAt       time.Time `json:"checked_at,omitempty"`
}

// WatcherConfig configures a Watcher. Zero values take defaults.
type WatcherConfig struct {
	StationID  string
	ReleaseURL string
	Period     time.Duration
	Client     *http.Client
}

// Watcher polls the release feed. Each release newer than the running
// build is published once as events.EventUpdateAvailable.
type Watcher struct {
	cfg    WatcherConfig
	bus    *events.Bus
	logger zerolog.Logger

	mu        sync.RWMutex
	info      UpdateInfo
	announced string
}

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

// NewWatcher creates a watcher. bus may be nil for one-off checks.
func NewWatcher(cfg WatcherConfig, bus *events.Bus, logger zerolog.Logger) *Watcher {
	if cfg.ReleaseURL == "" {
		cfg.ReleaseURL = DefaultReleaseURL
	}
	if cfg.Period <= 0 {
		cfg.Period = 6 * time.Hour
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Watcher{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "release-watcher").Logger(),
		info:   UpdateInfo{CurrentVersion: Version},
	}
}

// Run checks immediately and then every period until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Period)
	defer ticker.Stop()
	for {
		if _, err := w.Check(ctx); err != nil && ctx.Err() == nil {
			w.logger.Debug().Err(err).Msg("release check failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Info returns the result of the last successful check.
func (w *Watcher) Info() UpdateInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.info
}

// Check fetches the latest release and records it.
func (w *Watcher) Check(ctx context.Context) (UpdateInfo, error) {
	rel, err := w.fetch(ctx)
	if err != nil {
		return w.Info(), err
	}

	latest := canonical(rel.TagName)
	if latest == "" {
		return w.Info(), fmt.Errorf("release tag %q is not a version", rel.TagName)
	}
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   strings.TrimPrefix(latest, "v"),
		UpdateAvailable: semver.Compare(canonical(Version), latest) < 0,
		ReleaseURL:      rel.HTMLURL,
		Summary:         firstLine(rel.Body, 200),
		CheckedAt:       time.Now(),
	}

	w.mu.Lock()
	w.info = info
	announce := info.UpdateAvailable && w.announced != latest
	if announce {
		w.announced = latest
	}
	w.mu.Unlock()

	if announce {
		w.logger.Info().Str("current", Version).Str("latest", info.LatestVersion).Msg("newer release available")
		if w.bus != nil {
			w.bus.Publish(events.EventUpdateAvailable, events.Payload{
				"station_id": w.cfg.StationID,
				"current":    info.CurrentVersion,
				"latest":     info.LatestVersion,
				"url":        info.ReleaseURL,
				"summary":    info.Summary,
			})
		}
	}
	return info, nil
}

func (w *Watcher) fetch(ctx context.Context) (release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.ReleaseURL, nil)
	if err != nil {
		return release{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "grimnir-playout/"+Version)

	resp, err := w.cfg.Client.Do(req)
	if err != nil {
		return release{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return release{}, fmt.Errorf("release feed returned %s", resp.Status)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return release{}, fmt.Errorf("decode release: %w", err)
	}
	if rel.TagName == "" {
		return release{}, errors.New("release without tag")
	}
	return rel, nil
}

// canonical returns v as a semver string with a leading v, or "".
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

func firstLine(s string, maxLen int) string {
	line, _, _ := strings.Cut(s, "\n")
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		return line[:maxLen-3] + "..."
	}
	return line
}
