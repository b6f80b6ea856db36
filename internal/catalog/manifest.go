/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Source produces a metadata snapshot for Load.
type Source interface {
	Snapshot(ctx context.Context) ([]Track, error)
}

// Manifest is the JSON document written by mediascan.
type Manifest struct {
	Version   int             `json:"version"`
	ScannedAt time.Time       `json:"scanned_at"`
	RootDirs  []string        `json:"root_dirs"`
	Files     []ManifestEntry `json:"files"`
	Stats     ManifestStats   `json:"stats"`
}

// ManifestEntry describes a single scanned audio file.
type ManifestEntry struct {
	Path            string    `json:"path"`
	RelativePath    string    `json:"relative_path"`
	Filename        string    `json:"filename"`
	Size            int64     `json:"size"`
	ModifiedAt      time.Time `json:"modified_at"`
	ContentHash     string    `json:"content_hash"`
	Title           string    `json:"title,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// ManifestStats holds aggregate scan statistics.
type ManifestStats struct {
	TotalFiles      int     `json:"total_files"`
	Skipped         int     `json:"skipped"`
	Errors          int     `json:"errors"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Tracks converts manifest entries into catalog tracks. Entries without a
// probed duration cannot be scheduled and are skipped.
func (m *Manifest) Tracks() []Track {
	out := make([]Track, 0, len(m.Files))
	for _, f := range m.Files {
		if f.DurationSeconds <= 0 {
			continue
		}
		out = append(out, Track{
			ID:         f.Path,
			Path:       f.Path,
			Title:      f.Title,
			Duration:   time.Duration(f.DurationSeconds * float64(time.Second)).Round(time.Millisecond),
			ModifiedAt: f.ModifiedAt,
		})
	}
	return out
}

// ManifestSource reads a mediascan manifest from disk on every snapshot.
type ManifestSource struct {
	Path string
}

// Snapshot implements Source.
func (s ManifestSource) Snapshot(ctx context.Context) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", s.Path, err)
	}
	return m.Tracks(), nil
}

// WriteManifest stores m as indented JSON at path.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, path)
}
