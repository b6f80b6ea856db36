/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
)

// scanJob is a unit of work sent to hash workers.
type scanJob struct {
	fullPath string
	relPath  string
	info     os.FileInfo
	rootDir  string
}

// scanResult is the result of processing a single file.
type scanResult struct {
	entry catalog.ManifestEntry
	err   error
}

// scanner walks directories and produces a manifest.
type scanner struct {
	dirs       []string
	workers    int
	ffprobeBin string
	warn       io.Writer

	warnMu sync.Mutex
}

func (s *scanner) warnf(format string, args ...any) {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	fmt.Fprintf(s.warn, "warning: "+format+"\n", args...)
}

func (s *scanner) scan(ctx context.Context) (*catalog.Manifest, error) {
	startTime := time.Now()

	manifest := &catalog.Manifest{
		Version:   1,
		ScannedAt: startTime.UTC(),
		RootDirs:  s.dirs,
	}

	jobs := make(chan scanJob, s.workers*2)
	results := make(chan scanResult, s.workers*2)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				entry, err := s.processFile(ctx, job)
				results <- scanResult{entry: entry, err: err}
			}
		}()
	}

	// Collect results in a separate goroutine
	var entries []catalog.ManifestEntry
	var skipped int
	var errCount int
	var collectDone sync.WaitGroup
	collectDone.Add(1)
	go func() {
		defer collectDone.Done()
		for r := range results {
			if r.err != nil {
				s.warnf("%v", r.err)
				errCount++
				continue
			}
			if r.entry.DurationSeconds <= 0 {
				skipped++
			}
			entries = append(entries, r.entry)
		}
	}()

	// errCount belongs to the collector goroutine.
	var walkErrors int
	for _, dir := range s.dirs {
		// Expand globs
		matches, err := filepath.Glob(dir)
		if err != nil {
			s.warnf("invalid glob %q: %v", dir, err)
			walkErrors++
			continue
		}
		if len(matches) == 0 {
			matches = []string{dir}
		}

		for _, matchDir := range matches {
			err := filepath.Walk(matchDir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					s.warnf("%s: %v", path, err)
					walkErrors++
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if info.IsDir() {
					return nil
				}
				if !isMediaFile(info.Name()) {
					return nil
				}
				jobs <- scanJob{
					fullPath: path,
					info:     info,
					rootDir:  matchDir,
				}
				return nil
			})
			if err != nil && err != context.Canceled {
				s.warnf("walk %s: %v", matchDir, err)
			}
		}
	}

	close(jobs)
	wg.Wait()
	close(results)
	collectDone.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stable output keeps manifests diffable between scans.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	manifest.Files = entries
	manifest.Stats = catalog.ManifestStats{
		TotalFiles:      len(entries),
		Skipped:         skipped,
		Errors:          errCount + walkErrors,
		DurationSeconds: time.Since(startTime).Seconds(),
	}

	return manifest, nil
}

func (s *scanner) processFile(ctx context.Context, job scanJob) (catalog.ManifestEntry, error) {
	// Compute relative path from root dir
	relPath, err := filepath.Rel(job.rootDir, job.fullPath)
	if err != nil {
		relPath = filepath.Base(job.fullPath)
	}

	hash, err := computeFileHash(job.fullPath)
	if err != nil {
		return catalog.ManifestEntry{}, fmt.Errorf("%s: hash: %w", job.fullPath, err)
	}

	entry := catalog.ManifestEntry{
		Path:         job.fullPath,
		RelativePath: relPath,
		Filename:     filepath.Base(job.fullPath),
		Size:         job.info.Size(),
		ModifiedAt:   job.info.ModTime().UTC(),
		ContentHash:  hash,
	}

	meta, err := probeMetadata(ctx, s.ffprobeBin, job.fullPath)
	if err != nil {
		s.warnf("%s: %v", job.fullPath, err)
		return entry, nil
	}
	entry.Title = meta.Title
	entry.DurationSeconds = meta.DurationSeconds

	return entry, nil
}

// computeFileHash computes the SHA-256 hash of a file.
func computeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// probedMetadata holds the tags playout uses.
type probedMetadata struct {
	Title           string
	Artist          string
	DurationSeconds float64
}

// probeMetadata uses ffprobe to extract tags and duration from an audio file.
func probeMetadata(ctx context.Context, bin, filePath string) (*probedMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string            `json:"duration"`
			Tags     map[string]string `json:"tags"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	meta := &probedMetadata{}

	if probe.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.DurationSeconds = secs
		}
	}

	for k, v := range probe.Format.Tags {
		switch strings.ToLower(k) {
		case "title":
			meta.Title = v
		case "artist":
			meta.Artist = v
		}
	}
	if meta.Artist != "" && meta.Title != "" {
		meta.Title = meta.Artist + " - " + meta.Title
	}

	return meta, nil
}

func isMediaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".audio", ".mp3", ".flac", ".ogg", ".m4a", ".aac", ".wav", ".wma", ".opus":
		return true
	default:
		return false
	}
}
