/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"path/filepath"
	"strings"
	"time"
)

// Track is a recorded item available for playout.
type Track struct {
	ID         string        `json:"id"`
	Path       string        `json:"path"`
	Title      string        `json:"title,omitempty"`
	Duration   time.Duration `json:"duration"`
	ModifiedAt time.Time     `json:"modified_at"`
}

// DisplayTitle returns the title, falling back to the file name without extension.
func (t Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
