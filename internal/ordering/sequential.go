/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ordering

import "github.com/friendsincode/grimnir_playout/internal/catalog"

// Chronologic plays tracks oldest first and wraps to the start.
type Chronologic struct {
	cursor int // last index returned, -1 before the first call
	gen    generation
}

// NewChronologic returns a Chronologic strategy positioned before the first track.
func NewChronologic() *Chronologic {
	return &Chronologic{cursor: -1}
}

func (s *Chronologic) Kind() Kind { return KindChronologic }

func (s *Chronologic) Next(cat *catalog.Catalog) (catalog.Track, error) {
	if s.gen.stale(cat) {
		s.cursor = -1
	}
	n := cat.Len()
	if n == 0 {
		return catalog.Track{}, catalog.ErrEmptyCatalog
	}
	s.cursor = (s.cursor + 1) % n
	return cat.TrackAt(s.cursor), nil
}

func (s *Chronologic) Reset() {
	s.cursor = -1
	s.gen.reset()
}

// Cursor returns the last index returned, or -1.
func (s *Chronologic) Cursor() int { return s.cursor }

// Reverse plays tracks newest first and wraps to the end.
type Reverse struct {
	cursor int // last index returned, -1 before the first call
	gen    generation
}

// NewReverse returns a Reverse strategy positioned after the last track.
func NewReverse() *Reverse {
	return &Reverse{cursor: -1}
}

func (s *Reverse) Kind() Kind { return KindReverse }

func (s *Reverse) Next(cat *catalog.Catalog) (catalog.Track, error) {
	if s.gen.stale(cat) {
		s.cursor = -1
	}
	n := cat.Len()
	if n == 0 {
		return catalog.Track{}, catalog.ErrEmptyCatalog
	}
	if s.cursor <= 0 || s.cursor >= n {
		s.cursor = n - 1
	} else {
		s.cursor--
	}
	return cat.TrackAt(s.cursor), nil
}

func (s *Reverse) Reset() {
	s.cursor = -1
	s.gen.reset()
}

// Cursor returns the last index returned, or -1.
func (s *Reverse) Cursor() int { return s.cursor }
