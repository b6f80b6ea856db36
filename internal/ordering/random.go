/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ordering

import (
	"math/rand/v2"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
)

// Random picks a uniformly random track, never the previous one when the
// catalog holds more than one track.
type Random struct {
	rng  *rand.Rand
	prev int
	gen  generation
}

// NewRandom returns a Random strategy drawing from rng.
func NewRandom(rng *rand.Rand) *Random {
	return &Random{rng: newRand(rng), prev: -1}
}

func (s *Random) Kind() Kind { return KindRandom }

func (s *Random) Next(cat *catalog.Catalog) (catalog.Track, error) {
	if s.gen.stale(cat) {
		s.prev = -1
	}
	n := cat.Len()
	if n == 0 {
		return catalog.Track{}, catalog.ErrEmptyCatalog
	}
	if n == 1 {
		s.prev = 0
		return cat.TrackAt(0), nil
	}

	var idx int
	if s.prev < 0 || s.prev >= n {
		idx = s.rng.IntN(n)
	} else {
		// Draw from the n-1 other positions and shift past prev.
		idx = s.rng.IntN(n - 1)
		if idx >= s.prev {
			idx++
		}
	}
	s.prev = idx
	return cat.TrackAt(idx), nil
}

func (s *Random) Reset() {
	s.prev = -1
	s.gen.reset()
}
