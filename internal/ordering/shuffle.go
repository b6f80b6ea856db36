/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ordering

import (
	"math/rand/v2"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
)

// Shuffle plays every track once per cycle in random order. A new cycle
// never opens with the track that closed the previous one.
type Shuffle struct {
	rng  *rand.Rand
	perm []int
	pos  int
	last int
	gen  generation
}

// NewShuffle returns a Shuffle strategy drawing permutations from rng.
func NewShuffle(rng *rand.Rand) *Shuffle {
	return &Shuffle{rng: newRand(rng), last: -1}
}

func (s *Shuffle) Kind() Kind { return KindShuffle }

func (s *Shuffle) Next(cat *catalog.Catalog) (catalog.Track, error) {
	if s.gen.stale(cat) {
		s.perm, s.pos, s.last = nil, 0, -1
	}
	n := cat.Len()
	if n == 0 {
		return catalog.Track{}, catalog.ErrEmptyCatalog
	}
	if len(s.perm) != n || s.pos >= len(s.perm) {
		s.reshuffle(n)
	}

	idx := s.perm[s.pos]
	s.pos++
	s.last = idx
	return cat.TrackAt(idx), nil
}

func (s *Shuffle) reshuffle(n int) {
	s.perm = s.rng.Perm(n)
	s.pos = 0
	if n > 1 && s.perm[0] == s.last {
		j := 1 + s.rng.IntN(n-1)
		s.perm[0], s.perm[j] = s.perm[j], s.perm[0]
	}
}

func (s *Shuffle) Reset() {
	s.perm, s.pos, s.last = nil, 0, -1
	s.gen.reset()
}

// Remaining returns how many tracks are left in the current cycle.
func (s *Shuffle) Remaining() int {
	return len(s.perm) - s.pos
}
