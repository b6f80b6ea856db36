/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ordering selects the next recorded track from a catalog.
//
// Each variant keeps only the state its contract needs: a cursor for
// Chronologic and Reverse, the previous pick for Random, and a permutation
// for Shuffle. A strategy notices when it is handed a catalog from a newer
// store generation and resets itself, so a cursor never indexes into a
// snapshot it was not built for.
package ordering

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/friendsincode/grimnir_playout/internal/catalog"
)

// ErrUnknownStrategy indicates an unsupported strategy name.
var ErrUnknownStrategy = errors.New("unknown ordering strategy")

// Kind names an ordering strategy.
type Kind string

const (
	KindChronologic Kind = "chronologic"
	KindReverse     Kind = "reverse"
	KindRandom      Kind = "random"
	KindShuffle     Kind = "shuffle"
)

// Kinds lists every supported strategy.
func Kinds() []Kind {
	return []Kind{KindChronologic, KindReverse, KindRandom, KindShuffle}
}

// ParseKind accepts strategy names case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Strategy produces the next track to play.
type Strategy interface {
	Kind() Kind
	// Next returns the next track from cat. It fails with
	// catalog.ErrEmptyCatalog when cat has no tracks.
	Next(cat *catalog.Catalog) (catalog.Track, error)
	// Reset discards all ordering state.
	Reset()
}

// Sequential is implemented by strategies that walk the catalog in order.
// Cursor is the last index returned, or -1 before the first pick.
type Sequential interface {
	Strategy
	Cursor() int
}

// New returns a fresh strategy of the given kind. rng may be nil for the
// deterministic variants; Random and Shuffle fall back to a randomly seeded
// source when it is nil.
func New(kind Kind, rng *rand.Rand) (Strategy, error) {
	switch kind {
	case KindChronologic:
		return NewChronologic(), nil
	case KindReverse:
		return NewReverse(), nil
	case KindRandom:
		return NewRandom(rng), nil
	case KindShuffle:
		return NewShuffle(rng), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
	}
}

// generation tracks which catalog snapshot a strategy's state belongs to.
type generation struct {
	seen  uint64
	valid bool
}

// stale reports whether cat differs from the last snapshot observed and
// records cat as current.
func (g *generation) stale(cat *catalog.Catalog) bool {
	gen := cat.Generation()
	if g.valid && g.seen == gen {
		return false
	}
	wasValid := g.valid
	g.seen, g.valid = gen, true
	return wasValid
}

func (g *generation) reset() {
	g.valid = false
}

func newRand(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
