/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"sync"
	"sync/atomic"
)

// Store publishes catalog snapshots. Readers always see a complete snapshot;
// a swap is visible to the next Current call.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Catalog]
	gen     uint64
}

// NewStore creates a store holding an empty catalog.
func NewStore() *Store {
	s := &Store{}
	s.Swap(Empty())
	return s
}

// Swap publishes c and returns the generation assigned to it.
func (s *Store) Swap(c *Catalog) uint64 {
	if c == nil {
		c = Empty()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	published := *c
	published.generation = s.gen
	s.current.Store(&published)
	return s.gen
}

// Current returns the published catalog.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}
