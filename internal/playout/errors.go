/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"errors"
	"fmt"
)

var (
	// ErrDecisionStarvation means neither recorded nor live content is
	// eligible. The engine enters Starved and waits for a reload.
	ErrDecisionStarvation = errors.New("playout: nothing eligible to play")
	// ErrSourceUnreachable means a live source could not be started.
	ErrSourceUnreachable = errors.New("playout: live source unreachable")
	// ErrStopped is returned once Shutdown has been called.
	ErrStopped           = errors.New("playout: engine stopped")
	ErrNotStarted        = errors.New("playout: engine not started")
	ErrSkipThrottled     = errors.New("playout: skip requested too soon")
	ErrNothingPlaying    = errors.New("playout: nothing playing")
	ErrInvalidTransition = errors.New("playout: invalid state transition")
	ErrUnknownLiveEntry  = errors.New("playout: unknown live entry")
)

// SourceUnreachableError carries the live entry that failed.
type SourceUnreachableError struct {
	EntryID string
	Source  string
	Err     error
}

func (e *SourceUnreachableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("live source %s for entry %s unreachable: %v", e.Source, e.EntryID, e.Err)
	}
	return fmt.Sprintf("live source %s for entry %s unreachable", e.Source, e.EntryID)
}

func (e *SourceUnreachableError) Is(target error) bool {
	return target == ErrSourceUnreachable
}

func (e *SourceUnreachableError) Unwrap() error {
	return e.Err
}
