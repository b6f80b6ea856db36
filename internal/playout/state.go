/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

// State is the engine's position in the playout state machine.
type State string

const (
	StateIdle            State = "idle"
	StatePlayingRecorded State = "playing_recorded"
	StatePlayingLive     State = "playing_live"
	StateStarved         State = "starved"
	StateStopped         State = "stopped"
)

// States lists every state.
func States() []State {
	return []State{StateIdle, StatePlayingRecorded, StatePlayingLive, StateStarved, StateStopped}
}

// Playing reports whether the state has an item on air.
func (s State) Playing() bool {
	return s == StatePlayingRecorded || s == StatePlayingLive
}

// isValidTransition checks the state machine. Stopped is terminal.
func isValidTransition(from, to State) bool {
	validTransitions := map[State][]State{
		StateIdle: {
			StatePlayingRecorded,
			StatePlayingLive,
			StateStarved,
			StateStopped,
		},
		StatePlayingRecorded: {
			StatePlayingRecorded,
			StatePlayingLive,
			StateStarved,
			StateStopped,
		},
		StatePlayingLive: {
			StatePlayingLive,
			StatePlayingRecorded,
			StateStarved,
			StateStopped,
		},
		StateStarved: {
			StatePlayingRecorded,
			StatePlayingLive,
			StateStopped,
		},
	}

	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
