/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package output delivers playback items to audio and reports back to the
// engine how each one ended.
package output

import (
	"context"

	"github.com/friendsincode/grimnir_playout/internal/playout"
)

// Reporter receives sink events. *playout.Engine implements it.
type Reporter interface {
	Report(ctx context.Context, ev playout.SinkEvent) (playout.Decision, error)
}

// Kind names an output implementation.
type Kind string

const (
	KindDry       Kind = "dry"
	KindGStreamer Kind = "gstreamer"
)
