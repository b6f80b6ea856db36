/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// RunWhileLeader runs fn while the latest value from changes is true. fn's
// context is cancelled on losing leadership, and RunWhileLeader waits for
// fn to return before starting it again. It returns when ctx is done.
func RunWhileLeader(ctx context.Context, changes <-chan bool, logger zerolog.Logger, fn func(context.Context)) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	stop := func() {
		if cancel != nil {
			cancel()
			wg.Wait()
			cancel = nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case leader, ok := <-changes:
			if !ok {
				return
			}
			if leader && cancel == nil {
				logger.Info().Msg("leadership acquired, starting playout")
				var runCtx context.Context
				runCtx, cancel = context.WithCancel(ctx)
				wg.Add(1)
				go func() {
					defer wg.Done()
					fn(runCtx)
				}()
			} else if !leader && cancel != nil {
				logger.Warn().Msg("leadership lost, stopping playout")
				stop()
			}
		}
	}
}
