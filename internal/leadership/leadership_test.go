/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewElectionValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ElectionConfig
	}{
		{"missing station", ElectionConfig{RedisAddr: "127.0.0.1:1"}},
		{"renewal not shorter than lease", ElectionConfig{RedisAddr: "127.0.0.1:1", StationID: "main", LeaseDuration: time.Second, RenewalInterval: 2 * time.Second}},
		{"redis unreachable", ElectionConfig{RedisAddr: "127.0.0.1:1", StationID: "main"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewElection(tt.cfg, zerolog.Nop()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunWhileLeaderFollowsChanges(t *testing.T) {
	changes := make(chan bool)
	var running, starts atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunWhileLeader(ctx, changes, zerolog.Nop(), func(runCtx context.Context) {
			starts.Add(1)
			running.Add(1)
			<-runCtx.Done()
			running.Add(-1)
		})
		close(done)
	}()

	changes <- true
	waitFor(t, func() bool { return running.Load() == 1 })

	// A repeated true does not start a second runner.
	changes <- true
	changes <- false
	waitFor(t, func() bool { return running.Load() == 0 })

	changes <- true
	waitFor(t, func() bool { return running.Load() == 1 })
	if starts.Load() != 2 {
		t.Fatalf("expected 2 starts, got %d", starts.Load())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not return")
	}
	if running.Load() != 0 {
		t.Fatal("fn still running after shutdown")
	}
}

func TestRunWhileLeaderStopsOnClosedChannel(t *testing.T) {
	changes := make(chan bool)
	close(changes)
	done := make(chan struct{})
	go func() {
		RunWhileLeader(context.Background(), changes, zerolog.Nop(), func(context.Context) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not return on closed channel")
	}
}
