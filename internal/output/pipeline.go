/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrPipelineRunning is returned when starting a pipeline that has not exited.
var ErrPipelineRunning = errors.New("pipeline already running")

// Pipeline manages one gst-launch process.
type Pipeline struct {
	bin    string
	logger zerolog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{} // closed when the process has exited
	exitErr error
}

// NewPipeline constructs a pipeline that runs bin.
func NewPipeline(bin string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{bin: bin, logger: logger}
}

// Start launches the pipeline with the provided launch string.
func (p *Pipeline) Start(ctx context.Context, launch string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil && p.done != nil {
		select {
		case <-p.done:
		default:
			return ErrPipelineRunning
		}
	}

	// Shell parses the launch string the same way gst-launch users write it.
	shellCmd := fmt.Sprintf("%s -e %s", p.bin, launch)
	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	done := make(chan struct{})
	p.cmd = cmd
	p.done = done
	p.exitErr = nil

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(done)
		if err != nil {
			p.logger.Debug().Err(err).Msg("gstreamer pipeline exited")
		} else {
			p.logger.Debug().Msg("gstreamer pipeline finished")
		}
	}()

	return nil
}

// Done is closed when the current process exits.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Err returns the exit error of the last process once Done is closed.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Stop terminates the running pipeline, interrupting first so gst-launch
// can flush, then killing after the grace period.
func (p *Pipeline) Stop(grace time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	done := p.done
	p.mu.Unlock()

	if cmd == nil || done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-time.After(grace):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	case <-done:
	}

	return nil
}
