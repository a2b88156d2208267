// Package toolchaintest provides a recording Runner for tests.
package toolchaintest

import (
	"context"
	"strings"
	"sync"

	"github.com/grovetools/assetbuild/pkg/toolchain"
)

// Handler lets a test react to a command, e.g. to create the files a real
// compiler would emit or to fail a particular step.
type Handler func(cmd toolchain.Command) ([]byte, error)

// Recorder records every command it is asked to run.
type Recorder struct {
	mu       sync.Mutex
	commands []toolchain.Command
	handlers []matcher
}

type matcher struct {
	contains string
	handle   Handler
}

// New creates an empty recorder. Unmatched commands succeed with no output.
func New() *Recorder {
	return &Recorder{}
}

// On registers h for commands whose rendered line contains substr.
// The first registered match wins.
func (r *Recorder) On(substr string, h Handler) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, matcher{contains: substr, handle: h})
	return r
}

// Run implements toolchain.Runner.
func (r *Recorder) Run(ctx context.Context, cmd toolchain.Command) (toolchain.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	var h Handler
	line := cmd.String()
	for _, m := range r.handlers {
		if strings.Contains(line, m.contains) {
			h = m.handle
			break
		}
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return toolchain.Result{Command: cmd}, err
	}
	if h == nil {
		return toolchain.Result{Command: cmd}, nil
	}
	out, err := h(cmd)
	if err != nil {
		return toolchain.Result{Command: cmd, Output: out}, &toolchain.CommandError{
			Command:  cmd,
			ExitCode: 1,
			Output:   out,
			Err:      err,
		}
	}
	return toolchain.Result{Command: cmd, Output: out}, nil
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []toolchain.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toolchain.Command(nil), r.commands...)
}

// Lines returns the recorded command lines.
func (r *Recorder) Lines() []string {
	cmds := r.Commands()
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	return lines
}

// Reset forgets recorded commands but keeps handlers.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
}
