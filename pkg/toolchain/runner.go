package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Command is a single external tool invocation.
type Command struct {
	Name string   // Binary, e.g. "npm"
	Args []string // Arguments passed to the binary
	Dir  string   // Working directory
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished command.
type Result struct {
	Command  Command
	Output   []byte // Combined stdout and stderr
	Duration time.Duration
}

// Runner executes commands. ExecRunner is the real implementation; tests
// substitute a recorder.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// CommandError is returned when a command cannot start or exits non-zero.
type CommandError struct {
	Command  Command
	ExitCode int // -1 when the process never ran
	Output   []byte
	Err      error
}

func (e *CommandError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	if tail := outputTail(e.Output, 10); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// RunOptions contains optional configuration for ExecRunner.
type RunOptions struct {
	// ExtraPathDirs are prepended to PATH for every command
	ExtraPathDirs []string
	// Env holds extra variables, e.g. from a dotenv file
	Env map[string]string
	// Stream receives output as it is produced, in addition to the captured copy
	Stream io.Writer
}

// ExecRunner runs commands as subprocesses, blocking until they exit.
type ExecRunner struct {
	opts RunOptions
}

// NewExecRunner creates a runner. opts may be nil.
func NewExecRunner(opts *RunOptions) *ExecRunner {
	r := &ExecRunner{}
	if opts != nil {
		r.opts = *opts
	}
	return r
}

// Run executes cmd and waits for it. Cancelling ctx kills the process.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	start := time.Now()

	pathDirs := resolvePathDirs(r.opts.ExtraPathDirs, cmd.Dir)
	c := exec.CommandContext(ctx, lookPath(cmd.Name, pathDirs), cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = buildEnv(r.opts.Env, pathDirs)

	var buf bytes.Buffer
	var out io.Writer = &buf
	if r.opts.Stream != nil {
		out = io.MultiWriter(&buf, r.opts.Stream)
	}
	w := &lockedWriter{w: out}
	c.Stdout = w
	c.Stderr = w

	err := c.Run()
	res := Result{Command: cmd, Output: buf.Bytes(), Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}

	cerr := &CommandError{Command: cmd, ExitCode: -1, Output: res.Output, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cerr.ExitCode = exitErr.ExitCode()
	}
	return res, cerr
}

// buildEnv creates the environment for a command: the process environment,
// extra variables, and PATH with the extra dirs prepended.
func buildEnv(vars map[string]string, pathDirs []string) []string {
	env := os.Environ()

	if len(vars) > 0 {
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = setEnv(env, k, vars[k])
		}
	}

	if len(pathDirs) == 0 {
		return env
	}

	prefix := strings.Join(pathDirs, string(os.PathListSeparator))
	for i, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			env[i] = "PATH=" + prefix + string(os.PathListSeparator) + e[5:]
			return env
		}
	}
	return append(env, "PATH="+prefix)
}

// resolvePathDirs makes relative extra PATH entries relative to the command's
// working directory.
func resolvePathDirs(dirs []string, workDir string) []string {
	var out []string
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if !filepath.IsAbs(d) && workDir != "" {
			d = filepath.Join(workDir, d)
		}
		out = append(out, d)
	}
	return out
}

// lookPath finds a bare command name in the extra PATH dirs first. exec
// resolves names against the parent's PATH, not the child's environment.
func lookPath(name string, dirs []string) string {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name
	}
	for _, d := range dirs {
		candidate := filepath.Join(d, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0 {
			return candidate
		}
	}
	return name
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

func outputTail(out []byte, lines int) string {
	s := strings.TrimRight(string(out), "\n")
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}

// lockedWriter serializes writes from the stdout and stderr copiers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
