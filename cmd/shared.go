package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/grovetools/assetbuild/pkg/build"
	"github.com/grovetools/assetbuild/pkg/config"
	"github.com/grovetools/assetbuild/pkg/progress"
	"github.com/grovetools/assetbuild/pkg/toolchain"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newRunner creates the process runner for a source directory. Tests replace it.
var newRunner = func(opts *toolchain.RunOptions) toolchain.Runner {
	return toolchain.NewExecRunner(opts)
}

// session holds what every command in one invocation shares: the logger,
// progress printer and the per-run build cache.
type session struct {
	cmd     *cobra.Command
	log     *logrus.Logger
	printer *progress.Printer
	cache   *build.Cache
}

func newSession(cmd *cobra.Command) *session {
	s := &session{
		cmd:   cmd,
		log:   getLogger(cmd),
		cache: build.NewCache(),
	}
	if rootOpts.JSONOutput {
		s.printer = progress.Discard()
	} else {
		s.printer = progress.New(stdoutOf(cmd), stderrOf(cmd), rootOpts.NoColor)
	}
	s.log.WithField("run_id", s.cache.RunID()).Debug("Starting run")
	return s
}

// quiet hands the terminal to a live view: no progress lines, and no log
// output until the returned func restores it.
func (s *session) quiet() (restore func()) {
	s.printer = progress.Discard()
	out := s.log.Out
	s.log.SetOutput(io.Discard)
	return func() { s.log.SetOutput(out) }
}

// project is a resolved source directory with its config and orchestrator.
type project struct {
	dir          string
	cfg          *config.Config
	orchestrator *build.Orchestrator
}

type projectOptions struct {
	force bool
	cache *build.Cache // overrides the session cache
}

// sourceDirs returns args, or the current directory when none are given.
func sourceDirs(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	dirs := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", a, err)
		}
		dirs = append(dirs, abs)
	}
	return dirs, nil
}

// open loads the config for dir and wires an orchestrator that uses the
// session's cache, so a directory is built at most once per invocation.
func (s *session) open(dir string, opts projectOptions) (*project, error) {
	cfg, err := config.Load(dir, rootOpts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		s.log.WithField("config", cfg.Source).Debug("Loaded project config")
	}

	env, err := cfg.Env(dir)
	if err != nil {
		return nil, err
	}

	runOpts := &toolchain.RunOptions{
		ExtraPathDirs: cfg.Path,
		Env:           env,
	}
	if rootOpts.Verbose && !rootOpts.JSONOutput {
		runOpts.Stream = stderrOf(s.cmd)
	}

	cache := s.cache
	if opts.cache != nil {
		cache = opts.cache
	}

	o := build.New(build.Options{
		Toolchain:    cfg.Toolchain(),
		Runner:       newRunner(runOpts),
		Cache:        cache,
		Logger:       s.log,
		Printer:      s.printer,
		OutputDir:    cfg.OutputDir,
		StampFile:    cfg.StampFile,
		Excludes:     cfg.Exclude,
		Force:        opts.force,
		CheckEngines: cfg.EnginesEnabled(),
	})
	return &project{dir: dir, cfg: cfg, orchestrator: o}, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
