package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grovetools/assetbuild/pkg/build"
	"github.com/grovetools/assetbuild/pkg/watch"
	"github.com/spf13/cobra"
)

var watchDebounce time.Duration

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Rebuild a source directory whenever its files change",
		Long: `Watch builds the source directory once, then rebuilds it after every
batch of changes. Changes under node_modules, the output directory and the
stamp file are ignored. Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}
	cmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a rebuild")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	dirs, err := sourceDirs(args)
	if err != nil {
		return err
	}
	dir := dirs[0]
	s := newSession(cmd)

	p, err := s.open(dir, projectOptions{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(watch.Options{
		SourceDir: dir,
		Excludes:  p.orchestrator.Excludes(),
		Ignore:    []string{filepath.Base(p.orchestrator.StampPath(dir))},
		Debounce:  watchDebounce,
		Logger:    s.log,
		Build: func(ctx context.Context, cache *build.Cache) build.Result {
			p, err := s.open(dir, projectOptions{cache: cache})
			if err != nil {
				return build.Failure(dir, build.StepCheck, err)
			}
			return p.orchestrator.Build(ctx, dir)
		},
		OnResult: func(res build.Result) {
			s.reportResult(stdoutOf(cmd), res)
		},
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// reportResult writes res as JSON under --json. A failed write is logged.
func (s *session) reportResult(w io.Writer, res build.Result) {
	if !rootOpts.JSONOutput {
		return
	}
	if err := writeJSON(w, res); err != nil {
		s.log.WithError(err).Error("Failed to write build result")
	}
}
