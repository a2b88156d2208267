package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/grovetools/assetbuild/pkg/asset"
	"github.com/grovetools/assetbuild/pkg/build"
	"github.com/grovetools/assetbuild/pkg/progress"
	"github.com/spf13/cobra"
)

var (
	buildForce bool
	buildJobs  int
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [dir...]",
		Short: "Build source directories that changed since their last build",
		Long: `Build each source directory (the current directory by default).

A directory is rebuilt when its stamp file is missing or any file outside
node_modules and the output directory is newer than the stamp. The same
directory given twice is only built once. Directories are built one at a
time unless --jobs is set; the first failure stops the remaining builds.

On a terminal, a live status view shows each directory with a spinner until
it finishes. --verbose, --json and non-terminal output use plain lines.

With on_failure: continue in the project config, a failed build is reported
but does not fail the command.`,
		Example: `  assetbuild build
  assetbuild build functions/orders functions/billing
  assetbuild build --force --json .
  assetbuild build -j 4 functions/*`,
		RunE: runBuild,
	}
	cmd.Flags().BoolVarP(&buildForce, "force", "f", false, "Rebuild even when the output is up to date")
	cmd.Flags().IntVarP(&buildJobs, "jobs", "j", 1, "Number of directories built in parallel (0 = one per CPU)")
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	dirs, err := sourceDirs(args)
	if err != nil {
		return err
	}
	s := newSession(cmd)
	tui := useBuildTUI(stdoutOf(cmd))
	restoreLog := func() {}
	if tui {
		restoreLog = s.quiet()
	}

	projects := make([]*project, 0, len(dirs))
	jobs := make([]build.Job, 0, len(dirs))
	continueOnError := true
	for _, dir := range dirs {
		p, err := s.open(dir, projectOptions{force: buildForce})
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if p.cfg.Policy() != asset.PolicyContinue {
			continueOnError = false
		}
		projects = append(projects, p)
		jobs = append(jobs, build.Job{SourceDir: dir, Orchestrator: p.orchestrator})
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	pool := build.RunPool(ctx, jobs, buildJobs, continueOnError)

	var results []build.Result
	if tui {
		results, err = runBuildTUI(stdoutOf(cmd), dirs, pool, cancel)
		restoreLog()
		if err != nil {
			return err
		}
	} else {
		results = build.Collect(pool, len(jobs))
	}

	var failed []string
	for i, res := range results {
		if res.OK() {
			continue
		}
		if projects[i].cfg.Policy() == asset.PolicyContinue {
			s.log.WithError(res.Err).WithField("source", res.SourceDir).Warn("Build failed, continuing")
			continue
		}
		failed = append(failed, res.SourceDir)
		if tui {
			fmt.Fprintf(stderrOf(cmd), "\n%s %s\n%s\n", progress.IconError, res.SourceDir, res.Error)
		}
	}

	if rootOpts.JSONOutput {
		if err := writeJSON(stdoutOf(cmd), results); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("build failed for %s", strings.Join(failed, ", "))
	}
	return nil
}
