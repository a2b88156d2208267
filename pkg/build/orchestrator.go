// Package build runs the pre-deployment build of a Node/TypeScript project:
// install, compile, prune to production dependencies, and stamp the output
// as fresh. A Cache limits each source directory to one build decision per run.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/assetbuild/pkg/freshness"
	"github.com/grovetools/assetbuild/pkg/logger"
	"github.com/grovetools/assetbuild/pkg/manifest"
	"github.com/grovetools/assetbuild/pkg/progress"
	"github.com/grovetools/assetbuild/pkg/toolchain"
	"github.com/sirupsen/logrus"
)

const (
	DefaultOutputDir = ".deploy"
	StampSuffix      = ".stamp"
	DependencyDir    = "node_modules"
)

// Options configures an Orchestrator. Zero values get defaults.
type Options struct {
	Toolchain toolchain.Toolchain
	Runner    toolchain.Runner  // defaults to an ExecRunner
	Cache     *Cache            // defaults to a cache private to this orchestrator
	Logger    *logrus.Logger    // defaults to a discarding logger
	Printer   *progress.Printer // defaults to a discarding printer
	OutputDir string            // relative to the source dir, default ".deploy"
	StampFile string            // relative to the source dir, default OutputDir+".stamp"
	Excludes  []string          // extra dir names or relative paths skipped by the freshness scan
	Force     bool              // rebuild even when fresh
	// CheckEngines validates package.json engines before installing.
	CheckEngines bool
	Now          func() time.Time
}

// Orchestrator builds source directories into deployable output directories.
type Orchestrator struct {
	opts    Options
	runner  toolchain.Runner
	cache   *Cache
	log     *logrus.Logger
	printer *progress.Printer
	now     func() time.Time
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts:    opts,
		runner:  opts.Runner,
		cache:   opts.Cache,
		log:     logger.OrDiscard(opts.Logger),
		printer: opts.Printer,
		now:     opts.Now,
	}
	if o.runner == nil {
		o.runner = toolchain.NewExecRunner(nil)
	}
	if o.cache == nil {
		o.cache = NewCache()
	}
	if o.printer == nil {
		o.printer = progress.Discard()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.opts.Toolchain.Installer == "" && o.opts.Toolchain.Compiler == "" {
		o.opts.Toolchain = toolchain.Default()
	}
	if o.opts.OutputDir == "" {
		o.opts.OutputDir = DefaultOutputDir
	}
	if o.opts.StampFile == "" {
		o.opts.StampFile = o.opts.OutputDir + StampSuffix
	}
	return o
}

// Cache returns the run cache in use.
func (o *Orchestrator) Cache() *Cache {
	return o.cache
}

// OutputPath is the output directory for sourceDir.
func (o *Orchestrator) OutputPath(sourceDir string) string {
	return filepath.Join(sourceDir, o.opts.OutputDir)
}

// StampPath is the stamp file for sourceDir.
func (o *Orchestrator) StampPath(sourceDir string) string {
	return filepath.Join(sourceDir, o.opts.StampFile)
}

// Excludes returns the entries skipped by the freshness scan: the dependency
// dir, the output dir (by its path relative to the source) and Options.Excludes.
func (o *Orchestrator) Excludes() []string {
	out := []string{DependencyDir, filepath.ToSlash(filepath.Clean(o.opts.OutputDir))}
	seen := map[string]bool{out[0]: true, out[1]: true}
	for _, e := range o.opts.Excludes {
		e = filepath.ToSlash(filepath.Clean(e))
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// Plan reports whether sourceDir needs a build, without touching the cache.
func (o *Orchestrator) Plan(sourceDir string) (freshness.Decision, error) {
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return freshness.Decision{}, err
	}
	if o.opts.Force {
		return freshness.Decision{Required: true, Reason: freshness.ReasonForced}, nil
	}
	return freshness.Check(abs, o.StampPath(abs), o.Excludes())
}

// Clean removes the output directory and the stamp of sourceDir.
func (o *Orchestrator) Clean(sourceDir string) error {
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(o.OutputPath(abs)); err != nil {
		return fmt.Errorf("remove output dir: %w", err)
	}
	return freshness.Remove(o.StampPath(abs))
}

// Build makes sure the output directory of sourceDir is fresh. A directory
// already marked in the cache returns StatusMemoized without any checks.
// Failures are reported in the Result, never panicked or swallowed.
func (o *Orchestrator) Build(ctx context.Context, sourceDir string) Result {
	start := o.now()

	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return Failure(sourceDir, StepCheck, err)
	}

	res := Result{
		SourceDir: abs,
		OutputDir: o.OutputPath(abs),
		StampFile: o.StampPath(abs),
	}
	log := o.log.WithFields(logrus.Fields{
		"source": abs,
		"run_id": o.cache.RunID(),
	})
	name := filepath.Base(abs)

	if !o.cache.Mark(abs) {
		log.Debug("Already processed in this run")
		res.Status = StatusMemoized
		return res
	}

	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		return o.fail(res, log, name, StepCheck, err, start)
	}

	if o.opts.Force {
		res.Reason = freshness.ReasonForced
	} else {
		decision, err := freshness.Check(abs, res.StampFile, o.Excludes())
		if err != nil {
			return o.fail(res, log, name, StepCheck, err, start)
		}
		res.Reason = decision.Reason
		res.Changed = decision.ChangedFile
		if !decision.Required {
			log.WithField("stamp", decision.StampTime).Debug("Output is fresh, skipping build")
			res.Status = StatusFresh
			res.Duration = o.now().Sub(start)
			o.printer.Skipped(name, string(decision.Reason))
			return res
		}
		if decision.ChangedFile != "" {
			log.WithField("changed", decision.ChangedFile).Debug("Source changed since last build")
		}
	}

	log.WithField("reason", res.Reason).Info("Building")
	o.printer.Start(name)

	if step, err := o.sequence(ctx, &res, log); err != nil {
		return o.fail(res, log, name, step, err, start)
	}

	res.Status = StatusBuilt
	res.Duration = o.now().Sub(start)
	log.WithField("duration", res.Duration).Info("Build complete")
	o.printer.Success(name, res.Duration)
	return res
}

// BuildAll builds each directory in order, one at a time.
func (o *Orchestrator) BuildAll(ctx context.Context, dirs []string) []Result {
	results := make([]Result, 0, len(dirs))
	for _, dir := range dirs {
		results = append(results, o.Build(ctx, dir))
	}
	return results
}

// sequence runs the build steps, stopping at the first failure. The stamp is
// touched only after every other step succeeded.
func (o *Orchestrator) sequence(ctx context.Context, res *Result, log *logrus.Entry) (Step, error) {
	src, out := res.SourceDir, res.OutputDir
	tc := o.opts.Toolchain

	if o.opts.CheckEngines && manifest.Exists(src) {
		err := o.record(res, StepEngines, "", func() error {
			return o.checkEngines(ctx, src)
		})
		if err != nil {
			return StepEngines, err
		}
	}

	err := o.record(res, StepClean, "", func() error {
		if err := os.RemoveAll(out); err != nil {
			return fmt.Errorf("remove %s: %w", out, err)
		}
		if err := os.MkdirAll(out, 0755); err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		return nil
	})
	if err != nil {
		return StepClean, err
	}

	if err := o.run(ctx, res, log, StepInstall, tc.Install(src)); err != nil {
		return StepInstall, err
	}
	if err := o.run(ctx, res, log, StepCompile, tc.Compile(src, out)); err != nil {
		return StepCompile, err
	}

	var copied []string
	err = o.record(res, StepCopyManifest, "", func() error {
		var err error
		copied, err = manifest.CopyInto(src, out)
		return err
	})
	if err != nil {
		return StepCopyManifest, err
	}

	if len(copied) > 0 {
		log.WithField("files", copied).Debug("Copied manifest")
		if err := o.run(ctx, res, log, StepProdInstall, tc.ProductionInstall(out)); err != nil {
			return StepProdInstall, err
		}
	} else {
		log.Debug("No manifest, skipping production install")
	}

	err = o.record(res, StepStamp, "", func() error {
		return freshness.Touch(res.StampFile, o.now())
	})
	if err != nil {
		return StepStamp, err
	}
	return "", nil
}

func (o *Orchestrator) run(ctx context.Context, res *Result, log *logrus.Entry, step Step, cmd toolchain.Command) error {
	line := cmd.String()
	o.printer.Step(line)
	log.WithFields(logrus.Fields{"step": step, "dir": cmd.Dir}).Debugf("Running %s", line)
	return o.record(res, step, line, func() error {
		_, err := o.runner.Run(ctx, cmd)
		return err
	})
}

func (o *Orchestrator) record(res *Result, step Step, line string, fn func() error) error {
	start := o.now()
	err := fn()
	rec := StepRecord{Step: step, Command: line, Duration: o.now().Sub(start)}
	if err != nil {
		rec.Error = err.Error()
	}
	res.Steps = append(res.Steps, rec)
	return err
}

func (o *Orchestrator) checkEngines(ctx context.Context, src string) error {
	pkg, err := manifest.Load(src)
	if err != nil {
		return err
	}
	if len(pkg.Engines) == 0 {
		return nil
	}
	v, err := o.opts.Toolchain.Versions(ctx, o.runner, src)
	if err != nil {
		return err
	}
	return manifest.CheckEngines(pkg, o.opts.Toolchain.Engines(v))
}

func (o *Orchestrator) fail(res Result, log *logrus.Entry, name string, step Step, err error, start time.Time) Result {
	res.setFailed(step, err)
	res.Duration = o.now().Sub(start)
	log.WithError(err).WithField("step", step).Error("Build failed")
	o.printer.Failure(name, res.Err)
	return res
}
