// Package watch rebuilds a source directory whenever its files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/assetbuild/pkg/build"
	"github.com/grovetools/assetbuild/pkg/freshness"
	"github.com/grovetools/assetbuild/pkg/logger"
	"github.com/sirupsen/logrus"
)

const DefaultDebounce = 500 * time.Millisecond

// BuildFunc runs one build with a fresh cache. Each debounced batch of changes
// is a new run.
type BuildFunc func(ctx context.Context, cache *build.Cache) build.Result

// Options configures a Watcher.
type Options struct {
	SourceDir string
	Excludes  []string // dir names or relative paths not watched, see freshness.Matcher
	Ignore    []string // file names whose events are ignored, e.g. the stamp
	Debounce  time.Duration
	Logger    *logrus.Logger
	Build     BuildFunc
	// OnResult is called after every build, if set.
	OnResult func(build.Result)
}

// Watcher watches a source tree and triggers builds.
type Watcher struct {
	opts    Options
	root    string
	skip    freshness.Matcher
	ignore  map[string]struct{}
	watcher *fsnotify.Watcher
	log     *logrus.Entry
}

// New creates a watcher and registers every directory under the source dir.
func New(opts Options) (*Watcher, error) {
	if opts.Build == nil {
		return nil, fmt.Errorf("watch: Build function is required")
	}
	root, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		opts:    opts,
		root:    root,
		skip:    freshness.NewMatcher(opts.Excludes),
		ignore:  toSet(opts.Ignore),
		watcher: fw,
		log:     logger.OrDiscard(opts.Logger).WithField("source", root),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// addTree watches dir and all of its subdirectories except excluded ones.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// excluded reports whether path lies in an excluded directory of the tree.
func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return w.skip.Match(rel)
}

// Relevant reports whether an event on path should trigger a rebuild.
func (w *Watcher) Relevant(path string) bool {
	if w.excluded(path) {
		return false
	}
	_, ignored := w.ignore[filepath.Base(path)]
	return !ignored
}

// Run builds once, then rebuilds after each debounced batch of changes until
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.runBuild(ctx)
	w.log.Info("Watching for changes")

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.Relevant(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.WithError(err).Warn("Failed to watch new directory")
					}
				}
			}
			w.log.WithFields(logrus.Fields{"file": event.Name, "op": event.Op.String()}).Debug("Change detected")
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.opts.Debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.runBuild(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("Watcher error")
		}
	}
}

func (w *Watcher) runBuild(ctx context.Context) {
	res := w.opts.Build(ctx, build.NewCache())
	if w.opts.OnResult != nil {
		w.opts.OnResult(res)
	}
}
