// Package freshness decides whether a build output is still current by comparing
// a stamp file's modification time against the files of a source tree.
package freshness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonNoStamp       Reason = "no-stamp"
	ReasonSourceChanged Reason = "source-changed"
	ReasonFresh         Reason = "fresh"
	ReasonForced        Reason = "forced"
)

// DefaultExcludes are directory names never scanned for changes.
var DefaultExcludes = []string{"node_modules", ".deploy"}

// errFound stops the walk at the first newer file.
var errFound = errors.New("newer file found")

// Decision is the outcome of a freshness check.
type Decision struct {
	Required    bool
	Reason      Reason
	StampTime   time.Time // zero when there is no stamp
	ChangedFile string    // first file found newer than the stamp
}

// Matcher decides which directories of a source tree are excluded. A bare
// name ("node_modules") matches a directory of that name at any depth. An
// entry with a slash ("dist/lambda") matches that path relative to the root
// and everything below it.
type Matcher struct {
	names map[string]struct{}
	paths []string
}

// NewMatcher creates a Matcher from exclude entries.
func NewMatcher(excludes []string) Matcher {
	m := Matcher{names: make(map[string]struct{}, len(excludes))}
	for _, e := range excludes {
		e = filepath.ToSlash(filepath.Clean(e))
		if e == "." || e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			m.paths = append(m.paths, e)
		} else {
			m.names[e] = struct{}{}
		}
	}
	return m
}

// Match reports whether rel, a path relative to the tree root, is an
// excluded directory or lies inside one.
func (m Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if _, ok := m.names[part]; ok {
			return true
		}
	}
	for _, p := range m.paths {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// Check reports whether sourceDir must be rebuilt given the stamp at stampPath.
// Directories matched by excludes (see Matcher) are skipped entirely.
func Check(sourceDir, stampPath string, excludes []string) (Decision, error) {
	info, err := os.Stat(stampPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Decision{Required: true, Reason: ReasonNoStamp}, nil
		}
		return Decision{}, fmt.Errorf("stat stamp %s: %w", stampPath, err)
	}
	stampTime := info.ModTime()

	skip := NewMatcher(excludes)

	absStamp, _ := filepath.Abs(stampPath)

	var changed string
	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == sourceDir {
				return nil
			}
			if rel, err := filepath.Rel(sourceDir, path); err == nil && skip.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absStamp {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.ModTime().After(stampTime) {
			changed = path
			return errFound
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errFound) {
		return Decision{}, fmt.Errorf("scan %s: %w", sourceDir, walkErr)
	}

	if changed != "" {
		return Decision{
			Required:    true,
			Reason:      ReasonSourceChanged,
			StampTime:   stampTime,
			ChangedFile: changed,
		}, nil
	}
	return Decision{Required: false, Reason: ReasonFresh, StampTime: stampTime}, nil
}

// Touch sets the stamp's modification time to now, creating an empty stamp
// when none exists yet.
func Touch(stampPath string, now time.Time) error {
	err := os.Chtimes(stampPath, now, now)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("update stamp %s: %w", stampPath, err)
	}

	f, err := os.OpenFile(stampPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create stamp %s: %w", stampPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("create stamp %s: %w", stampPath, err)
	}
	if err := os.Chtimes(stampPath, now, now); err != nil {
		return fmt.Errorf("update stamp %s: %w", stampPath, err)
	}
	return nil
}

// Remove deletes the stamp. A missing stamp is not an error.
func Remove(stampPath string) error {
	if err := os.Remove(stampPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stamp %s: %w", stampPath, err)
	}
	return nil
}
