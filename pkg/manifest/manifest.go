// Package manifest reads package.json and copies the manifest and lockfile
// into a build output directory.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const FileName = "package.json"

// LockFiles are copied next to the manifest when present, in this order.
var LockFiles = []string{"package-lock.json", "npm-shrinkwrap.json"}

// PackageJSON is the subset of package.json this tool reads.
type PackageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Main            string            `json:"main,omitempty"`
	Engines         map[string]string `json:"engines,omitempty"`
	Scripts         map[string]string `json:"scripts,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// Exists reports whether dir has a package.json.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil && info.Mode().IsRegular()
}

// Load parses dir/package.json.
func Load(dir string) (*PackageJSON, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &pkg, nil
}

// CopyInto copies package.json and any lockfile from srcDir into outDir.
// It returns the names of the copied files, and nothing when srcDir has no manifest.
func CopyInto(srcDir, outDir string) ([]string, error) {
	if !Exists(srcDir) {
		return nil, nil
	}

	names := append([]string{FileName}, LockFiles...)
	var copied []string
	for _, name := range names {
		src := filepath.Join(srcDir, name)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return copied, fmt.Errorf("stat %s: %w", src, err)
		}
		if err := copyFile(src, filepath.Join(outDir, name)); err != nil {
			return copied, err
		}
		copied = append(copied, name)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// EngineError reports a tool version that does not satisfy package.json engines.
type EngineError struct {
	Engine     string
	Version    string
	Constraint string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s %s does not satisfy engines.%s %q", e.Engine, e.Version, e.Engine, e.Constraint)
}

// CheckEngines validates the engines constraints in pkg against the given
// versions, keyed by engine name ("node", "npm"). Engines without a constraint
// or without a known version are skipped.
func CheckEngines(pkg *PackageJSON, versions map[string]string) error {
	if pkg == nil {
		return nil
	}
	for engine, constraint := range pkg.Engines {
		constraint = strings.TrimSpace(constraint)
		version := versions[engine]
		if constraint == "" || constraint == "*" || version == "" {
			continue
		}

		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return fmt.Errorf("invalid engines.%s constraint %q: %w", engine, constraint, err)
		}
		v, err := semver.NewVersion(version)
		if err != nil {
			return fmt.Errorf("invalid %s version %q: %w", engine, version, err)
		}
		if !c.Check(v) {
			return &EngineError{Engine: engine, Version: version, Constraint: constraint}
		}
	}
	return nil
}
