// Package asset exposes build outputs to a deployment framework through a
// small "bind to a target, get a code location" contract.
package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/grovetools/assetbuild/pkg/build"
)

// Target is the deployment target a code location is bound to. It is passed
// through untouched; the framework owns its meaning.
type Target struct {
	Name  string `json:"name"`
	Stage string `json:"stage,omitempty"`
}

// Location describes where deployable code lives.
type Location struct {
	Path  string        `json:"path"`
	Hash  string        `json:"hash"`
	Build *build.Result `json:"build,omitempty"`
}

// Code is anything that can resolve itself into a deployable location.
type Code interface {
	Bind(ctx context.Context, target Target) (*Location, error)
}

// DirectoryCode is a code location backed by an existing directory.
type DirectoryCode struct {
	Path string
}

// FromDirectory creates a DirectoryCode.
func FromDirectory(path string) *DirectoryCode {
	return &DirectoryCode{Path: path}
}

// Bind checks the directory and returns its location and content hash.
func (d *DirectoryCode) Bind(ctx context.Context, target Target) (*Location, error) {
	abs, err := filepath.Abs(d.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("asset directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset directory %s is not a directory", abs)
	}

	hash, err := HashDir(ctx, abs)
	if err != nil {
		return nil, err
	}
	return &Location{Path: abs, Hash: hash}, nil
}

// HashDir returns a sha256 over the sorted relative paths and contents of
// every regular file under dir.
func HashDir(ctx context.Context, dir string) (string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", dir, err)
	}
	sort.Strings(files)

	h := sha256.New()
	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		if err := hashFile(h, path); err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	return nil
}
