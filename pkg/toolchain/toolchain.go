// Package toolchain builds and runs the package manager and compiler
// invocations used to produce a deployable Node/TypeScript output directory.
package toolchain

import (
	"context"
	"fmt"
	"strings"
)

const (
	DefaultInstaller = "npm"
	DefaultCompiler  = "npx tsc"
)

// Flags shared by both install passes: quiet logging, no optional packages,
// no audit, no funding banner.
var quietInstallFlags = []string{"--loglevel=error", "--no-optional", "--no-audit", "--no-fund"}

// Toolchain describes how to invoke the package installer and the compiler.
type Toolchain struct {
	Installer   string   // e.g. "npm"
	Compiler    string   // e.g. "npx tsc"; split on whitespace
	InstallArgs []string // appended to both install invocations
	CompileArgs []string // appended to the compile invocation
}

// Default returns the npm + tsc toolchain.
func Default() Toolchain {
	return Toolchain{
		Installer: DefaultInstaller,
		Compiler:  DefaultCompiler,
	}
}

// Install is the full install, development dependencies included.
func (t Toolchain) Install(dir string) Command {
	args := append([]string{"install"}, quietInstallFlags...)
	args = append(args, t.InstallArgs...)
	return Command{Name: t.installer(), Args: args, Dir: dir}
}

// ProductionInstall installs only production dependencies and does not
// create executable symlinks.
func (t Toolchain) ProductionInstall(dir string) Command {
	args := append([]string{"install"}, quietInstallFlags...)
	args = append(args, "--production", "--no-bin-links")
	args = append(args, t.InstallArgs...)
	return Command{Name: t.installer(), Args: args, Dir: dir}
}

// Compile emits into outDir, skipping type checks of dependency declarations.
func (t Toolchain) Compile(dir, outDir string) Command {
	fields := strings.Fields(t.Compiler)
	if len(fields) == 0 {
		fields = strings.Fields(DefaultCompiler)
	}
	args := append([]string{}, fields[1:]...)
	args = append(args, "--outDir", outDir, "--skipLibCheck")
	args = append(args, t.CompileArgs...)
	return Command{Name: fields[0], Args: args, Dir: dir}
}

// Versions holds the reported versions of the tools in use.
type Versions struct {
	Node      string
	Installer string
}

// Versions asks node and the installer for their versions.
func (t Toolchain) Versions(ctx context.Context, r Runner, dir string) (Versions, error) {
	var v Versions

	res, err := r.Run(ctx, Command{Name: "node", Args: []string{"--version"}, Dir: dir})
	if err != nil {
		return v, fmt.Errorf("node version: %w", err)
	}
	v.Node = cleanVersion(res.Output)

	res, err = r.Run(ctx, Command{Name: t.installer(), Args: []string{"--version"}, Dir: dir})
	if err != nil {
		return v, fmt.Errorf("%s version: %w", t.installer(), err)
	}
	v.Installer = cleanVersion(res.Output)

	return v, nil
}

// Engines maps v to the keys used by the package.json engines field.
func (t Toolchain) Engines(v Versions) map[string]string {
	return map[string]string{
		"node":        v.Node,
		t.installer(): v.Installer,
	}
}

func (t Toolchain) installer() string {
	if t.Installer == "" {
		return DefaultInstaller
	}
	return t.Installer
}

func cleanVersion(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}
