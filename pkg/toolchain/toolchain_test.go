package toolchain_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grovetools/assetbuild/pkg/toolchain"
	"github.com/grovetools/assetbuild/pkg/toolchain/toolchaintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolchainCommands(t *testing.T) {
	tc := toolchain.Default()

	t.Run("Install", func(t *testing.T) {
		cmd := tc.Install("/src")
		assert.Equal(t, "npm", cmd.Name)
		assert.Equal(t, "/src", cmd.Dir)
		assert.Equal(t, []string{"install", "--loglevel=error", "--no-optional", "--no-audit", "--no-fund"}, cmd.Args)
	})

	t.Run("ProductionInstall", func(t *testing.T) {
		cmd := tc.ProductionInstall("/src/.deploy")
		assert.Equal(t, "/src/.deploy", cmd.Dir)
		assert.Contains(t, cmd.Args, "--production")
		assert.Contains(t, cmd.Args, "--no-bin-links")
		assert.Contains(t, cmd.Args, "--no-audit")
	})

	t.Run("Compile", func(t *testing.T) {
		cmd := tc.Compile("/src", "/src/.deploy")
		assert.Equal(t, "npx", cmd.Name)
		assert.Equal(t, []string{"tsc", "--outDir", "/src/.deploy", "--skipLibCheck"}, cmd.Args)
	})

	t.Run("CustomTools", func(t *testing.T) {
		custom := toolchain.Toolchain{
			Installer:   "pnpm",
			Compiler:    "node_modules/.bin/tsc",
			InstallArgs: []string{"--prefer-offline"},
			CompileArgs: []string{"-p", "tsconfig.build.json"},
		}
		install := custom.Install("/src")
		assert.Equal(t, "pnpm", install.Name)
		assert.Equal(t, "--prefer-offline", install.Args[len(install.Args)-1])

		compile := custom.Compile("/src", "out")
		assert.Equal(t, "node_modules/.bin/tsc", compile.Name)
		assert.Equal(t, "npm", toolchain.Toolchain{}.Install("/").Name)
		assert.Equal(t, "node_modules/.bin/tsc --outDir out --skipLibCheck -p tsconfig.build.json", compile.String())
	})
}

func TestVersions(t *testing.T) {
	rec := toolchaintest.New().
		On("node --version", func(toolchain.Command) ([]byte, error) { return []byte("v20.11.1\n"), nil }).
		On("npm --version", func(toolchain.Command) ([]byte, error) { return []byte("10.2.4\n"), nil })

	v, err := toolchain.Default().Versions(context.Background(), rec, "/src")
	require.NoError(t, err)
	assert.Equal(t, "20.11.1", v.Node)
	assert.Equal(t, "10.2.4", v.Installer)

	failing := toolchaintest.New().On("node", func(toolchain.Command) ([]byte, error) {
		return nil, errors.New("not found")
	})
	_, err = toolchain.Default().Versions(context.Background(), failing, "/src")
	assert.Error(t, err)
}

func TestEngines(t *testing.T) {
	v := toolchain.Versions{Node: "20.11.1", Installer: "9.1.0"}

	assert.Equal(t, map[string]string{"node": "20.11.1", "npm": "9.1.0"}, toolchain.Default().Engines(v))
	assert.Equal(t, map[string]string{"node": "20.11.1", "pnpm": "9.1.0"}, toolchain.Toolchain{Installer: "pnpm"}.Engines(v))
}

func TestExecRunner(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	t.Run("Success", func(t *testing.T) {
		dir := t.TempDir()
		r := toolchain.NewExecRunner(nil)
		res, err := r.Run(context.Background(), toolchain.Command{
			Name: "sh",
			Args: []string{"-c", "pwd; echo err >&2"},
			Dir:  dir,
		})
		require.NoError(t, err)
		out := string(res.Output)
		resolved, _ := filepath.EvalSymlinks(dir)
		assert.True(t, strings.Contains(out, dir) || strings.Contains(out, resolved), "output: %s", out)
		assert.Contains(t, out, "err")
	})

	t.Run("NonZeroExit", func(t *testing.T) {
		r := toolchain.NewExecRunner(nil)
		_, err := r.Run(context.Background(), toolchain.Command{
			Name: "sh",
			Args: []string{"-c", "echo compile failed; exit 3"},
		})
		require.Error(t, err)

		var cerr *toolchain.CommandError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, 3, cerr.ExitCode)
		assert.Contains(t, err.Error(), "exit status 3")
		assert.Contains(t, err.Error(), "compile failed")
	})

	t.Run("MissingBinary", func(t *testing.T) {
		r := toolchain.NewExecRunner(nil)
		_, err := r.Run(context.Background(), toolchain.Command{Name: "definitely-not-a-real-binary-xyz"})
		var cerr *toolchain.CommandError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, -1, cerr.ExitCode)
	})

	t.Run("EnvAndPath", func(t *testing.T) {
		dir := t.TempDir()
		binDir := filepath.Join(dir, "node_modules", ".bin")
		require.NoError(t, os.MkdirAll(binDir, 0755))
		script := "#!/bin/sh\necho \"fake-tsc $GREETING\"\n"
		require.NoError(t, os.WriteFile(filepath.Join(binDir, "fake-tsc"), []byte(script), 0755))

		var stream bytes.Buffer
		r := toolchain.NewExecRunner(&toolchain.RunOptions{
			ExtraPathDirs: []string{filepath.Join("node_modules", ".bin")},
			Env:           map[string]string{"GREETING": "hello"},
			Stream:        &stream,
		})
		res, err := r.Run(context.Background(), toolchain.Command{Name: "fake-tsc", Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, "fake-tsc hello\n", string(res.Output))
		assert.Equal(t, "fake-tsc hello\n", stream.String())
	})

	t.Run("ContextCancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := toolchain.NewExecRunner(nil)
		_, err := r.Run(ctx, toolchain.Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
		assert.Error(t, err)
	})
}
