package asset_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/assetbuild/pkg/asset"
	"github.com/grovetools/assetbuild/pkg/build"
	"github.com/grovetools/assetbuild/pkg/toolchain"
	"github.com/grovetools/assetbuild/pkg/toolchain/toolchaintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestDirectoryCode(t *testing.T) {
	ctx := context.Background()

	t.Run("HashIsStableAndContentSensitive", func(t *testing.T) {
		a := t.TempDir()
		b := t.TempDir()
		files := map[string]string{"index.js": "exports.x = 1", "lib/util.js": "module.exports = {}"}
		writeTree(t, a, files)
		writeTree(t, b, files)

		locA, err := asset.FromDirectory(a).Bind(ctx, asset.Target{Name: "OrdersFn"})
		require.NoError(t, err)
		locB, err := asset.FromDirectory(b).Bind(ctx, asset.Target{Name: "OrdersFn"})
		require.NoError(t, err)
		assert.Equal(t, a, locA.Path)
		assert.Len(t, locA.Hash, 64)
		assert.Equal(t, locA.Hash, locB.Hash)

		writeTree(t, b, map[string]string{"lib/util.js": "module.exports = {changed: true}"})
		locB2, err := asset.FromDirectory(b).Bind(ctx, asset.Target{})
		require.NoError(t, err)
		assert.NotEqual(t, locA.Hash, locB2.Hash)
	})

	t.Run("RenameChangesHash", func(t *testing.T) {
		a := t.TempDir()
		b := t.TempDir()
		writeTree(t, a, map[string]string{"a.js": "x"})
		writeTree(t, b, map[string]string{"b.js": "x"})

		ha, err := asset.HashDir(ctx, a)
		require.NoError(t, err)
		hb, err := asset.HashDir(ctx, b)
		require.NoError(t, err)
		assert.NotEqual(t, ha, hb)
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		_, err := asset.FromDirectory(filepath.Join(t.TempDir(), "missing")).Bind(ctx, asset.Target{})
		assert.Error(t, err)
	})

	t.Run("FileInsteadOfDirectory", func(t *testing.T) {
		dir := t.TempDir()
		writeTree(t, dir, map[string]string{"file": "x"})
		_, err := asset.FromDirectory(filepath.Join(dir, "file")).Bind(ctx, asset.Target{})
		assert.Error(t, err)
	})
}

func fakeCompiler(cmd toolchain.Command) ([]byte, error) {
	for i, a := range cmd.Args {
		if a == "--outDir" {
			return nil, os.WriteFile(filepath.Join(cmd.Args[i+1], "index.js"), []byte("ok"), 0644)
		}
	}
	return nil, nil
}

func newSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"package.json": `{"name":"fn"}`,
		"index.ts":     "export {}",
	})
	past := time.Now().Add(-time.Hour)
	for _, name := range []string{"package.json", "index.ts"} {
		require.NoError(t, os.Chtimes(filepath.Join(dir, name), past, past))
	}
	return dir
}

func TestBuiltCode(t *testing.T) {
	ctx := context.Background()

	t.Run("BuildsThenBindsOutput", func(t *testing.T) {
		src := newSource(t)
		rec := toolchaintest.New().On("tsc", fakeCompiler)
		code := asset.FromSource(src, build.New(build.Options{Runner: rec}))

		loc, err := code.Bind(ctx, asset.Target{Name: "OrdersFn", Stage: "prod"})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(src, ".deploy"), loc.Path)
		require.NotNil(t, loc.Build)
		assert.Equal(t, build.StatusBuilt, loc.Build.Status)
		assert.NotEmpty(t, loc.Hash)

		// Bound twice in the same run: no second build, same location.
		again, err := code.Bind(ctx, asset.Target{Name: "OrdersFn"})
		require.NoError(t, err)
		assert.Equal(t, build.StatusMemoized, again.Build.Status)
		assert.Equal(t, loc.Hash, again.Hash)
		assert.Len(t, rec.Commands(), 3)
	})

	t.Run("AbortPolicyReturnsBuildError", func(t *testing.T) {
		src := newSource(t)
		rec := toolchaintest.New().On("tsc", func(toolchain.Command) ([]byte, error) {
			return []byte("error TS2304: Cannot find name 'foo'."), errors.New("exit status 2")
		})
		code := asset.FromSource(src, build.New(build.Options{Runner: rec}))

		loc, err := code.Bind(ctx, asset.Target{Name: "OrdersFn"})
		assert.Nil(t, loc)
		var berr *asset.BuildError
		require.True(t, errors.As(err, &berr))
		assert.Equal(t, build.StepCompile, berr.Result.FailedStep())

		var cerr *toolchain.CommandError
		assert.True(t, errors.As(err, &cerr))
	})

	t.Run("ContinuePolicyBindsExistingOutput", func(t *testing.T) {
		src := newSource(t)
		rec := toolchaintest.New().On("--production", func(toolchain.Command) ([]byte, error) {
			return nil, errors.New("exit status 1")
		}).On("tsc", fakeCompiler)
		code := asset.FromSource(src, build.New(build.Options{Runner: rec}))
		code.Policy = asset.PolicyContinue

		loc, err := code.Bind(ctx, asset.Target{Name: "OrdersFn"})
		require.NoError(t, err)
		assert.Equal(t, build.StatusFailed, loc.Build.Status)
		assert.FileExists(t, filepath.Join(loc.Path, "index.js"))
		assert.NoFileExists(t, filepath.Join(src, ".deploy.stamp"))
	})
}

func TestParsePolicy(t *testing.T) {
	p, err := asset.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, asset.PolicyAbort, p)

	p, err = asset.ParsePolicy("continue")
	require.NoError(t, err)
	assert.Equal(t, asset.PolicyContinue, p)

	_, err = asset.ParsePolicy("ignore")
	assert.Error(t, err)
}

// Both implementations satisfy the framework contract.
var (
	_ asset.Code = (*asset.DirectoryCode)(nil)
	_ asset.Code = (*asset.BuiltCode)(nil)
)
