package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/assetbuild/pkg/asset"
	"github.com/grovetools/assetbuild/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the global config at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ASSETBUILD_CONFIG_DIR", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := config.Load(t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, "npm", cfg.Installer)
	assert.Equal(t, "npx tsc", cfg.Compiler)
	assert.Equal(t, ".deploy", cfg.OutputDir)
	assert.Equal(t, []string{"node_modules"}, cfg.Exclude)
	assert.Equal(t, asset.PolicyAbort, cfg.Policy())
	assert.False(t, cfg.EnginesEnabled())
	assert.Empty(t, cfg.Source)
}

func TestLoadProjectYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	content := `installer: pnpm
compile_args: ["-p", "tsconfig.build.json"]
on_failure: continue
check_engines: true
exclude: [node_modules, coverage]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetbuild.yml"), []byte(content), 0644))

	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "pnpm", cfg.Installer)
	assert.Equal(t, "npx tsc", cfg.Compiler)
	assert.Equal(t, []string{"-p", "tsconfig.build.json"}, cfg.CompileArgs)
	assert.Equal(t, asset.PolicyContinue, cfg.Policy())
	assert.True(t, cfg.EnginesEnabled())
	assert.Equal(t, []string{"node_modules", "coverage"}, cfg.Exclude)
	assert.Equal(t, filepath.Join(dir, "assetbuild.yml"), cfg.Source)

	tc := cfg.Toolchain()
	assert.Equal(t, "pnpm", tc.Installer)
}

func TestLoadProjectTOML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	content := `output_dir = "build"
stamp_file = ".build-stamp"
compiler = "node_modules/.bin/tsc"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetbuild.toml"), []byte(content), 0644))

	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "build", cfg.OutputDir)
	assert.Equal(t, ".build-stamp", cfg.StampFile)
	assert.Equal(t, "node_modules/.bin/tsc", cfg.Compiler)
}

func TestGlobalDefaultsAreLayered(t *testing.T) {
	global := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(global, "config.toml"), []byte(`installer = "yarn"
on_failure = "continue"
`), 0644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetbuild.yaml"), []byte("on_failure: abort\n"), 0644))

	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "yarn", cfg.Installer, "global value kept")
	assert.Equal(t, asset.PolicyAbort, cfg.Policy(), "project overrides global")

	t.Run("UnknownGlobalKey", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(global, "config.toml"), []byte(`instaler = "yarn"`), 0644))
		_, err := config.Load(dir, "")
		assert.Error(t, err)
	})
}

func TestExplicitPath(t *testing.T) {
	isolate(t)
	other := filepath.Join(t.TempDir(), "ci.yml")
	require.NoError(t, os.WriteFile(other, []byte("output_dir: dist\n"), 0644))

	cfg, err := config.Load(t.TempDir(), other)
	require.NoError(t, err)
	assert.Equal(t, "dist", cfg.OutputDir)

	_, err = config.Load(t.TempDir(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	unsupported := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(unsupported, []byte("{}"), 0644))
	_, err = config.Load(t.TempDir(), unsupported)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"unknown policy", func(c *config.Config) { c.OnFailure = "ignore" }},
		{"absolute output", func(c *config.Config) { c.OutputDir = "/tmp/out" }},
		{"parent output", func(c *config.Config) { c.OutputDir = "../out" }},
		{"dot output", func(c *config.Config) { c.OutputDir = "." }},
		{"stamp equals output", func(c *config.Config) { c.StampFile = ".deploy" }},
		{"empty compiler", func(c *config.Config) { c.Compiler = "  " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, config.Default().Validate())
}

func TestEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.build"), []byte("NODE_ENV=production\nNPM_CONFIG_REGISTRY=https://registry.example.com\n"), 0644))

	cfg := config.Default()
	env, err := cfg.Env(dir)
	require.NoError(t, err)
	assert.Nil(t, env)

	cfg.EnvFile = ".env.build"
	env, err = cfg.Env(dir)
	require.NoError(t, err)
	assert.Equal(t, "production", env["NODE_ENV"])
	assert.Equal(t, "https://registry.example.com", env["NPM_CONFIG_REGISTRY"])

	cfg.EnvFile = "missing.env"
	_, err = cfg.Env(dir)
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	data, err := config.SchemaJSON()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "assetbuild configuration", doc["title"])

	props, ok := doc["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "output_dir")
	assert.Contains(t, props, "on_failure")
	assert.NotContains(t, props, "Source")
}
