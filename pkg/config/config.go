// Package config loads assetbuild settings from a project file
// (assetbuild.yml, assetbuild.yaml or assetbuild.toml) layered over the
// user's global defaults in ~/.config/assetbuild/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	burnt "github.com/BurntSushi/toml"
	"github.com/grovetools/assetbuild/pkg/asset"
	"github.com/grovetools/assetbuild/pkg/build"
	"github.com/grovetools/assetbuild/pkg/toolchain"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ProjectFiles are searched in this order in the source directory.
var ProjectFiles = []string{"assetbuild.yml", "assetbuild.yaml", "assetbuild.toml"}

// Config holds build settings for one source directory.
type Config struct {
	Installer    string   `yaml:"installer,omitempty" toml:"installer,omitempty" json:"installer,omitempty" jsonschema:"description=Package manager binary used for both install passes,default=npm"`
	Compiler     string   `yaml:"compiler,omitempty" toml:"compiler,omitempty" json:"compiler,omitempty" jsonschema:"description=Compiler command line; split on whitespace,default=npx tsc"`
	InstallArgs  []string `yaml:"install_args,omitempty" toml:"install_args,omitempty" json:"install_args,omitempty" jsonschema:"description=Extra arguments appended to every install"`
	CompileArgs  []string `yaml:"compile_args,omitempty" toml:"compile_args,omitempty" json:"compile_args,omitempty" jsonschema:"description=Extra arguments appended to the compile"`
	OutputDir    string   `yaml:"output_dir,omitempty" toml:"output_dir,omitempty" json:"output_dir,omitempty" jsonschema:"description=Output directory relative to the source directory,default=.deploy"`
	StampFile    string   `yaml:"stamp_file,omitempty" toml:"stamp_file,omitempty" json:"stamp_file,omitempty" jsonschema:"description=Stamp file relative to the source directory; defaults to output_dir + .stamp"`
	Exclude      []string `yaml:"exclude,omitempty" toml:"exclude,omitempty" json:"exclude,omitempty" jsonschema:"description=Directory names ignored by the freshness scan"`
	EnvFile      string   `yaml:"env_file,omitempty" toml:"env_file,omitempty" json:"env_file,omitempty" jsonschema:"description=Dotenv file whose variables are passed to every tool"`
	Path         []string `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty" jsonschema:"description=Directories prepended to PATH for every tool"`
	OnFailure    string   `yaml:"on_failure,omitempty" toml:"on_failure,omitempty" json:"on_failure,omitempty" jsonschema:"enum=abort,enum=continue,description=What bind does when the build fails,default=abort"`
	CheckEngines *bool    `yaml:"check_engines,omitempty" toml:"check_engines,omitempty" json:"check_engines,omitempty" jsonschema:"description=Validate package.json engines before installing"`

	// Source is the file the project settings came from, if any.
	Source string `yaml:"-" toml:"-" json:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Installer: toolchain.DefaultInstaller,
		Compiler:  toolchain.DefaultCompiler,
		OutputDir: build.DefaultOutputDir,
		Exclude:   []string{build.DependencyDir},
		Path:      []string{filepath.Join(build.DependencyDir, ".bin")},
		OnFailure: string(asset.PolicyAbort),
	}
}

// Load resolves the configuration for sourceDir: defaults, then the global
// file, then explicitPath if given or else the first project file found.
func Load(sourceDir, explicitPath string) (*Config, error) {
	cfg := Default()

	if global := GlobalConfigPath(); global != "" {
		g, err := loadGlobal(global)
		if err != nil {
			return nil, err
		}
		if g != nil {
			cfg.Merge(g)
		}
	}

	path := explicitPath
	if path == "" {
		path = FindProjectFile(sourceDir)
	}
	if path != "" {
		p, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(p)
		cfg.Source = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindProjectFile returns the first project config file in dir, or "".
func FindProjectFile(dir string) string {
	for _, name := range ProjectFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// LoadFile parses a single config file, choosing the format by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
	cfg.Source = path
	return &cfg, nil
}

// GlobalConfigPath returns ~/.config/assetbuild/config.toml, or
// $ASSETBUILD_CONFIG_DIR/config.toml when set.
func GlobalConfigPath() string {
	if dir := os.Getenv("ASSETBUILD_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "assetbuild", "config.toml")
}

// loadGlobal decodes the global defaults. A missing file is not an error.
func loadGlobal(path string) (*Config, error) {
	var cfg Config
	md, err := burnt.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing global config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("global config %s: unknown keys %v", path, undecoded)
	}
	return &cfg, nil
}

// Merge overlays the set fields of other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Installer != "" {
		c.Installer = other.Installer
	}
	if other.Compiler != "" {
		c.Compiler = other.Compiler
	}
	if other.InstallArgs != nil {
		c.InstallArgs = other.InstallArgs
	}
	if other.CompileArgs != nil {
		c.CompileArgs = other.CompileArgs
	}
	if other.OutputDir != "" {
		c.OutputDir = other.OutputDir
	}
	if other.StampFile != "" {
		c.StampFile = other.StampFile
	}
	if other.Exclude != nil {
		c.Exclude = other.Exclude
	}
	if other.EnvFile != "" {
		c.EnvFile = other.EnvFile
	}
	if other.Path != nil {
		c.Path = other.Path
	}
	if other.OnFailure != "" {
		c.OnFailure = other.OnFailure
	}
	if other.CheckEngines != nil {
		v := *other.CheckEngines
		c.CheckEngines = &v
	}
}

// Validate rejects settings the orchestrator cannot honor.
func (c *Config) Validate() error {
	if _, err := asset.ParsePolicy(c.OnFailure); err != nil {
		return err
	}
	if c.OutputDir == "" || c.OutputDir == "." || filepath.IsAbs(c.OutputDir) || strings.HasPrefix(filepath.Clean(c.OutputDir), "..") {
		return fmt.Errorf("output_dir must be a subdirectory of the source directory, got %q", c.OutputDir)
	}
	if c.StampFile != "" && filepath.Clean(c.StampFile) == filepath.Clean(c.OutputDir) {
		return fmt.Errorf("stamp_file must differ from output_dir")
	}
	if strings.TrimSpace(c.Compiler) == "" {
		return fmt.Errorf("compiler must not be empty")
	}
	return nil
}

// Policy returns the parsed failure policy.
func (c *Config) Policy() asset.FailurePolicy {
	p, err := asset.ParsePolicy(c.OnFailure)
	if err != nil {
		return asset.PolicyAbort
	}
	return p
}

// EnginesEnabled reports whether engines checking is on.
func (c *Config) EnginesEnabled() bool {
	return c.CheckEngines != nil && *c.CheckEngines
}

// Toolchain returns the toolchain described by c.
func (c *Config) Toolchain() toolchain.Toolchain {
	return toolchain.Toolchain{
		Installer:   c.Installer,
		Compiler:    c.Compiler,
		InstallArgs: c.InstallArgs,
		CompileArgs: c.CompileArgs,
	}
}

// Env reads env_file relative to sourceDir. No env_file means no variables.
func (c *Config) Env(sourceDir string) (map[string]string, error) {
	if c.EnvFile == "" {
		return nil, nil
	}
	path := c.EnvFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(sourceDir, path)
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env_file %s: %w", path, err)
	}
	return env, nil
}
