// Package config loads topdown.toml, the per-project settings of the
// command line tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"

	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/resolve"
)

// FileName is the configuration file looked up in a project root.
const FileName = "topdown.toml"

type Config struct {
	Project    string   `toml:"project"`
	Module     string   `toml:"module"`
	Mode       string   `toml:"mode"`
	Cache      string   `toml:"cache"`
	ScriptsDir string   `toml:"scripts_dir"`
	Extensions []string `toml:"extensions"`
	Libraries  []string `toml:"libraries"`
	Exclude    []string `toml:"exclude"`

	Targets []TargetConfig `toml:"targets"`
	Watch   WatchConfig    `toml:"watch"`

	mode     resolve.Mode
	excludes []glob.Glob
	includes [][]glob.Glob
}

// TargetConfig maps source files to a build target by glob patterns
// relative to the project root.
type TargetConfig struct {
	Name    string   `toml:"name"`
	Type    string   `toml:"type"`
	Include []string `toml:"include"`
}

type WatchConfig struct {
	Debounce time.Duration `toml:"debounce"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes and validates a configuration document.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Default is the configuration used when a project has no topdown.toml.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	// The defaults always validate.
	_ = validate(cfg)
	return cfg
}

// LoadDir loads FileName from dir, falling back to Default when the file
// does not exist.
func LoadDir(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Module) == "" {
		cfg.Module = "main"
	}
	if strings.TrimSpace(cfg.Project) == "" {
		cfg.Project = cfg.Module
	}
	if strings.TrimSpace(cfg.Mode) == "" {
		cfg.Mode = "full"
	}
	if strings.TrimSpace(cfg.Cache) == "" {
		cfg.Cache = filepath.Join(".topdown", "cache.db")
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = []TargetConfig{{Name: cfg.Module, Type: "production", Include: []string{"**"}}}
	}
	for i := range cfg.Targets {
		if strings.TrimSpace(cfg.Targets[i].Type) == "" {
			cfg.Targets[i].Type = "production"
		}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
}

func validate(cfg *Config) error {
	mode, err := resolve.ParseMode(cfg.Mode)
	if err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	cfg.mode = mode

	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	for i, ext := range cfg.Extensions {
		if !strings.HasSuffix(ext, ".risor") {
			return fmt.Errorf("extensions[%d]: %q is not a .risor script", i, ext)
		}
	}

	cfg.excludes = cfg.excludes[:0]
	for i, p := range cfg.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return fmt.Errorf("exclude[%d]: invalid pattern %q: %w", i, p, err)
		}
		cfg.excludes = append(cfg.excludes, g)
	}

	seen := make(map[incremental.TargetID]bool, len(cfg.Targets))
	cfg.includes = make([][]glob.Glob, len(cfg.Targets))
	for i, t := range cfg.Targets {
		ref := fmt.Sprintf("targets[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%s.name must not be empty", ref)
		}
		id := incremental.TargetID{Name: t.Name, Type: t.Type}
		if seen[id] {
			return fmt.Errorf("duplicate target %s", id)
		}
		seen[id] = true
		if len(t.Include) == 0 {
			return fmt.Errorf("%s.include must not be empty", ref)
		}
		for _, p := range t.Include {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return fmt.Errorf("%s.include: invalid pattern %q: %w", ref, p, err)
			}
			cfg.includes[i] = append(cfg.includes[i], g)
		}
	}
	return nil
}

// AnalysisMode is the validated mode.
func (c *Config) AnalysisMode() resolve.Mode { return c.mode }

// Excluded reports whether a slash-separated path relative to the project
// root matches an exclude pattern.
func (c *Config) Excluded(rel string) bool {
	for _, g := range c.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// AssignTargets maps files to the configured targets. A file goes to every
// target whose patterns match it; the analysis rejects files claimed twice.
func (c *Config) AssignTargets(files []string) []incremental.Target {
	out := make([]incremental.Target, 0, len(c.Targets))
	for i, t := range c.Targets {
		target := incremental.Target{ID: incremental.TargetID{Name: t.Name, Type: t.Type}}
		for _, f := range files {
			for _, g := range c.includes[i] {
				if g.Match(f) {
					target.SourceFiles = append(target.SourceFiles, f)
					break
				}
			}
		}
		out = append(out, target)
	}
	return out
}

// Resolve makes a path from the configuration absolute against root.
func Resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
