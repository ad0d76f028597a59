// Package config loads outline.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"

	"github.com/jward/outline/internal/extract"
)

// DefaultFile is the config file name looked up in the project root.
const DefaultFile = "outline.toml"

type Config struct {
	// TabSize is the tab stop used to measure indentation.
	TabSize int `toml:"tab_size"`
	// Workers bounds the analysis worker pool; 0 means one per CPU.
	Workers int `toml:"workers"`
	// Exclude lists glob patterns, matched against slash-separated paths
	// relative to the analyzed root.
	Exclude []string `toml:"exclude"`
	// Extensions lists the file suffixes treated as source units.
	Extensions []string        `toml:"extensions"`
	Decorators extract.Markers `toml:"decorators"`
	Store      StoreConfig     `toml:"store"`
	Rules      RulesConfig     `toml:"rules"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type RulesConfig struct {
	// Dir holds *.risor rule scripts run by `outline check`.
	Dir string `toml:"dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, nil)
	return cfg
}

// Load reads and validates the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes TOML text into a validated Config.
func Parse(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q", undecoded[0].String())
	}

	applyDefaults(&cfg, &md)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDir loads DefaultFile from dir, falling back to Default when the
// file does not exist.
func LoadDir(dir string) (*Config, error) {
	path := filepath.Join(dir, DefaultFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// applyDefaults fills unset keys. Marker lists keep an explicitly empty
// value, so md is consulted for presence.
func applyDefaults(cfg *Config, md *toml.MetaData) {
	if cfg.TabSize == 0 {
		cfg.TabSize = 8
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".py", ".pyi"}
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = ".outline.db"
	}

	defined := func(key string) bool {
		return md != nil && md.IsDefined("decorators", key)
	}
	defaults := extract.DefaultMarkers()
	if !defined("static") {
		cfg.Decorators.Static = defaults.Static
	}
	if !defined("classmethod") {
		cfg.Decorators.ClassMethod = defaults.ClassMethod
	}
	if !defined("property") {
		cfg.Decorators.Property = defaults.Property
	}
}

func validate(cfg *Config) error {
	if cfg.TabSize < 1 || cfg.TabSize > 16 {
		return fmt.Errorf("config: tab_size must be between 1 and 16, got %d", cfg.TabSize)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", cfg.Workers)
	}
	for _, p := range cfg.Exclude {
		if _, err := glob.Compile(p, '/'); err != nil {
			return fmt.Errorf("config: exclude pattern %q: %w", p, err)
		}
	}
	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("config: extension %q must start with a dot", ext)
		}
	}
	return nil
}
