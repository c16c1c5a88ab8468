// Package config loads the .refine.yaml configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/refine/internal/bench"
	"github.com/gnolang/refine/internal/catalog"
	"github.com/gnolang/refine/internal/experience"
	"github.com/gnolang/refine/internal/policy"
	"github.com/gnolang/refine/internal/session"
)

// DefaultPath is where the CLI looks for a configuration file.
const DefaultPath = ".refine.yaml"

// Config is the full configuration of a refine run.
type Config struct {
	Name       string                `yaml:"name"`
	Session    session.Config        `yaml:"session"`
	Policy     policy.Config         `yaml:"policy"`
	Experience ExperienceConfig      `yaml:"experience"`
	Bench      bench.Config          `yaml:"bench"`
	Store      StoreConfig           `yaml:"store"`
	Batch      BatchConfig           `yaml:"batch"`
	Rules      []catalog.LiteralRule `yaml:"rules,omitempty"`
}

type ExperienceConfig struct {
	Capacity int `yaml:"capacity"`
}

type StoreConfig struct {
	// Path of the SQLite database. Empty disables persistence.
	Path string `yaml:"path"`
}

type BatchConfig struct {
	// Workers bounds concurrent sessions; 0 means one per CPU.
	Workers  int    `yaml:"workers"`
	CacheDir string `yaml:"cache_dir"`

	// CacheMaxAge expires cached results; 0 keeps them until the file changes.
	CacheMaxAge time.Duration `yaml:"cache_max_age"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Name:       "refine",
		Session:    session.DefaultConfig(),
		Policy:     policy.DefaultConfig(),
		Experience: ExperienceConfig{Capacity: experience.DefaultCapacity},
		Bench:      bench.DefaultConfig(),
		Store:      StoreConfig{Path: ".refine.db"},
		Batch:      BatchConfig{CacheDir: ".refine-cache"},
	}
}

// Load reads the configuration at path on top of the defaults. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Session.MaxSteps < 0 || c.Session.BatchSize < 0 {
		return errors.New("session: max_steps and batch_size must not be negative")
	}
	if c.Experience.Capacity < 0 {
		return errors.New("experience: capacity must not be negative")
	}
	if c.Batch.Workers < 0 {
		return errors.New("batch: workers must not be negative")
	}
	if c.Batch.CacheMaxAge < 0 {
		return errors.New("batch: cache_max_age must not be negative")
	}
	for i := range c.Rules {
		if err := c.Rules[i].Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return nil
}

// CustomRules returns the configured rules as catalog rules.
func (c Config) CustomRules() []catalog.Rule {
	out := make([]catalog.Rule, len(c.Rules))
	for i := range c.Rules {
		r := c.Rules[i]
		out[i] = &r
	}
	return out
}

// Write stores cfg as YAML at path, replacing any existing file.
func Write(path string, cfg Config) error {
	if path == "" {
		path = DefaultPath
	}
	d, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(d)
	return err
}
