// Package config loads run configuration from an optional YAML file,
// then applies WASTESIM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/wastesim/internal/engine"
)

// Config holds everything the wastesim binary needs.
type Config struct {
	Width        int   `yaml:"width"`
	Height       int   `yaml:"height"`
	Collectors   int   `yaml:"collectors"`
	Sorters      int   `yaml:"sorters"`
	Recyclers    int   `yaml:"recyclers"`
	MaxSteps     int   `yaml:"max_steps"`
	InitialWaste int   `yaml:"initial_waste"`
	Seed         int64 `yaml:"seed"` // 0 = random

	TickInterval time.Duration `yaml:"tick_interval"`
	Port         int           `yaml:"port"`
	DBPath       string        `yaml:"db_path"`
	ArchiveDir   string        `yaml:"archive_dir"` // Empty disables the journal archive
	LogLevel     string        `yaml:"log_level"`
}

// Default returns the standard configuration.
func Default() Config {
	p := engine.DefaultParams()
	return Config{
		Width:        p.Width,
		Height:       p.Height,
		Collectors:   p.Collectors,
		Sorters:      p.Sorters,
		Recyclers:    p.Recyclers,
		MaxSteps:     p.MaxSteps,
		InitialWaste: engine.DefaultInitialWaste,
		TickInterval: time.Second,
		Port:         8522,
		DBPath:       "data/wastesim.db",
		ArchiveDir:   "data/journal",
		LogLevel:     "info",
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment, then validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Params returns the model construction parameters.
func (c Config) Params() engine.Params {
	return engine.Params{
		Width:      c.Width,
		Height:     c.Height,
		Collectors: c.Collectors,
		Sorters:    c.Sorters,
		Recyclers:  c.Recyclers,
		MaxSteps:   c.MaxSteps,
	}
}

// Validate checks model parameters and the ambient settings.
func (c Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.InitialWaste < 0 {
		return fmt.Errorf("%w: initial_waste %d", engine.ErrInvalidConfig, c.InitialWaste)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("%w: tick_interval %s", engine.ErrInvalidConfig, c.TickInterval)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", engine.ErrInvalidConfig, c.Port)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: log_level %q", engine.ErrInvalidConfig, name)
	}
}

// envVar binds one environment variable to a config field.
type envVar struct {
	name string
	set  func(c *Config, v string) error
}

var envVars = []envVar{
	{"WASTESIM_WIDTH", intField(func(c *Config) *int { return &c.Width })},
	{"WASTESIM_HEIGHT", intField(func(c *Config) *int { return &c.Height })},
	{"WASTESIM_COLLECTORS", intField(func(c *Config) *int { return &c.Collectors })},
	{"WASTESIM_SORTERS", intField(func(c *Config) *int { return &c.Sorters })},
	{"WASTESIM_RECYCLERS", intField(func(c *Config) *int { return &c.Recyclers })},
	{"WASTESIM_MAX_STEPS", intField(func(c *Config) *int { return &c.MaxSteps })},
	{"WASTESIM_INITIAL_WASTE", intField(func(c *Config) *int { return &c.InitialWaste })},
	{"WASTESIM_PORT", intField(func(c *Config) *int { return &c.Port })},
	{"WASTESIM_SEED", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.Seed = n
		return nil
	}},
	{"WASTESIM_TICK_INTERVAL", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.TickInterval = d
		return nil
	}},
	{"WASTESIM_DB_PATH", func(c *Config, v string) error { c.DBPath = v; return nil }},
	{"WASTESIM_ARCHIVE_DIR", func(c *Config, v string) error { c.ArchiveDir = v; return nil }},
	{"WASTESIM_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
}

func intField(field func(c *Config) *int) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok {
			continue
		}
		if err := ev.set(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", ev.name, v, err))
		}
	}
	return errors.Join(errs...)
}
