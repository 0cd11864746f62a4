// Package config provides configuration loading and access for diffusion runs.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"
	"unicode/utf8"

	"github.com/pthm-cable/sap/diffusion"
	"github.com/pthm-cable/sap/symbols"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Mode names accepted by diffusion.mode.
const (
	ModeInPlace = "in_place"
	ModeRewrite = "rewrite"
)

// Config holds all configuration parameters.
type Config struct {
	Symbols   SymbolsConfig   `yaml:"symbols"`
	Diffusion DiffusionConfig `yaml:"diffusion"`
	Garden    GardenConfig    `yaml:"garden"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Calibrate CalibrateConfig `yaml:"calibrate"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SymbolsConfig names the runes that carry diffusion meaning in text notation.
type SymbolsConfig struct {
	Node        string `yaml:"node"`
	Amount      string `yaml:"amount"`
	BranchOpen  string `yaml:"branch_open"`
	BranchClose string `yaml:"branch_close"`
}

// DiffusionConfig holds the settings of every diffusion call.
type DiffusionConfig struct {
	Steps                 int     `yaml:"steps"`
	GlobalMultiplier      float64 `yaml:"global_multiplier"`
	ClearAmountsOnRewrite bool    `yaml:"clear_amounts_on_rewrite"` // Rewrite mode only; in-place always clears
	Mode                  string  `yaml:"mode"`                     // in_place or rewrite
}

// GardenConfig holds host parameters.
type GardenConfig struct {
	Plants      []string `yaml:"plants"`      // Text notation, one plant per entry
	Generations int      `yaml:"generations"` // Generations to run (0 = until interrupted)
	Workers     int      `yaml:"workers"`     // Concurrent plants per generation (0 = GOMAXPROCS)
	Seed        string   `yaml:"seed"`        // Plant used when Plants is empty
	SeedCopies  int      `yaml:"seed_copies"` // Copies of Seed to spawn
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow int `yaml:"perf_window"` // Generations per perf sample window
	LogEvery   int `yaml:"log_every"`   // Log stats every N generations
}

// CalibrateConfig holds multiplier fitting parameters.
type CalibrateConfig struct {
	MaxEvals      int     `yaml:"max_evals"`
	MinMultiplier float64 `yaml:"min_multiplier"`
	MaxMultiplier float64 `yaml:"max_multiplier"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Codes        diffusion.Codes // Symbol runes as codes
	Multiplier32 float32         // Diffusion.GlobalMultiplier as float32
	Workers      int             // Effective worker count
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config and rejects
// settings no diffusion call could run with.
func (c *Config) computeDerived() error {
	var codes [4]symbols.Symbol
	for i, field := range []struct{ name, value string }{
		{"node", c.Symbols.Node},
		{"amount", c.Symbols.Amount},
		{"branch_open", c.Symbols.BranchOpen},
		{"branch_close", c.Symbols.BranchClose},
	} {
		r, size := utf8.DecodeRuneInString(field.value)
		if r == utf8.RuneError || size != len(field.value) {
			return fmt.Errorf("symbols.%s: want a single character, got %q", field.name, field.value)
		}
		codes[i] = r
	}
	c.Derived.Codes = diffusion.Codes{
		Node:        codes[0],
		Amount:      codes[1],
		BranchOpen:  codes[2],
		BranchClose: codes[3],
	}
	if err := c.Derived.Codes.Validate(); err != nil {
		return fmt.Errorf("symbols: %w", err)
	}

	switch c.Diffusion.Mode {
	case ModeInPlace, ModeRewrite:
	default:
		return fmt.Errorf("diffusion.mode: unknown mode %q", c.Diffusion.Mode)
	}
	c.Derived.Multiplier32 = float32(c.Diffusion.GlobalMultiplier)

	c.Derived.Workers = c.Garden.Workers
	if c.Derived.Workers <= 0 {
		c.Derived.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Telemetry.PerfWindow <= 0 {
		c.Telemetry.PerfWindow = 1
	}
	if c.Calibrate.MinMultiplier > c.Calibrate.MaxMultiplier {
		return fmt.Errorf("calibrate: min_multiplier %v above max_multiplier %v",
			c.Calibrate.MinMultiplier, c.Calibrate.MaxMultiplier)
	}
	return nil
}

// Options returns the configured options for one diffusion call.
func (c *Config) Options() diffusion.Options {
	return diffusion.Options{
		Steps:        c.Diffusion.Steps,
		Multiplier:   c.Derived.Multiplier32,
		ClearAmounts: c.Diffusion.ClearAmountsOnRewrite,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
