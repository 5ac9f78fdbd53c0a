// Package config loads the build configuration: a YAML file describing the
// stele and its pages, tunable parameters, and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stele-slicer/internal/failure"
)

// Config is the full build configuration.
type Config struct {
	Stele          string `yaml:"stele"`
	OutputDir      string `yaml:"output_dir"`
	Direction      string `yaml:"direction"`
	Workers        int    `yaml:"workers"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	RegressionList string `yaml:"regression_list"`
	OverridesFile  string `yaml:"overrides_file"`

	Pages []Page `yaml:"pages"`

	Ink       Ink       `yaml:"ink"`
	Layout    Layout    `yaml:"layout"`
	Split     Split     `yaml:"split"`
	Refine    Refine    `yaml:"refine"`
	Normalize Normalize `yaml:"normalize"`
	Align     Align     `yaml:"align"`
	QA        QA        `yaml:"qa"`
	Labeler   Labeler   `yaml:"labeler"`
	Cache     Cache     `yaml:"cache"`

	// base is the directory relative paths are resolved against.
	base string
}

// Page is one page image and its expected reading grid. The grid is given
// by Counts (cells per lane), or by Transcript with Lanes as the lane count
// when the transcript has no lane breaks.
type Page struct {
	Image      string `yaml:"image"`
	Lanes      int    `yaml:"lanes,omitempty"`
	Counts     []int  `yaml:"counts,omitempty"`
	Transcript string `yaml:"transcript,omitempty"`
}

// Ink selects binarization.
type Ink struct {
	Polarity     string `yaml:"polarity"`
	BlurKernel   int    `yaml:"blur_kernel"`
	StrictOffset int    `yaml:"strict_offset"`
	LooseOffset  int    `yaml:"loose_offset"`
}

// Layout holds lane detection tunables.
type Layout struct {
	Smooth       int     `yaml:"smooth"`
	ValleyRatio  float64 `yaml:"valley_ratio"`
	MinLaneRatio float64 `yaml:"min_lane_ratio"`
	BlockDensity float64 `yaml:"block_density"`
	BleedRatio   float64 `yaml:"bleed_ratio"`
}

// Split holds cell splitting tunables.
type Split struct {
	MinCell         int     `yaml:"min_cell"`
	DeviationWeight float64 `yaml:"deviation_weight"`
	EndPenalty      float64 `yaml:"end_penalty"`
	EndFraction     float64 `yaml:"end_fraction"`
	TieWeight       float64 `yaml:"tie_weight"`
	Smooth          int     `yaml:"smooth"`
	ValleyRatio     float64 `yaml:"valley_ratio"`
}

// Refine holds crop refinement tunables.
type Refine struct {
	Margin          int     `yaml:"margin"`
	Padding         int     `yaml:"padding"`
	MaxIterations   int     `yaml:"max_iterations"`
	MinInk          int     `yaml:"min_ink"`
	MinComponent    int     `yaml:"min_component"`
	MultiGlyphRatio float64 `yaml:"multi_glyph_ratio"`
}

// Normalize holds output image tunables.
type Normalize struct {
	Size         int     `yaml:"size"`
	PadRatio     float64 `yaml:"pad_ratio"`
	MinComponent int     `yaml:"min_component"`
}

// Align holds sequence alignment tunables.
type Align struct {
	Window                 int     `yaml:"window"`
	MinAnchorScore         float64 `yaml:"min_anchor_score"`
	InterpolatedConfidence float64 `yaml:"interpolated_confidence"`
	SubstitutionConfidence float64 `yaml:"substitution_confidence"`
	VariantsFile           string  `yaml:"variants_file"`
}

// QA holds flag thresholds (strict mode values).
type QA struct {
	Mode             string  `yaml:"mode"`
	RingWidth        int     `yaml:"ring_width"`
	ContactThreshold int     `yaml:"contact_threshold"`
	RingGate         int     `yaml:"ring_gate"`
	OffCenterPx      float64 `yaml:"off_center_px"`
	MaxComponents    int     `yaml:"max_components"`
	MinInk           int     `yaml:"min_ink"`
	MinComponentArea int     `yaml:"min_component_area"`
}

// Labeler selects the recognition side channel.
type Labeler struct {
	Kind          string `yaml:"kind"` // none | tesseract | claude
	Model         string `yaml:"model"`
	APIKey        string `yaml:"-"`
	Attempts      int    `yaml:"attempts"`
	InitialDelayM int    `yaml:"initial_delay_ms"`
}

// Cache selects where checkpoints and label results are kept.
type Cache struct {
	SQLitePath string `yaml:"sqlite_path"`
	RedisURL   string `yaml:"redis_url"`
}

// Default returns a configuration with every tunable at its default.
func Default() *Config {
	c := &Config{
		Stele:     "stele",
		OutputDir: "out",
		Direction: "vertical-rtl",
		Workers:   4,
		LogLevel:  "info",
		LogFormat: "text",
		Labeler:   Labeler{Kind: "none", Attempts: 3, InitialDelayM: 500},
		Cache:     Cache{SQLitePath: ".slicer-cache.db"},
	}
	c.applyDefaults()
	return c
}

// Load reads a YAML config file, then applies .env and environment
// overrides and validates the result. Relative paths in the file are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, failure.NewMalformedInputError(path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	c.base = filepath.Dir(abs)

	if err := LoadDotEnv(filepath.Join(c.base, ".env")); err != nil {
		return nil, err
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return c, nil
}

// LoadDotEnv loads a .env file if one exists. Variables already set in the
// environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	c.Workers = getEnvAsIntOrDefault("SLICER_WORKERS", c.Workers)
	c.LogLevel = getEnvOrDefault("SLICER_LOG_LEVEL", c.LogLevel)
	c.Labeler.Kind = getEnvOrDefault("SLICER_LABELER", c.Labeler.Kind)
	c.Labeler.APIKey = getEnvOrDefault("ANTHROPIC_API_KEY", c.Labeler.APIKey)
	c.Cache.RedisURL = getEnvOrDefault("SLICER_REDIS_URL", c.Cache.RedisURL)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Stele == "" {
		return fmt.Errorf("stele is required")
	}
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", c.Workers)
	}
	switch c.Direction {
	case "vertical-rtl", "horizontal-ltr":
	default:
		return fmt.Errorf("unknown direction %q", c.Direction)
	}
	switch c.Ink.Polarity {
	case "auto", "dark-ink", "light-ink":
	default:
		return fmt.Errorf("unknown ink polarity %q", c.Ink.Polarity)
	}
	switch c.QA.Mode {
	case "strict", "lenient":
	default:
		return fmt.Errorf("unknown qa mode %q", c.QA.Mode)
	}
	switch c.Labeler.Kind {
	case "none", "tesseract", "claude":
	default:
		return fmt.Errorf("unknown labeler %q", c.Labeler.Kind)
	}
	if c.Normalize.Size < 16 {
		return fmt.Errorf("normalize.size must be at least 16, got %d", c.Normalize.Size)
	}
	if c.Normalize.PadRatio < 0 || c.Normalize.PadRatio >= 0.5 {
		return fmt.Errorf("normalize.pad_ratio must be in [0, 0.5), got %g", c.Normalize.PadRatio)
	}
	if c.Refine.MaxIterations < 1 {
		return fmt.Errorf("refine.max_iterations must be positive")
	}
	for i, p := range c.Pages {
		if p.Image == "" {
			return fmt.Errorf("pages[%d]: image is required", i)
		}
		if len(p.Counts) == 0 && p.Transcript == "" {
			return fmt.Errorf("pages[%d]: counts or transcript is required", i)
		}
		for _, n := range p.Counts {
			if n < 0 {
				return fmt.Errorf("pages[%d]: negative cell count", i)
			}
		}
	}
	return nil
}

// Resolve makes a config-relative path absolute.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.base == "" {
		return path
	}
	return filepath.Join(c.base, path)
}

// SetBase sets the directory relative paths resolve against.
func (c *Config) SetBase(dir string) {
	c.base = dir
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
