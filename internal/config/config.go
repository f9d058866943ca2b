// Package config handles relief-shade configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/relief-shade/pkg/bandpack"
	"github.com/Faultbox/relief-shade/pkg/layout"
	"github.com/Faultbox/relief-shade/pkg/shading"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

// DefaultMode is the style preset other presets fall back to.
const DefaultMode = "default"

// ErrUnknownMode is returned when a style preset is not configured.
var ErrUnknownMode = errors.New("unknown shading mode")

// Config holds all settings.
type Config struct {
	Layout  LayoutConfig             `yaml:"layout"`
	Render  RenderConfig             `yaml:"render"`
	Modes   map[string]shading.Style `yaml:"modes"`
	Logging LoggingConfig            `yaml:"logging"`
}

// LayoutConfig describes how source bands are packed.
type LayoutConfig struct {
	Groups             []layout.BandGroup `yaml:"groups"`
	FixedPointFactor   float64            `yaml:"fixed_point_factor"`
	shadowcodec.Scheme `yaml:",inline"`
}

// RenderConfig holds CPU rendering settings.
type RenderConfig struct {
	Workers  int     `yaml:"workers"`   // 0 uses one worker per CPU
	CellSize float64 `yaml:"cell_size"` // ground units per texel
	Mode     string  `yaml:"mode"`
	Ortho    string  `yaml:"ortho"` // optional ortho image path
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Layout: LayoutConfig{
			Groups:           layout.Default(),
			FixedPointFactor: bandpack.DefaultFixedPointFactor,
			Scheme:           shadowcodec.DefaultScheme(),
		},
		Render: RenderConfig{
			Workers:  0,
			CellSize: 1,
			Mode:     DefaultMode,
		},
		Modes: DefaultModes(),
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// DefaultModes returns the built-in style presets.
func DefaultModes() map[string]shading.Style {
	return map[string]shading.Style{
		DefaultMode: shading.DefaultStyle(),
		// terrain models have no buildings to cast shadows
		"dtm": {
			shading.KeyShadow: 0,
		},
		"relief": {
			shading.KeyGraph:     float64(shading.GraphLambert),
			shading.KeyLaplacian: 0.3,
			shading.KeySlope:     0.15,
			shading.KeyContrast:  0.9,
		},
		"swiss": {
			shading.KeyHillshadeColor:      0.6,
			shading.KeyHillshadeColorPower: 2,
			shading.KeyHillshadeDilation:   60,
			shading.KeyOcclusion:           1,
		},
	}
}

// Plan builds the layout plan.
func (c *Config) Plan() (*layout.Plan, error) {
	return layout.New(c.Layout.Groups)
}

// Encoder builds a validated band encoder.
func (c *Config) Encoder() (*bandpack.Encoder, error) {
	plan, err := c.Plan()
	if err != nil {
		return nil, err
	}
	return bandpack.NewEncoder(plan, c.Layout.FixedPointFactor, c.Layout.Scheme)
}

// Evaluator builds a shading evaluator for the configured layout.
func (c *Config) Evaluator() (*shading.Evaluator, error) {
	plan, err := c.Plan()
	if err != nil {
		return nil, err
	}
	return shading.NewEvaluator(plan, c.Layout.FixedPointFactor, c.Layout.Scheme)
}

// Style returns the named preset with missing keys taken from the default
// preset. An empty name selects Render.Mode.
func (c *Config) Style(mode string) (shading.Style, error) {
	if mode == "" {
		mode = c.Render.Mode
	}
	preset, ok := c.Modes[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return shading.DefaultStyle().Merge(c.Modes[DefaultMode]).Merge(preset), nil
}

// Validate checks the settings that can be checked without a tile.
func (c *Config) Validate() error {
	if _, err := c.Encoder(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if c.Render.Workers < 0 {
		return fmt.Errorf("render: negative worker count %d", c.Render.Workers)
	}
	if c.Render.CellSize <= 0 {
		return fmt.Errorf("render: cell size must be positive, got %v", c.Render.CellSize)
	}
	if _, err := c.Style(""); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

// Warnings lists suspicious but accepted settings, such as unknown style keys.
func (c *Config) Warnings() []string {
	var out []string
	for name, st := range c.Modes {
		for _, k := range st.Unknown() {
			out = append(out, fmt.Sprintf("mode %q: unknown style key %q", name, k))
		}
	}
	return out
}
