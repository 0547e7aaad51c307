// Package impact provides multi-axis impact analysis for proposed rule
// changes. A change is scored along performance, business, operational, and
// risk dimensions against the analytics baseline, combined into a weighted
// overall score with a categorical level, and translated into
// recommendations.
package impact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ruleiq-io/ruleiq/internal/config"
)

// Sentinel errors for configuration validation.
var (
	// ErrThresholdOrder is returned when level thresholds are not strictly decreasing.
	ErrThresholdOrder = errors.New("impact thresholds must satisfy high > medium > low > 0")
	// ErrThresholdRange is returned when a threshold is outside (0,1].
	ErrThresholdRange = errors.New("impact thresholds must be in (0,1]")
	// ErrWeightSum is returned when dimension weights do not sum to 1.
	ErrWeightSum = errors.New("dimension weights must sum to 1")
	// ErrWeightRange is returned when a weight is outside [0,1].
	ErrWeightRange = errors.New("dimension weights must be in [0,1]")
)

// DefaultConfigPath is the default location of the tuning file.
const DefaultConfigPath = ".ruleiq.yaml"

// ConfigPathEnvVar names the environment variable overriding the tuning file path.
const ConfigPathEnvVar = "RULEIQ_CONFIG_PATH"

// weightSumTolerance absorbs float drift when validating that weights sum to 1.
const weightSumTolerance = 1e-9

type (
	// Weights are the dimension weights of the overall impact composite.
	Weights struct {
		Performance float64 `yaml:"performance"`
		Business    float64 `yaml:"business"`
		Operational float64 `yaml:"operational"`
		Risk        float64 `yaml:"risk"`
	}

	// Levels are the categorical level thresholds applied to the overall score.
	Levels struct {
		High   float64 `yaml:"high"`
		Medium float64 `yaml:"medium"`
		Low    float64 `yaml:"low"`
	}

	// Config holds the tunable scoring parameters, loadable from .ruleiq.yaml.
	Config struct {
		Weights Weights `yaml:"weights"`
		Levels  Levels  `yaml:"levels"`
	}

	// yamlFile is the on-disk layout: scoring parameters live under "impact".
	yamlFile struct {
		Impact Config `yaml:"impact"`
	}
)

// DefaultConfig returns the documented weights (performance 0.30, business
// 0.40, operational 0.20, risk 0.10) and level thresholds (0.8/0.5/0.2).
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			Performance: 0.30,
			Business:    0.40,
			Operational: 0.20,
			Risk:        0.10,
		},
		Levels: Levels{
			High:   0.8,
			Medium: 0.5,
			Low:    0.2,
		},
	}
}

// LoadConfig loads tuning parameters from a YAML file.
//
// Behavior:
//   - Missing file returns defaults (tuning is optional).
//   - Unreadable or invalid YAML logs a warning and returns defaults.
//   - A file that parses but fails validation logs a warning and returns
//     defaults, so a bad edit can never ship inverted thresholds.
func LoadConfig(path string) *Config {
	defaults := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted deployment config
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to read impact config, using defaults",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}

		return defaults
	}

	if len(data) == 0 {
		return defaults
	}

	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("Failed to parse impact config, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return defaults
	}

	cfg := file.Impact
	fillDefaults(&cfg, defaults)

	if err := cfg.Validate(); err != nil {
		slog.Warn("Invalid impact config, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return defaults
	}

	return &cfg
}

// LoadConfigFromEnv loads the tuning file named by RULEIQ_CONFIG_PATH,
// falling back to .ruleiq.yaml in the working directory.
func LoadConfigFromEnv() *Config {
	return LoadConfig(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}

// Validate checks both thresholds and weights.
func (c *Config) Validate() error {
	if err := c.ValidateThresholds(); err != nil {
		return err
	}

	return c.ValidateWeights()
}

// ValidateThresholds enforces high > medium > low > 0 with all thresholds
// ≤ 1. Run this whenever thresholds are configured; CI runs it to catch
// scoring regressions.
func (c *Config) ValidateThresholds() error {
	levels := []float64{c.Levels.High, c.Levels.Medium, c.Levels.Low}

	for _, level := range levels {
		if level <= 0 || level > 1 {
			return fmt.Errorf("%w: got high=%v medium=%v low=%v",
				ErrThresholdRange, c.Levels.High, c.Levels.Medium, c.Levels.Low)
		}
	}

	if !(c.Levels.High > c.Levels.Medium && c.Levels.Medium > c.Levels.Low) {
		return fmt.Errorf("%w: got high=%v medium=%v low=%v",
			ErrThresholdOrder, c.Levels.High, c.Levels.Medium, c.Levels.Low)
	}

	return nil
}

// ValidateWeights enforces each weight in [0,1] and the sum equal to 1.
func (c *Config) ValidateWeights() error {
	weights := []float64{c.Weights.Performance, c.Weights.Business, c.Weights.Operational, c.Weights.Risk}

	var sum float64

	for _, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: got %v", ErrWeightRange, weights)
		}

		sum += w
	}

	if sum < 1-weightSumTolerance || sum > 1+weightSumTolerance {
		return fmt.Errorf("%w: sum=%v", ErrWeightSum, sum)
	}

	return nil
}

// fillDefaults replaces unset (zero) sections with defaults so a partial
// tuning file only overrides what it names.
func fillDefaults(cfg, defaults *Config) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = defaults.Weights
	}

	if cfg.Levels == (Levels{}) {
		cfg.Levels = defaults.Levels
	}
}
