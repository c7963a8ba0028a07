// Package config provides configuration loading and management for dacekit.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"dacekit/pkg/correlation"
	"dacekit/pkg/design"
	"dacekit/pkg/dsmerge"
	"dacekit/pkg/kriging"
	"dacekit/pkg/regression"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Model fitting parameters
	Fit struct {
		// Regression names the basis: poly0, poly1 or poly2
		Regression string `yaml:"regression"`

		// Correlation names the family, e.g. gauss or expg
		Correlation string `yaml:"correlation"`

		// Theta0 is the starting point of the θ search, or the fixed θ when
		// Lower and Upper are empty
		Theta0 []float64 `yaml:"theta0"`
		Lower  []float64 `yaml:"lower"`
		Upper  []float64 `yaml:"upper"`

		// Search selects the θ optimizer: pattern or neldermead
		Search        string  `yaml:"search"`
		MaxIterations int     `yaml:"maxIterations"`
		Tolerance     float64 `yaml:"tolerance"`
	} `yaml:"fit"`

	// Experimental design parameters
	Design struct {
		// Method is lhs or grid
		Method string `yaml:"method"`

		// Samples is the number of Latin hypercube sites
		Samples int `yaml:"samples"`

		// Counts is the number of grid points per axis
		Counts []int `yaml:"counts,omitempty"`

		Lower []float64 `yaml:"lower"`
		Upper []float64 `yaml:"upper"`

		// Seed makes Latin hypercube samples reproducible; 0 seeds from the clock
		Seed int64 `yaml:"seed"`
	} `yaml:"design"`

	// Design site merging parameters
	Merge struct {
		Tolerance    float64 `yaml:"tolerance"`
		Norm         string  `yaml:"norm"`
		SiteRule     string  `yaml:"siteRule"`
		ResponseRule string  `yaml:"responseRule"`
	} `yaml:"merge"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel fits
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// RenderWidth and RenderHeight size surface images in pixels
		RenderWidth  int `yaml:"renderWidth"`
		RenderHeight int `yaml:"renderHeight"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Fit.Regression = regression.Constant.String()
	cfg.Fit.Correlation = correlation.Gaussian.String()
	cfg.Fit.Theta0 = []float64{1}
	cfg.Fit.Lower = []float64{1e-2}
	cfg.Fit.Upper = []float64{20}
	cfg.Fit.Search = kriging.PatternSearch.String()
	cfg.Fit.MaxIterations = kriging.DefaultMaxIterations
	cfg.Fit.Tolerance = kriging.DefaultTolerance

	cfg.Design.Method = design.LatinHypercube.String()
	cfg.Design.Samples = 20
	cfg.Design.Lower = []float64{0, 0}
	cfg.Design.Upper = []float64{1, 1}

	cfg.Merge.Norm = dsmerge.L2.String()
	cfg.Merge.SiteRule = dsmerge.Mean.String()
	cfg.Merge.ResponseRule = dsmerge.Mean.String()

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Verbose = false
	cfg.Output.RenderWidth = 256
	cfg.Output.RenderHeight = 256

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks that every named option parses and that numeric settings
// are in range. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Basis(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Family(); err != nil {
		errs = append(errs, err)
	}
	if _, err := kriging.ParseSearch(c.Fit.Search); err != nil {
		errs = append(errs, err)
	}
	if len(c.Fit.Lower) != len(c.Fit.Upper) {
		errs = append(errs, fmt.Errorf("fit: %d lower bounds but %d upper bounds", len(c.Fit.Lower), len(c.Fit.Upper)))
	}
	if c.Fit.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("fit: negative maxIterations %d", c.Fit.MaxIterations))
	}
	if c.Fit.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("fit: negative tolerance %g", c.Fit.Tolerance))
	}

	if _, err := design.ParseMethod(c.Design.Method); err != nil {
		errs = append(errs, err)
	}
	if len(c.Design.Lower) != len(c.Design.Upper) {
		errs = append(errs, fmt.Errorf("design: %d lower bounds but %d upper bounds", len(c.Design.Lower), len(c.Design.Upper)))
	}

	if _, err := c.MergeOptions(); err != nil {
		errs = append(errs, err)
	}
	if c.Merge.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("merge: negative tolerance %g", c.Merge.Tolerance))
	}

	if c.Processing.NumCores < 0 {
		errs = append(errs, fmt.Errorf("processing: negative numCores %d", c.Processing.NumCores))
	}
	if c.Output.RenderWidth < 2 || c.Output.RenderHeight < 1 {
		errs = append(errs, fmt.Errorf("output: render size %dx%d too small", c.Output.RenderWidth, c.Output.RenderHeight))
	}
	return errors.Join(errs...)
}

// Basis returns the configured regression basis.
func (c *Config) Basis() (regression.Basis, error) {
	return regression.Parse(c.Fit.Regression)
}

// Family returns the configured correlation family.
func (c *Config) Family() (correlation.Family, error) {
	return correlation.Parse(c.Fit.Correlation)
}

// ThetaBox expands the configured θ start and bounds to dim dimensions. A
// single configured value is shared by every dimension. For the
// exponential-power family a missing trailing power is added with start 1.5 in
// [1, 2]. Empty bounds are returned as nil, which fixes θ.
func (c *Config) ThetaBox(dim int) (theta0, lower, upper []float64, err error) {
	family, err := c.Family()
	if err != nil {
		return nil, nil, nil, err
	}
	expand := func(v []float64) []float64 {
		if len(v) != 1 || dim == 1 {
			return append([]float64(nil), v...)
		}
		out := make([]float64, dim)
		for i := range out {
			out[i] = v[0]
		}
		return out
	}
	theta0 = expand(c.Fit.Theta0)
	if len(c.Fit.Lower) > 0 {
		lower, upper = expand(c.Fit.Lower), expand(c.Fit.Upper)
	}
	if family == correlation.ExponentialPower && len(theta0) == dim {
		theta0 = append(theta0, 1.5)
		if lower != nil {
			lower = append(lower, 1)
			upper = append(upper, 2)
		}
	}
	return theta0, lower, upper, nil
}

// FitOptions converts the fit section into kriging options.
func (c *Config) FitOptions() ([]kriging.FitOption, error) {
	search, err := kriging.ParseSearch(c.Fit.Search)
	if err != nil {
		return nil, err
	}
	opts := []kriging.FitOption{kriging.WithSearch(search)}
	if c.Fit.MaxIterations > 0 {
		opts = append(opts, kriging.WithMaxIterations(c.Fit.MaxIterations))
	}
	if c.Fit.Tolerance > 0 {
		opts = append(opts, kriging.WithTolerance(c.Fit.Tolerance))
	}
	return opts, nil
}

// MergeOptions converts the merge section into dsmerge options.
func (c *Config) MergeOptions() (dsmerge.Options, error) {
	norm, err := dsmerge.ParseNorm(c.Merge.Norm)
	if err != nil {
		return dsmerge.Options{}, err
	}
	siteRule, err := dsmerge.ParseRule(c.Merge.SiteRule)
	if err != nil {
		return dsmerge.Options{}, err
	}
	responseRule, err := dsmerge.ParseRule(c.Merge.ResponseRule)
	if err != nil {
		return dsmerge.Options{}, err
	}
	return dsmerge.Options{
		Tolerance:    c.Merge.Tolerance,
		Norm:         norm,
		SiteRule:     siteRule,
		ResponseRule: responseRule,
	}, nil
}
