package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/policyscore/internal/calibration"
	"github.com/danielpatrickdp/policyscore/internal/choquet"
	"github.com/danielpatrickdp/policyscore/internal/confidence"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
	"github.com/danielpatrickdp/policyscore/internal/meta"
	"github.com/danielpatrickdp/policyscore/internal/penalty"
	"github.com/danielpatrickdp/policyscore/internal/registry"
	"github.com/danielpatrickdp/policyscore/internal/unit"
)

// #region config
// Paths locate the versioned inputs. Empty paths select the built-in defaults.
type Paths struct {
	Measure  string `yaml:"measure"`
	Registry string `yaml:"registry"`
	Schema   string `yaml:"schema"`
}

// Pipeline controls the roll-up.
type Pipeline struct {
	AbortOnViolation    bool `yaml:"abort_on_violation"`
	AbortOnInsufficient bool `yaml:"abort_on_insufficient"`
	Concurrency         int  `yaml:"concurrency" validate:"gte=1"`
}

// Config is the full pipeline configuration.
type Config struct {
	Version     string            `yaml:"version" validate:"required"`
	Paths       Paths             `yaml:"paths"`
	Pipeline    Pipeline          `yaml:"pipeline"`
	Calibration int               `yaml:"calibration_concurrency" validate:"gte=1"`
	Bootstrap   confidence.Config `yaml:"bootstrap"`
	Penalty     penalty.Config    `yaml:"penalty"`
	Unit        unit.Config       `yaml:"unit"`
	Meta        meta.Config       `yaml:"meta"`
}

// Default returns the standard configuration.
func Default() Config {
	h := hierarchy.DefaultConfig()
	cal := calibration.DefaultConfig()
	return Config{
		Version:     "default",
		Pipeline: Pipeline{
			AbortOnViolation:    h.AbortOnViolation,
			AbortOnInsufficient: h.AbortOnInsufficient,
			Concurrency:         h.Concurrency,
		},
		Calibration: cal.Concurrency,
		Bootstrap:   h.Bootstrap,
		Penalty:     h.Penalty,
		Unit:        cal.Unit,
		Meta:        cal.Meta,
	}
}

// #endregion config

var validate = validator.New()

// #region load
// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("validate config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Hash fingerprints the configuration for provenance.
func (c Config) Hash() (string, error) {
	return registry.ConfigHash(c)
}

// #endregion load

// #region builders
// Hierarchy returns the roll-up configuration.
func (c Config) Hierarchy() hierarchy.Config {
	return hierarchy.Config{
		AbortOnViolation:    c.Pipeline.AbortOnViolation,
		AbortOnInsufficient: c.Pipeline.AbortOnInsufficient,
		Concurrency:         c.Pipeline.Concurrency,
		Bootstrap:           c.Bootstrap,
		Penalty:             c.Penalty,
	}
}

// CalibrationConfig returns the calibrator configuration.
func (c Config) CalibrationConfig() calibration.Config {
	return calibration.Config{Unit: c.Unit, Meta: c.Meta, Concurrency: c.Calibration}
}

// Measure loads the configured fuzzy measure, or the default one.
func (c Config) Measure() (choquet.FuzzyMeasure, error) {
	if c.Paths.Measure == "" {
		return choquet.DefaultMeasure(), nil
	}
	return choquet.Load(c.Paths.Measure)
}

// Schema loads the configured questionnaire, or the canonical one.
func (c Config) Schema() (*hierarchy.Schema, error) {
	if c.Paths.Schema == "" {
		return hierarchy.DefaultSchema(), nil
	}
	return hierarchy.LoadSchema(c.Paths.Schema)
}

// Registry loads the configured method registry. A registry is required
// for calibration.
func (c Config) Registry() (*registry.Registry, error) {
	if c.Paths.Registry == "" {
		return nil, errors.New("load registry: no registry path configured")
	}
	return registry.Load(c.Paths.Registry)
}

// #endregion builders
