package calibration

import (
	"fmt"

	"github.com/danielpatrickdp/policyscore/internal/choquet"
	"github.com/danielpatrickdp/policyscore/internal/contextual"
	"github.com/danielpatrickdp/policyscore/internal/layer"
	"github.com/danielpatrickdp/policyscore/internal/meta"
	"github.com/danielpatrickdp/policyscore/internal/registry"
	"github.com/danielpatrickdp/policyscore/internal/unit"
)

// #region request
// Ensemble names the subgraph a method runs in, for the @C layer.
type Ensemble struct {
	MethodIDs      []string `json:"method_ids" yaml:"method_ids"`
	SubgraphID     string   `json:"subgraph_id" yaml:"subgraph_id"`
	FusionRule     string   `json:"fusion_rule" yaml:"fusion_rule"`
	ProvidedInputs []string `json:"provided_inputs" yaml:"provided_inputs"`
}

// Request is one method invocation to calibrate. Only the inputs of the
// layers the role needs are read.
type Request struct {
	MethodID string                         `json:"method_id" yaml:"method_id"`
	Role     choquet.Role                   `json:"role" yaml:"role"`
	Context  contextual.Context             `json:"context" yaml:"context"`
	Document *unit.Document                 `json:"document,omitempty" yaml:"document,omitempty"`
	Chain    layer.ChainInputs              `json:"chain" yaml:"chain"`
	Ensemble *Ensemble                      `json:"ensemble,omitempty" yaml:"ensemble,omitempty"`
	Manifest *registry.VerificationManifest `json:"manifest,omitempty" yaml:"manifest,omitempty"`
}

// #endregion request

// #region result
// Result is Cal(I) for one invocation, with the layer scores behind it.
type Result struct {
	MethodID        string                   `json:"method_id"`
	Role            choquet.Role             `json:"role"`
	Context         contextual.Context       `json:"context"`
	Value           float64                  `json:"value"`
	Layers          map[layer.ID]layer.Score `json:"layers"`
	Breakdown       choquet.Breakdown        `json:"breakdown"`
	MeasureVersion  string                   `json:"measure_version"`
	RegistryVersion string                   `json:"registry_version"`
}

// #endregion result

// #region config
// Config holds the evaluator settings used by the calibrator.
type Config struct {
	Unit        unit.Config `yaml:"unit"`
	Meta        meta.Config `yaml:"meta"`
	Concurrency int         `yaml:"concurrency" validate:"gte=1"`
}

// DefaultConfig returns default evaluator settings and 8 parallel requests.
func DefaultConfig() Config {
	return Config{
		Unit:        unit.DefaultConfig(),
		Meta:        meta.DefaultConfig(),
		Concurrency: 8,
	}
}

// #endregion config

// #region errors
// CalibrationError reports a request that cannot be calibrated. It is
// always fatal for that request.
type CalibrationError struct {
	MethodID string
	Role     choquet.Role
	Layer    layer.ID
	Err      error
}

func (e *CalibrationError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("calibrate %s as %s: layer %s: %v", e.MethodID, e.Role, e.Layer, e.Err)
	}
	return fmt.Sprintf("calibrate %s as %s: %v", e.MethodID, e.Role, e.Err)
}

func (e *CalibrationError) Unwrap() error {
	return e.Err
}

// #endregion errors
