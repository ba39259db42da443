package layer

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/policyscore/internal/registry"
)

// ErrNotComputable is returned by an evaluator whose inputs are absent.
// The calibrator turns it into a CalibrationError naming the layer.
var ErrNotComputable = errors.New("layer not computable")

// #region base
// Base weights for the intrinsic quality ratings.
const (
	baseTheoryWeight         = 0.40
	baseImplementationWeight = 0.35
	baseDeploymentWeight     = 0.25
)

// EvaluateBase scores the @b layer from a method's intrinsic ratings.
func EvaluateBase(desc registry.MethodDescriptor) Score {
	in := desc.Intrinsic
	value := baseTheoryWeight*in.Theory +
		baseImplementationWeight*in.Implementation +
		baseDeploymentWeight*in.Deployment

	return Score{
		Layer: Base,
		Value: Clamp01(value),
		Components: map[string]float64{
			"theory":         in.Theory,
			"implementation": in.Implementation,
			"deployment":     in.Deployment,
		},
		Metadata: map[string]string{"method_id": desc.MethodID},
	}
}

// #endregion base

// #region chain
// EvaluateChain scores the @chain layer. The value is discrete: the worst
// condition present decides it.
func EvaluateChain(in ChainInputs) Score {
	var value float64
	var reason string

	switch {
	case in.HardMismatch:
		value, reason = 0.0, "hard schema mismatch"
	case len(in.RequiredMissing) > 0:
		value, reason = 0.0, fmt.Sprintf("required inputs missing: %v", in.RequiredMissing)
	case len(in.CriticalOptionalMissing) > 0:
		value, reason = 0.3, fmt.Sprintf("critical optional inputs missing: %v", in.CriticalOptionalMissing)
	case len(in.SoftSchemaIssues) > 0:
		value, reason = 0.6, fmt.Sprintf("soft schema issues: %v", in.SoftSchemaIssues)
	case len(in.OptionalMissing) > 0 || len(in.Warnings) > 0:
		value, reason = 0.8, "contracts pass with warnings"
	default:
		value, reason = 1.0, "all contracts pass"
	}

	return Score{
		Layer: Chain,
		Value: value,
		Components: map[string]float64{
			"required_missing":          float64(len(in.RequiredMissing)),
			"critical_optional_missing": float64(len(in.CriticalOptionalMissing)),
			"optional_missing":          float64(len(in.OptionalMissing)),
			"soft_schema_issues":        float64(len(in.SoftSchemaIssues)),
			"warnings":                  float64(len(in.Warnings)),
		},
		Metadata: map[string]string{"reason": reason},
	}
}

// #endregion chain

// #region helpers
// Clamp01 bounds v to [0, 1]; NaN collapses to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
