package congruence

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/policyscore/internal/layer"
	"github.com/danielpatrickdp/policyscore/internal/registry"
)

// #region scale-constants
const (
	scaleIdentical   = 1.0
	scaleConvertible = 0.8 // every range is a literal subset of [0,1]
	fusionComplete   = 1.0
	fusionPartial    = 0.5
)

// #endregion scale-constants

// #region result
// Result carries C_play and the three factors it was built from.
type Result struct {
	Value  float64
	Scale  float64
	Sem    float64
	Fusion float64
}

// Score converts the result into a layer score for the Choquet stage.
func (r Result) Score(subgraphID string) layer.Score {
	return layer.Score{
		Layer: layer.Congruence,
		Value: r.Value,
		Components: map[string]float64{
			"c_scale":  r.Scale,
			"c_sem":    r.Sem,
			"c_fusion": r.Fusion,
		},
		Metadata: map[string]string{"subgraph_id": subgraphID},
	}
}

// #endregion result

// #region evaluator
// Evaluator computes the @C layer for an ensemble of cooperating methods.
type Evaluator struct {
	reg *registry.Registry
}

// NewEvaluator creates an evaluator reading method metadata from reg.
func NewEvaluator(reg *registry.Registry) *Evaluator {
	return &Evaluator{reg: reg}
}

// Evaluate returns C_play = c_scale * c_sem * c_fusion. Ensembles of zero or
// one method are trivially congruent. Unknown method ids never error; they
// pull the factor they affect to zero.
func (e *Evaluator) Evaluate(methodIDs []string, subgraphID, fusionRule string, providedInputs []string) Result {
	if len(methodIDs) <= 1 {
		return Result{Value: 1.0, Scale: 1.0, Sem: 1.0, Fusion: 1.0}
	}

	descs := make([]*registry.MethodDescriptor, len(methodIDs))
	for i, id := range methodIDs {
		if d, ok := e.reg.Get(id); ok {
			descs[i] = &d
		}
	}

	r := Result{
		Scale:  scaleFactor(descs),
		Sem:    semanticFactor(descs),
		Fusion: fusionFactor(methodIDs, fusionRule, providedInputs),
	}
	r.Value = r.Scale * r.Sem * r.Fusion
	return r
}

// EvaluateLayer wraps Evaluate as a layer score.
func (e *Evaluator) EvaluateLayer(methodIDs []string, subgraphID, fusionRule string, providedInputs []string) layer.Score {
	return e.Evaluate(methodIDs, subgraphID, fusionRule, providedInputs).Score(subgraphID)
}

// #endregion evaluator

// #region factors
func scaleFactor(descs []*registry.MethodDescriptor) float64 {
	for _, d := range descs {
		if d == nil {
			return 0
		}
	}
	identical := true
	for _, d := range descs[1:] {
		if d.OutputRange != descs[0].OutputRange {
			identical = false
			break
		}
	}
	if identical {
		return scaleIdentical
	}
	// Literal-subset reading: ranges must already lie inside [0,1].
	// Linearly renormalisable ranges such as [0,3] do not qualify.
	for _, d := range descs {
		if !d.OutputRange.Within(0, 1) {
			return 0
		}
	}
	return scaleConvertible
}

// semanticFactor is the Jaccard index over all declared tag sets. An unknown
// method contributes an empty set, which empties the intersection.
func semanticFactor(descs []*registry.MethodDescriptor) float64 {
	union := make(map[string]struct{})
	var inter map[string]struct{}

	for _, d := range descs {
		tags := make(map[string]struct{})
		if d != nil {
			for _, t := range d.SemanticTags {
				tags[t] = struct{}{}
			}
		}
		for t := range tags {
			union[t] = struct{}{}
		}
		if inter == nil {
			inter = tags
			continue
		}
		for t := range inter {
			if _, ok := tags[t]; !ok {
				delete(inter, t)
			}
		}
	}

	if len(union) == 0 {
		return 0
	}
	return float64(len(inter)) / float64(len(union))
}

func fusionFactor(methodIDs []string, fusionRule string, provided []string) float64 {
	if fusionRule == "" {
		return 0
	}
	have := make(map[string]struct{}, len(provided))
	for _, p := range provided {
		have[p] = struct{}{}
	}
	for _, id := range methodIDs {
		if _, ok := have[id]; !ok {
			return fusionPartial
		}
	}
	return fusionComplete
}

// #endregion factors

// #region invariant
// CheckInvariant verifies C_play <= min(c_scale, c_sem, c_fusion).
func (r Result) CheckInvariant() error {
	floor := math.Min(r.Scale, math.Min(r.Sem, r.Fusion))
	if r.Value > floor+1e-12 {
		return fmt.Errorf("congruence %.6f exceeds min factor %.6f", r.Value, floor)
	}
	return nil
}

// #endregion invariant
