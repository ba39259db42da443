package contextual

import (
	"fmt"

	"github.com/danielpatrickdp/policyscore/internal/layer"
	"github.com/danielpatrickdp/policyscore/internal/registry"
)

// #region context
// Context identifies where a method is being applied: I = (question, dimension, policy area).
type Context struct {
	QuestionID   string `json:"question_id" yaml:"question_id"`
	DimensionID  string `json:"dimension_id" yaml:"dimension_id"`
	PolicyAreaID string `json:"policy_area_id" yaml:"policy_area_id"`
}

// #endregion context

// #region priority-scores
// Score assigned to each compatibility priority.
var priorityScore = map[registry.Priority]float64{
	registry.PriorityPrimary:    1.0,
	registry.PrioritySecondary:  0.7,
	registry.PriorityPeripheral: 0.3,
}

// unmappedScore penalizes a method applied outside its declared context.
const unmappedScore = 0.1

// #endregion priority-scores

// #region evaluator
// Evaluator computes the @q, @d and @p layers from the registry's
// compatibility table.
type Evaluator struct {
	reg *registry.Registry
}

// NewEvaluator creates a contextual evaluator over reg.
func NewEvaluator(reg *registry.Registry) *Evaluator {
	return &Evaluator{reg: reg}
}

// Evaluate returns the score for one contextual layer. An empty context key
// for the requested layer makes it not computable.
func (e *Evaluator) Evaluate(methodID string, id layer.ID, ctx Context) (layer.Score, error) {
	compat, _ := e.reg.Compatibility(methodID)

	var key string
	var table map[string]registry.Priority
	switch id {
	case layer.Question:
		key, table = ctx.QuestionID, compat.Questions
	case layer.Dimension:
		key, table = ctx.DimensionID, compat.Dimensions
	case layer.PolicyArea:
		key, table = ctx.PolicyAreaID, compat.PolicyAreas
	default:
		return layer.Score{}, fmt.Errorf("%s is not a contextual layer", id)
	}
	if key == "" {
		return layer.Score{}, fmt.Errorf("%w: %s needs a context key", layer.ErrNotComputable, id)
	}

	prio := table[key]
	value, ok := priorityScore[prio]
	if !ok {
		value = unmappedScore
	}

	return layer.Score{
		Layer:      id,
		Value:      value,
		Components: map[string]float64{"priority": float64(prio)},
		Metadata:   map[string]string{"method_id": methodID, "context_key": key},
	}, nil
}

// #endregion evaluator
