package choquet

import (
	"fmt"

	"github.com/danielpatrickdp/policyscore/internal/layer"
)

// #region role
// Role classifies what a method does in the pipeline. Each role requires a
// fixed subset of layers.
type Role string

const (
	RoleScoreQ    Role = "SCORE_Q"
	RoleAggregate Role = "AGGREGATE"
	RoleReport    Role = "REPORT"
	RoleIngest    Role = "INGEST"
	RoleExtract   Role = "EXTRACT"
	RoleTransform Role = "TRANSFORM"
	RoleMetaTool  Role = "META_TOOL"
)

var roleLayers = map[Role][]layer.ID{
	RoleScoreQ:    layer.All(),
	RoleAggregate: {layer.Base, layer.Chain, layer.Dimension, layer.PolicyArea, layer.Congruence, layer.Meta},
	RoleReport:    {layer.Base, layer.Chain, layer.Meta},
	RoleIngest:    {layer.Base, layer.Chain, layer.Unit, layer.Meta},
	RoleExtract:   {layer.Base, layer.Chain, layer.Unit, layer.Meta},
	RoleTransform: {layer.Base, layer.Chain, layer.Meta},
	RoleMetaTool:  {layer.Base, layer.Chain, layer.Meta},
}

// Roles returns every known role in a stable order.
func Roles() []Role {
	return []Role{RoleScoreQ, RoleAggregate, RoleReport, RoleIngest, RoleExtract, RoleTransform, RoleMetaTool}
}

// RequiredLayers returns the layers a role must have scored, in canonical order.
func RequiredLayers(role Role) ([]layer.ID, error) {
	ids, ok := roleLayers[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	out := append([]layer.ID(nil), ids...)
	layer.Sort(out)
	return out, nil
}

// #endregion role

// #region measure
// FuzzyMeasure is a 2-additive capacity over the eight layers, given by its
// singleton and pairwise interaction masses. It is loaded once and never mutated.
type FuzzyMeasure struct {
	Version      string
	Singletons   map[layer.ID]float64
	Interactions map[layer.Pair]float64
}

// Breakdown is the result of one integration.
type Breakdown struct {
	Value       float64
	Linear      float64
	Interaction float64
	Capacity    float64
}

// #endregion measure

// #region errors
// ConfigurationError reports a fuzzy measure that cannot be used.
type ConfigurationError struct {
	Version string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("fuzzy measure %s: %s", e.Version, e.Reason)
}

// MissingLayerError reports a role-required layer with no score.
type MissingLayerError struct {
	Role  Role
	Layer layer.ID
}

func (e *MissingLayerError) Error() string {
	return fmt.Sprintf("role %s requires layer %s but no score was provided", e.Role, e.Layer)
}

// #endregion errors
