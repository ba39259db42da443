package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// #region range
// Range is the closed output interval a method declares for its scores.
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Within reports whether r is a literal subset of [lo, hi].
func (r Range) Within(lo, hi float64) bool {
	return r.Lo >= lo && r.Hi <= hi
}

// UnmarshalYAML accepts the compact `[lo, hi]` form as well as a mapping.
func (r *Range) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var pair []float64
		if err := value.Decode(&pair); err != nil {
			return fmt.Errorf("decode output range: %w", err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("output range: expected [lo, hi], got %d values", len(pair))
		}
		r.Lo, r.Hi = pair[0], pair[1]
		return nil
	}
	type plain Range
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("decode output range: %w", err)
	}
	*r = Range(p)
	return nil
}

// #endregion range

// #region method-descriptor
// CostMetrics is the observed runtime footprint of a method.
type CostMetrics struct {
	RuntimeMs float64 `yaml:"runtime_ms" json:"runtime_ms" validate:"gte=0"`
	MemoryMB  float64 `yaml:"memory_mb" json:"memory_mb" validate:"gte=0"`
}

// Intrinsic holds the base-layer quality ratings of a method, each in [0, 1].
type Intrinsic struct {
	Theory         float64 `yaml:"theory" json:"theory" validate:"gte=0,lte=1"`
	Implementation float64 `yaml:"implementation" json:"implementation" validate:"gte=0,lte=1"`
	Deployment     float64 `yaml:"deployment" json:"deployment" validate:"gte=0,lte=1"`
}

// MethodDescriptor is the immutable catalog entry for one scoring method.
type MethodDescriptor struct {
	MethodID     string      `yaml:"method_id" json:"method_id" validate:"required"`
	Description  string      `yaml:"description" json:"description"`
	OutputRange  Range       `yaml:"output_range" json:"output_range"`
	SemanticTags []string    `yaml:"semantic_tags" json:"semantic_tags"`
	VersionTag   string      `yaml:"version_tag" json:"version_tag"`
	ConfigHash   string      `yaml:"config_hash" json:"config_hash"`
	CostMetrics  CostMetrics `yaml:"cost_metrics" json:"cost_metrics"`
	Intrinsic    Intrinsic   `yaml:"intrinsic" json:"intrinsic"`
}

// clone returns a deep copy so callers can never mutate registry state.
func (d MethodDescriptor) clone() MethodDescriptor {
	out := d
	out.SemanticTags = append([]string(nil), d.SemanticTags...)
	return out
}

// #endregion method-descriptor

// #region compatibility
// Priority is how central a method is to a questionnaire element.
// 0 means unmapped.
type Priority int

const (
	PriorityUnmapped   Priority = 0
	PriorityPeripheral Priority = 1
	PrioritySecondary  Priority = 2
	PriorityPrimary    Priority = 3
)

// Compatibility maps questionnaire elements to the priority a method has for them.
type Compatibility struct {
	Questions   map[string]Priority `yaml:"questions" json:"questions"`
	Dimensions  map[string]Priority `yaml:"dimensions" json:"dimensions"`
	PolicyAreas map[string]Priority `yaml:"policy_areas" json:"policy_areas"`
}

func (c Compatibility) clone() Compatibility {
	return Compatibility{
		Questions:   cloneMap(c.Questions),
		Dimensions:  cloneMap(c.Dimensions),
		PolicyAreas: cloneMap(c.PolicyAreas),
	}
}

func cloneMap(m map[string]Priority) map[string]Priority {
	if m == nil {
		return nil
	}
	out := make(map[string]Priority, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion compatibility

// #region manifest
// Transparency flags reported by a method's verification run.
type Transparency struct {
	FormulaExported bool `yaml:"formula_exported" json:"formula_exported"`
	TraceComplete   bool `yaml:"trace_complete" json:"trace_complete"`
	LogsConform     bool `yaml:"logs_conform" json:"logs_conform"`
}

// VerificationManifest is the governance artifact attached to a method invocation.
type VerificationManifest struct {
	MethodID     string       `yaml:"method_id" json:"method_id"`
	VersionTag   string       `yaml:"version_tag" json:"version_tag"`
	ConfigHash   string       `yaml:"config_hash" json:"config_hash"`
	Signature    string       `yaml:"signature" json:"signature"`
	Transparency Transparency `yaml:"transparency" json:"transparency"`
	Observed     CostMetrics  `yaml:"observed" json:"observed"`
}

// #endregion manifest
