package meta

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/policyscore/internal/layer"
	"github.com/danielpatrickdp/policyscore/internal/registry"
)

// #region config
// Config holds the weights and cost thresholds of the @m layer.
type Config struct {
	TransparencyWeight  float64 `yaml:"transparency_weight" validate:"gte=0,lte=1"`
	GovernanceWeight    float64 `yaml:"governance_weight" validate:"gte=0,lte=1"`
	CostWeight          float64 `yaml:"cost_weight" validate:"gte=0,lte=1"`
	FastRuntimeMs       float64 `yaml:"fast_runtime_ms" validate:"gt=0"`
	AcceptableRuntimeMs float64 `yaml:"acceptable_runtime_ms" validate:"gtfield=FastRuntimeMs"`
	NormalMemoryMB      float64 `yaml:"normal_memory_mb" validate:"gt=0"`
	HighMemoryMB        float64 `yaml:"high_memory_mb" validate:"gtfield=NormalMemoryMB"`
}

// DefaultConfig returns the standard governance weighting.
func DefaultConfig() Config {
	return Config{
		TransparencyWeight:  0.5,
		GovernanceWeight:    0.4,
		CostWeight:          0.1,
		FastRuntimeMs:       1000,
		AcceptableRuntimeMs: 5000,
		NormalMemoryMB:      512,
		HighMemoryMB:        2048,
	}
}

// #endregion config

// #region evaluator
// Evaluator scores governance, transparency and cost (@m).
type Evaluator struct {
	config Config
}

// NewEvaluator creates a meta evaluator.
func NewEvaluator(config Config) *Evaluator {
	return &Evaluator{config: config}
}

// Evaluate scores desc against the verification manifest of the invocation.
// Without a manifest the layer is not computable.
func (e *Evaluator) Evaluate(desc registry.MethodDescriptor, manifest *registry.VerificationManifest) (layer.Score, error) {
	if manifest == nil {
		return layer.Score{}, fmt.Errorf("%w: no verification manifest for %s", layer.ErrNotComputable, desc.MethodID)
	}

	transparency := (b2f(manifest.Transparency.FormulaExported) +
		b2f(manifest.Transparency.TraceComplete) +
		b2f(manifest.Transparency.LogsConform)) / 3

	meta := map[string]string{"method_id": desc.MethodID}

	var governance float64
	if manifest.MethodID != "" && manifest.MethodID != desc.MethodID {
		meta["governance"] = fmt.Sprintf("manifest belongs to %s", manifest.MethodID)
	} else {
		governance = (e.versionScore(desc, manifest) + hashScore(desc, manifest) + b2f(manifest.Signature != "")) / 3
	}

	cost := e.costScore(desc, manifest)

	wsum := e.config.TransparencyWeight + e.config.GovernanceWeight + e.config.CostWeight
	var value float64
	if wsum > 0 {
		value = (e.config.TransparencyWeight*transparency +
			e.config.GovernanceWeight*governance +
			e.config.CostWeight*cost) / wsum
	}

	return layer.Score{
		Layer: layer.Meta,
		Value: layer.Clamp01(value),
		Components: map[string]float64{
			"transparency": transparency,
			"governance":   governance,
			"cost":         cost,
		},
		Metadata: meta,
	}, nil
}

// #endregion evaluator

// #region helpers
func (e *Evaluator) versionScore(desc registry.MethodDescriptor, m *registry.VerificationManifest) float64 {
	tag := strings.TrimSpace(m.VersionTag)
	if tag == "" || strings.EqualFold(tag, "unknown") {
		return 0
	}
	if desc.VersionTag != "" && desc.VersionTag != tag {
		return 0
	}
	return 1
}

func hashScore(desc registry.MethodDescriptor, m *registry.VerificationManifest) float64 {
	if desc.ConfigHash == "" || m.ConfigHash == "" {
		return 0
	}
	return b2f(desc.ConfigHash == m.ConfigHash)
}

// costScore prefers the observed footprint and falls back to the registry's.
func (e *Evaluator) costScore(desc registry.MethodDescriptor, m *registry.VerificationManifest) float64 {
	cost := m.Observed
	if cost.RuntimeMs == 0 && cost.MemoryMB == 0 {
		cost = desc.CostMetrics
	}
	runtime := band(cost.RuntimeMs, e.config.FastRuntimeMs, e.config.AcceptableRuntimeMs)
	memory := band(cost.MemoryMB, e.config.NormalMemoryMB, e.config.HighMemoryMB)
	return (runtime + memory) / 2
}

func band(v, good, acceptable float64) float64 {
	switch {
	case v < good:
		return 1.0
	case v < acceptable:
		return 0.8
	default:
		return 0.5
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
