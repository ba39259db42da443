package choquet

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/policyscore/internal/layer"
)

const normalizationTolerance = 1e-6

// #region default
// DefaultMeasure returns the planned production capacity.
func DefaultMeasure() FuzzyMeasure {
	return FuzzyMeasure{
		Version: "2024.1",
		Singletons: map[layer.ID]float64{
			layer.Base:       0.15,
			layer.Unit:       0.08,
			layer.Question:   0.08,
			layer.Dimension:  0.07,
			layer.PolicyArea: 0.07,
			layer.Congruence: 0.08,
			layer.Meta:       0.07,
			layer.Chain:      0.10,
		},
		Interactions: map[layer.Pair]float64{
			layer.NewPair(layer.Unit, layer.Chain):          0.10,
			layer.NewPair(layer.Chain, layer.Congruence):    0.10,
			layer.NewPair(layer.Question, layer.Dimension):  0.05,
			layer.NewPair(layer.Dimension, layer.PolicyArea): 0.05,
		},
	}
}

// #endregion default

// #region validate
// Validate checks normalisation, non-negative singletons, monotonicity and
// that every role subset has positive capacity.
func (m FuzzyMeasure) Validate() error {
	fail := func(format string, args ...any) error {
		return &ConfigurationError{Version: m.Version, Reason: fmt.Sprintf(format, args...)}
	}

	for id, a := range m.Singletons {
		if !id.Valid() {
			return fail("unknown layer %s", id)
		}
		if math.IsNaN(a) || a < 0 {
			return fail("singleton %s has negative capacity %.6f", id, a)
		}
	}
	for p, a := range m.Interactions {
		if !p.A.Valid() || !p.B.Valid() {
			return fail("interaction %s references an unknown layer", p)
		}
		if p.A == p.B {
			return fail("interaction %s pairs a layer with itself", p)
		}
		if p != layer.NewPair(p.A, p.B) {
			return fail("interaction %s is not in canonical order", p)
		}
		if math.IsNaN(a) {
			return fail("interaction %s is NaN", p)
		}
	}

	total := m.Capacity(layer.All())
	if math.Abs(total-1.0) > normalizationTolerance {
		return fail("capacity of the full layer set is %.9f, expected 1.0 ± %.0e", total, normalizationTolerance)
	}

	// a_i + sum_{j in B} a_ij >= 0 for every B holds iff it holds for the
	// B that collects all negative interactions of i.
	for _, i := range layer.All() {
		worst := m.Singletons[i]
		for p, a := range m.Interactions {
			if a < 0 && (p.A == i || p.B == i) {
				worst += a
			}
		}
		if worst < -normalizationTolerance {
			return fail("monotonicity violated at %s: worst marginal contribution %.6f", i, worst)
		}
	}

	for _, r := range Roles() {
		if m.Capacity(roleLayers[r]) <= 0 {
			return fail("role %s has zero capacity", r)
		}
	}
	return nil
}

// #endregion validate

// #region capacity
// Capacity returns μ(S) for a set of layers.
func (m FuzzyMeasure) Capacity(set []layer.ID) float64 {
	in := make(map[layer.ID]bool, len(set))
	for _, id := range set {
		in[id] = true
	}
	var mu float64
	for _, id := range sortedSet(in) {
		mu += m.Singletons[id]
	}
	for _, p := range m.sortedPairs() {
		if in[p.A] && in[p.B] {
			mu += m.Interactions[p]
		}
	}
	return mu
}

// #endregion capacity

// #region integrate
// Integrate computes Σ a_i·x_i + Σ a_ij·min(x_i, x_j) over the role's layers,
// divided by the role's capacity. Extra scores are ignored; a missing
// required score is a *MissingLayerError.
func (m FuzzyMeasure) Integrate(role Role, scores map[layer.ID]float64) (Breakdown, error) {
	required, x, err := m.restrict(role, scores)
	if err != nil {
		return Breakdown{}, err
	}

	var linear, interaction float64
	for _, id := range required {
		linear += m.Singletons[id] * x[id]
	}
	for _, p := range m.sortedPairs() {
		xa, okA := x[p.A]
		xb, okB := x[p.B]
		if okA && okB {
			interaction += m.Interactions[p] * math.Min(xa, xb)
		}
	}

	capacity := m.Capacity(required)
	if capacity <= 0 {
		return Breakdown{}, &ConfigurationError{Version: m.Version, Reason: fmt.Sprintf("role %s has zero capacity", role)}
	}
	return Breakdown{
		Value:       layer.Clamp01((linear + interaction) / capacity),
		Linear:      linear,
		Interaction: interaction,
		Capacity:    capacity,
	}, nil
}

// IntegrateSorted computes the same value through the discrete Choquet form
// Σ (x_(k) − x_(k−1))·μ(A_(k)) with inputs sorted ascending.
func (m FuzzyMeasure) IntegrateSorted(role Role, scores map[layer.ID]float64) (float64, error) {
	required, x, err := m.restrict(role, scores)
	if err != nil {
		return 0, err
	}

	ordered := append([]layer.ID(nil), required...)
	sort.SliceStable(ordered, func(i, j int) bool { return x[ordered[i]] < x[ordered[j]] })

	var total, prev float64
	for k := range ordered {
		total += (x[ordered[k]] - prev) * m.Capacity(ordered[k:])
		prev = x[ordered[k]]
	}

	capacity := m.Capacity(required)
	if capacity <= 0 {
		return 0, &ConfigurationError{Version: m.Version, Reason: fmt.Sprintf("role %s has zero capacity", role)}
	}
	return layer.Clamp01(total / capacity), nil
}

func (m FuzzyMeasure) restrict(role Role, scores map[layer.ID]float64) ([]layer.ID, map[layer.ID]float64, error) {
	required, err := RequiredLayers(role)
	if err != nil {
		return nil, nil, err
	}
	x := make(map[layer.ID]float64, len(required))
	for _, id := range required {
		v, ok := scores[id]
		if !ok {
			return nil, nil, &MissingLayerError{Role: role, Layer: id}
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return nil, nil, fmt.Errorf("layer %s score %.6f outside [0, 1]", id, v)
		}
		x[id] = v
	}
	return required, x, nil
}

func (m FuzzyMeasure) sortedPairs() []layer.Pair {
	pairs := make([]layer.Pair, 0, len(m.Interactions))
	for p := range m.Interactions {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

func sortedSet(in map[layer.ID]bool) []layer.ID {
	ids := make([]layer.ID, 0, len(in))
	for id := range in {
		ids = append(ids, id)
	}
	layer.Sort(ids)
	return ids
}

// #endregion integrate

// #region load
type measureFile struct {
	Version      string             `yaml:"version"`
	Singletons   map[string]float64 `yaml:"singletons"`
	Interactions []struct {
		Layers []string `yaml:"layers"`
		Weight float64  `yaml:"weight"`
	} `yaml:"interactions"`
}

// Load reads and validates a measure file.
func Load(path string) (FuzzyMeasure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FuzzyMeasure{}, fmt.Errorf("read measure: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML measure and validates it.
func Parse(data []byte) (FuzzyMeasure, error) {
	var f measureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return FuzzyMeasure{}, fmt.Errorf("decode measure: %w", err)
	}
	if f.Version == "" {
		return FuzzyMeasure{}, &ConfigurationError{Reason: "missing version"}
	}

	m := FuzzyMeasure{
		Version:      f.Version,
		Singletons:   make(map[layer.ID]float64, len(f.Singletons)),
		Interactions: make(map[layer.Pair]float64, len(f.Interactions)),
	}
	for k, v := range f.Singletons {
		m.Singletons[layer.ID(k)] = v
	}
	for _, in := range f.Interactions {
		if len(in.Layers) != 2 {
			return FuzzyMeasure{}, &ConfigurationError{Version: f.Version, Reason: fmt.Sprintf("interaction %v must name two layers", in.Layers)}
		}
		p := layer.NewPair(layer.ID(in.Layers[0]), layer.ID(in.Layers[1]))
		if _, dup := m.Interactions[p]; dup {
			return FuzzyMeasure{}, &ConfigurationError{Version: f.Version, Reason: fmt.Sprintf("interaction %s declared twice", p)}
		}
		m.Interactions[p] = in.Weight
	}

	if err := m.Validate(); err != nil {
		return FuzzyMeasure{}, err
	}
	return m, nil
}

// #endregion load
