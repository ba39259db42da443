package choquet

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/policyscore/internal/layer"
)

func allScores(v float64) map[layer.ID]float64 {
	out := make(map[layer.ID]float64)
	for _, id := range layer.All() {
		out[id] = v
	}
	return out
}

func TestDefaultMeasureValid(t *testing.T) {
	m := DefaultMeasure()
	require.NoError(t, m.Validate())
	assert.InDelta(t, 1.0, m.Capacity(layer.All()), 1e-12)
}

func TestIntegrateConstantInputs(t *testing.T) {
	m := DefaultMeasure()
	for _, role := range Roles() {
		for _, v := range []float64{0, 0.37, 1} {
			b, err := m.Integrate(role, allScores(v))
			require.NoError(t, err)
			assert.InDelta(t, v, b.Value, 1e-12, "role %s value %.2f", role, v)
		}
	}
}

func TestIntegrateScoreQMatchesFormula(t *testing.T) {
	m := DefaultMeasure()
	x := map[layer.ID]float64{
		layer.Base: 0.9, layer.Unit: 0.4, layer.Question: 1.0, layer.Dimension: 0.7,
		layer.PolicyArea: 0.3, layer.Congruence: 0.8, layer.Meta: 0.6, layer.Chain: 1.0,
	}
	b, err := m.Integrate(RoleScoreQ, x)
	require.NoError(t, err)

	linear := 0.15*0.9 + 0.08*0.4 + 0.08*1.0 + 0.07*0.7 + 0.07*0.3 + 0.08*0.8 + 0.07*0.6 + 0.10*1.0
	interaction := 0.10*0.4 + 0.10*0.8 + 0.05*0.7 + 0.05*0.3
	assert.InDelta(t, linear, b.Linear, 1e-12)
	assert.InDelta(t, interaction, b.Interaction, 1e-12)
	assert.InDelta(t, linear+interaction, b.Value, 1e-12)
	assert.InDelta(t, 1.0, b.Capacity, 1e-12)
}

func TestSortedFormAgrees(t *testing.T) {
	m := DefaultMeasure()
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		x := make(map[layer.ID]float64)
		for _, id := range layer.All() {
			x[id] = r.Float64()
		}
		for _, role := range Roles() {
			b, err := m.Integrate(role, x)
			require.NoError(t, err)
			s, err := m.IntegrateSorted(role, x)
			require.NoError(t, err)
			require.InDelta(t, b.Value, s, 1e-9, "role %s iteration %d", role, i)
		}
	}
}

func TestIntegrateRoleSubsetNormalised(t *testing.T) {
	m := DefaultMeasure()
	x := map[layer.ID]float64{layer.Base: 1, layer.Chain: 1, layer.Meta: 1}
	b, err := m.Integrate(RoleReport, x)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, b.Value, 1e-12)
	assert.InDelta(t, 0.32, b.Capacity, 1e-12)
}

func TestIntegrateMissingLayer(t *testing.T) {
	m := DefaultMeasure()
	x := allScores(0.5)
	delete(x, layer.Congruence)

	_, err := m.Integrate(RoleAggregate, x)
	var missing *MissingLayerError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, layer.Congruence, missing.Layer)
	assert.Equal(t, RoleAggregate, missing.Role)

	// REPORT does not need @C.
	_, err = m.Integrate(RoleReport, x)
	assert.NoError(t, err)
}

func TestIntegrateRejectsOutOfRange(t *testing.T) {
	x := allScores(0.5)
	x[layer.Base] = 1.2
	_, err := DefaultMeasure().Integrate(RoleScoreQ, x)
	assert.Error(t, err)
}

func TestMonotoneInEachInput(t *testing.T) {
	m := DefaultMeasure()
	base := allScores(0.4)
	before, err := m.Integrate(RoleScoreQ, base)
	require.NoError(t, err)
	for _, id := range layer.All() {
		x := allScores(0.4)
		x[id] = 0.9
		after, err := m.Integrate(RoleScoreQ, x)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, after.Value, before.Value, "raising %s lowered the score", id)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*FuzzyMeasure){
		"not normalised": func(m *FuzzyMeasure) { m.Singletons[layer.Base] = 0.5 },
		"negative singleton": func(m *FuzzyMeasure) {
			m.Singletons[layer.Base] = -0.05
			m.Singletons[layer.Unit] = 0.28
		},
		"monotonicity": func(m *FuzzyMeasure) {
			m.Interactions[layer.NewPair(layer.Meta, layer.Base)] = -0.2
			m.Singletons[layer.Unit] = 0.28
		},
		"unknown layer": func(m *FuzzyMeasure) {
			delete(m.Singletons, layer.Base)
			m.Singletons["@x"] = 0.15
		},
		"self pair": func(m *FuzzyMeasure) {
			m.Interactions[layer.Pair{A: layer.Base, B: layer.Base}] = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := DefaultMeasure()
			mutate(&m)
			err := m.Validate()
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, "2024.1", cfgErr.Version)
		})
	}
}

func TestRequiredLayers(t *testing.T) {
	got, err := RequiredLayers(RoleAggregate)
	require.NoError(t, err)
	assert.Equal(t, []layer.ID{layer.Base, layer.Dimension, layer.PolicyArea, layer.Congruence, layer.Meta, layer.Chain}, got)

	got[0] = layer.Unit
	again, _ := RequiredLayers(RoleAggregate)
	assert.Equal(t, layer.Base, again[0], "RequiredLayers must return a copy")

	_, err = RequiredLayers("NOPE")
	assert.Error(t, err)
}

const measureYAML = `
version: "test-1"
singletons:
  "@b": 0.15
  "@u": 0.08
  "@q": 0.08
  "@d": 0.07
  "@p": 0.07
  "@C": 0.08
  "@m": 0.07
  "@chain": 0.10
interactions:
  - layers: ["@chain", "@u"]
    weight: 0.10
  - layers: ["@chain", "@C"]
    weight: 0.10
  - layers: ["@q", "@d"]
    weight: 0.05
  - layers: ["@d", "@p"]
    weight: 0.05
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "measure.yaml")
	require.NoError(t, os.WriteFile(path, []byte(measureYAML), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-1", m.Version)
	assert.InDelta(t, 0.10, m.Interactions[layer.NewPair(layer.Unit, layer.Chain)], 1e-12)

	def := DefaultMeasure()
	x := allScores(0.3)
	x[layer.Unit] = 0.9
	a, _ := m.Integrate(RoleScoreQ, x)
	b, _ := def.Integrate(RoleScoreQ, x)
	assert.InDelta(t, b.Value, a.Value, 1e-12)
}

func TestParseRejectsDuplicateInteraction(t *testing.T) {
	data := measureYAML + `  - layers: ["@u", "@chain"]
    weight: 0.0
`
	_, err := Parse([]byte(data))
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestIntegrateNoNaN(t *testing.T) {
	b, err := DefaultMeasure().Integrate(RoleScoreQ, allScores(0))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(b.Value))
}
