package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDescs() []MethodDescriptor {
	return []MethodDescriptor{
		{
			MethodID:     "pattern_match",
			OutputRange:  Range{Lo: 0, Hi: 1},
			SemanticTags: []string{"quality", "structural"},
			VersionTag:   "v1.2.0",
			ConfigHash:   "abc",
			Intrinsic:    Intrinsic{Theory: 0.8, Implementation: 0.7, Deployment: 0.9},
		},
		{
			MethodID:     "budget_trace",
			OutputRange:  Range{Lo: 0, Hi: 3},
			SemanticTags: []string{"numerical"},
		},
	}
}

func TestNewAndGet(t *testing.T) {
	r, err := New("2026.1", sampleDescs(), map[string]Compatibility{
		"pattern_match": {Questions: map[string]Priority{"Q001": PriorityPrimary}},
	})
	require.NoError(t, err)

	assert.Equal(t, "2026.1", r.Version())
	assert.Equal(t, []string{"budget_trace", "pattern_match"}, r.IDs())
	assert.Equal(t, 2, r.Len())

	d, ok := r.Get("pattern_match")
	require.True(t, ok)
	assert.Equal(t, "v1.2.0", d.VersionTag)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	c, ok := r.Compatibility("pattern_match")
	require.True(t, ok)
	assert.Equal(t, PriorityPrimary, c.Questions["Q001"])
}

func TestRegistryIsImmutable(t *testing.T) {
	descs := sampleDescs()
	r, err := New("v", descs, nil)
	require.NoError(t, err)

	// Mutating the input after construction must not leak in.
	descs[0].SemanticTags[0] = "tampered"
	d, _ := r.Get("pattern_match")
	assert.Equal(t, "quality", d.SemanticTags[0])

	// Mutating a returned copy must not leak in either.
	d.SemanticTags[0] = "tampered"
	again, _ := r.Get("pattern_match")
	assert.Equal(t, "quality", again.SemanticTags[0])

	ids := r.IDs()
	ids[0] = "tampered"
	assert.Equal(t, "budget_trace", r.IDs()[0])
}

func TestNewRejectsDuplicates(t *testing.T) {
	descs := append(sampleDescs(), sampleDescs()[0])
	_, err := New("v", descs, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDescriptor))
}

func TestNewRejectsInvertedRange(t *testing.T) {
	_, err := New("v", []MethodDescriptor{{MethodID: "m", OutputRange: Range{Lo: 1, Hi: 0}}}, nil)
	require.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestNewRejectsEmptyID(t *testing.T) {
	_, err := New("v", []MethodDescriptor{{OutputRange: Range{Lo: 0, Hi: 1}}}, nil)
	require.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestNewRejectsIntrinsicOutOfRange(t *testing.T) {
	_, err := New("v", []MethodDescriptor{{MethodID: "m", Intrinsic: Intrinsic{Theory: 1.5}}}, nil)
	require.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestNewRejectsOrphanCompatibility(t *testing.T) {
	_, err := New("v", sampleDescs(), map[string]Compatibility{"ghost": {}})
	require.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
version: "2026.2"
methods:
  - method_id: m1
    output_range: [0, 1]
    semantic_tags: [quality, structural]
    version_tag: v1
    intrinsic: {theory: 0.9, implementation: 0.8, deployment: 0.7}
  - method_id: m2
    output_range: {lo: 0.2, hi: 1.0}
compatibility:
  m1:
    questions: {Q001: 3}
    dimensions: {DIM01: 2}
`)
	r, err := Parse(data)
	require.NoError(t, err)

	m1, ok := r.Get("m1")
	require.True(t, ok)
	assert.Equal(t, Range{Lo: 0, Hi: 1}, m1.OutputRange)
	assert.Equal(t, 0.9, m1.Intrinsic.Theory)

	m2, _ := r.Get("m2")
	assert.Equal(t, Range{Lo: 0.2, Hi: 1.0}, m2.OutputRange)

	c, _ := r.Compatibility("m1")
	assert.Equal(t, PrioritySecondary, c.Dimensions["DIM01"])
}

func TestParseRejectsBadRange(t *testing.T) {
	_, err := Parse([]byte(`
version: v
methods:
  - method_id: m1
    output_range: [0, 1, 2]
`))
	require.Error(t, err)
}

func TestParseRequiresVersion(t *testing.T) {
	_, err := Parse([]byte(`methods: []`))
	require.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestConfigHashStable(t *testing.T) {
	a, err := ConfigHash(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := ConfigHash(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, _ := ConfigHash(map[string]any{"a": 2})
	assert.NotEqual(t, a, c)
}

func TestRangeWithin(t *testing.T) {
	assert.True(t, Range{Lo: 0.2, Hi: 0.8}.Within(0, 1))
	assert.True(t, Range{Lo: 0, Hi: 1}.Within(0, 1))
	assert.False(t, Range{Lo: 0, Hi: 3}.Within(0, 1))
	assert.False(t, Range{Lo: -0.1, Hi: 1}.Within(0, 1))
}
