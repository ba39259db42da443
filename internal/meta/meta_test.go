package meta

import (
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/policyscore/internal/layer"
	"github.com/danielpatrickdp/policyscore/internal/registry"
)

func desc() registry.MethodDescriptor {
	return registry.MethodDescriptor{
		MethodID:    "m",
		VersionTag:  "v2.1.0",
		ConfigHash:  "abc123",
		CostMetrics: registry.CostMetrics{RuntimeMs: 200, MemoryMB: 128},
	}
}

func fullManifest() *registry.VerificationManifest {
	return &registry.VerificationManifest{
		MethodID:   "m",
		VersionTag: "v2.1.0",
		ConfigHash: "abc123",
		Signature:  "sig",
		Transparency: registry.Transparency{
			FormulaExported: true,
			TraceComplete:   true,
			LogsConform:     true,
		},
	}
}

func TestFullManifestScoresOne(t *testing.T) {
	s, err := NewEvaluator(DefaultConfig()).Evaluate(desc(), fullManifest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(s.Value-1.0) > 1e-12 {
		t.Fatalf("expected 1.0, got %.6f (%v)", s.Value, s.Components)
	}
	if s.Layer != layer.Meta {
		t.Fatalf("expected @m, got %s", s.Layer)
	}
}

func TestMissingManifestNotComputable(t *testing.T) {
	_, err := NewEvaluator(DefaultConfig()).Evaluate(desc(), nil)
	if !errors.Is(err, layer.ErrNotComputable) {
		t.Fatalf("expected ErrNotComputable, got %v", err)
	}
}

func TestUnknownVersionAndHashMismatch(t *testing.T) {
	m := fullManifest()
	m.VersionTag = "unknown"
	m.ConfigHash = "other"
	s, err := NewEvaluator(DefaultConfig()).Evaluate(desc(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// governance = (0 + 0 + 1) / 3
	if math.Abs(s.Components["governance"]-1.0/3.0) > 1e-12 {
		t.Fatalf("expected governance 1/3, got %.4f", s.Components["governance"])
	}
	want := 0.5*1 + 0.4*(1.0/3.0) + 0.1*1
	if math.Abs(s.Value-want) > 1e-12 {
		t.Errorf("expected %.6f, got %.6f", want, s.Value)
	}
}

func TestForeignManifestZeroesGovernance(t *testing.T) {
	m := fullManifest()
	m.MethodID = "someone_else"
	s, _ := NewEvaluator(DefaultConfig()).Evaluate(desc(), m)
	if s.Components["governance"] != 0 {
		t.Fatalf("expected governance 0, got %.4f", s.Components["governance"])
	}
	if s.Metadata["governance"] == "" {
		t.Error("expected governance reason in metadata")
	}
}

func TestCostBands(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	cases := []struct {
		runtime, memory float64
		want            float64
	}{
		{100, 100, 1.0},
		{2000, 100, 0.9},
		{9000, 4096, 0.5},
		{2000, 1024, 0.8},
	}
	for _, tc := range cases {
		m := fullManifest()
		m.Observed = registry.CostMetrics{RuntimeMs: tc.runtime, MemoryMB: tc.memory}
		s, _ := e.Evaluate(desc(), m)
		if math.Abs(s.Components["cost"]-tc.want) > 1e-12 {
			t.Errorf("runtime=%.0f memory=%.0f: expected cost %.2f, got %.2f", tc.runtime, tc.memory, tc.want, s.Components["cost"])
		}
	}
}

func TestTransparencyPartial(t *testing.T) {
	m := fullManifest()
	m.Transparency.TraceComplete = false
	s, _ := NewEvaluator(DefaultConfig()).Evaluate(desc(), m)
	if math.Abs(s.Components["transparency"]-2.0/3.0) > 1e-12 {
		t.Fatalf("expected 2/3, got %.4f", s.Components["transparency"])
	}
}
