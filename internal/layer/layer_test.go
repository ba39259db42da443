package layer

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/policyscore/internal/registry"
)

func TestEvaluateBaseWeights(t *testing.T) {
	desc := registry.MethodDescriptor{
		MethodID:  "m",
		Intrinsic: registry.Intrinsic{Theory: 1, Implementation: 0.5, Deployment: 0},
	}
	s := EvaluateBase(desc)

	want := 0.40 + 0.35*0.5
	if math.Abs(s.Value-want) > 1e-12 {
		t.Fatalf("expected %.4f, got %.4f", want, s.Value)
	}
	if s.Layer != Base {
		t.Fatalf("expected layer %s, got %s", Base, s.Layer)
	}
	if s.Metadata["method_id"] != "m" {
		t.Errorf("expected method id in metadata, got %q", s.Metadata["method_id"])
	}
}

func TestEvaluateBaseFullMarks(t *testing.T) {
	s := EvaluateBase(registry.MethodDescriptor{Intrinsic: registry.Intrinsic{Theory: 1, Implementation: 1, Deployment: 1}})
	if math.Abs(s.Value-1.0) > 1e-12 {
		t.Fatalf("expected 1.0, got %.6f", s.Value)
	}
}

func TestEvaluateChainLevels(t *testing.T) {
	cases := []struct {
		name string
		in   ChainInputs
		want float64
	}{
		{"clean", ChainInputs{}, 1.0},
		{"warnings", ChainInputs{Warnings: []string{"w"}}, 0.8},
		{"optional missing", ChainInputs{OptionalMissing: []string{"o"}}, 0.8},
		{"soft schema", ChainInputs{SoftSchemaIssues: []string{"s"}, Warnings: []string{"w"}}, 0.6},
		{"critical optional", ChainInputs{CriticalOptionalMissing: []string{"c"}, SoftSchemaIssues: []string{"s"}}, 0.3},
		{"required missing", ChainInputs{RequiredMissing: []string{"r"}}, 0.0},
		{"hard mismatch", ChainInputs{HardMismatch: true}, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := EvaluateChain(tc.in)
			if s.Value != tc.want {
				t.Errorf("expected %.1f, got %.1f (%s)", tc.want, s.Value, s.Metadata["reason"])
			}
		})
	}
}

func TestClamp01(t *testing.T) {
	if Clamp01(-1) != 0 || Clamp01(2) != 1 || Clamp01(0.4) != 0.4 {
		t.Fatal("clamp bounds wrong")
	}
	if Clamp01(math.NaN()) != 0 {
		t.Fatal("NaN should clamp to 0")
	}
}

func TestPairIsUnordered(t *testing.T) {
	if NewPair(Chain, Base) != NewPair(Base, Chain) {
		t.Fatal("pair should be order independent")
	}
	if NewPair(Chain, Base).A != Base {
		t.Fatalf("expected canonical order, got %v", NewPair(Chain, Base))
	}
}

func TestSortCanonical(t *testing.T) {
	ids := []ID{Chain, Meta, Base, Unit}
	Sort(ids)
	want := []ID{Base, Unit, Meta, Chain}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestValid(t *testing.T) {
	for _, id := range All() {
		if !id.Valid() {
			t.Errorf("%s should be valid", id)
		}
	}
	if ID("@x").Valid() {
		t.Error("@x should not be valid")
	}
}
