package diagnostics

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
)

func sampleRun() *hierarchy.Run {
	return &hierarchy.Run{
		Levels: map[hierarchy.Level][]hierarchy.AggregateScore{
			hierarchy.LevelDimension: {
				{GroupID: "PA01-DIM01", Value: 1.2, Provenance: hierarchy.Provenance{Inputs: []string{"Q001", "Q002"}}},
				{GroupID: "PA01-DIM02", Value: 0.4, Provenance: hierarchy.Provenance{Inputs: []string{"Q006"}},
					Diagnosis: &contract.Diagnosis{MissingIDs: []string{"Q007"}}},
				{GroupID: "PA01-DIM03", Value: 0.4, Provenance: hierarchy.Provenance{Inputs: []string{"Q011"}}},
			},
		},
		Violations: []contract.Violation{
			{InvariantID: contract.Hermeticity, Severity: contract.SeverityCritical, GroupID: "PA01-DIM02"},
			{InvariantID: contract.ScoreBounds, Severity: contract.SeverityHigh, GroupID: "Q009"},
			{InvariantID: contract.ScoreBounds, Severity: contract.SeverityHigh, GroupID: "Q003"},
		},
	}
}

func TestWeakestDimensions(t *testing.T) {
	got := WeakestDimensions(sampleRun(), 2)
	ids := []string{got[0].GroupID, got[1].GroupID}
	if diff := cmp.Diff([]string{"PA01-DIM02", "PA01-DIM03"}, ids); diff != "" {
		t.Errorf("weakest mismatch (-want +got):\n%s", diff)
	}
	if all := WeakestDimensions(sampleRun(), 10); len(all) != 3 {
		t.Errorf("expected 3 dimensions, got %d", len(all))
	}
}

func TestViolationSummary(t *testing.T) {
	want := []ViolationCount{
		{InvariantID: contract.ScoreBounds, Severity: contract.SeverityHigh, Count: 2, Groups: []string{"Q003", "Q009"}},
		{InvariantID: contract.Hermeticity, Severity: contract.SeverityCritical, Count: 1, Groups: []string{"PA01-DIM02"}},
	}
	if diff := cmp.Diff(want, ViolationSummary(sampleRun())); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestCoverage(t *testing.T) {
	cov := Coverage(sampleRun(), hierarchy.DefaultSchema())
	if len(cov) != 5 {
		t.Fatalf("expected 5 levels, got %d", len(cov))
	}
	dim := cov[1]
	want := LevelCoverage{Level: hierarchy.LevelDimension, Expected: 60, Groups: 3, CompleteGroups: 2, Inputs: 4}
	if diff := cmp.Diff(want, dim); diff != "" {
		t.Errorf("coverage mismatch (-want +got):\n%s", diff)
	}
	if r := dim.Ratio(); r != 0.05 {
		t.Errorf("expected ratio 0.05, got %v", r)
	}
}
