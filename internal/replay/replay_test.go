package replay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
)

// #region fixture-tests

func replayConfig() hierarchy.Config {
	cfg := hierarchy.DefaultConfig()
	cfg.Bootstrap.NResamples = 100
	return cfg
}

// TestFixture_Canonical replays the canonical fixture and checks every case
// against its recorded expectation. Changes to penalty or weighting show up
// here as drift.
func TestFixture_Canonical(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "canonical.yaml"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results := Replay(context.Background(), hierarchy.DefaultSchema(), replayConfig(), f.Cases)
	if len(results) != len(f.Cases) {
		t.Fatalf("expected %d results, got %d", len(f.Cases), len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("case %s: %s", r.Name, r.Reason)
		}
		if !r.Deterministic {
			t.Errorf("case %s: replay not deterministic", r.Name)
		}
	}

	s := Summarize(results)
	if s.Total != 6 || s.Passed != 6 || s.Aborted != 2 || s.Nondeterministic != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestReplayReportsDrift(t *testing.T) {
	fill := 2.0
	want := 1.5
	cases := []Case{{
		Name:   "drifted",
		Fill:   &fill,
		Expect: Expectation{Outcome: OutcomeOK, Macro: &want},
	}}
	results := Replay(context.Background(), hierarchy.DefaultSchema(), replayConfig(), cases)
	if results[0].Passed {
		t.Fatal("expected drifted case to fail")
	}
	if results[0].Reason == "" {
		t.Fatal("expected a reason")
	}
	if s := Summarize(results); s.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", s)
	}
}

func TestReplayReportsUnexpectedAbort(t *testing.T) {
	fill := 2.0
	cases := []Case{{
		Name:   "orphan",
		Fill:   &fill,
		Evidence: []hierarchy.EvidenceScore{
			{QuestionID: "Q999", Score: 1, Confidence: 1},
		},
		Expect: Expectation{Outcome: OutcomeOK},
	}}
	results := Replay(context.Background(), hierarchy.DefaultSchema(), replayConfig(), cases)
	r := results[0]
	if r.Passed || r.Outcome != OutcomeAbort {
		t.Fatalf("expected unexpected abort, got %+v", r)
	}
	if len(r.Violations) != 1 || r.Violations[0] != contract.Hermeticity {
		t.Fatalf("expected hermeticity violation, got %v", r.Violations)
	}
}

// #endregion fixture-tests

// #region loader-tests

func TestParseFixtureRejects(t *testing.T) {
	cases := map[string]string{
		"missing name":  "cases:\n  - expect: {outcome: ok}\n",
		"duplicate":     "cases:\n  - name: a\n    expect: {outcome: ok}\n  - name: a\n    expect: {outcome: ok}\n",
		"bad outcome":   "cases:\n  - name: a\n    expect: {outcome: maybe}\n",
		"not a fixture": "cases: 3\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFixture([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseFixtureAcceptsJSON(t *testing.T) {
	f, err := ParseFixture([]byte(`{"cases":[{"name":"j","fill":1,"expect":{"outcome":"ok"}}]}`))
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	if len(f.Cases) != 1 || *f.Cases[0].Fill != 1 {
		t.Fatalf("unexpected fixture: %+v", f)
	}
}

func TestEvidenceFor(t *testing.T) {
	fill := 1.0
	c := Case{
		Fill: &fill,
		Drop: []string{"Q002"},
		Evidence: []hierarchy.EvidenceScore{
			{QuestionID: "Q005", Score: 3},
		},
	}
	ev := c.EvidenceFor(hierarchy.DefaultSchema())
	if len(ev) != 299 {
		t.Fatalf("expected 299 scores, got %d", len(ev))
	}
	if ev[0].QuestionID != "Q005" || ev[0].Score != 3 {
		t.Fatalf("listed evidence should lead, got %+v", ev[0])
	}
	for _, e := range ev {
		if e.QuestionID == "Q002" {
			t.Fatal("dropped question present")
		}
	}
}

// #endregion loader-tests
