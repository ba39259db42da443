package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var fixedTime = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func sampleRun(t *testing.T) *hierarchy.Run {
	t.Helper()
	ev := make([]hierarchy.EvidenceScore, 0, 300)
	for i := 1; i <= 300; i++ {
		ev = append(ev, hierarchy.EvidenceScore{
			QuestionID: fmt.Sprintf("Q%03d", i),
			Score:      float64(i%4) * 0.75,
			Confidence: 1,
		})
	}
	cfg := hierarchy.DefaultConfig()
	cfg.Bootstrap.NResamples = 50
	agg := hierarchy.NewAggregator(hierarchy.DefaultSchema(), cfg,
		hierarchy.WithClock(func() time.Time { return fixedTime }))
	run, err := agg.Run(context.Background(), ev, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return run
}

func TestSaveAndLoadRun(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	run := sampleRun(t)

	meta := RunMeta{SchemaVersion: "canonical-300", MeasureVersion: "2024.1", ConfigHash: "abc123"}
	if err := s.SaveRun(ctx, run, meta); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	rec, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != "ok" || rec.ConfigHash != "abc123" || rec.MeasureVersion != "2024.1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.MacroValue == nil || *rec.MacroValue != run.Macro.Value {
		t.Fatalf("macro mismatch: %v vs %v", rec.MacroValue, run.Macro.Value)
	}
	if !rec.StartedAt.Equal(fixedTime) {
		t.Fatalf("expected started_at %v, got %v", fixedTime, rec.StartedAt)
	}

	loaded, err := s.LoadRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	for _, level := range hierarchy.Levels() {
		if got, want := len(loaded.Levels[level]), len(run.Levels[level]); got != want {
			t.Fatalf("%s: expected %d scores, got %d", level, want, got)
		}
	}
	got := loaded.Scores(hierarchy.LevelDimension)[0]
	want := run.Scores(hierarchy.LevelDimension)[0]
	if got.GroupID != want.GroupID || got.Value != want.Value {
		t.Fatalf("first dimension mismatch: %+v vs %+v", got, want)
	}
	if len(got.Provenance.Inputs) != 5 {
		t.Fatalf("expected 5 provenance inputs, got %d", len(got.Provenance.Inputs))
	}
	if loaded.Macro == nil || loaded.Macro.Coherence == nil {
		t.Fatal("expected macro with coherence")
	}
}

func TestSaveRunWithViolations(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	run := &hierarchy.Run{
		ID:        "run-failed",
		StartedAt: fixedTime,
		Levels:    map[hierarchy.Level][]hierarchy.AggregateScore{},
		Violations: []contract.Violation{
			{InvariantID: contract.Hermeticity, Severity: contract.SeverityCritical, GroupID: "PA01-DIM01", Message: "missing Q003"},
			{InvariantID: contract.ScoreBounds, Severity: contract.SeverityHigh, GroupID: "Q004", Observed: "3.4"},
		},
	}
	if err := s.SaveRun(ctx, run, RunMeta{SchemaVersion: "canonical-300", Failed: true}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	rec, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != "failed" || rec.Violations != 2 || rec.MacroValue != nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.FinishedAt.IsZero() {
		t.Fatalf("expected zero finished_at, got %v", rec.FinishedAt)
	}

	vs, err := s.Violations(ctx, run.ID)
	if err != nil {
		t.Fatalf("Violations: %v", err)
	}
	if len(vs) != 2 || vs[0].InvariantID != contract.Hermeticity || vs[1].Observed != "3.4" {
		t.Fatalf("unexpected violations: %+v", vs)
	}
}

func TestDuplicateRunRejected(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	run := &hierarchy.Run{ID: "dup", StartedAt: fixedTime}
	if err := s.SaveRun(ctx, run, RunMeta{SchemaVersion: "v"}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(ctx, run, RunMeta{SchemaVersion: "v"}); err == nil {
		t.Fatal("expected error on duplicate run id")
	}
}

func TestListRunsAndBaseline(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	for i := range 3 {
		run := &hierarchy.Run{ID: fmt.Sprintf("run-%d", i), StartedAt: fixedTime.Add(time.Duration(i) * time.Minute)}
		if err := s.SaveRun(ctx, run, RunMeta{SchemaVersion: "v"}); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" || runs[1].RunID != "run-1" {
		t.Fatalf("unexpected order: %+v", runs)
	}

	if _, err := s.Baseline(ctx); err == nil {
		t.Fatal("expected error with no baseline")
	}
	if err := s.SetBaseline(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
	if err := s.SetBaseline(ctx, "run-0"); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}
	if err := s.SetBaseline(ctx, "run-1"); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}
	base, err := s.Baseline(ctx)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if base.RunID != "run-1" {
		t.Fatalf("expected run-1, got %s", base.RunID)
	}

	events, err := s.Events(ctx, "run-1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "baseline" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
