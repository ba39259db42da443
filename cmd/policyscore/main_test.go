package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	settings = env{}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeEvidence(t *testing.T, dir string, score float64, skip string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("evidence:\n")
	for i := 1; i <= 300; i++ {
		id := fmt.Sprintf("Q%03d", i)
		if id == skip {
			continue
		}
		fmt.Fprintf(&b, "  - {question_id: %s, score: %g, confidence: 1}\n", id, score)
	}
	path := filepath.Join(dir, "evidence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRunAndInspect(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	evidence := writeEvidence(t, dir, 2, "")

	out, err := execute(t, "--db", db, "run", "--evidence", evidence, "--baseline")
	require.NoError(t, err)
	assert.Contains(t, out, "macro 1.8500")
	assert.Contains(t, out, "no violations")

	runID := strings.TrimPrefix(strings.SplitN(out, "\n", 2)[0], "run ")
	require.NotEmpty(t, runID)

	out, err = execute(t, "--db", db, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, runID)

	out, err = execute(t, "--db", db, "inspect", "baseline")
	require.NoError(t, err)
	assert.Contains(t, out, "run "+runID)
	assert.Contains(t, out, "100.0%")
}

func TestRunAbortsOnMissingQuestion(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	evidence := writeEvidence(t, dir, 2, "Q003")

	out, err := execute(t, "--db", db, "run", "--evidence", evidence)
	require.Error(t, err)
	assert.Contains(t, out, "AGG-004")

	out, err = execute(t, "--db", db, "run", "--evidence", evidence, "--record", "--no-save")
	require.NoError(t, err)
	assert.Contains(t, out, "AGG-004")
	assert.Contains(t, out, "macro 1.8500")

	_, err = execute(t, "--db", db, "run", "--evidence", evidence, "--record", "--abort-on-insufficient", "--no-save")
	assert.ErrorContains(t, err, "PA01-DIM01")

	out, err = execute(t, "--db", db, "--json", "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, `"Status": "failed"`)
}

func TestReplayCanonicalFixture(t *testing.T) {
	fixture := filepath.Join("..", "..", "internal", "replay", "testdata", "canonical.yaml")
	out, err := execute(t, "--db", filepath.Join(t.TempDir(), "runs.db"), "replay", "--fixture", fixture, "--log")
	require.NoError(t, err)
	assert.Contains(t, out, "6 passed, 0 failed")
}

func TestCalibrateNeedsRegistry(t *testing.T) {
	_, err := execute(t, "calibrate", "--requests", "missing.yaml")
	assert.ErrorContains(t, err, "no registry path configured")
}
