package replay

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
)

// #region types

const (
	OutcomeOK    = "ok"
	OutcomeAbort = "abort"
)

// DefaultTolerance applies when a case sets no tolerance.
const DefaultTolerance = 1e-9

// replayEpoch stamps every replayed run so provenance is reproducible.
var replayEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Result captures the outcome of replaying one case.
type Result struct {
	Name          string
	Outcome       string
	Macro         *float64
	Violations    []contract.InvariantID
	Deterministic bool
	Passed        bool
	Reason        string
	Run           *hierarchy.Run
	Err           error
}

// Summary provides aggregate stats from a replay.
type Summary struct {
	Total            int
	Passed           int
	Failed           int
	Aborted          int
	Nondeterministic int
}

// #endregion types

// #region replay

// Replay runs every case twice through a fresh aggregator and checks the
// outcome against its expectation. Both runs must agree exactly.
func Replay(ctx context.Context, schema *hierarchy.Schema, config hierarchy.Config, cases []Case) []Result {
	log := clog.FromContext(ctx)
	results := make([]Result, 0, len(cases))
	for i := range cases {
		c := &cases[i]
		cfg := config
		if c.AbortOnViolation != nil {
			cfg.AbortOnViolation = *c.AbortOnViolation
		}
		if c.AbortOnInsufficient != nil {
			cfg.AbortOnInsufficient = *c.AbortOnInsufficient
		}
		agg := hierarchy.NewAggregator(schema, cfg, hierarchy.WithClock(func() time.Time { return replayEpoch }))
		evidence := c.EvidenceFor(schema)

		first, err1 := agg.Run(ctx, evidence, c.Trust)
		second, err2 := agg.Run(ctx, evidence, c.Trust)

		r := observe(c.Name, first, err1)
		r.Deterministic = sameOutcome(first, err1, second, err2)
		r.Passed, r.Reason = check(r, c.Expect)
		log.With("case", c.Name, "outcome", r.Outcome, "passed", r.Passed).Debug("case replayed")
		results = append(results, r)
	}
	return results
}

func observe(name string, run *hierarchy.Run, err error) Result {
	r := Result{Name: name, Outcome: OutcomeOK, Run: run, Err: err}
	if err != nil {
		r.Outcome = OutcomeAbort
	}
	if run == nil {
		return r
	}
	if run.Macro != nil {
		v := run.Macro.Value
		r.Macro = &v
	}
	r.Violations = invariants(run.Violations)
	return r
}

func invariants(vs []contract.Violation) []contract.InvariantID {
	set := make(map[contract.InvariantID]bool)
	for _, v := range vs {
		set[v.InvariantID] = true
	}
	out := make([]contract.InvariantID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sameOutcome(a *hierarchy.Run, errA error, b *hierarchy.Run, errB error) bool {
	if (errA == nil) != (errB == nil) {
		return false
	}
	if errA != nil && errA.Error() != errB.Error() {
		return false
	}
	if a == nil || b == nil {
		return a == b
	}
	for _, level := range hierarchy.Levels() {
		sa, sb := a.Levels[level], b.Levels[level]
		if len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if sa[i].GroupID != sb[i].GroupID || sa[i].Value != sb[i].Value {
				return false
			}
			ia, ib := sa[i].ConfidenceInterval, sb[i].ConfidenceInterval
			if (ia == nil) != (ib == nil) || (ia != nil && (ia.Lower != ib.Lower || ia.Upper != ib.Upper)) {
				return false
			}
		}
	}
	return len(a.Violations) == len(b.Violations)
}

func check(r Result, want Expectation) (bool, string) {
	if !r.Deterministic {
		return false, "runs disagree"
	}
	if r.Outcome != want.Outcome {
		reason := fmt.Sprintf("outcome %s, want %s", r.Outcome, want.Outcome)
		if r.Err != nil {
			reason += ": " + r.Err.Error()
		}
		return false, reason
	}
	if want.Macro != nil {
		if r.Macro == nil {
			return false, "no macro score"
		}
		tol := want.Tolerance
		if tol == 0 {
			tol = DefaultTolerance
		}
		if math.Abs(*r.Macro-*want.Macro) > tol {
			return false, fmt.Sprintf("macro %.6f, want %.6f", *r.Macro, *want.Macro)
		}
	}
	if want.Violations != nil {
		exp := append([]contract.InvariantID(nil), want.Violations...)
		sort.Slice(exp, func(i, j int) bool { return exp[i] < exp[j] })
		if fmt.Sprint(exp) != fmt.Sprint(r.Violations) {
			return false, fmt.Sprintf("violations %v, want %v", r.Violations, exp)
		}
	}
	return true, ""
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		if r.Outcome == OutcomeAbort {
			s.Aborted++
		}
		if !r.Deterministic {
			s.Nondeterministic++
		}
	}
	return s
}

// #endregion replay
