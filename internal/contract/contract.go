package contract

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// WeightTolerance bounds |Σw − 1|.
	WeightTolerance = 1e-6
	// ConvexityTolerance absorbs float summation error.
	ConvexityTolerance = 1e-9
)

var violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "policyscore",
	Subsystem: "contract",
	Name:      "violations_total",
	Help:      "Aggregation invariant violations by invariant and severity.",
}, []string{"invariant", "severity"})

// #region contract
// Contract validates aggregation invariants. In abort mode every Validate
// call returns an error at the first breach; in record mode breaches are
// appended and the call returns nil. Safe for concurrent use.
type Contract struct {
	mode       Mode
	mu         sync.Mutex
	violations []Violation
}

// New creates a contract in the given mode.
func New(mode Mode) *Contract {
	if mode != ModeRecord {
		mode = ModeAbort
	}
	return &Contract{mode: mode}
}

// Mode returns the contract's mode.
func (c *Contract) Mode() Mode {
	return c.mode
}

// Violations returns a copy of everything recorded so far.
func (c *Contract) Violations() []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Violation(nil), c.violations...)
}

// ViolationsFor returns the recorded violations of one group.
func (c *Contract) ViolationsFor(groupID string) []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Violation
	for _, v := range c.violations {
		if v.GroupID == groupID {
			out = append(out, v)
		}
	}
	return out
}

// ClearViolations drops all recorded violations.
func (c *Contract) ClearViolations() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations = nil
}

func (c *Contract) fail(v Violation) error {
	v.Severity = SeverityFor(v.InvariantID)

	c.mu.Lock()
	c.violations = append(c.violations, v)
	c.mu.Unlock()

	violationsTotal.WithLabelValues(string(v.InvariantID), string(v.Severity)).Inc()

	if c.mode == ModeAbort {
		return &ViolationError{Violation: v}
	}
	return nil
}

// #endregion contract

// #region checks
// Each check reports whether it passed. In record mode a failed check
// returns false with a nil error; in abort mode the error is a
// *ViolationError.

// ValidateWeightNormalization requires |Σw − 1| ≤ WeightTolerance. Signs are
// the weighted mean's precondition and are not checked here.
func (c *Contract) ValidateWeightNormalization(groupID string, weights []float64) (bool, error) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) <= WeightTolerance {
		return true, nil
	}
	return false, c.fail(Violation{
		InvariantID: WeightNormalization,
		GroupID:     groupID,
		Message:     "weights do not sum to 1",
		Observed:    fmt.Sprintf("%.9f", sum),
		Expected:    fmt.Sprintf("1.0 ± %.0e", WeightTolerance),
		Remediation: "renormalise weights before aggregating",
	})
}

// ValidateScoreBounds requires scale.Min ≤ score ≤ scale.Max.
func (c *Contract) ValidateScoreBounds(groupID string, score float64, scale Scale) (bool, error) {
	if score >= scale.Min && score <= scale.Max {
		return true, nil
	}
	return false, c.fail(Violation{
		InvariantID: ScoreBounds,
		GroupID:     groupID,
		Message:     "score outside its scale",
		Observed:    fmt.Sprintf("%.6f", score),
		Expected:    fmt.Sprintf("[%g, %g]", scale.Min, scale.Max),
		Remediation: "clamp evidence at the source or fix the scale",
	})
}

// ValidateCoherenceBounds requires 0 ≤ coherence ≤ 1.
func (c *Contract) ValidateCoherenceBounds(groupID string, coherence float64) (bool, error) {
	if coherence >= 0 && coherence <= 1 {
		return true, nil
	}
	return false, c.fail(Violation{
		InvariantID: CoherenceBounds,
		GroupID:     groupID,
		Message:     "coherence outside [0, 1]",
		Observed:    fmt.Sprintf("%.6f", coherence),
		Expected:    "[0, 1]",
		Remediation: "derive coherence from a bounded dispersion measure",
	})
}

// ValidateConvexity requires min(inputs) ≤ aggregated ≤ max(inputs).
// An empty input set is vacuously convex.
func (c *Contract) ValidateConvexity(groupID string, aggregated float64, inputs []float64) (bool, error) {
	if len(inputs) == 0 {
		return true, nil
	}
	lo, hi := inputs[0], inputs[0]
	for _, v := range inputs[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if aggregated >= lo-ConvexityTolerance && aggregated <= hi+ConvexityTolerance {
		return true, nil
	}
	return false, c.fail(Violation{
		InvariantID: Convexity,
		GroupID:     groupID,
		Message:     "aggregate outside the range of its inputs",
		Observed:    fmt.Sprintf("%.6f", aggregated),
		Expected:    fmt.Sprintf("[%.6f, %.6f]", lo, hi),
		Remediation: "use non-negative normalised weights",
	})
}

// ValidateHermeticity compares the child ids of a group with the expected
// set. A breach is recorded with its diagnosis; in abort mode the returned
// error is a *HermeticityError.
func (c *Contract) ValidateHermeticity(groupID string, actual, expected []string) (Diagnosis, error) {
	return c.hermeticity(groupID, actual, expected, false)
}

// RequireHermeticity records a breach like ValidateHermeticity but returns
// a *HermeticityError in either mode.
func (c *Contract) RequireHermeticity(groupID string, actual, expected []string) (Diagnosis, error) {
	return c.hermeticity(groupID, actual, expected, true)
}

func (c *Contract) hermeticity(groupID string, actual, expected []string, strict bool) (Diagnosis, error) {
	d := DiagnoseHermeticity(actual, expected)
	if d.Hermetic() {
		return d, nil
	}
	v := Violation{
		InvariantID: Hermeticity,
		GroupID:     groupID,
		Message:     "child set differs from the expected set",
		Observed:    d.String(),
		Expected:    fmt.Sprintf("%d ids exactly once", len(expected)),
		Remediation: d.RemediationHint,
	}
	err := c.fail(v)
	if err == nil && !strict {
		return d, nil
	}
	v.Severity = SeverityFor(Hermeticity)
	return d, &HermeticityError{GroupID: groupID, Diagnosis: d, violation: &ViolationError{Violation: v}}
}

// #endregion checks

// #region diagnosis
// DiagnoseHermeticity reports missing, extra and duplicated ids. All lists
// are sorted.
func DiagnoseHermeticity(actual, expected []string) Diagnosis {
	want := make(map[string]bool, len(expected))
	for _, id := range expected {
		want[id] = true
	}
	seen := make(map[string]int, len(actual))
	for _, id := range actual {
		seen[id]++
	}

	var d Diagnosis
	for id := range want {
		if seen[id] == 0 {
			d.MissingIDs = append(d.MissingIDs, id)
		}
	}
	for id, n := range seen {
		if !want[id] {
			d.ExtraIDs = append(d.ExtraIDs, id)
		}
		if n > 1 {
			d.DuplicateIDs = append(d.DuplicateIDs, id)
		}
	}
	sort.Strings(d.MissingIDs)
	sort.Strings(d.ExtraIDs)
	sort.Strings(d.DuplicateIDs)

	if d.Hermetic() {
		return d
	}
	d.Severity = SeverityFor(Hermeticity)
	switch {
	case len(d.MissingIDs) > 0:
		d.RemediationHint = fmt.Sprintf("supply evidence for %d missing ids or drop them from the schema", len(d.MissingIDs))
	case len(d.ExtraIDs) > 0:
		d.RemediationHint = "remove ids not declared in the schema or map them to a parent"
	default:
		d.RemediationHint = "deduplicate the input stream"
	}
	return d
}

// #endregion diagnosis
