package contract

import (
	"fmt"
	"strings"
)

// #region invariants
// InvariantID names one aggregation invariant.
type InvariantID string

const (
	WeightNormalization InvariantID = "AGG-001"
	ScoreBounds         InvariantID = "AGG-002"
	CoherenceBounds     InvariantID = "AGG-003"
	Hermeticity         InvariantID = "AGG-004"
	Convexity           InvariantID = "AGG-006"
)

// Severity is a closed set; every invariant maps to exactly one.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

var severities = map[InvariantID]Severity{
	WeightNormalization: SeverityCritical,
	ScoreBounds:         SeverityHigh,
	CoherenceBounds:     SeverityMedium,
	Hermeticity:         SeverityCritical,
	Convexity:           SeverityHigh,
}

// SeverityFor returns the fixed severity of an invariant.
func SeverityFor(id InvariantID) Severity {
	if s, ok := severities[id]; ok {
		return s
	}
	return SeverityCritical
}

// #endregion invariants

// #region mode
// Mode selects whether the first violation aborts or all are recorded.
type Mode string

const (
	ModeAbort  Mode = "abort"
	ModeRecord Mode = "record"
)

// Scale is the closed interval a score must lie in.
type Scale struct {
	Min float64
	Max float64
}

var (
	RawScale        = Scale{Min: 0, Max: 3}
	NormalizedScale = Scale{Min: 0, Max: 1}
)

// #endregion mode

// #region violation
// Violation is one detected breach, with enough context to act on it.
type Violation struct {
	InvariantID InvariantID `json:"invariant_id"`
	Severity    Severity    `json:"severity"`
	GroupID     string      `json:"group_id"`
	Message     string      `json:"message"`
	Observed    string      `json:"observed"`
	Expected    string      `json:"expected"`
	Remediation string      `json:"remediation"`
}

// ViolationError is returned in abort mode.
type ViolationError struct {
	Violation Violation
}

func (e *ViolationError) Error() string {
	v := e.Violation
	return fmt.Sprintf("%s [%s] %s: %s (observed %s, expected %s; %s)",
		v.InvariantID, v.Severity, v.GroupID, v.Message, v.Observed, v.Expected, v.Remediation)
}

// #endregion violation

// #region hermeticity
// Diagnosis explains how a child set differs from its expected set.
type Diagnosis struct {
	MissingIDs      []string `json:"missing_ids"`
	ExtraIDs        []string `json:"extra_ids"`
	DuplicateIDs    []string `json:"duplicate_ids"`
	Severity        Severity `json:"severity,omitempty"`
	RemediationHint string   `json:"remediation_hint,omitempty"`
}

// Hermetic reports whether actual matched expected exactly.
func (d Diagnosis) Hermetic() bool {
	return len(d.MissingIDs) == 0 && len(d.ExtraIDs) == 0 && len(d.DuplicateIDs) == 0
}

func (d Diagnosis) String() string {
	var parts []string
	if len(d.MissingIDs) > 0 {
		parts = append(parts, fmt.Sprintf("missing=%v", d.MissingIDs))
	}
	if len(d.ExtraIDs) > 0 {
		parts = append(parts, fmt.Sprintf("extra=%v", d.ExtraIDs))
	}
	if len(d.DuplicateIDs) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate=%v", d.DuplicateIDs))
	}
	if len(parts) == 0 {
		return "hermetic"
	}
	return strings.Join(parts, " ")
}

// HermeticityError always carries the diagnosis. It unwraps to the
// underlying *ViolationError.
type HermeticityError struct {
	GroupID   string
	Diagnosis Diagnosis
	violation *ViolationError
}

func (e *HermeticityError) Error() string {
	return fmt.Sprintf("hermeticity broken in %s: %s (%s)", e.GroupID, e.Diagnosis, e.Diagnosis.RemediationHint)
}

func (e *HermeticityError) Unwrap() error {
	return e.violation
}

// #endregion hermeticity
