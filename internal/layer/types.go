package layer

import (
	"fmt"
	"sort"
)

// #region layer-id
// ID names one of the eight calibration layers.
type ID string

const (
	Base       ID = "@b"
	Unit       ID = "@u"
	Question   ID = "@q"
	Dimension  ID = "@d"
	PolicyArea ID = "@p"
	Congruence ID = "@C"
	Meta       ID = "@m"
	Chain      ID = "@chain"
)

// All returns the eight layers in canonical order.
func All() []ID {
	return []ID{Base, Unit, Question, Dimension, PolicyArea, Congruence, Meta, Chain}
}

// Valid reports whether id is one of the eight known layers.
func (id ID) Valid() bool {
	for _, l := range All() {
		if l == id {
			return true
		}
	}
	return false
}

// index gives the canonical position, used to order pairs deterministically.
func (id ID) index() int {
	for i, l := range All() {
		if l == id {
			return i
		}
	}
	return len(All())
}

// Sort orders ids canonically in place.
func Sort(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].index() < ids[j].index() })
}

// #endregion layer-id

// #region pair
// Pair is an unordered pair of layers. Always construct through NewPair so
// that {a,b} and {b,a} compare equal as map keys.
type Pair struct {
	A ID
	B ID
}

// NewPair returns the canonical pair for a and b.
func NewPair(a, b ID) Pair {
	if b.index() < a.index() {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

func (p Pair) String() string {
	return fmt.Sprintf("%s×%s", p.A, p.B)
}

// #endregion pair

// #region score
// Score is the output of one layer evaluation for one (method, context).
// Value is always within [0, 1].
type Score struct {
	Layer      ID                 `json:"layer"`
	Value      float64            `json:"value"`
	Components map[string]float64 `json:"components,omitempty"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

// #endregion score

// #region chain-input
// ChainInputs describes how well a method's declared inputs were satisfied
// by the upstream data flow.
type ChainInputs struct {
	HardMismatch            bool     `json:"hard_mismatch,omitempty" yaml:"hard_mismatch,omitempty"`
	RequiredMissing         []string `json:"required_missing,omitempty" yaml:"required_missing,omitempty"`
	CriticalOptionalMissing []string `json:"critical_optional_missing,omitempty" yaml:"critical_optional_missing,omitempty"`
	OptionalMissing         []string `json:"optional_missing,omitempty" yaml:"optional_missing,omitempty"`
	SoftSchemaIssues        []string `json:"soft_schema_issues,omitempty" yaml:"soft_schema_issues,omitempty"`
	Warnings                []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// #endregion chain-input
