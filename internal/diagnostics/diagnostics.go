package diagnostics

import (
	"sort"

	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
)

// #region coverage
// LevelCoverage summarises one level of a run.
type LevelCoverage struct {
	Level          hierarchy.Level `json:"level"`
	Expected       int             `json:"expected"`
	Groups         int             `json:"groups"`
	CompleteGroups int             `json:"complete_groups"`
	Inputs         int             `json:"inputs"`
}

// Ratio is the share of expected groups that were produced.
func (c LevelCoverage) Ratio() float64 {
	if c.Expected == 0 {
		return 0
	}
	return float64(c.Groups) / float64(c.Expected)
}

// Coverage reports, per level bottom-up, how many groups were produced out
// of those the schema expects and how many were hermetic.
func Coverage(run *hierarchy.Run, schema *hierarchy.Schema) []LevelCoverage {
	var out []LevelCoverage
	for _, level := range hierarchy.Levels() {
		scores := run.Scores(level)
		c := LevelCoverage{Level: level, Expected: schema.Len(level), Groups: len(scores)}
		for _, s := range scores {
			c.Inputs += len(s.Provenance.Inputs)
			if s.Diagnosis == nil || s.Diagnosis.Hermetic() {
				c.CompleteGroups++
			}
		}
		out = append(out, c)
	}
	return out
}

// #endregion coverage

// #region weakest
// WeakestDimensions returns the n lowest-scoring dimensions, ties broken by id.
func WeakestDimensions(run *hierarchy.Run, n int) []hierarchy.AggregateScore {
	dims := append([]hierarchy.AggregateScore(nil), run.Scores(hierarchy.LevelDimension)...)
	sort.SliceStable(dims, func(i, j int) bool {
		if dims[i].Value != dims[j].Value {
			return dims[i].Value < dims[j].Value
		}
		return dims[i].GroupID < dims[j].GroupID
	})
	if n >= 0 && n < len(dims) {
		dims = dims[:n]
	}
	return dims
}

// #endregion weakest

// #region violations
// ViolationCount is the number of violations of one invariant at one severity.
type ViolationCount struct {
	InvariantID contract.InvariantID `json:"invariant_id"`
	Severity    contract.Severity    `json:"severity"`
	Count       int                  `json:"count"`
	Groups      []string             `json:"groups"`
}

// ViolationSummary groups a run's violations by invariant, ordered by id.
func ViolationSummary(run *hierarchy.Run) []ViolationCount {
	byID := make(map[contract.InvariantID]*ViolationCount)
	for _, v := range run.Violations {
		c, ok := byID[v.InvariantID]
		if !ok {
			c = &ViolationCount{InvariantID: v.InvariantID, Severity: v.Severity}
			byID[v.InvariantID] = c
		}
		c.Count++
		c.Groups = append(c.Groups, v.GroupID)
	}
	out := make([]ViolationCount, 0, len(byID))
	for _, c := range byID {
		sort.Strings(c.Groups)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvariantID < out[j].InvariantID })
	return out
}

// #endregion violations
