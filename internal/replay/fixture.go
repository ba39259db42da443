package replay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
)

// #region fixture-types

// Fixture is a set of recorded roll-up cases with their expected outcomes.
// Fixtures are YAML; JSON documents parse as well.
type Fixture struct {
	Description string `yaml:"description"`
	Cases       []Case `yaml:"cases"`
}

// Case is one evidence stream to replay.
type Case struct {
	Name string `yaml:"name"`
	// Fill scores every schema question not listed in Evidence.
	Fill *float64 `yaml:"fill,omitempty"`
	// Drop removes questions after filling.
	Drop                []string                  `yaml:"drop,omitempty"`
	Evidence            []hierarchy.EvidenceScore `yaml:"evidence,omitempty"`
	Trust               map[string]float64        `yaml:"trust,omitempty"`
	AbortOnViolation    *bool                     `yaml:"abort_on_violation,omitempty"`
	AbortOnInsufficient *bool                     `yaml:"abort_on_insufficient,omitempty"`
	Expect              Expectation               `yaml:"expect"`
}

// Expectation is what a case must reproduce.
type Expectation struct {
	Outcome    string                 `yaml:"outcome"` // "ok" | "abort"
	Macro      *float64               `yaml:"macro,omitempty"`
	Tolerance  float64                `yaml:"tolerance,omitempty"`
	Violations []contract.InvariantID `yaml:"violations,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// ParseFixture decodes a fixture document.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(f.Cases))
	for i, c := range f.Cases {
		if c.Name == "" {
			return nil, fmt.Errorf("case %d: missing name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("case %s: duplicate name", c.Name)
		}
		seen[c.Name] = true
		switch c.Expect.Outcome {
		case OutcomeOK, OutcomeAbort:
		default:
			return nil, fmt.Errorf("case %s: unknown outcome %q", c.Name, c.Expect.Outcome)
		}
	}
	return &f, nil
}

// EvidenceFor expands a case into the evidence stream it describes.
// Listed evidence keeps its position; filled questions follow in schema order.
func (c *Case) EvidenceFor(schema *hierarchy.Schema) []hierarchy.EvidenceScore {
	drop := make(map[string]bool, len(c.Drop))
	for _, id := range c.Drop {
		drop[id] = true
	}
	listed := make(map[string]bool, len(c.Evidence))
	out := make([]hierarchy.EvidenceScore, 0, schema.Len(hierarchy.LevelMicro))
	for _, e := range c.Evidence {
		listed[e.QuestionID] = true
		if !drop[e.QuestionID] {
			out = append(out, e)
		}
	}
	if c.Fill == nil {
		return out
	}
	for _, id := range schema.Groups(hierarchy.LevelMicro) {
		if listed[id] || drop[id] {
			continue
		}
		out = append(out, hierarchy.EvidenceScore{QuestionID: id, Score: *c.Fill, Confidence: 1})
	}
	return out
}

// #endregion fixture-loader
