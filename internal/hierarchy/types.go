package hierarchy

import (
	"time"

	"github.com/danielpatrickdp/policyscore/internal/confidence"
	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/penalty"
)

// #region level
// Level is one tier of the roll-up.
type Level string

const (
	LevelMicro     Level = "MICRO"
	LevelDimension Level = "DIMENSION"
	LevelArea      Level = "AREA"
	LevelCluster   Level = "CLUSTER"
	LevelMacro     Level = "MACRO"
)

// Levels returns the levels bottom-up.
func Levels() []Level {
	return []Level{LevelMicro, LevelDimension, LevelArea, LevelCluster, LevelMacro}
}

// MacroID is the group id of the single top-level score.
const MacroID = "MACRO"

// #endregion level

// #region evidence
// EvidenceScore is one externally produced per-question score on [0, 3].
type EvidenceScore struct {
	QuestionID string            `json:"question_id" yaml:"question_id"`
	Score      float64           `json:"score" yaml:"score"`
	Confidence float64           `json:"confidence" yaml:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// #endregion evidence

// #region aggregate-score
// Provenance records how an aggregate was produced.
type Provenance struct {
	RunID          string    `json:"run_id"`
	Inputs         []string  `json:"inputs"`
	Weights        []float64 `json:"weights"`
	Timestamp      time.Time `json:"timestamp"`
	SchemaVersion  string    `json:"schema_version"`
	MeasureVersion string    `json:"measure_version,omitempty"`
}

// AggregateScore is the output for one group at one level. Value is on the
// raw 0..3 scale and Normalized on 0..1. Coherence is set from CLUSTER up.
type AggregateScore struct {
	ID                 string                     `json:"id"`
	Level              Level                      `json:"level"`
	GroupID            string                     `json:"group_id"`
	ParentID           string                     `json:"parent_id,omitempty"`
	Value              float64                    `json:"value"`
	Normalized         float64                    `json:"normalized"`
	Bounds             contract.Scale             `json:"bounds"`
	Coherence          *float64                   `json:"coherence,omitempty"`
	Violations         []contract.Violation       `json:"violations,omitempty"`
	PenaltyApplied     float64                    `json:"penalty_applied"`
	Dispersion         *penalty.DispersionMetrics `json:"dispersion,omitempty"`
	ConfidenceInterval *confidence.Interval       `json:"confidence_interval,omitempty"`
	Diagnosis          *contract.Diagnosis        `json:"diagnosis,omitempty"`
	Provenance         Provenance                 `json:"provenance"`
}

// Run is the complete output of one roll-up.
type Run struct {
	ID         string                     `json:"id"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Levels     map[Level][]AggregateScore `json:"levels"`
	Macro      *AggregateScore            `json:"macro,omitempty"`
	Violations []contract.Violation       `json:"violations,omitempty"`
}

// Scores returns the aggregates of one level, ordered by group id.
func (r *Run) Scores(level Level) []AggregateScore {
	return r.Levels[level]
}

// #endregion aggregate-score

// #region config
// Config controls one roll-up. AbortOnInsufficient fails the run on an
// incomplete group even when violations are only recorded.
type Config struct {
	AbortOnViolation    bool              `yaml:"abort_on_violation"`
	AbortOnInsufficient bool              `yaml:"abort_on_insufficient"`
	Concurrency         int               `yaml:"concurrency" validate:"gte=1"`
	Bootstrap           confidence.Config `yaml:"bootstrap"`
	Penalty             penalty.Config    `yaml:"penalty"`
}

// DefaultConfig aborts on the first violation and runs 8 groups at a time.
func DefaultConfig() Config {
	return Config{
		AbortOnViolation: true,
		Concurrency:      8,
		Bootstrap:        confidence.DefaultConfig(),
		Penalty:          penalty.DefaultConfig(),
	}
}

// #endregion config
