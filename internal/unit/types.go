package unit

// #region document
// Block is one structural block found in the source document.
type Block struct {
	Name     string `json:"name" yaml:"name"`
	Position int    `json:"position" yaml:"position"`
}

// Section is a named section with its approximate size.
type Section struct {
	Name   string `json:"name" yaml:"name"`
	Tokens int    `json:"tokens" yaml:"tokens"`
}

// IndicatorRow is one row of the indicator table, as extracted (raw text cells).
type IndicatorRow struct {
	Name          string `json:"name" yaml:"name"`
	Baseline      string `json:"baseline" yaml:"baseline"`
	Target        string `json:"target" yaml:"target"`
	Unit          string `json:"unit" yaml:"unit"`
	Source        string `json:"source" yaml:"source"`
	BaselineYear  int    `json:"baseline_year" yaml:"baseline_year"`
	TargetYear    int    `json:"target_year" yaml:"target_year"`
	LinkedProgram string `json:"linked_program" yaml:"linked_program"`
}

// IndicatorTable holds the indicator rows of the document.
type IndicatorTable struct {
	Rows []IndicatorRow `json:"rows" yaml:"rows"`
}

// BudgetRow is one row of the budget / PPI matrix.
type BudgetRow struct {
	ProgramCode string `json:"program_code" yaml:"program_code"`
	Amount      string `json:"amount" yaml:"amount"`
	Source      string `json:"source" yaml:"source"`
	Year        int    `json:"year" yaml:"year"`
}

// BudgetMatrix holds the budget rows of the document.
type BudgetMatrix struct {
	Rows []BudgetRow `json:"rows" yaml:"rows"`
}

// Document is the structural summary of a policy document (PDT) produced by
// the upstream extractor.
type Document struct {
	ID           string          `json:"id" yaml:"id"`
	Blocks       []Block         `json:"blocks" yaml:"blocks"`
	Sections     []Section       `json:"sections" yaml:"sections"`
	Indicators   *IndicatorTable `json:"indicators,omitempty" yaml:"indicators,omitempty"`
	Budget       *BudgetMatrix   `json:"budget,omitempty" yaml:"budget,omitempty"`
	ProgramCodes []string        `json:"program_codes" yaml:"program_codes"`
	HorizonStart int             `json:"horizon_start" yaml:"horizon_start"`
	HorizonEnd   int             `json:"horizon_end" yaml:"horizon_end"`
}

// #endregion document

// #region aggregation-method
// Method selects how the four components are combined.
type Method string

const (
	MethodGeometric  Method = "geometric"
	MethodHarmonic   Method = "harmonic"
	MethodArithmetic Method = "arithmetic"
)

// #endregion aggregation-method

// #region config
// SectionRule describes one mandatory section.
type SectionRule struct {
	Name      string  `yaml:"name" validate:"required"`
	Weight    float64 `yaml:"weight" validate:"gt=0"`
	MinTokens int     `yaml:"min_tokens" validate:"gte=0"`
}

// Config holds the thresholds and weights of the @u layer.
type Config struct {
	Method            Method             `yaml:"method" validate:"oneof=geometric harmonic arithmetic"`
	Weights           map[string]float64 `yaml:"weights"`
	CanonicalBlocks   []string           `yaml:"canonical_blocks" validate:"min=1"`
	MandatorySections []SectionRule      `yaml:"mandatory_sections" validate:"dive"`
	RequireBudget     bool               `yaml:"require_budget"`
	KnownSources      []string           `yaml:"known_sources"`
	PlaceholderTerms  []string           `yaml:"placeholder_terms"`

	MinStructure       float64 `yaml:"min_structure" validate:"gte=0,lte=1"`        // hard gate on S
	MinIndicatorStruct float64 `yaml:"min_indicator_struct" validate:"gte=0,lte=1"` // hard gate on I_struct
	MinBudgetStruct    float64 `yaml:"min_budget_struct" validate:"gte=0,lte=1"`    // hard gate on P_struct

	PlaceholderTolerance float64 `yaml:"placeholder_tolerance" validate:"gte=0,lte=1"`
	DuplicateTolerance   float64 `yaml:"duplicate_tolerance" validate:"gte=0,lte=1"`
	MinNumericDensity    float64 `yaml:"min_numeric_density" validate:"gte=0,lte=1"`
	GamingWeight         float64 `yaml:"gaming_weight" validate:"gte=0"`
	MaxGamingPenalty     float64 `yaml:"max_gaming_penalty" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the standard PDT rubric.
func DefaultConfig() Config {
	return Config{
		Method: MethodGeometric,
		Weights: map[string]float64{
			ComponentStructure:  0.25,
			ComponentMandatory:  0.25,
			ComponentIndicators: 0.25,
			ComponentBudget:     0.25,
		},
		CanonicalBlocks: []string{"diagnostic", "strategic", "programmatic", "financial", "monitoring"},
		MandatorySections: []SectionRule{
			{Name: "diagnostic", Weight: 2.0, MinTokens: 500},
			{Name: "strategic_vision", Weight: 1.5, MinTokens: 300},
			{Name: "investment_plan", Weight: 2.0, MinTokens: 300},
			{Name: "monitoring_framework", Weight: 1.0, MinTokens: 200},
		},
		RequireBudget:      true,
		PlaceholderTerms:   []string{"n/a", "na", "tbd", "xxx", "por definir", "pendiente", "lorem ipsum", "...", "s/d", "-"},
		MinStructure:       0.5,
		MinIndicatorStruct: 0.7,
		MinBudgetStruct:    0.7,

		PlaceholderTolerance: 0.10,
		DuplicateTolerance:   0.30,
		MinNumericDensity:    0.80,
		GamingWeight:         0.5,
		MaxGamingPenalty:     0.3,
	}
}

// #endregion config

// #region gate
// GateType enumerates the hard gates that force the unit score to zero.
type GateType string

const (
	GateStructure       GateType = "structure_below_minimum"
	GateIndicatorStruct GateType = "indicator_structure_below_minimum"
	GateBudgetMissing   GateType = "required_budget_missing"
	GateBudgetStruct    GateType = "budget_structure_below_minimum"
)

// Gate records a hard gate that fired.
type Gate struct {
	Type   GateType
	Reason string
}

// #endregion gate

// #region tier
// Tier is the quality band of a unit score.
type Tier string

const (
	TierOutstanding  Tier = "outstanding"
	TierRobust       Tier = "robust"
	TierMinimum      Tier = "minimum"
	TierInsufficient Tier = "insufficient"
)

// #endregion tier

// #region result
// Component names used in weights and result maps.
const (
	ComponentStructure  = "S"
	ComponentMandatory  = "M"
	ComponentIndicators = "I"
	ComponentBudget     = "P"
)

// Gaming captures the anti-gaming detector readings.
type Gaming struct {
	PlaceholderRatio float64
	DuplicateRatio   float64
	NumericDensity   float64
	Penalty          float64
}

// Result is the full breakdown of a unit evaluation.
type Result struct {
	Value      float64
	Raw        float64 // aggregate before the gaming penalty
	Components map[string]float64
	Details    map[string]float64
	Gates      []Gate
	Gaming     Gaming
	Tier       Tier
}

// #endregion result
