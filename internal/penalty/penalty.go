package penalty

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region types
// Scenario classifies how far an ensemble's scores disagree.
type Scenario string

const (
	ScenarioConvergence Scenario = "convergence"
	ScenarioModerate    Scenario = "moderate"
	ScenarioHigh        Scenario = "high_dispersion"
	ScenarioExtreme     Scenario = "extreme_dispersion"
)

// DispersionMetrics describes the spread of one group of scores and the
// penalty it earns.
type DispersionMetrics struct {
	Mean                   float64  `json:"mean"`
	StdDev                 float64  `json:"std_dev"`
	CoefficientOfVariation float64  `json:"coefficient_of_variation"`
	Scenario               Scenario `json:"scenario"`
	Multiplier             float64  `json:"multiplier"`
	Penalty                float64  `json:"penalty"`
}

// Config holds the CV thresholds and multipliers.
type Config struct {
	BasePenalty           float64 `yaml:"base_penalty" validate:"gte=0"`
	ConvergenceCV         float64 `yaml:"convergence_cv" validate:"gt=0"`
	ModerateCV            float64 `yaml:"moderate_cv" validate:"gtfield=ConvergenceCV"`
	HighCV                float64 `yaml:"high_cv" validate:"gtfield=ModerateCV"`
	ConvergenceMultiplier float64 `yaml:"convergence_multiplier" validate:"gte=0"`
	ModerateMultiplier    float64 `yaml:"moderate_multiplier" validate:"gte=0"`
	HighMultiplier        float64 `yaml:"high_multiplier" validate:"gte=0"`
	ExtremeMultiplier     float64 `yaml:"extreme_multiplier" validate:"gte=0"`
	ScaleMin              float64 `yaml:"scale_min"`
}

// DefaultConfig returns the standard thresholds: CV < 0.15, 0.40, 0.60.
func DefaultConfig() Config {
	return Config{
		BasePenalty:           0.3,
		ConvergenceCV:         0.15,
		ModerateCV:            0.40,
		HighCV:                0.60,
		ConvergenceMultiplier: 0.5,
		ModerateMultiplier:    1.0,
		HighMultiplier:        1.5,
		ExtremeMultiplier:     2.0,
		ScaleMin:              0,
	}
}

// #endregion types

var scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "policyscore",
	Subsystem: "penalty",
	Name:      "scenarios_total",
	Help:      "Dispersion penalties applied by scenario.",
}, []string{"scenario"})

// #region engine
// Engine penalises incoherent groups by their coefficient of variation.
type Engine struct {
	config Config
}

// NewEngine creates a penalty engine.
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// ComputeDispersionMetrics returns population mean, standard deviation,
// CV and the resulting scenario. A zero mean with zero spread has CV 0.
func (e *Engine) ComputeDispersionMetrics(scores []float64) DispersionMetrics {
	var m DispersionMetrics
	if n := float64(len(scores)); n > 0 {
		for _, s := range scores {
			m.Mean += s
		}
		m.Mean /= n
		var ss float64
		for _, s := range scores {
			d := s - m.Mean
			ss += d * d
		}
		m.StdDev = math.Sqrt(ss / n)
	}

	switch {
	case m.StdDev == 0:
		m.CoefficientOfVariation = 0
	case m.Mean == 0:
		m.CoefficientOfVariation = math.Inf(1)
	default:
		m.CoefficientOfVariation = m.StdDev / math.Abs(m.Mean)
	}

	cv := m.CoefficientOfVariation
	switch {
	case cv < e.config.ConvergenceCV:
		m.Scenario, m.Multiplier = ScenarioConvergence, e.config.ConvergenceMultiplier
	case cv < e.config.ModerateCV:
		m.Scenario, m.Multiplier = ScenarioModerate, e.config.ModerateMultiplier
	case cv < e.config.HighCV:
		m.Scenario, m.Multiplier = ScenarioHigh, e.config.HighMultiplier
	default:
		m.Scenario, m.Multiplier = ScenarioExtreme, e.config.ExtremeMultiplier
	}
	// Rounded so the default scenarios give exactly 0.15, 0.30, 0.45 and 0.60.
	m.Penalty = math.Round(e.config.BasePenalty*m.Multiplier*1e9) / 1e9
	return m
}

// Apply subtracts the dispersion penalty of scores from weighted, floored
// at the scale minimum.
func (e *Engine) Apply(weighted float64, scores []float64) (float64, DispersionMetrics) {
	m := e.ComputeDispersionMetrics(scores)
	scenariosTotal.WithLabelValues(string(m.Scenario)).Inc()
	return math.Max(e.config.ScaleMin, weighted-m.Penalty), m
}

// Coherence maps dispersion to [0, 1] as 1 − CV.
func Coherence(m DispersionMetrics) float64 {
	c := 1 - m.CoefficientOfVariation
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// #endregion engine
