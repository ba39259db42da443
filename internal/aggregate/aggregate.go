package aggregate

import (
	"fmt"

	"github.com/danielpatrickdp/policyscore/internal/confidence"
	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/penalty"
)

// #region types
// Input is one group of child scores to combine.
type Input struct {
	GroupID     string
	ChildIDs    []string
	Scores      []float64
	Weights     []float64
	ExpectedIDs []string
	Scale       contract.Scale
}

// Output is the combined score of one group. PreAdjustment is the value
// before any penalty; Value is final.
type Output struct {
	Value          float64
	PreAdjustment  float64
	Interval       *confidence.Interval
	Dispersion     *penalty.DispersionMetrics
	PenaltyApplied float64
	Diagnosis      *contract.Diagnosis
	Violations     []contract.Violation
}

// Aggregator combines a group of scores.
type Aggregator interface {
	Aggregate(in Input) (Output, error)
}

// Func adapts a function to an Aggregator.
type Func func(in Input) (Output, error)

func (f Func) Aggregate(in Input) (Output, error) {
	return f(in)
}

// #endregion types

// #region mean
// WeightedMean is the base aggregator: Σ wᵢxᵢ / Σ wᵢ.
type WeightedMean struct{}

func (WeightedMean) Aggregate(in Input) (Output, error) {
	v, err := confidence.WeightedMean(in.Scores, in.Weights)
	if err != nil {
		return Output{}, fmt.Errorf("aggregate %s: %w", in.GroupID, err)
	}
	return Output{Value: v, PreAdjustment: v}, nil
}

// #endregion mean

// #region decorators
// WithConfidence annotates the output with a bootstrap interval seeded by
// the group id.
func WithConfidence(next Aggregator, est *confidence.Estimator) Aggregator {
	return Func(func(in Input) (Output, error) {
		out, err := next.Aggregate(in)
		if err != nil {
			return out, err
		}
		_, iv, err := est.Seeded(in.GroupID).AggregateWithConfidence(in.Scores, in.Weights, 0)
		if err != nil {
			return out, fmt.Errorf("confidence %s: %w", in.GroupID, err)
		}
		iv.Lower = min(iv.Lower, out.Value)
		iv.Upper = max(iv.Upper, out.Value)
		out.Interval = &iv
		return out, nil
	})
}

// WithDispersionPenalty subtracts the dispersion penalty of the child
// scores. The interval, if any, is shifted by the same amount.
func WithDispersionPenalty(next Aggregator, eng *penalty.Engine) Aggregator {
	return Func(func(in Input) (Output, error) {
		out, err := next.Aggregate(in)
		if err != nil {
			return out, err
		}
		pre := out.Value
		final, m := eng.Apply(pre, in.Scores)
		out.PreAdjustment = pre
		out.Value = final
		out.PenaltyApplied = pre - final
		out.Dispersion = &m
		if out.Interval != nil {
			shifted := out.Interval.Shift(out.PenaltyApplied, in.Scale.Min, in.Scale.Max)
			shifted.Lower = min(shifted.Lower, final)
			shifted.Upper = max(shifted.Upper, final)
			out.Interval = &shifted
		}
		return out, nil
	})
}

// WithContract validates hermeticity and weights before aggregating, then
// bounds on the final value and convexity on the pre-penalty value.
func WithContract(next Aggregator, c *contract.Contract) Aggregator {
	return Func(func(in Input) (Output, error) {
		var diag *contract.Diagnosis
		if in.ExpectedIDs != nil {
			d, err := c.ValidateHermeticity(in.GroupID, in.ChildIDs, in.ExpectedIDs)
			if err != nil {
				return Output{Diagnosis: &d}, err
			}
			if !d.Hermetic() {
				diag = &d
			}
		}
		if _, err := c.ValidateWeightNormalization(in.GroupID, in.Weights); err != nil {
			return Output{Diagnosis: diag}, err
		}

		out, err := next.Aggregate(in)
		if err != nil {
			return out, err
		}
		out.Diagnosis = diag

		if _, err := c.ValidateScoreBounds(in.GroupID, out.Value, in.Scale); err != nil {
			return out, err
		}
		if _, err := c.ValidateConvexity(in.GroupID, out.PreAdjustment, in.Scores); err != nil {
			return out, err
		}
		out.Violations = c.ViolationsFor(in.GroupID)
		return out, nil
	})
}

// #endregion decorators

// #region compose
// Standard builds contract(confidence(mean)).
func Standard(c *contract.Contract, est *confidence.Estimator) Aggregator {
	return WithContract(WithConfidence(WeightedMean{}, est), c)
}

// Penalized builds contract(penalty(confidence(mean))).
func Penalized(c *contract.Contract, est *confidence.Estimator, eng *penalty.Engine) Aggregator {
	return WithContract(WithDispersionPenalty(WithConfidence(WeightedMean{}, est), eng), c)
}

// #endregion compose
